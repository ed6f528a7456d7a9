package call

import "fmt"

// Forward spawns a child channel that redirects parent's call to number.
// The child is allocated on the parent's line with no serving device; it
// lives only to drive the dial plan towards the forward target and is
// torn down together with the parent.
func (m *Manager) Forward(parent *Channel, l *Line, number string) error {
	if parent == nil || l == nil {
		return fmt.Errorf("forward: %w", ErrNoLine)
	}
	if number == "" {
		return fmt.Errorf("forward channel %d: empty target", parent.ID())
	}

	child, err := m.Allocate(l, nil)
	if err != nil {
		return fmt.Errorf("forward channel %d: %w", parent.ID(), err)
	}

	child.mu.Lock()
	child.callType = CallTypeForward
	child.ssAction = SSActionDial
	child.dialedNumber = number
	child.calledNumber = number
	name, num := l.CallerID()
	child.callingName = name
	child.callingNumber = num
	child.mu.Unlock()

	if !m.reg.link(parent.ID(), child.ID()) {
		m.teardownForward(child)
		return fmt.Errorf("forward channel %d: chained forward: %w", parent.ID(), ErrInvalidState)
	}

	m.logger.Info("call forward", "parent", parent.ID(), "child", child.ID(),
		"line", l.Name(), "target", number)

	owner, err := m.bridge.AllocateLeg(child)
	if err != nil {
		m.logger.Error("forward leg allocation failed",
			"child", child.ID(), "error", err)
		m.teardownForward(child)
		return fmt.Errorf("forward channel %d: %w: %v", parent.ID(), ErrLegAllocation, err)
	}
	child.SetOwner(owner)

	if !owner.HasExtension(number) || owner.IsHangingUp() {
		m.logger.Warn("forward target unroutable", "child", child.ID(), "target", number)
		m.teardownForward(child)
		return fmt.Errorf("forward channel %d to %s: %w", parent.ID(), number, ErrInvalidState)
	}
	if !owner.StartDialPlan() {
		m.logger.Error("forward dial plan failed", "child", child.ID())
		m.teardownForward(child)
		return fmt.Errorf("forward channel %d: dial plan start: %w", parent.ID(), ErrLegAllocation)
	}
	return nil
}

func (m *Manager) teardownForward(child *Channel) {
	m.CleanBeforeDelete(child)
	m.Delete(child)
}
