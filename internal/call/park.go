package call

import (
	"fmt"
	"strconv"
)

// Park hands the channel's remote party to the bridge's call-park
// subsystem and notifies the parking device of the assigned slot. The
// bridge performs the actual parking from its own goroutine; the result
// arrives through the callback.
func (m *Manager) Park(c *Channel) error {
	if c == nil {
		return fmt.Errorf("park: %w", ErrNoLine)
	}

	c.mu.Lock()
	d := m.channelDeviceLocked(c)
	if d == nil {
		c.mu.Unlock()
		return fmt.Errorf("park channel %d: %w", c.id, ErrNoDevice)
	}
	if !d.ParkEnabled() {
		c.mu.Unlock()
		m.logger.Info("park disabled", "device", d.ID())
		return fmt.Errorf("park channel %d: %w", c.id, ErrParkDisabled)
	}
	owner := c.owner
	if owner == nil {
		m.displayPromptLocked(d, c, PromptNoParkSlotsAvailable, 5)
		c.mu.Unlock()
		return fmt.Errorf("park channel %d: %w", c.id, ErrNoOwner)
	}
	remote := owner.BridgedLeg()
	if remote == nil {
		m.displayPromptLocked(d, c, PromptNoParkSlotsAvailable, 5)
		c.mu.Unlock()
		return fmt.Errorf("park channel %d: no bridged party: %w", c.id, ErrInvalidState)
	}

	l := m.channelLineLocked(c)
	prior := c.stateLocked()
	if err := m.indicateLocked(d, c, StateCallPark); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("park channel %d: %w", c.id, err)
	}
	// A parked call leaves the line's active count and joins the held
	// family, same as Hold; teardown then settles it through decHold.
	if l != nil && (prior == StateConnected || prior == StateProceed) {
		l.decActive()
		l.incHold()
	}
	c.mu.Unlock()

	m.logger.Info("parking call", "call_id", c.ID(), "device", d.ID(), "remote", remote.Name())

	go func() {
		slot, err := m.bridge.Park(remote, owner)
		if err != nil {
			m.logger.Warn("park failed", "call_id", c.ID(), "error", err)
			m.displayPrompt(d, c, PromptNoParkSlotsAvailable, 10)
			m.indicate(d, c, StateConnected)
			if l != nil {
				l.decHold()
				l.incActive()
			}
			return
		}
		m.logger.Info("call parked", "call_id", c.ID(), "slot", slot)
		m.displayNotify(d, "Call Park At "+strconv.Itoa(slot), 10)
		m.EndCall(c)
	}()
	return nil
}
