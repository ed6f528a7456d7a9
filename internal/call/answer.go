package call

import "fmt"

// Answer connects an incoming (or held, on shared lines) channel on the
// given device. Forwarder children of the channel are ended first, and
// any call already presented on the device is ended (if still ringing or
// off-hook) or held.
func (m *Manager) Answer(d *Device, c *Channel) error {
	if c == nil {
		return fmt.Errorf("answer: %w", ErrNoLine)
	}

	c.mu.Lock()
	l := m.channelLineLocked(c)
	if l == nil {
		c.mu.Unlock()
		m.logger.Error("answer on channel without line", "call_id", c.id)
		return fmt.Errorf("answer channel %d: %w", c.id, ErrNoLine)
	}
	if c.owner == nil {
		c.mu.Unlock()
		m.logger.Error("answer on channel without bridge leg", "call_id", c.id)
		return fmt.Errorf("answer channel %d: %w", c.id, ErrNoOwner)
	}

	wasHeld := c.stateLocked() == StateHold

	// Shared-line pickup: a held call may be answered on a different
	// device than the one that originally served it.
	if wasHeld && d != nil {
		c.deviceID = d.ID()
	}
	if d == nil {
		d = m.channelDeviceLocked(c)
	}
	if d == nil {
		c.mu.Unlock()
		m.logger.Error("answer on channel without device", "call_id", c.id)
		return fmt.Errorf("answer channel %d: %w", c.id, ErrNoDevice)
	}
	c.mu.Unlock()

	if wasHeld {
		l.decHold()
	}

	m.UpdateChannelCapability(c)

	// Clear whatever the device is currently presenting.
	if other := m.ActiveChannel(d); other != nil && other != c {
		switch other.State() {
		case StateOffhook, StateRingout:
			m.EndCall(other)
		default:
			if err := m.Hold(other); err != nil {
				return fmt.Errorf("answer channel %d: hold active: %w", c.ID(), err)
			}
		}
	}

	m.logger.Info("answer channel", "call_id", c.ID(), "line", l.Name(), "device", d.ID())

	// End any calls forwarded on behalf of this one.
	m.endForwardChildren(c)

	c.mu.Lock()
	defer c.mu.Unlock()

	d.setActive(c.id, c.lineName)

	// The old state could be a transfer, leaving the bridged party on
	// hold music.
	if bridged := c.owner.BridgedLeg(); bridged != nil && bridged.MusicOnHold() {
		bridged.StopMusicOnHold()
	}

	c.owner.QueueControlSignal(SignalAnswer)

	if c.stateLocked() != StateOffhook {
		m.indicateLocked(d, c, StateOffhook)
	}
	if err := m.indicateLocked(d, c, StateConnected); err != nil {
		return err
	}
	l.incActive()
	return nil
}

// endForwardChildren ends every live forwarder whose parent is c.
func (m *Manager) endForwardChildren(c *Channel) {
	for _, childID := range m.reg.Children(c.ID()) {
		child := m.reg.Get(childID)
		if child == nil {
			continue
		}
		m.logger.Info("ending forward child",
			"call_id", childID, "parent", c.ID())
		m.EndCall(child)
	}
}
