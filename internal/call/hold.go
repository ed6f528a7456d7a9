package call

import "fmt"

// Hold parks the channel's media and releases the device's active slot.
// Only Connected and Proceed channels can be held (Proceed covers
// toll-free calls that stay in call progress). Returns an error with no
// state mutated otherwise.
func (m *Manager) Hold(c *Channel) error {
	if c == nil {
		return fmt.Errorf("hold: %w", ErrNoLine)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	l := m.channelLineLocked(c)
	d := m.channelDeviceLocked(c)
	if l == nil || d == nil {
		m.logger.Warn("hold on channel without line or device", "call_id", c.id)
		if l == nil {
			return fmt.Errorf("hold channel %d: %w", c.id, ErrNoLine)
		}
		return fmt.Errorf("hold channel %d: %w", c.id, ErrNoDevice)
	}

	state := c.stateLocked()
	if state == StateHold {
		m.logger.Warn("channel already on hold", "call_id", c.id)
		return fmt.Errorf("hold channel %d: %w", c.id, ErrAlreadyOnHold)
	}
	if state != StateConnected && state != StateProceed {
		m.logger.Error("cannot hold inactive channel",
			"call_id", c.id, "line", l.Name(), "state", state.String())
		m.displayPromptLocked(d, c, PromptKeyNotActive, 5)
		return fmt.Errorf("hold channel %d in state %s: %w", c.id, state, ErrInvalidState)
	}

	if c.owner == nil {
		m.logger.Warn("bridge leg disappeared before hold", "call_id", c.id)
		return fmt.Errorf("hold channel %d: %w", c.id, ErrNoOwner)
	}

	m.logger.Info("hold channel", "call_id", c.id, "line", l.Name(), "device", d.ID())

	// Local media flow stops; the PBX side typically starts hold music.
	c.owner.QueueControlSignal(SignalHold)

	d.clearActiveIf(c.id)

	// Closes, but does not destroy, the receive media path.
	m.indicateLocked(d, c, StateHold)

	l.decActive()
	l.incHold()
	return nil
}

// Resume takes a held (or transfer/conference-parked) channel back to
// Connected on the given device, which may differ from the device that
// held it (shared-line pickup). Any call active on the resuming device is
// held first. The media session is restarted with a fresh codec
// negotiation.
func (m *Manager) Resume(d *Device, c *Channel) error {
	if c == nil {
		return fmt.Errorf("resume: %w", ErrNoLine)
	}
	if c.Owner() == nil {
		return fmt.Errorf("resume channel %d: %w", c.ID(), ErrNoOwner)
	}

	c.mu.Lock()
	l := m.channelLineLocked(c)
	if l == nil || c.deviceID == "" {
		c.mu.Unlock()
		m.logger.Warn("resume on channel without line or device", "call_id", c.ID())
		return fmt.Errorf("resume channel %d: %w", c.ID(), ErrNoLine)
	}
	if d == nil {
		d = m.channelDeviceLocked(c)
	}
	c.mu.Unlock()
	if d == nil {
		return fmt.Errorf("resume channel %d: %w", c.ID(), ErrNoDevice)
	}

	// The resuming device may be presenting another call; hold it first.
	if active := m.ActiveChannel(d); active != nil && active != c {
		if err := m.Hold(active); err != nil {
			return fmt.Errorf("resume channel %d: hold active: %w", c.ID(), err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.stateLocked()
	if state != StateHold && state != StateCallTransfer && state != StateCallConference {
		m.logger.Error("cannot resume channel, not on hold",
			"call_id", c.id, "line", l.Name(), "state", state.String())
		m.displayPromptLocked(d, c, PromptNoCallToResume, 5)
		return fmt.Errorf("resume channel %d in state %s: %w", c.id, state, ErrInvalidState)
	}

	// A resume in the middle of a transfer or conference abandons it.
	d.clearMarkersIf(c.id)

	m.logger.Info("resume channel", "call_id", c.id, "line", l.Name(), "device", d.ID())

	c.owner.QueueControlSignal(SignalUnhold)

	// Restart media with a fresh negotiation: the resuming device may
	// have a different capability than the one that held the call.
	if c.session != nil {
		c.session.Stop()
		c.session.Destroy()
		c.session = nil
	}

	c.deviceID = d.ID()
	c.codecFixed = false
	m.updateCapabilityLocked(c)
	c.codecFixed = true

	// Connected reopens the receive media path.
	if err := m.indicateLocked(d, c, StateConnected); err != nil {
		return err
	}
	d.setActive(c.id, c.lineName)
	c.owner.QueueControlSignal(SignalSourceUpdate)

	l.decHold()
	l.incActive()
	return nil
}
