package call

import "fmt"

// indicateLocked transitions the channel into the target state and runs
// the state's media side effects: Connected opens the receive path, Hold
// closes it without destroying the session, terminal states close and
// stop everything. Caller holds c.mu; the device lock is only taken
// inside short helper sections.
func (m *Manager) indicateLocked(d *Device, c *Channel, target State) error {
	if err := c.transition(target); err != nil {
		m.logger.Warn("rejected state transition",
			"call_id", c.id,
			"from", c.stateLocked().String(),
			"to", target.String(),
			"error", err,
		)
		return err
	}

	m.logger.Info("channel state",
		"call_id", c.id,
		"line", c.lineName,
		"device", c.deviceID,
		"state", target.String(),
		"previous", c.previousState.String(),
	)

	switch target {
	case StateConnected:
		m.updateCapabilityLocked(c)
		m.sendCallInfoLocked(d, c)
		m.openReceiveChannelLocked(c)
	case StateHold:
		// Close but do not destroy the receive media path; resume reopens
		// it on the same or a different device.
		m.closeReceiveChannelLocked(c)
	case StateOnhook, StateDown, StateZombie:
		m.closeReceiveChannelLocked(c)
	case StateCongestion, StateBusy, StateInvalidNumber:
		m.startToneLocked(d, c, ToneReorder)
	}
	return nil
}

// indicate is indicateLocked for callers not holding the channel lock.
func (m *Manager) indicate(d *Device, c *Channel, target State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return m.indicateLocked(d, c, target)
}

// startToneLocked plays a tone on the channel's line appearance.
func (m *Manager) startToneLocked(d *Device, c *Channel, tone int) {
	if d == nil {
		return
	}
	instance := m.transport.FindLineInstance(d.ID(), c.lineName)
	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrStartTone,
		ConferenceID:  c.id,
		PassThroughID: c.passThrough,
		Tone:          tone,
		LineInstance:  instance,
	})
	if err != nil {
		m.logger.Warn("start tone failed", "device", d.ID(), "call_id", c.id, "error", err)
	}
}

// displayPromptLocked shows a transient text prompt on the device.
func (m *Manager) displayPromptLocked(d *Device, c *Channel, prompt string, timeout int) {
	if d == nil {
		return
	}
	instance := m.transport.FindLineInstance(d.ID(), c.lineName)
	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrDisplayPrompt,
		ConferenceID:  c.id,
		PassThroughID: c.passThrough,
		Prompt:        prompt,
		PromptTimeout: timeout,
		LineInstance:  instance,
	})
	if err != nil {
		m.logger.Warn("display prompt failed", "device", d.ID(), "call_id", c.id, "error", err)
	}
}

// displayNotify shows a notification outside any call context.
func (m *Manager) displayNotify(d *Device, text string, timeout int) {
	if d == nil {
		return
	}
	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrDisplayNotify,
		Prompt:        text,
		PromptTimeout: timeout,
	})
	if err != nil {
		m.logger.Warn("display notify failed", "device", d.ID(), "error", err)
	}
}

// NotifyDevice pushes an operator text message to a registered device's
// display. The device must have a live station session.
func (m *Manager) NotifyDevice(deviceID, text string, timeout int) error {
	d := m.Device(deviceID)
	if d == nil {
		return fmt.Errorf("notify device %s: %w", deviceID, ErrDeviceNotFound)
	}
	if !m.transport.HasActiveSession(d.ID()) {
		return fmt.Errorf("notify device %s: %w", deviceID, ErrNoSession)
	}
	m.logger.Info("device notify", "device", d.ID(), "timeout", timeout)
	m.displayNotify(d, text, timeout)
	return nil
}

// sendCallInfoLocked pushes the channel's party presentation to a device.
func (m *Manager) sendCallInfoLocked(d *Device, c *Channel) {
	if d == nil {
		return
	}
	instance := m.transport.FindLineInstance(d.ID(), c.lineName)
	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrCallInfo,
		ConferenceID:  c.id,
		PassThroughID: c.passThrough,
		LineInstance:  instance,
		CallType:      c.callType,
		CallingName:   c.callingName,
		CallingNumber: c.callingNumber,
		CalledName:    c.calledName,
		CalledNumber:  c.calledNumber,
	})
	if err != nil {
		m.logger.Warn("send callinfo failed", "device", d.ID(), "call_id", c.id, "error", err)
	}
}

// SendCallInfo pushes the channel's party presentation to the device.
func (m *Manager) SendCallInfo(d *Device, c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m.sendCallInfoLocked(d, c)
}

// SendDialedNumber tells the serving device which number was dialed.
func (m *Manager) SendDialedNumber(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calledNumber == "" {
		return
	}
	d := m.channelDeviceLocked(c)
	if d == nil {
		return
	}
	instance := m.transport.FindLineInstance(d.ID(), c.lineName)
	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrDialedNumber,
		ConferenceID:  c.id,
		PassThroughID: c.passThrough,
		LineInstance:  instance,
		CalledNumber:  c.calledNumber,
	})
	if err != nil {
		m.logger.Warn("send dialed number failed", "device", d.ID(), "call_id", c.id, "error", err)
	}
}
