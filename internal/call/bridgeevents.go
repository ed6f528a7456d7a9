package call

import "fmt"

// Callbacks invoked by the bridge layer when the remote side of an
// outgoing call progresses. They run on bridge goroutines; each takes
// the channel lock for the duration of the state change only.

// HandleRemoteRinging marks an outgoing call as ringing at the far end.
func (m *Manager) HandleRemoteRinging(c *Channel) error {
	if c == nil {
		return fmt.Errorf("remote ringing: %w", ErrNoLine)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := m.channelDeviceLocked(c)
	return m.indicateLocked(d, c, StateRingout)
}

// HandleRemoteAnswer connects an outgoing call after the far end picked
// up and settles the line's active-channel counter.
func (m *Manager) HandleRemoteAnswer(c *Channel) error {
	if c == nil {
		return fmt.Errorf("remote answer: %w", ErrNoLine)
	}
	c.mu.Lock()
	d := m.channelDeviceLocked(c)
	l := m.channelLineLocked(c)
	err := m.indicateLocked(d, c, StateConnected)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if l != nil {
		l.incActive()
	}
	return nil
}

// HandleRemoteBusy plays busy against an outgoing call.
func (m *Manager) HandleRemoteBusy(c *Channel) error {
	if c == nil {
		return fmt.Errorf("remote busy: %w", ErrNoLine)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := m.channelDeviceLocked(c)
	return m.indicateLocked(d, c, StateBusy)
}

// HandleRemoteHangup is the bridge's teardown notification; it retires
// the channel unconditionally.
func (m *Manager) HandleRemoteHangup(c *Channel) {
	if c == nil {
		return
	}
	m.logger.Info("remote hangup", "call_id", c.ID())
	m.CleanBeforeDelete(c)
	m.Delete(c)
}

// HandleIncomingCall rings an idle device for a call arriving from the
// bridge. The allocated channel carries the remote party's caller id and
// waits in Ringing until Answer or remote hangup.
func (m *Manager) HandleIncomingCall(l *Line, d *Device, owner BridgeLeg) (*Channel, error) {
	if l == nil || d == nil {
		return nil, fmt.Errorf("incoming call: %w", ErrNoLine)
	}
	c, err := m.Allocate(l, d)
	if err != nil {
		return nil, fmt.Errorf("incoming call on %s: %w", l.Name(), err)
	}

	c.mu.Lock()
	c.owner = owner
	if owner != nil {
		name, number := owner.CallerID()
		c.callingName = name
		c.callingNumber = number
	}
	cidName, cidNum := l.CallerID()
	c.calledName = cidName
	c.calledNumber = cidNum
	m.updateCapabilityLocked(c)
	err = m.indicateLocked(d, c, StateRinging)
	c.mu.Unlock()
	if err != nil {
		m.CleanBeforeDelete(c)
		m.Delete(c)
		return nil, err
	}
	m.SendCallInfo(d, c)
	return c, nil
}
