package call

import (
	"errors"
	"fmt"
)

// NewCall starts an outgoing call on the line from the device. An active
// non-conference call on the device is put on hold first; failure to hold
// aborts the new call.
//
// When dial is empty the soft switch collects digits and a first-digit
// timeout is scheduled; otherwise dialing begins immediately. A bridge
// leg allocation failure drives the channel to Congestion but still
// returns it, so the station displays a definitive outcome.
func (m *Manager) NewCall(l *Line, d *Device, dial string, callType CallType) (*Channel, error) {
	if l == nil {
		return nil, fmt.Errorf("new call: %w", ErrNoLine)
	}
	if d == nil || d.ID() == "" {
		return nil, fmt.Errorf("new call: %w", ErrNoDevice)
	}

	// Put the currently presented call on hold, unless it is part of a
	// conference.
	if active := m.ActiveChannel(d); active != nil && active.ID() != d.ConferenceChannelID() {
		if err := m.Hold(active); err != nil {
			return nil, fmt.Errorf("new call: hold active channel %d: %w", active.ID(), err)
		}
	}

	c, err := m.Allocate(l, d)
	if err != nil {
		return nil, fmt.Errorf("new call: %w", err)
	}

	c.mu.Lock()
	c.ssAction = SSActionDial
	c.callType = callType

	name, number := l.CallerID()
	c.callingName = name
	c.callingNumber = number

	d.setActive(c.id, c.lineName)

	if dial != "" {
		c.dialedNumber = dial
		c.calledNumber = dial
		m.indicateLocked(d, c, StateSpeeddial)
	} else {
		m.indicateLocked(d, c, StateOffhook)
	}
	c.mu.Unlock()

	owner, err := m.bridge.AllocateLeg(c)
	if err != nil {
		m.logger.Error("bridge leg allocation failed",
			"call_id", c.ID(), "line", l.Name(), "error", err)
		m.indicate(d, c, StateCongestion)
		return c, fmt.Errorf("new call: %w: %v", ErrLegAllocation, err)
	}
	c.SetOwner(owner)

	if dial != "" {
		m.SendDialedNumber(c)
		if !owner.StartDialPlan() {
			m.logger.Warn("dial plan start failed", "call_id", c.ID(), "number", dial)
			m.indicate(d, c, StateInvalidNumber)
		}
		return c, nil
	}

	// Wait for the first digit, bounded.
	c.mu.Lock()
	c.digitTimeout = m.sched.ScheduleOnce(m.cfg.FirstDigitTimeout, func() {
		m.firstDigitTimeoutFired(c.ID())
	})
	c.mu.Unlock()

	return c, nil
}

// Dial supplies collected digits to a channel waiting in digit
// collection, cancelling the pending first-digit timeout.
func (m *Manager) Dial(c *Channel, digits string) error {
	if c == nil || digits == "" {
		return errors.New("dial: no channel or digits")
	}
	c.CancelDigitTimeout()

	c.mu.Lock()
	if c.ssAction != SSActionDial {
		c.mu.Unlock()
		return fmt.Errorf("dial on channel %d: %w", c.ID(), ErrInvalidState)
	}
	c.dialedNumber = digits
	c.calledNumber = digits
	owner := c.owner
	d := m.channelDeviceLocked(c)
	c.mu.Unlock()

	if owner == nil {
		return fmt.Errorf("dial on channel %d: %w", c.ID(), ErrNoOwner)
	}

	m.SendDialedNumber(c)
	if !owner.StartDialPlan() {
		m.indicate(d, c, StateInvalidNumber)
		return fmt.Errorf("dial on channel %d: dial plan start failed", c.ID())
	}
	return nil
}

// firstDigitTimeoutFired runs when no digit arrived in time. A channel
// that is already dialing or gone is left alone.
func (m *Manager) firstDigitTimeoutFired(id ID) {
	c := m.reg.Get(id)
	if c == nil {
		return
	}

	c.mu.Lock()
	c.digitTimeout = nil
	state := c.stateLocked()
	dialed := c.dialedNumber
	d := m.channelDeviceLocked(c)
	c.mu.Unlock()

	if state != StateOffhook || dialed != "" {
		return
	}

	m.logger.Info("first digit timeout", "call_id", id)
	m.indicate(d, c, StateInvalidNumber)
	m.EndCall(c)
}
