package call

import (
	"fmt"
	"time"
)

// deleteRetry bounds how long Delete waits for a channel lock still held
// by a concurrent operation before retiring the channel anyway.
const (
	deleteRetryInterval = 10 * time.Millisecond
	deleteRetryLimit    = 20
)

// EndCall hangs up the channel's bridge leg and, recursively, any
// call-forward children spawned from it. The bridge drives the actual
// teardown; CleanBeforeDelete/Delete run when the leg reports back.
func (m *Manager) EndCall(c *Channel) error {
	if c == nil {
		return fmt.Errorf("end call: %w", ErrNoLine)
	}

	for _, childID := range m.reg.Children(c.ID()) {
		if child := m.reg.Get(childID); child != nil {
			m.logger.Debug("ending forwarded child", "parent", c.ID(), "child", child.ID())
			if err := m.EndCall(child); err != nil {
				m.logger.Warn("forward child hangup failed",
					"child", child.ID(), "error", err)
			}
		}
	}

	c.mu.Lock()
	owner := c.owner
	state := c.stateLocked()
	c.mu.Unlock()

	if owner == nil {
		// Never made it onto the bridge; retire directly.
		m.logger.Info("ending ownerless channel", "call_id", c.ID(), "state", state.String())
		m.CleanBeforeDelete(c)
		m.Delete(c)
		return nil
	}

	m.logger.Info("end call", "call_id", c.ID(), "state", state.String(),
		"leg", owner.Name())

	// A leg still collecting digits or stuck announcing an invalid number
	// has no remote party to signal; hang it up immediately. Busy legs get
	// a queued soft hangup so in-flight frames drain first.
	switch {
	case state == StateInvalidNumber || state == StateOffhook:
		owner.Hangup()
	case owner.Blocked() || owner.HasActiveDialPlan():
		owner.QueueHangup()
	default:
		owner.Hangup()
	}
	return nil
}

// CleanBeforeDelete severs every external attachment of the channel:
// pending tasks, media, line membership, device slots and the forward
// subtree link. Safe to call more than once. The channel object itself
// stays registered until Delete.
func (m *Manager) CleanBeforeDelete(c *Channel) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.cancelTasksLocked()
	l := m.channelLineLocked(c)
	d := m.channelDeviceLocked(c)
	state := c.stateLocked()
	c.mu.Unlock()

	m.logger.Info("channel cleanup", "call_id", c.ID(), "state", state.String())

	// Settle line statistics according to the state the call died in.
	if l != nil {
		switch state {
		case StateHold, StateCallTransfer, StateCallConference, StateCallPark:
			l.decHold()
		case StateConnected, StateProceed:
			l.decActive()
		}
	}

	if state != StateDown && state != StateOnhook {
		m.indicate(d, c, StateOnhook)
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.Stop()
		c.session.Destroy()
		c.session = nil
	}
	c.media = MediaStatus{}
	c.owner = nil
	c.mu.Unlock()

	if l != nil {
		l.removeChannel(c.ID())
	}
	if d != nil {
		d.detachChannel(c.ID())
	}
}

// Delete retires the channel from the registry. It briefly contends for
// the channel lock so a concurrently running operation can finish; if the
// lock stays held past the retry limit the channel is removed anyway and
// the straggler's writes land on an unregistered object.
func (m *Manager) Delete(c *Channel) {
	if c == nil {
		return
	}

	for i := 0; i < deleteRetryLimit; i++ {
		if c.mu.TryLock() {
			c.mu.Unlock()
			break
		}
		time.Sleep(deleteRetryInterval)
	}

	m.reg.remove(c.ID())
	m.logger.Info("channel deleted", "call_id", c.ID())
}
