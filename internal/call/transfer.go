package call

import "fmt"

// Transfer begins (or completes) a transfer on the channel's device.
// The channel becomes the device's transfer source, goes on hold and a
// fresh outgoing channel is allocated on the same line to dial the
// transfer target. If a transfer is already pending for a different
// channel, this call completes that transfer instead.
func (m *Manager) Transfer(c *Channel) error {
	if c == nil {
		return fmt.Errorf("transfer: %w", ErrNoLine)
	}

	c.mu.Lock()
	l := m.channelLineLocked(c)
	d := m.channelDeviceLocked(c)
	if l == nil || d == nil {
		c.mu.Unlock()
		m.logger.Warn("transfer on channel without line or device", "call_id", c.id)
		return fmt.Errorf("transfer channel %d: %w", c.id, ErrNoLine)
	}

	if !d.TransferEnabled() || !l.TransferEnabled() {
		c.mu.Unlock()
		m.logger.Info("transfer disabled", "device", d.ID(), "line", l.Name())
		return fmt.Errorf("transfer channel %d: %w", c.id, ErrTransferDisabled)
	}

	// Mid-transfer already? Then this is the completion gesture.
	if pending := d.TransferChannelID(); pending != 0 && pending != c.id {
		c.mu.Unlock()
		m.logger.Info("transfer in progress, completing",
			"device", d.ID(), "source", pending, "destination", c.ID())
		return m.CompleteTransfer(c)
	}

	d.setTransferChannel(c.id)

	if c.owner == nil {
		d.setTransferChannel(0)
		m.displayPromptLocked(d, c, PromptCannotCompleteXfer, 5)
		c.mu.Unlock()
		return fmt.Errorf("transfer channel %d: %w", c.id, ErrNoOwner)
	}

	state := c.stateLocked()
	c.mu.Unlock()

	m.logger.Info("transfer request", "call_id", c.ID(), "line", l.Name(), "device", d.ID())

	if state != StateHold && state != StateCallTransfer {
		if err := m.Hold(c); err != nil {
			d.setTransferChannel(0)
			return fmt.Errorf("transfer channel %d: %w", c.ID(), err)
		}
	}
	if c.State() != StateCallTransfer {
		m.indicate(d, c, StateCallTransfer)
	}

	newcall, err := m.NewCall(l, d, "", CallTypeOutbound)
	if err != nil {
		d.setTransferChannel(0)
		return fmt.Errorf("transfer channel %d: new leg: %w", c.ID(), err)
	}

	// Tag both bridge legs so downstream CDR/feature logic can recognize
	// a blind transfer. The tag is removed if the target answers.
	src := c.Owner()
	dst := newcall.Owner()
	if src != nil && dst != nil {
		if remote := src.BridgedLeg(); remote != nil {
			dst.SetVariable("BLINDTRANSFER", remote.Name())
			remote.SetVariable("BLINDTRANSFER", dst.Name())
		}
	}
	return nil
}

// CompleteTransfer merges the destination channel's bridge leg into the
// transfer source's remote leg; the two legs become one call and the
// transferring device drops out. Valid only while the destination is
// RingOut (blind transfer) or Connected.
func (m *Manager) CompleteTransfer(dest *Channel) error {
	if dest == nil {
		return fmt.Errorf("complete transfer: %w", ErrNoLine)
	}

	dest.mu.Lock()
	l := m.channelLineLocked(dest)
	d := m.channelDeviceLocked(dest)
	if l == nil || d == nil {
		dest.mu.Unlock()
		m.logger.Warn("transfer completion without line or device", "call_id", dest.id)
		return fmt.Errorf("complete transfer %d: %w", dest.id, ErrNoLine)
	}
	state := dest.stateLocked()
	dest.mu.Unlock()

	source := m.reg.Get(d.TransferChannelID())
	if source == nil {
		m.logger.Warn("no transfer source recorded", "device", d.ID())
		return fmt.Errorf("complete transfer %d: %w", dest.ID(), ErrInvalidState)
	}

	m.logger.Info("complete transfer",
		"device", d.ID(), "source", source.ID(), "destination", dest.ID())

	if state != StateRingout && state != StateConnected {
		m.logger.Warn("cannot complete transfer, destination not ringing or connected",
			"call_id", dest.ID(), "state", state.String())
		m.startTone(d, dest, ToneBeepBonk)
		m.displayPrompt(d, dest, PromptCannotCompleteXfer, 5)
		return fmt.Errorf("complete transfer %d in state %s: %w", dest.ID(), state, ErrInvalidState)
	}

	destOwner := dest.Owner()
	srcOwner := source.Owner()
	if destOwner == nil || srcOwner == nil {
		m.logger.Warn("transfer completion missing bridge legs",
			"source", source.ID(), "destination", dest.ID())
		return fmt.Errorf("complete transfer %d: %w", dest.ID(), ErrNoOwner)
	}

	srcRemote := srcOwner.BridgedLeg()
	if srcRemote == nil {
		m.logger.Warn("transfer source has no remote leg", "source", source.ID())
		m.displayPrompt(d, dest, PromptCannotCompleteXfer, 5)
		return fmt.Errorf("complete transfer %d: %w", dest.ID(), ErrMasquerade)
	}

	if state == StateRingout {
		// Blind transfer: the destination is still ringing. Let the
		// source's remote party hear it, then (best effort, delayed)
		// switch to hold music or real ringback per configuration. The
		// task is cancellable so a torn-down channel cannot be touched
		// after the fact.
		m.logger.Info("blind transfer, signalling ringing", "remote", srcRemote.Name())
		srcRemote.QueueControlSignal(SignalRinging)
		m.scheduleTransferNotify(source, srcRemote)
	}

	if err := m.bridge.Masquerade(destOwner, srcRemote); err != nil {
		m.logger.Error("masquerade failed",
			"destination", destOwner.Name(), "source", srcRemote.Name(), "error", err)
		m.displayPrompt(d, dest, PromptCannotCompleteXfer, 5)
		return fmt.Errorf("complete transfer %d: %w: %v", dest.ID(), ErrMasquerade, err)
	}

	d.setTransferChannel(0)

	// If the merged remote leg terminates on a station of this process,
	// propagate caller id and play the configured post-transfer tone.
	destRemote := destOwner.BridgedLeg()
	if destRemote == nil {
		// Still ringing, nobody to notify: blind transfer done.
		return nil
	}
	if stationID := destRemote.StationChannel(); stationID != 0 {
		if target := m.reg.Get(stationID); target != nil {
			name, number := srcRemote.CallerID()
			target.SetCallingParty(name, number)
			if td := m.Device(target.DeviceID()); td != nil {
				m.SendCallInfo(td, target)
				if m.cfg.TransferTone != 0 && target.State() == StateConnected {
					m.startTone(td, target, m.cfg.TransferTone)
				}
			}
		}
	}
	return nil
}

// scheduleTransferNotify starts the delayed secondary blind-transfer
// notification as an independent unit of work, stored on the source
// channel so teardown or completion can cancel it.
func (m *Manager) scheduleTransferNotify(source *Channel, remote BridgeLeg) {
	task := m.sched.ScheduleOnce(m.cfg.TransferNotifyDelay, func() {
		// The channel may have been retired meanwhile; a stale id makes
		// this a no-op.
		if m.reg.Get(source.ID()) == nil {
			return
		}
		switch m.cfg.BlindTransferIndication {
		case BlindTransferMusicOnHold:
			m.logger.Debug("blind transfer notify: music on hold", "remote", remote.Name())
			remote.StartMusicOnHold()
		default:
			m.logger.Debug("blind transfer notify: ringing", "remote", remote.Name())
			remote.QueueControlSignal(SignalRinging)
		}
	})

	source.mu.Lock()
	if source.transferNotify != nil {
		source.transferNotify.Cancel()
	}
	source.transferNotify = task
	source.mu.Unlock()
}

// startTone and displayPrompt are unlocked conveniences for paths that do
// not already hold the channel lock.

func (m *Manager) startTone(d *Device, c *Channel, tone int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.startToneLocked(d, c, tone)
}

func (m *Manager) displayPrompt(d *Device, c *Channel, prompt string, timeout int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.displayPromptLocked(d, c, prompt, timeout)
}
