package call

import (
	"net/netip"
	"time"

	"github.com/mpaland/chan-sccp/internal/codec"
)

// reconcileGap is the bounded pause between closing and reopening the
// receive path during a format reconciliation.
const reconcileGap = time.Millisecond

// OpenReceiveChannel asks the station to open its receive media path for
// the channel, pinning the negotiated format for the session. Media
// failures are reported (reorder tone) but never tear the call down.
func (m *Manager) OpenReceiveChannel(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m.openReceiveChannelLocked(c)
}

func (m *Manager) openReceiveChannelLocked(c *Channel) {
	d := m.channelDeviceLocked(c)
	if d == nil {
		return
	}
	if c.media.Receiving {
		// Already open; a duplicate instruction would desynchronize the
		// station's media state.
		return
	}

	m.updateCapabilityLocked(c)
	c.codecFixed = true

	payloadType := c.format.PayloadType()
	if payloadType == 0 {
		// No payload for the pinned format: unpin, recompute once, re-pin.
		c.codecFixed = false
		m.updateCapabilityLocked(c)
		c.codecFixed = true
		payloadType = c.format.PayloadType()
	}
	packetSize := c.format.PacketSizeMS()

	if c.session == nil {
		session, err := m.media.CreateSession(c.id)
		if err != nil {
			m.logger.Error("media session creation failed",
				"call_id", c.id, "line", c.lineName, "error", err)
			m.startToneLocked(d, c, ToneReorder)
			return
		}
		c.session = session
		c.session.SetPreferredCodecs(c.codecs)
		c.session.SetNAT(d.NAT())
		if l := m.channelLineLocked(c); l != nil {
			c.session.SetTOS(l.RTPTOS(), l.RTPCoS())
		}
	}

	echoCancel := false
	if l := m.channelLineLocked(c); l != nil {
		echoCancel = l.EchoCancel()
	}

	if payloadType == 0 {
		payloadType = codec.DefaultPayloadType
	}

	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrOpenReceiveChannel,
		ConferenceID:  c.id,
		PassThroughID: c.passThrough,
		PayloadType:   payloadType,
		PacketSizeMS:  packetSize,
		EchoCancel:    echoCancel,
		RTPTimeoutSec: m.cfg.RTPTimeoutSec,
	})
	if err != nil {
		m.logger.Warn("open receive channel failed",
			"device", d.ID(), "call_id", c.id, "error", err)
		return
	}

	c.media.Receiving = true
	m.logger.Debug("receive channel open",
		"call_id", c.id,
		"format", c.format.String(),
		"payload_type", payloadType,
		"packet_ms", packetSize,
	)
}

// CloseReceiveChannel tells the station to close its receive media path,
// clears the codec pin and unconditionally cascades into stopping
// transmission. The media session itself survives for a later reopen.
func (m *Manager) CloseReceiveChannel(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m.closeReceiveChannelLocked(c)
}

func (m *Manager) closeReceiveChannelLocked(c *Channel) {
	if d := m.channelDeviceLocked(c); d != nil {
		err := m.transport.SendInstruction(d.ID(), Instruction{
			Kind:          InstrCloseReceiveChannel,
			ConferenceID:  c.id,
			PassThroughID: c.passThrough,
		})
		if err != nil {
			m.logger.Warn("close receive channel failed",
				"device", d.ID(), "call_id", c.id, "error", err)
		}
	}
	c.codecFixed = false
	c.media.Receiving = false
	m.stopMediaTransmissionLocked(c)
}

// StartMediaTransmission instructs the station where to send its media.
// No-op without an existing media session.
func (m *Manager) StartMediaTransmission(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m.startMediaTransmissionLocked(c)
}

func (m *Manager) startMediaTransmissionLocked(c *Channel) {
	if c.session == nil {
		m.logger.Debug("no media session, transmission not started", "call_id", c.id)
		return
	}
	d := m.channelDeviceLocked(c)
	if d == nil {
		return
	}

	dest := c.session.LocalAddr()
	if d.NAT() && m.external != nil {
		if addr, ok := m.external.ExternalAddress(); ok {
			dest = netip.AddrPortFrom(addr, dest.Port())
		}
	}

	payloadType := c.format.PayloadType()
	if payloadType == 0 {
		payloadType = codec.DefaultPayloadType
	}

	precedence := 0
	silence := false
	if l := m.channelLineLocked(c); l != nil {
		precedence = l.RTPTOS()
		silence = l.SilenceSuppression()
	}

	err := m.transport.SendInstruction(d.ID(), Instruction{
		Kind:               InstrStartMediaTransmission,
		ConferenceID:       c.id,
		PassThroughID:      c.passThrough,
		RemoteAddr:         dest,
		PayloadType:        payloadType,
		PacketSizeMS:       c.format.PacketSizeMS(),
		Precedence:         precedence,
		SilenceSuppression: silence,
		RTPTimeoutSec:      m.cfg.RTPTimeoutSec,
	})
	if err != nil {
		m.logger.Warn("start media transmission failed",
			"device", d.ID(), "call_id", c.id, "error", err)
		return
	}

	c.media.Transmitting = true
	m.logger.Debug("media transmission started",
		"call_id", c.id,
		"dest", dest.String(),
		"payload_type", payloadType,
	)
}

// StopMediaTransmission halts station-side sending, stops the transport
// session and fires an advisory statistics request.
func (m *Manager) StopMediaTransmission(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m.stopMediaTransmissionLocked(c)
}

func (m *Manager) stopMediaTransmissionLocked(c *Channel) {
	d := m.channelDeviceLocked(c)
	if d != nil {
		err := m.transport.SendInstruction(d.ID(), Instruction{
			Kind:          InstrStopMediaTransmission,
			ConferenceID:  c.id,
			PassThroughID: c.passThrough,
		})
		if err != nil {
			m.logger.Warn("stop media transmission failed",
				"device", d.ID(), "call_id", c.id, "error", err)
		}
	}
	c.media.Transmitting = false

	if c.session != nil {
		c.session.Stop()
	}

	m.requestStatisticsLocked(d, c)
}

// requestStatisticsLocked asks the station for call statistics. Advisory
// telemetry: failure is ignored.
func (m *Manager) requestStatisticsLocked(d *Device, c *Channel) {
	if d == nil {
		return
	}
	dirNum := c.callingNumber
	if c.callType == CallTypeOutbound {
		dirNum = c.calledNumber
	}
	_ = m.transport.SendInstruction(d.ID(), Instruction{
		Kind:          InstrConnectionStatisticsRequest,
		ConferenceID:  c.id,
		PassThroughID: c.passThrough,
		DirectoryNum:  dirNum,
	})
}

// HandleOpenReceiveChannelAck completes the receive handshake: the
// station acknowledged the open instruction and reported the address it
// listens on. Transmission toward that address starts here.
func (m *Manager) HandleOpenReceiveChannelAck(id ID, remote netip.AddrPort, ok bool) {
	c := m.reg.Get(id)
	if c == nil {
		m.logger.Warn("receive channel ack for unknown channel", "call_id", id)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !ok {
		m.logger.Warn("station rejected receive channel", "call_id", id)
		c.media.Receiving = false
		return
	}
	if c.session != nil {
		c.session.SetRemoteAddr(remote)
	}
	m.startMediaTransmissionLocked(c)
}

// ReconcileMediaType re-negotiates the channel format when the bridged
// leg's native format diverged from it, e.g. after a bridge-side
// renegotiation. The receive path is closed and reopened with the new
// format; the call tolerates the brief gap.
func (m *Manager) ReconcileMediaType(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	owner := c.owner
	if owner == nil || owner.IsZombie() || owner.IsHangingUp() || !owner.HasActiveDialPlan() {
		return
	}
	bridged := owner.BridgedLeg()
	if bridged == nil || bridged.IsZombie() || bridged.IsHangingUp() || !bridged.HasActiveDialPlan() {
		return
	}
	if c.stateLocked() == StateZombie {
		return
	}

	d := m.channelDeviceLocked(c)
	if d == nil {
		return
	}

	native := bridged.NativeFormats()
	if !native.Intersect(owner.NativeFormats()).Empty() {
		return // formats already compatible
	}
	usable := native.Intersect(d.Capability())
	if usable.Empty() {
		return
	}

	chosen, ok := c.codecs.Choose(usable)
	if !ok {
		return
	}

	m.logger.Info("reconciling media type",
		"call_id", c.id,
		"old_format", c.format.String(),
		"new_format", chosen.String(),
	)

	c.format = chosen
	owner.SetNativeFormats(native)

	m.closeReceiveChannelLocked(c)
	c.codecFixed = true // keep the new format pinned across the reopen
	time.Sleep(reconcileGap)
	m.openReceiveChannelLocked(c)

	owner.SetReadWriteFormat(c.format)
}
