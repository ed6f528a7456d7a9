package call

import (
	"fmt"

	"github.com/mpaland/chan-sccp/internal/codec"
)

// Allocate creates a channel on the line, optionally attached to a
// device. It assigns a fresh call id, computes the initial codec
// capability and appends the channel to the line's collection. The
// channel starts in the Down state.
//
// The device may be nil (call-forward children attach one later), but a
// provided device must have an active transport session.
func (m *Manager) Allocate(l *Line, d *Device) (*Channel, error) {
	if l == nil {
		return nil, fmt.Errorf("allocate: %w", ErrNoLine)
	}
	if d != nil && !m.transport.HasActiveSession(d.ID()) {
		return nil, fmt.Errorf("allocate on device %s: %w", d.ID(), ErrNoSession)
	}

	id, passThrough := m.alloc.Next()

	c := &Channel{
		id:          id,
		passThrough: passThrough,
		lineName:    l.Name(),
		fsm:         newStateMachine(),
		callType:    CallTypeInbound, // changed later for outgoing calls
		ssAction:    SSActionNone,
	}
	if d != nil {
		c.deviceID = d.ID()
	}

	c.mu.Lock()
	m.updateCapabilityLocked(c)
	c.mu.Unlock()

	m.reg.add(c)
	l.addChannel(id)

	if d != nil {
		d.adjustChannelCount(1)
	}

	m.logger.Info("channel allocated",
		"call_id", id,
		"line", l.Name(),
		"device", c.deviceID,
		"format", c.Format().String(),
	)
	return c, nil
}

// UpdateChannelCapability recomputes the channel's codec capability from
// its currently attached device and, unless the codec is pinned, picks
// the most preferred common format. Idempotent; called after every device
// reattachment and before opening a receive channel.
func (m *Manager) UpdateChannelCapability(c *Channel) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m.updateCapabilityLocked(c)
}

// updateCapabilityLocked is UpdateChannelCapability with c.mu held.
func (m *Manager) updateCapabilityLocked(c *Channel) {
	d := m.channelDeviceLocked(c)
	if d == nil {
		c.capability = codec.FallbackCapability()
		c.codecs = m.prefs.Clone()
	} else {
		c.capability = d.Capability()
		if deviceCodecs := d.Codecs(); len(deviceCodecs) > 0 {
			c.codecs = deviceCodecs.Clone()
		} else {
			c.codecs = m.prefs.Clone()
		}
	}

	if !c.codecFixed {
		if chosen, ok := c.codecs.Choose(c.capability); ok {
			c.format = chosen
		} else {
			c.format = codec.None
		}
	}

	// Keep the bridge transcoding path consistent with the chosen format.
	if c.owner != nil {
		c.owner.SetNativeFormats(codec.NewSet(c.format))
		c.owner.SetReadWriteFormat(c.format)
	}

	m.logger.Debug("channel capability updated",
		"call_id", c.id,
		"capability", c.capability.String(),
		"format", c.format.String(),
		"codec_fixed", c.codecFixed,
	)
}
