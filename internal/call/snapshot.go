package call

// Read-only views of the core data model, cut for the HTTP API and the
// metrics collector. A snapshot is consistent per entity, not across
// entities.

// ChannelSnapshot is a point-in-time copy of a channel's public state.
type ChannelSnapshot struct {
	ID             ID     `json:"id"`
	PassThroughID  uint32 `json:"passthrough_id"`
	Line           string `json:"line"`
	Device         string `json:"device,omitempty"`
	Parent         ID     `json:"parent,omitempty"`
	State          string `json:"state"`
	PreviousState  string `json:"previous_state"`
	CallType       string `json:"call_type"`
	CallingName    string `json:"calling_name,omitempty"`
	CallingNumber  string `json:"calling_number,omitempty"`
	CalledName     string `json:"called_name,omitempty"`
	CalledNumber   string `json:"called_number,omitempty"`
	DialedNumber   string `json:"dialed_number,omitempty"`
	Format         string `json:"format"`
	Capability     string `json:"capability"`
	Receiving      bool   `json:"receiving"`
	Transmitting   bool   `json:"transmitting"`
	MediaSessionID string `json:"media_session_id,omitempty"`
}

// LineSnapshot is a point-in-time copy of a line's public state.
type LineSnapshot struct {
	Name           string `json:"name"`
	CallerIDName   string `json:"callerid_name"`
	CallerIDNumber string `json:"callerid_number"`
	Channels       []ID   `json:"channels"`
	ActiveChannels int    `json:"active_channels"`
	HeldChannels   int    `json:"held_channels"`
}

// DeviceSnapshot is a point-in-time copy of a device's public state.
type DeviceSnapshot struct {
	ID              string `json:"id"`
	ActiveChannel   ID     `json:"active_channel,omitempty"`
	TransferChannel ID     `json:"transfer_channel,omitempty"`
	ChannelCount    int    `json:"channel_count"`
	TransferEnabled bool   `json:"transfer_enabled"`
	ParkEnabled     bool   `json:"park_enabled"`
	NAT             bool   `json:"nat"`
	Capability      string `json:"capability"`
}

// Snapshot captures the channel under its lock.
func (c *Channel) Snapshot() ChannelSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := ChannelSnapshot{
		ID:            c.id,
		PassThroughID: uint32(c.passThrough),
		Line:          c.lineName,
		Device:        c.deviceID,
		Parent:        c.parentID,
		State:         c.stateLocked().String(),
		PreviousState: c.previousState.String(),
		CallType:      c.callType.String(),
		CallingName:   c.callingName,
		CallingNumber: c.callingNumber,
		CalledName:    c.calledName,
		CalledNumber:  c.calledNumber,
		DialedNumber:  c.dialedNumber,
		Format:        c.format.String(),
		Capability:    c.capability.String(),
		Receiving:     c.media.Receiving,
		Transmitting:  c.media.Transmitting,
	}
	if c.session != nil {
		s.MediaSessionID = c.session.ID()
	}
	return s
}

// Snapshot captures the line, its channel ids and counters.
func (l *Line) Snapshot() LineSnapshot {
	name, number := l.CallerID()
	stats := l.Statistics()
	return LineSnapshot{
		Name:           l.Name(),
		CallerIDName:   name,
		CallerIDNumber: number,
		Channels:       l.ChannelIDs(),
		ActiveChannels: stats.NumberOfActiveChannels,
		HeldChannels:   stats.NumberOfHoldChannels,
	}
}

// Snapshot captures the device's slots and counters.
func (d *Device) Snapshot() DeviceSnapshot {
	return DeviceSnapshot{
		ID:              d.ID(),
		ActiveChannel:   d.ActiveChannelID(),
		TransferChannel: d.TransferChannelID(),
		ChannelCount:    d.ChannelCount(),
		TransferEnabled: d.TransferEnabled(),
		ParkEnabled:     d.ParkEnabled(),
		NAT:             d.NAT(),
		Capability:      d.Capability().String(),
	}
}

// Snapshots returns a snapshot of every registered channel.
func (m *Manager) Snapshots() []ChannelSnapshot {
	chans := m.reg.All()
	out := make([]ChannelSnapshot, 0, len(chans))
	for _, c := range chans {
		out = append(out, c.Snapshot())
	}
	return out
}

// LineSnapshots returns a snapshot of every configured line.
func (m *Manager) LineSnapshots() []LineSnapshot {
	lines := m.Lines()
	out := make([]LineSnapshot, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Snapshot())
	}
	return out
}

// DeviceSnapshots returns a snapshot of every registered device.
func (m *Manager) DeviceSnapshots() []DeviceSnapshot {
	devices := m.Devices()
	out := make([]DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// ChannelSnapshot returns a snapshot of a single channel, if registered.
func (m *Manager) ChannelSnapshot(id ID) (ChannelSnapshot, bool) {
	c := m.reg.Get(id)
	if c == nil {
		return ChannelSnapshot{}, false
	}
	return c.Snapshot(), true
}

// HangupChannel ends the channel with the given ID. This is the entry
// point for administratively terminating a call.
func (m *Manager) HangupChannel(id ID) error {
	c := m.reg.Get(id)
	if c == nil {
		return ErrChannelNotFound
	}
	return m.EndCall(c)
}
