package call

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mpaland/chan-sccp/internal/codec"
)

// BlindTransferIndication selects what the remote party hears while a
// blind transfer destination is still ringing.
type BlindTransferIndication int

const (
	BlindTransferRing BlindTransferIndication = iota
	BlindTransferMusicOnHold
)

// Settings are the call-control tunables, loaded from configuration.
type Settings struct {
	// FirstDigitTimeout bounds the wait for the first dialed digit on a
	// new off-hook call.
	FirstDigitTimeout time.Duration

	// BlindTransferIndication picks ringback or music-on-hold for the
	// transferred remote party.
	BlindTransferIndication BlindTransferIndication

	// TransferNotifyDelay is the delay before the secondary blind
	// transfer notification fires.
	TransferNotifyDelay time.Duration

	// TransferTone, when non-zero, is played to an SCCP destination after
	// a completed transfer.
	TransferTone int

	// RTPTimeoutSec is carried on media instructions.
	RTPTimeoutSec int
}

// DefaultSettings mirror the legacy driver defaults.
func DefaultSettings() Settings {
	return Settings{
		FirstDigitTimeout:       16 * time.Second,
		BlindTransferIndication: BlindTransferRing,
		TransferNotifyDelay:     time.Second,
		TransferTone:            ToneZipZip,
		RTPTimeoutSec:           10,
	}
}

// Dependencies are the external collaborators consumed by the core.
type Dependencies struct {
	Transport Transport
	Bridge    Bridge
	Media     MediaTransport
	Scheduler Scheduler
	External  ExternalAddressResolver // optional, NAT override
}

// Manager owns the call-control core: the channel registry, the line and
// device directories, the call-id allocator and every call-control
// operation. Inbound protocol events and bridge events both funnel into
// its methods; coordination is purely lock based.
type Manager struct {
	logger *slog.Logger
	cfg    Settings
	prefs  codec.Preference

	alloc *Allocator
	reg   *Registry

	mu      sync.RWMutex
	lines   map[string]*Line
	devices map[string]*Device

	transport Transport
	bridge    Bridge
	media     MediaTransport
	sched     Scheduler
	external  ExternalAddressResolver
}

// NewManager wires the core with its collaborators.
func NewManager(cfg Settings, prefs codec.Preference, deps Dependencies, logger *slog.Logger) *Manager {
	if len(prefs) == 0 {
		prefs = codec.DefaultPreference()
	}
	return &Manager{
		logger:    logger.With("subsystem", "call"),
		cfg:       cfg,
		prefs:     prefs,
		alloc:     NewAllocator(),
		reg:       NewRegistry(),
		lines:     make(map[string]*Line),
		devices:   make(map[string]*Device),
		transport: deps.Transport,
		bridge:    deps.Bridge,
		media:     deps.Media,
		sched:     deps.Scheduler,
		external:  deps.External,
	}
}

// AddLine registers a line in the directory.
func (m *Manager) AddLine(l *Line) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[l.Name()] = l
}

// AddDevice registers a device in the directory.
func (m *Manager) AddDevice(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID()] = d
}

// Line resolves a line by name; nil if unknown.
func (m *Manager) Line(name string) *Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lines[name]
}

// Device resolves a device by id; nil if unknown.
func (m *Manager) Device(id string) *Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices[id]
}

// Lines returns all registered lines.
func (m *Manager) Lines() []*Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Line, 0, len(m.lines))
	for _, l := range m.lines {
		out = append(out, l)
	}
	return out
}

// Devices returns all registered devices.
func (m *Manager) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out
}

// Channel resolves a channel by call id; nil for retired ids.
func (m *Manager) Channel(id ID) *Channel {
	return m.reg.Get(id)
}

// ChannelCount returns the number of live channels in the process.
func (m *Manager) ChannelCount() int {
	return m.reg.Count()
}

// AllocatorPosition exposes the next call id for telemetry.
func (m *Manager) AllocatorPosition() uint32 {
	return m.alloc.Position()
}

// ActiveChannel returns the channel currently presented on the device.
// A channel still in the Down state is not considered presented.
func (m *Manager) ActiveChannel(d *Device) *Channel {
	if d == nil {
		return nil
	}
	c := m.reg.Get(d.ActiveChannelID())
	if c == nil || c.State() == StateDown {
		return nil
	}
	return c
}

// SetActiveChannel points the device at the channel. This is the single
// authoritative way the presented call changes.
func (m *Manager) SetActiveChannel(d *Device, c *Channel) {
	if d == nil || c == nil {
		return
	}
	m.logger.Debug("set active channel", "device", d.ID(), "call_id", c.ID())
	d.setActive(c.ID(), c.LineName())
}

// channelDevice resolves the channel's serving device with the channel
// lock already held.
func (m *Manager) channelDeviceLocked(c *Channel) *Device {
	if c.deviceID == "" {
		return nil
	}
	return m.Device(c.deviceID)
}

// channelLineLocked resolves the channel's owning line with the channel
// lock already held.
func (m *Manager) channelLineLocked(c *Channel) *Line {
	return m.Line(c.lineName)
}
