package call

import (
	"sync"

	"github.com/mpaland/chan-sccp/internal/codec"
)

// Device is one registered station endpoint. The transport collaborator
// owns its session; the core tracks call-control state: the channel
// currently presented on the primary line key, the transient transfer and
// conference markers and the live channel count.
//
// The device lock is only ever held for short critical sections around the
// single-writer slots below, never across a blocking external call.
type Device struct {
	mu sync.Mutex

	id string

	capability codec.Set
	codecs     codec.Preference

	nat       bool
	directRTP bool

	transferEnabled bool
	parkEnabled     bool

	// Single-writer slots. At most one active channel at a time; setting
	// it is the one authoritative way the presented call changes.
	activeChannel     ID
	transferChannel   ID
	conferenceChannel ID
	selected          []ID

	currentLine  string
	channelCount int
}

// DeviceConfig carries the static attributes of a device at registration.
type DeviceConfig struct {
	ID              string
	Capability      codec.Set
	Codecs          codec.Preference
	NAT             bool
	DirectRTP       bool
	TransferEnabled bool
	ParkEnabled     bool
}

// NewDevice builds a device from its registration attributes.
func NewDevice(cfg DeviceConfig) *Device {
	return &Device{
		id:              cfg.ID,
		capability:      cfg.Capability,
		codecs:          cfg.Codecs,
		nat:             cfg.NAT,
		directRTP:       cfg.DirectRTP,
		transferEnabled: cfg.TransferEnabled,
		parkEnabled:     cfg.ParkEnabled,
	}
}

// ID returns the stable device identifier.
func (d *Device) ID() string { return d.id }

// Capability returns the device's advertised codec set.
func (d *Device) Capability() codec.Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capability
}

// Codecs returns the device's codec preference order.
func (d *Device) Codecs() codec.Preference {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codecs
}

// NAT reports whether the device sits behind NAT.
func (d *Device) NAT() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nat
}

// DirectRTP reports whether direct media is allowed for this device.
func (d *Device) DirectRTP() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.directRTP
}

// TransferEnabled reports whether the transfer feature is enabled.
func (d *Device) TransferEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transferEnabled
}

// ParkEnabled reports whether call park is enabled.
func (d *Device) ParkEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parkEnabled
}

// ActiveChannelID returns the channel currently presented on the device,
// or 0 when idle.
func (d *Device) ActiveChannelID() ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeChannel
}

// setActive points the device at channel id on the given line. id may be
// 0 to clear the slot.
func (d *Device) setActive(id ID, lineName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeChannel = id
	if lineName != "" {
		d.currentLine = lineName
	}
}

// clearActiveIf clears the active slot only when it still points at id.
func (d *Device) clearActiveIf(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeChannel == id {
		d.activeChannel = 0
	}
}

// TransferChannelID returns the in-progress transfer source, or 0.
func (d *Device) TransferChannelID() ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transferChannel
}

func (d *Device) setTransferChannel(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transferChannel = id
}

// ConferenceChannelID returns the in-progress conference marker, or 0.
func (d *Device) ConferenceChannelID() ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conferenceChannel
}

// clearMarkersIf drops transfer/conference markers still pointing at id.
func (d *Device) clearMarkersIf(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transferChannel == id {
		d.transferChannel = 0
	}
	if d.conferenceChannel == id {
		d.conferenceChannel = 0
	}
}

// ChannelCount returns the number of live channels on the device.
func (d *Device) ChannelCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channelCount
}

func (d *Device) adjustChannelCount(delta int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channelCount += delta
	if d.channelCount < 0 {
		d.channelCount = 0
	}
}

// detachChannel removes every reference the device holds to the channel:
// active slot, transfer/conference markers and the selected-channel list.
// Called during teardown before the channel is released.
func (d *Device) detachChannel(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.channelCount--
	if d.channelCount < 0 {
		d.channelCount = 0
	}

	if d.activeChannel == id {
		d.activeChannel = 0
	}
	if d.transferChannel == id {
		d.transferChannel = 0
	}
	if d.conferenceChannel == id {
		d.conferenceChannel = 0
	}
	for i, sel := range d.selected {
		if sel == id {
			d.selected = append(d.selected[:i], d.selected[i+1:]...)
			break
		}
	}
}

// SelectChannel adds the channel to the device's selected-channel list.
func (d *Device) SelectChannel(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sel := range d.selected {
		if sel == id {
			return
		}
	}
	d.selected = append(d.selected, id)
}

// SelectedChannels returns a copy of the selected-channel list.
func (d *Device) SelectedChannels() []ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ID, len(d.selected))
	copy(out, d.selected)
	return out
}
