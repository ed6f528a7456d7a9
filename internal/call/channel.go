package call

import (
	"sync"

	"github.com/looplab/fsm"
	"github.com/mpaland/chan-sccp/internal/codec"
)

// CallType is the direction of a call leg.
type CallType int

const (
	CallTypeInbound CallType = iota
	CallTypeOutbound
	CallTypeForward
)

func (t CallType) String() string {
	switch t {
	case CallTypeInbound:
		return "inbound"
	case CallTypeOutbound:
		return "outbound"
	case CallTypeForward:
		return "forward"
	default:
		return "unknown"
	}
}

// SoftSwitchAction tells the digit collector what to do with gathered
// digits once dialing completes.
type SoftSwitchAction int

const (
	SSActionNone SoftSwitchAction = iota
	SSActionDial
)

// MediaStatus tracks the two independent media substates layered on top
// of call state.
type MediaStatus struct {
	Receiving    bool
	Transmitting bool
}

// Channel is one call leg: protocol state, codec state, media session
// handles and links to its line, serving device and optional related
// channels. A channel always has a line; the device may be absent
// transiently during forward-channel construction and may be reassigned
// across hold/resume on a shared line.
//
// All mutable fields are guarded by mu. The lock is held across an entire
// state-transition operation; per the process lock order it is never held
// while acquiring a different channel's lock together with a blocking
// external call.
type Channel struct {
	mu sync.Mutex

	id          ID
	passThrough PassThroughID

	// Non-owning links, resolved through the manager. A stale value
	// simply fails lookup.
	lineName string
	deviceID string
	parentID ID // call-forward parent; a forwarder never has children itself

	fsm           *fsm.FSM
	previousState State
	callType      CallType

	callingName   string
	callingNumber string
	calledName    string
	calledNumber  string
	dialedNumber  string

	capability codec.Set
	codecs     codec.Preference
	format     codec.Codec
	codecFixed bool

	media   MediaStatus
	session MediaSession

	// owner is the externally-owned bridge leg. Never freed here.
	owner BridgeLeg

	ssAction SoftSwitchAction

	// Cancellable background tasks tied to this channel's lifetime.
	digitTimeout   Task
	transferNotify Task

	answeredElsewhere bool
}

// ID returns the channel's call identifier.
func (c *Channel) ID() ID { return c.id }

// PassThroughID returns the station correlation token for this channel.
func (c *Channel) PassThroughID() PassThroughID { return c.passThrough }

// State returns the current call-control state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State(c.fsm.Current())
}

// PreviousState returns the state before the most recent transition.
func (c *Channel) PreviousState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previousState
}

// stateLocked reads the state with the channel lock already held.
func (c *Channel) stateLocked() State {
	return State(c.fsm.Current())
}

// CallType returns the call direction.
func (c *Channel) CallType() CallType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callType
}

// LineName returns the owning line's name.
func (c *Channel) LineName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lineName
}

// DeviceID returns the serving device's id, or "" when detached.
func (c *Channel) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// ParentID returns the forward parent's channel ID, or 0.
func (c *Channel) ParentID() ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parentID
}

// Owner returns the bridge leg driving this channel, or nil.
func (c *Channel) Owner() BridgeLeg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// SetOwner attaches the externally-owned bridge leg.
func (c *Channel) SetOwner(leg BridgeLeg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = leg
}

// Format returns the negotiated codec.
func (c *Channel) Format() codec.Codec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// MediaStatus returns the receive/transmit substates.
func (c *Channel) MediaStatus() MediaStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media
}

// DialedNumber returns the digits assigned for outbound dialing.
func (c *Channel) DialedNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialedNumber
}

// CallingParty returns the calling party name and number.
func (c *Channel) CallingParty() (name, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callingName, c.callingNumber
}

// CalledParty returns the called party name and number.
func (c *Channel) CalledParty() (name, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calledName, c.calledNumber
}

// SetCallingParty updates the calling party, ignoring unchanged values.
func (c *Channel) SetCallingParty(name, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" && name != c.callingName {
		c.callingName = name
	}
	if number != "" && number != c.callingNumber {
		c.callingNumber = number
	}
}

// SetCalledParty updates the called party, ignoring unchanged values.
func (c *Channel) SetCalledParty(name, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" && name != c.calledName {
		c.calledName = name
	}
	if number != "" && number != c.calledNumber {
		c.calledNumber = number
	}
}

// cancelTasksLocked stops any pending background tasks. Firing late after
// the channel is gone would touch a retired entity, so leaking one of
// these is a defect, not just wasted work.
func (c *Channel) cancelTasksLocked() {
	if c.digitTimeout != nil {
		c.digitTimeout.Cancel()
		c.digitTimeout = nil
	}
	if c.transferNotify != nil {
		c.transferNotify.Cancel()
		c.transferNotify = nil
	}
}

// CancelDigitTimeout stops the first-digit timeout, typically because a
// digit arrived. Reports whether a pending task was cancelled.
func (c *Channel) CancelDigitTimeout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.digitTimeout == nil {
		return false
	}
	cancelled := c.digitTimeout.Cancel()
	c.digitTimeout = nil
	return cancelled
}
