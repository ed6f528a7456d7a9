package call

import (
	"net/netip"
	"time"

	"github.com/mpaland/chan-sccp/internal/codec"
)

// InstructionKind identifies a station instruction emitted by the core.
// Wire encoding is owned by the transport collaborator; the core fixes
// only the semantic fields each instruction carries.
type InstructionKind int

const (
	InstrOpenReceiveChannel InstructionKind = iota
	InstrCloseReceiveChannel
	InstrStartMediaTransmission
	InstrStopMediaTransmission
	InstrConnectionStatisticsRequest
	InstrCallInfo
	InstrDialedNumber
	InstrStartTone
	InstrDisplayPrompt
	InstrDisplayNotify
)

func (k InstructionKind) String() string {
	switch k {
	case InstrOpenReceiveChannel:
		return "OpenReceiveChannel"
	case InstrCloseReceiveChannel:
		return "CloseReceiveChannel"
	case InstrStartMediaTransmission:
		return "StartMediaTransmission"
	case InstrStopMediaTransmission:
		return "StopMediaTransmission"
	case InstrConnectionStatisticsRequest:
		return "ConnectionStatisticsRequest"
	case InstrCallInfo:
		return "CallInfo"
	case InstrDialedNumber:
		return "DialedNumber"
	case InstrStartTone:
		return "StartTone"
	case InstrDisplayPrompt:
		return "DisplayPrompt"
	case InstrDisplayNotify:
		return "DisplayNotify"
	default:
		return "Unknown"
	}
}

// Tones played toward the station on error paths.
const (
	ToneReorder    = 37
	ToneBeepBonk   = 66
	ToneZipZip     = 49
	ToneAutoAnswer = 50
)

// Display prompt texts shown on error paths.
const (
	PromptKeyNotActive         = "Key Is Not Active"
	PromptCannotCompleteXfer   = "Can Not Complete Transfer"
	PromptNoParkSlotsAvailable = "No Park Number Available"
	PromptNoCallToResume       = "No active call to put on hold"
)

// Instruction is one station instruction with its semantic fields. Only
// the fields relevant to the Kind are populated.
type Instruction struct {
	Kind InstructionKind

	// Correlation tokens present on every media instruction.
	ConferenceID  ID
	PassThroughID PassThroughID

	// Media parameters.
	PayloadType        int
	PacketSizeMS       int
	RemoteAddr         netip.AddrPort
	Precedence         int
	SilenceSuppression bool
	EchoCancel         bool
	RTPTimeoutSec      int

	// Call presentation.
	LineInstance  int
	CallType      CallType
	CallingName   string
	CallingNumber string
	CalledName    string
	CalledNumber  string

	// Tone / display.
	Tone           int
	Prompt         string
	PromptTimeout  int
	DirectoryNum   string
	StatsProcessed bool
}

// Transport is the station session collaborator. It owns the wire protocol
// and the registration/keepalive lifecycle; the core only pushes
// instructions through it and queries session liveness.
type Transport interface {
	SendInstruction(deviceID string, instr Instruction) error
	FindLineInstance(deviceID, lineName string) int
	HasActiveSession(deviceID string) bool
}

// MediaSession is one media transport endpoint created for a channel.
type MediaSession interface {
	ID() string
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
	SetRemoteAddr(addr netip.AddrPort)
	SetPreferredCodecs(prefs codec.Preference)
	SetNAT(enabled bool)
	SetTOS(tos, cos int)
	Stop()
	Destroy()
}

// MediaTransport creates media sessions on demand.
type MediaTransport interface {
	CreateSession(channelID ID) (MediaSession, error)
}

// ExternalAddressResolver supplies the NAT-traversal override address,
// re-resolved periodically when configured as a DNS name.
type ExternalAddressResolver interface {
	ExternalAddress() (netip.Addr, bool)
}

// ControlSignal is queued toward the bridge leg to drive the PBX side.
type ControlSignal int

const (
	SignalAnswer ControlSignal = iota
	SignalHold
	SignalUnhold
	SignalRinging
	SignalSourceUpdate
)

// BridgeLeg is the externally-owned PBX-side call object a channel
// drives. The core never owns it and never frees it.
type BridgeLeg interface {
	Name() string
	QueueControlSignal(sig ControlSignal)

	// Format plumbing keeps the PBX transcoding path consistent with the
	// station's chosen format.
	SetReadWriteFormat(format codec.Codec)
	NativeFormats() codec.Set
	SetNativeFormats(formats codec.Set)

	// BridgedLeg returns the remote leg this leg is bridged to, or nil.
	BridgedLeg() BridgeLeg

	IsZombie() bool
	IsHangingUp() bool
	HasActiveDialPlan() bool
	Blocked() bool

	MusicOnHold() bool
	StartMusicOnHold()
	StopMusicOnHold()

	// StartDialPlan begins dial-plan execution of the assigned target.
	StartDialPlan() bool
	HasExtension(number string) bool

	// Hangup tears the leg down immediately; QueueHangup defers it until
	// the current blocker releases the leg.
	Hangup()
	QueueHangup()

	SetVariable(key, value string)
	CallerID() (name, number string)

	// StationChannel returns the channel ID when the leg terminates on an
	// SCCP station of this process, or 0 for foreign legs.
	StationChannel() ID
}

// Bridge is the PBX collaborator. AllocateLeg builds the PBX-side call
// object for a channel; Masquerade splices two legs into one call; Park
// hands a leg to the PBX call parking feature and returns the slot.
type Bridge interface {
	AllocateLeg(ch *Channel) (BridgeLeg, error)
	Masquerade(dest, src BridgeLeg) error
	Park(parkee, announceTo BridgeLeg) (int, error)
}

// Task is a handle on a scheduled unit of work. Cancel reports whether
// the task was stopped before it ran.
type Task interface {
	Cancel() bool
}

// Scheduler runs one-shot deferred work: the first-digit timeout and the
// delayed blind-transfer notification. Both must be cancellable.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) Task
}
