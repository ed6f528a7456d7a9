package call

import "errors"

// Failure classes. Call-control operations never panic on these; each is
// recovered locally and converted into a device-visible tone/display or a
// log entry.
var (
	// Configuration failures: rejected synchronously, no state mutated.
	ErrNoLine           = errors.New("channel has no line")
	ErrNoDevice         = errors.New("channel has no device")
	ErrNoSession        = errors.New("device has no active session")
	ErrTransferDisabled = errors.New("transfer disabled on device or line")
	ErrParkDisabled     = errors.New("park disabled on device")

	// Precondition failures: wrong channel state for the operation.
	ErrInvalidState    = errors.New("channel state does not permit operation")
	ErrAlreadyOnHold   = errors.New("channel already on hold")
	ErrNoOwner         = errors.New("channel has no bridge leg")
	ErrChannelNotFound = errors.New("channel not found")
	ErrDeviceNotFound  = errors.New("device not found")

	// Resource failures: the call degrades but the channel survives.
	ErrMediaSession  = errors.New("media session unavailable")
	ErrLegAllocation = errors.New("bridge leg allocation failed")

	// Race failures: retried with bounded backoff, never escalated.
	ErrChannelBusy = errors.New("channel locked by another holder")

	// External failures: collaborator refused, state rolled back.
	ErrMasquerade = errors.New("bridge masquerade failed")
)

// Kind classifies an error into the failure taxonomy used for reporting.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindPrecondition
	KindResource
	KindRace
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindPrecondition:
		return "precondition"
	case KindResource:
		return "resource"
	case KindRace:
		return "race"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Classify maps an error to its failure class.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNoLine), errors.Is(err, ErrNoDevice),
		errors.Is(err, ErrNoSession), errors.Is(err, ErrTransferDisabled),
		errors.Is(err, ErrParkDisabled):
		return KindConfiguration
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyOnHold),
		errors.Is(err, ErrNoOwner), errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrDeviceNotFound):
		return KindPrecondition
	case errors.Is(err, ErrMediaSession), errors.Is(err, ErrLegAllocation):
		return KindResource
	case errors.Is(err, ErrChannelBusy):
		return KindRace
	case errors.Is(err, ErrMasquerade):
		return KindExternal
	default:
		return KindUnknown
	}
}
