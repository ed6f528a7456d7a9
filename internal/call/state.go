package call

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// State is the call-control state of a channel. The set is closed: a
// channel is always in exactly one of these states and may only move
// between them along the transitions declared in newStateMachine.
type State string

const (
	StateDown           State = "down"
	StateOffhook        State = "offhook"
	StateOnhook         State = "onhook"
	StateRinging        State = "ringing"
	StateRingout        State = "ringout"
	StateConnected      State = "connected"
	StateProceed        State = "proceed"
	StateHold           State = "hold"
	StateCallTransfer   State = "calltransfer"
	StateCallConference State = "callconference"
	StateCallPark       State = "callpark"
	StateCongestion     State = "congestion"
	StateInvalidNumber  State = "invalidnumber"
	StateBusy           State = "busy"
	StateSpeeddial      State = "speeddial"
	StateZombie         State = "zombie"
)

func (s State) String() string { return string(s) }

// Live reports whether the channel still represents a call in progress.
func (s State) Live() bool {
	return s != StateDown && s != StateOnhook && s != StateZombie
}

// newStateMachine builds the transition table for one channel. Each event
// is named after the state it enters; the Src list is the closed set of
// states the transition is valid from.
func newStateMachine() *fsm.FSM {
	all := []string{
		string(StateDown), string(StateOffhook), string(StateOnhook),
		string(StateRinging), string(StateRingout), string(StateConnected),
		string(StateProceed), string(StateHold), string(StateCallTransfer),
		string(StateCallConference), string(StateCallPark),
		string(StateCongestion), string(StateInvalidNumber),
		string(StateBusy), string(StateSpeeddial), string(StateZombie),
	}

	return fsm.NewFSM(
		string(StateDown),
		fsm.Events{
			{Name: string(StateOffhook), Src: []string{
				string(StateDown), string(StateRinging), string(StateHold),
				string(StateOnhook),
			}, Dst: string(StateOffhook)},
			{Name: string(StateSpeeddial), Src: []string{
				string(StateDown), string(StateOffhook),
			}, Dst: string(StateSpeeddial)},
			{Name: string(StateRinging), Src: []string{
				string(StateDown), string(StateOffhook),
			}, Dst: string(StateRinging)},
			{Name: string(StateRingout), Src: []string{
				string(StateOffhook), string(StateSpeeddial),
				string(StateProceed),
			}, Dst: string(StateRingout)},
			{Name: string(StateProceed), Src: []string{
				string(StateOffhook), string(StateSpeeddial),
				string(StateRingout),
			}, Dst: string(StateProceed)},
			{Name: string(StateConnected), Src: []string{
				string(StateOffhook), string(StateRinging),
				string(StateRingout), string(StateProceed),
				string(StateHold), string(StateCallTransfer),
				string(StateCallConference), string(StateCallPark),
			}, Dst: string(StateConnected)},
			{Name: string(StateHold), Src: []string{
				string(StateConnected), string(StateProceed),
				string(StateCallTransfer), string(StateCallConference),
			}, Dst: string(StateHold)},
			{Name: string(StateCallTransfer), Src: []string{
				string(StateHold), string(StateConnected),
			}, Dst: string(StateCallTransfer)},
			{Name: string(StateCallConference), Src: []string{
				string(StateHold), string(StateConnected),
			}, Dst: string(StateCallConference)},
			{Name: string(StateCallPark), Src: []string{
				string(StateConnected),
			}, Dst: string(StateCallPark)},
			{Name: string(StateBusy), Src: []string{
				string(StateRingout), string(StateSpeeddial),
				string(StateProceed),
			}, Dst: string(StateBusy)},
			{Name: string(StateCongestion), Src: []string{
				string(StateDown), string(StateOffhook),
				string(StateSpeeddial), string(StateRingout),
				string(StateProceed),
			}, Dst: string(StateCongestion)},
			{Name: string(StateInvalidNumber), Src: []string{
				string(StateOffhook), string(StateSpeeddial),
				string(StateRingout), string(StateProceed),
			}, Dst: string(StateInvalidNumber)},
			{Name: string(StateZombie), Src: all, Dst: string(StateZombie)},
			{Name: string(StateOnhook), Src: all, Dst: string(StateOnhook)},
			{Name: string(StateDown), Src: all, Dst: string(StateDown)},
		},
		fsm.Callbacks{},
	)
}

// transition moves the channel state machine into target, recording the
// previous state. Returns ErrInvalidState when the transition is not in
// the table. Caller must hold the channel lock.
func (c *Channel) transition(target State) error {
	current := State(c.fsm.Current())
	if current == target {
		return nil
	}
	if err := c.fsm.Event(context.Background(), string(target)); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, current, target)
	}
	c.previousState = current
	return nil
}
