package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParkAnnouncesSlot(t *testing.T) {
	e := newEnv(t)
	c := e.connectedCall(t)

	require.NoError(t, e.m.Park(c))
	assert.Equal(t, StateCallPark, c.State())

	waitFor(t, func() bool {
		return len(e.transport.instructions(InstrDisplayNotify)) > 0
	})
	notifies := e.transport.instructions(InstrDisplayNotify)
	assert.Equal(t, "Call Park At 71", notifies[0].Prompt)
}

func TestParkDisabled(t *testing.T) {
	e := newEnv(t)
	e.dev = NewDevice(DeviceConfig{ID: "SEPnopark", TransferEnabled: true})
	e.m.AddDevice(e.dev)
	c, err := e.m.HandleIncomingCall(e.line, e.dev, e.ownedLeg(newFakeLeg("remote")))
	require.NoError(t, err)
	require.NoError(t, e.m.Answer(e.dev, c))

	err = e.m.Park(c)
	require.ErrorIs(t, err, ErrParkDisabled)
	assert.Equal(t, StateConnected, c.State())
}

func TestParkFailureReturnsToConnected(t *testing.T) {
	e := newEnv(t)
	e.bridge.parkErr = errBoom
	c := e.connectedCall(t)

	require.NoError(t, e.m.Park(c))
	waitFor(t, func() bool { return c.State() == StateConnected })

	prompts := e.transport.instructions(InstrDisplayPrompt)
	require.NotEmpty(t, prompts)
	assert.Equal(t, PromptNoParkSlotsAvailable, prompts[len(prompts)-1].Prompt)
}

func TestParkedCallSettlesLineCounters(t *testing.T) {
	e := newEnv(t)
	c := e.connectedCall(t)
	require.Equal(t, 1, e.line.Statistics().NumberOfActiveChannels)

	require.NoError(t, e.m.Park(c))
	assert.Zero(t, e.line.Statistics().NumberOfActiveChannels,
		"a parked call must leave the line's active count")
	assert.Equal(t, 1, e.line.Statistics().NumberOfHoldChannels)

	waitFor(t, func() bool {
		return len(e.transport.instructions(InstrDisplayNotify)) > 0
	})
	e.m.CleanBeforeDelete(c)
	e.m.Delete(c)

	stats := e.line.Statistics()
	assert.Zero(t, stats.NumberOfActiveChannels)
	assert.Zero(t, stats.NumberOfHoldChannels)
}

func TestParkFailureRestoresActiveCounter(t *testing.T) {
	e := newEnv(t)
	e.bridge.parkErr = errBoom
	c := e.connectedCall(t)

	require.NoError(t, e.m.Park(c))
	waitFor(t, func() bool {
		return e.line.Statistics().NumberOfActiveChannels == 1
	})
	assert.Zero(t, e.line.Statistics().NumberOfHoldChannels)
	assert.Equal(t, StateConnected, c.State())
}

func TestParkWithoutBridgedParty(t *testing.T) {
	e := newEnv(t)
	c, err := e.m.HandleIncomingCall(e.line, e.dev, e.ownedLeg(nil))
	require.NoError(t, err)
	require.NoError(t, e.m.Answer(e.dev, c))

	err = e.m.Park(c)
	require.ErrorIs(t, err, ErrInvalidState)
}
