package call

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/mpaland/chan-sccp/internal/codec"
)

// Test doubles for the core's collaborators. All of them record the calls
// made against them; none spin up goroutines or real timers.

type fakeTransport struct {
	mu           sync.Mutex
	sent         []Instruction
	sentTo       []string
	sendErr      error
	deadSessions map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{deadSessions: make(map[string]bool)}
}

func (t *fakeTransport) SendInstruction(deviceID string, instr Instruction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, instr)
	t.sentTo = append(t.sentTo, deviceID)
	return nil
}

func (t *fakeTransport) FindLineInstance(deviceID, lineName string) int { return 1 }

func (t *fakeTransport) HasActiveSession(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.deadSessions[deviceID]
}

func (t *fakeTransport) instructions(kind InstructionKind) []Instruction {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Instruction
	for _, i := range t.sent {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

type fakeLeg struct {
	mu      sync.Mutex
	name    string
	bridged BridgeLeg

	signals   []ControlSignal
	variables map[string]string

	native    codec.Set
	rwFormat  codec.Codec
	moh       bool
	mohStarts int

	zombie     bool
	hangingUp  bool
	activePlan bool
	blocked    bool

	hasExt        bool
	dialPlanOK    bool
	dialPlanRuns  int
	hangups       int
	queuedHangups int

	cidName, cidNumber string
	stationChannel     ID
}

func newFakeLeg(name string) *fakeLeg {
	return &fakeLeg{
		name:       name,
		variables:  make(map[string]string),
		hasExt:     true,
		dialPlanOK: true,
		activePlan: true,
	}
}

func (l *fakeLeg) Name() string { return l.name }

func (l *fakeLeg) QueueControlSignal(sig ControlSignal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, sig)
}

func (l *fakeLeg) signalled(sig ControlSignal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.signals {
		if s == sig {
			return true
		}
	}
	return false
}

func (l *fakeLeg) SetReadWriteFormat(format codec.Codec) { l.rwFormat = format }
func (l *fakeLeg) NativeFormats() codec.Set              { return l.native }
func (l *fakeLeg) SetNativeFormats(formats codec.Set)    { l.native = formats }

func (l *fakeLeg) BridgedLeg() BridgeLeg {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bridged
}

func (l *fakeLeg) IsZombie() bool          { return l.zombie }
func (l *fakeLeg) IsHangingUp() bool       { return l.hangingUp }
func (l *fakeLeg) HasActiveDialPlan() bool { return l.activePlan }
func (l *fakeLeg) Blocked() bool           { return l.blocked }

func (l *fakeLeg) MusicOnHold() bool { return l.moh }
func (l *fakeLeg) StartMusicOnHold() {
	l.moh = true
	l.mohStarts++
}
func (l *fakeLeg) StopMusicOnHold() { l.moh = false }

func (l *fakeLeg) StartDialPlan() bool {
	l.dialPlanRuns++
	return l.dialPlanOK
}
func (l *fakeLeg) HasExtension(number string) bool { return l.hasExt }

func (l *fakeLeg) Hangup()      { l.hangups++ }
func (l *fakeLeg) QueueHangup() { l.queuedHangups++ }

func (l *fakeLeg) SetVariable(key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.variables[key] = value
}

func (l *fakeLeg) CallerID() (string, string) { return l.cidName, l.cidNumber }
func (l *fakeLeg) StationChannel() ID         { return l.stationChannel }

type fakeBridge struct {
	mu       sync.Mutex
	legs     []*fakeLeg
	allocErr error

	masquerades   [][2]string // dest, src names
	masqueradeErr error

	parkSlot int
	parkErr  error
}

func newFakeBridge() *fakeBridge { return &fakeBridge{parkSlot: 71} }

func (b *fakeBridge) AllocateLeg(ch *Channel) (BridgeLeg, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocErr != nil {
		return nil, b.allocErr
	}
	leg := newFakeLeg("leg-" + ch.LineName())
	b.legs = append(b.legs, leg)
	return leg, nil
}

func (b *fakeBridge) Masquerade(dest, src BridgeLeg) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.masqueradeErr != nil {
		return b.masqueradeErr
	}
	b.masquerades = append(b.masquerades, [2]string{dest.Name(), src.Name()})
	return nil
}

func (b *fakeBridge) Park(parkee, announceTo BridgeLeg) (int, error) {
	if b.parkErr != nil {
		return 0, b.parkErr
	}
	return b.parkSlot, nil
}

func (b *fakeBridge) lastLeg() *fakeLeg {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.legs) == 0 {
		return nil
	}
	return b.legs[len(b.legs)-1]
}

type fakeSession struct {
	id        string
	local     netip.AddrPort
	remote    netip.AddrPort
	prefs     codec.Preference
	nat       bool
	tos, cos  int
	stopped   int
	destroyed int
}

func (s *fakeSession) ID() string                            { return s.id }
func (s *fakeSession) LocalAddr() netip.AddrPort             { return s.local }
func (s *fakeSession) RemoteAddr() netip.AddrPort            { return s.remote }
func (s *fakeSession) SetRemoteAddr(addr netip.AddrPort)     { s.remote = addr }
func (s *fakeSession) SetPreferredCodecs(p codec.Preference) { s.prefs = p }
func (s *fakeSession) SetNAT(enabled bool)                   { s.nat = enabled }
func (s *fakeSession) SetTOS(tos, cos int)                   { s.tos, s.cos = tos, cos }
func (s *fakeSession) Stop()                                 { s.stopped++ }
func (s *fakeSession) Destroy()                              { s.destroyed++ }

type fakeMediaTransport struct {
	mu        sync.Mutex
	sessions  []*fakeSession
	createErr error
}

func (m *fakeMediaTransport) CreateSession(channelID ID) (MediaSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	s := &fakeSession{
		id:    "sess-test",
		local: netip.MustParseAddrPort("10.0.0.5:16384"),
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

type fakeTask struct {
	cancelled bool
}

func (t *fakeTask) Cancel() bool {
	was := t.cancelled
	t.cancelled = true
	return !was
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
	task  *fakeTask
}

// fakeScheduler records scheduled work; tests fire it by hand.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
}

func (s *fakeScheduler) ScheduleOnce(delay time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{}
	s.calls = append(s.calls, scheduledCall{delay: delay, fn: fn, task: task})
	return task
}

// fire runs the i-th scheduled call unless it was cancelled.
func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	if i >= len(s.calls) {
		s.mu.Unlock()
		return
	}
	call := s.calls[i]
	s.mu.Unlock()
	if !call.task.cancelled {
		call.fn()
	}
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if !c.task.cancelled {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	addr netip.Addr
	ok   bool
}

func (r *fakeResolver) ExternalAddress() (netip.Addr, bool) { return r.addr, r.ok }

var errBoom = errors.New("boom")
