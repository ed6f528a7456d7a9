package media

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/mpaland/chan-sccp/internal/call"
	"github.com/mpaland/chan-sccp/internal/codec"
)

// Stats are the per-session receive counters, maintained by the reader
// goroutine from parsed RTP headers.
type Stats struct {
	Packets     uint64
	Bytes       uint64
	PayloadType uint8
	LastSSRC    uint32
}

// Session is one station-facing RTP endpoint. The station sends its media
// to LocalAddr; the reader goroutine inspects inbound packets for
// statistics and, behind NAT, learns the station's real source address
// from the first packet (symmetric RTP).
type Session struct {
	id        string
	channelID call.ID
	pair      *SocketPair
	logger    *slog.Logger
	createdAt time.Time

	mu     sync.Mutex
	prefs  codec.Preference
	nat    bool
	tos    int
	cos    int
	remote netip.AddrPort

	packets     atomic.Uint64
	bytes       atomic.Uint64
	payloadType atomic.Uint32
	lastSSRC    atomic.Uint32

	paused  atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LocalAddr returns the RTP address the station should send to.
func (s *Session) LocalAddr() netip.AddrPort {
	if la, ok := s.pair.RTPConn.LocalAddr().(*net.UDPAddr); ok {
		return la.AddrPort()
	}
	return netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(s.pair.Ports.RTP))
}

// RemoteAddr returns the station's reported (or learned) media address.
func (s *Session) RemoteAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// SetRemoteAddr records the address the station acknowledged it listens
// on. Behind NAT the reader goroutine may override it with the observed
// packet source.
func (s *Session) SetRemoteAddr(addr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = addr
}

// SetPreferredCodecs records the negotiation preference for this session.
func (s *Session) SetPreferredCodecs(prefs codec.Preference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs.Clone()
}

// SetNAT enables symmetric-RTP source learning.
func (s *Session) SetNAT(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nat = enabled
}

// SetTOS records the DSCP/CoS marking for outbound media.
func (s *Session) SetTOS(tos, cos int) {
	s.mu.Lock()
	s.tos, s.cos = tos, cos
	s.mu.Unlock()

	if tos > 0 {
		if err := setSocketTOS(s.pair.RTPConn, tos); err != nil {
			s.logger.Debug("setting rtp tos failed", "session_id", s.id, "error", err)
		}
	}
}

// Statistics returns the receive counters accumulated so far.
func (s *Session) Statistics() Stats {
	return Stats{
		Packets:     s.packets.Load(),
		Bytes:       s.bytes.Load(),
		PayloadType: uint8(s.payloadType.Load()),
		LastSSRC:    s.lastSSRC.Load(),
	}
}

// Stop pauses stat accumulation while media is held. The sockets stay
// bound and the reader keeps draining, so the session survives a later
// reopen of the receive path.
func (s *Session) Stop() {
	s.paused.Store(true)
}

// Resume re-enables stat accumulation after a Stop.
func (s *Session) Resume() {
	s.paused.Store(false)
}

// Destroy terminates the reader and returns the ports to the pool.
func (s *Session) Destroy() {
	if s.stopped.CompareAndSwap(false, true) {
		// Unblock the blocking read.
		s.pair.RTPConn.SetReadDeadline(time.Now())
	}
	<-s.done
	s.logger.Info("media session destroyed",
		"session_id", s.id,
		"channel_id", s.channelID,
		"packets", s.packets.Load(),
		"bytes", s.bytes.Load(),
	)
}

// readLoop drains inbound RTP, keeping counters and, behind NAT, learning
// the true remote address from the first packet seen.
func (s *Session) readLoop() {
	defer close(s.done)

	buf := make([]byte, 1500)
	var pkt rtp.Packet
	learned := false

	for !s.stopped.Load() {
		s.pair.RTPConn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := s.pair.RTPConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		if s.paused.Load() {
			continue
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		s.packets.Add(1)
		s.bytes.Add(uint64(n))
		s.payloadType.Store(uint32(pkt.PayloadType))
		s.lastSSRC.Store(pkt.SSRC)

		if !learned {
			s.mu.Lock()
			if s.nat && s.remote != src {
				s.logger.Debug("learned remote media address",
					"session_id", s.id, "addr", src.String())
				s.remote = src
			}
			s.mu.Unlock()
			learned = true
		}
	}
}

// Transport creates and tracks station media sessions on a shared port
// pool. It satisfies the call-control media collaborator.
type Transport struct {
	pool   *PortPool
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTransport builds a media transport over the pool.
func NewTransport(pool *PortPool, logger *slog.Logger) *Transport {
	return &Transport{
		pool:     pool,
		logger:   logger.With("subsystem", "media"),
		sessions: make(map[string]*Session),
	}
}

// CreateSession allocates a socket pair and starts the session reader.
func (t *Transport) CreateSession(channelID call.ID) (call.MediaSession, error) {
	pair, err := t.pool.Allocate()
	if err != nil {
		return nil, fmt.Errorf("creating media session: %w", err)
	}

	s := &Session{
		id:        uuid.NewString(),
		channelID: channelID,
		pair:      pair,
		logger:    t.logger,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.sessions[s.id] = s
	t.mu.Unlock()

	go func() {
		s.readLoop()
		t.mu.Lock()
		delete(t.sessions, s.id)
		t.mu.Unlock()
		t.pool.Release(pair)
	}()

	t.logger.Info("media session created",
		"session_id", s.id,
		"channel_id", channelID,
		"rtp_port", pair.Ports.RTP,
	)
	return s, nil
}

// Count returns the number of live sessions.
func (t *Transport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Shutdown stops every live session. Used during process shutdown.
func (t *Transport) Shutdown() {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Destroy()
	}
	t.logger.Info("media transport shut down", "sessions", len(sessions))
}
