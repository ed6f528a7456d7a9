package media

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// PortPair holds an RTP port and its companion RTCP port (RTP+1).
type PortPair struct {
	RTP  int
	RTCP int
}

// SocketPair holds the UDP connections for an RTP/RTCP port pair.
type SocketPair struct {
	Ports    PortPair
	RTPConn  *net.UDPConn
	RTCPConn *net.UDPConn
}

// Close releases both UDP sockets.
func (sp *SocketPair) Close() error {
	var rtpErr, rtcpErr error
	if sp.RTPConn != nil {
		rtpErr = sp.RTPConn.Close()
	}
	if sp.RTCPConn != nil {
		rtcpErr = sp.RTCPConn.Close()
	}
	if rtpErr != nil {
		return rtpErr
	}
	return rtcpErr
}

// PortPool manages the UDP port range used for station media sessions.
// RTP takes the even port, RTCP the next odd one.
type PortPool struct {
	portMin int
	portMax int
	logger  *slog.Logger

	mu        sync.Mutex
	allocated map[int]struct{} // allocated RTP ports (even numbers)
	nextPort  int              // next port to try (even number)
}

// NewPortPool creates a pool over [portMin, portMax].
// portMin must be even; portMax must be > portMin.
func NewPortPool(portMin, portMax int, logger *slog.Logger) (*PortPool, error) {
	if portMin%2 != 0 {
		return nil, fmt.Errorf("portMin must be even, got %d", portMin)
	}
	if portMax <= portMin {
		return nil, fmt.Errorf("portMax (%d) must be greater than portMin (%d)", portMax, portMin)
	}

	l := logger.With("subsystem", "media")
	capacity := (portMax - portMin + 1) / 2
	l.Info("media port pool initialized",
		"port_min", portMin,
		"port_max", portMax,
		"capacity", capacity,
	)

	return &PortPool{
		portMin:   portMin,
		portMax:   portMax,
		logger:    l,
		allocated: make(map[int]struct{}),
		nextPort:  portMin,
	}, nil
}

// Capacity returns the total number of port pairs in the range.
func (p *PortPool) Capacity() int {
	return (p.portMax - p.portMin + 1) / 2
}

// AllocatedCount returns the number of currently allocated port pairs.
func (p *PortPool) AllocatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated)
}

// Allocate binds an RTP+RTCP UDP socket pair from the pool.
func (p *PortPool) Allocate() (*SocketPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := p.Capacity()
	if len(p.allocated) >= capacity {
		return nil, fmt.Errorf("no rtp ports available (all %d pairs allocated)", capacity)
	}

	// Scan from nextPort through the range for an available even port.
	startPort := p.nextPort
	for {
		port := p.nextPort

		p.nextPort += 2
		if p.nextPort > p.portMax-1 {
			p.nextPort = p.portMin
		}

		if _, taken := p.allocated[port]; taken {
			if p.nextPort == startPort {
				return nil, fmt.Errorf("no rtp ports available (all checked)")
			}
			continue
		}

		pair, err := bindPair(port)
		if err != nil {
			// Port may be held by another process; skip it.
			p.logger.Debug("port pair bind failed, trying next",
				"rtp_port", port,
				"error", err,
			)
			if p.nextPort == startPort {
				return nil, fmt.Errorf("no bindable rtp ports available")
			}
			continue
		}

		p.allocated[port] = struct{}{}

		p.logger.Debug("port pair allocated",
			"rtp_port", port,
			"rtcp_port", port+1,
			"allocated", len(p.allocated),
			"capacity", capacity,
		)

		return pair, nil
	}
}

// Release closes the UDP sockets and returns the port pair to the pool.
func (p *PortPool) Release(pair *SocketPair) {
	if pair == nil {
		return
	}

	if err := pair.Close(); err != nil {
		p.logger.Warn("error closing socket pair",
			"rtp_port", pair.Ports.RTP,
			"error", err,
		)
	}

	p.mu.Lock()
	delete(p.allocated, pair.Ports.RTP)
	count := len(p.allocated)
	p.mu.Unlock()

	p.logger.Debug("port pair released",
		"rtp_port", pair.Ports.RTP,
		"rtcp_port", pair.Ports.RTCP,
		"allocated", count,
	)
}

// bindPair creates UDP sockets bound to the given even port (RTP) and its
// companion odd port (RTCP). If either bind fails, both are cleaned up.
func bindPair(rtpPort int) (*SocketPair, error) {
	rtpAddr := &net.UDPAddr{IP: net.IPv4zero, Port: rtpPort}
	rtpConn, err := net.ListenUDP("udp4", rtpAddr)
	if err != nil {
		return nil, fmt.Errorf("binding rtp port %d: %w", rtpPort, err)
	}

	rtcpPort := rtpPort + 1
	rtcpAddr := &net.UDPAddr{IP: net.IPv4zero, Port: rtcpPort}
	rtcpConn, err := net.ListenUDP("udp4", rtcpAddr)
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("binding rtcp port %d: %w", rtcpPort, err)
	}

	return &SocketPair{
		Ports:    PortPair{RTP: rtpPort, RTCP: rtcpPort},
		RTPConn:  rtpConn,
		RTCPConn: rtcpConn,
	}, nil
}
