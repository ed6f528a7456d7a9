package media

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"
)

// Resolver supplies the external (public) media address substituted into
// transmission instructions for stations behind NAT. A hostname is
// re-resolved periodically so a dynamic-DNS deployment keeps working
// after the address changes.
type Resolver struct {
	host    string
	refresh time.Duration
	logger  *slog.Logger

	mu   sync.RWMutex
	addr netip.Addr
	ok   bool

	cancel context.CancelFunc
}

// NewResolver resolves host once and, when refresh is non-zero and host
// is not a literal address, keeps re-resolving in the background until
// Close. An empty host yields a resolver that never reports an address.
func NewResolver(host string, refresh time.Duration, logger *slog.Logger) (*Resolver, error) {
	r := &Resolver{
		host:    host,
		refresh: refresh,
		logger:  logger.With("subsystem", "media"),
	}
	if host == "" {
		return r, nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		r.addr, r.ok = addr, true
		return r, nil
	}

	if err := r.resolve(); err != nil {
		return nil, fmt.Errorf("resolving external host %q: %w", host, err)
	}

	if refresh > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		go r.refreshLoop(ctx)
	}
	return r, nil
}

// ExternalAddress returns the current external address, if one is known.
func (r *Resolver) ExternalAddress() (netip.Addr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addr, r.ok
}

// Close stops the background re-resolution.
func (r *Resolver) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Resolver) resolve() error {
	ips, err := net.LookupIP(r.host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			addr, _ := netip.AddrFromSlice(v4)
			r.mu.Lock()
			changed := !r.ok || addr != r.addr
			r.addr, r.ok = addr, true
			r.mu.Unlock()
			if changed {
				r.logger.Info("external address resolved",
					"host", r.host, "addr", addr.String())
			}
			return nil
		}
	}
	return fmt.Errorf("no ipv4 address for %q", r.host)
}

func (r *Resolver) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.resolve(); err != nil {
				r.logger.Warn("external address re-resolution failed",
					"host", r.host, "error", err)
			}
		}
	}
}
