package call

import "sync"

// LineStatistics are the aggregate counters read by external reporting.
// They are adjusted exactly at the hold/resume/answer/teardown transition
// points and must never go negative.
type LineStatistics struct {
	NumberOfActiveChannels int
	NumberOfHoldChannels   int
}

// Line is a dialable identity, possibly shared across devices. It owns
// the ordered collection of its channels (insertion order = arrival
// order, display only) and the aggregate counters above.
//
// The collection lock is held only while scanning or mutating the
// collection, never across another channel's lock plus a blocking call.
type Line struct {
	mu sync.Mutex

	name    string
	cidName string
	cidNum  string

	transferEnabled    bool
	echoCancel         bool
	silenceSuppression bool
	rtpTOS             int
	rtpCoS             int
	musicClass         string

	channels []ID
	stats    LineStatistics
}

// LineConfig carries the static attributes of a line.
type LineConfig struct {
	Name               string
	CIDName            string
	CIDNum             string
	TransferEnabled    bool
	EchoCancel         bool
	SilenceSuppression bool
	RTPTOS             int
	RTPCoS             int
	MusicClass         string
}

// NewLine builds a line from its configuration.
func NewLine(cfg LineConfig) *Line {
	return &Line{
		name:               cfg.Name,
		cidName:            cfg.CIDName,
		cidNum:             cfg.CIDNum,
		transferEnabled:    cfg.TransferEnabled,
		echoCancel:         cfg.EchoCancel,
		silenceSuppression: cfg.SilenceSuppression,
		rtpTOS:             cfg.RTPTOS,
		rtpCoS:             cfg.RTPCoS,
		musicClass:         cfg.MusicClass,
	}
}

// Name returns the line's identifier.
func (l *Line) Name() string { return l.name }

// CallerID returns the line's configured caller id name and number.
func (l *Line) CallerID() (name, number string) {
	return l.cidName, l.cidNum
}

// TransferEnabled reports whether transfer is allowed on this line.
func (l *Line) TransferEnabled() bool { return l.transferEnabled }

// EchoCancel reports whether echo cancellation is requested on media
// instructions for this line.
func (l *Line) EchoCancel() bool { return l.echoCancel }

// SilenceSuppression reports whether silence suppression is requested on
// transmit instructions for this line.
func (l *Line) SilenceSuppression() bool { return l.silenceSuppression }

// RTPTOS returns the IP precedence value for media instructions.
func (l *Line) RTPTOS() int { return l.rtpTOS }

// RTPCoS returns the layer-2 class of service for media sockets.
func (l *Line) RTPCoS() int { return l.rtpCoS }

// MusicClass returns the configured music-on-hold class.
func (l *Line) MusicClass() string { return l.musicClass }

// addChannel appends the channel to the line's collection.
func (l *Line) addChannel(id ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channels = append(l.channels, id)
}

// removeChannel detaches the channel from the line's collection.
func (l *Line) removeChannel(id ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ch := range l.channels {
		if ch == id {
			l.channels = append(l.channels[:i], l.channels[i+1:]...)
			return
		}
	}
}

// ChannelIDs returns a snapshot of the line's channel collection in
// arrival order.
func (l *Line) ChannelIDs() []ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ID, len(l.channels))
	copy(out, l.channels)
	return out
}

// ChannelCount returns the number of channels on the line.
func (l *Line) ChannelCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.channels)
}

// Statistics returns the line's aggregate counters.
func (l *Line) Statistics() LineStatistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Counter adjustments are guarded so the externally-read values can never
// go negative even if a transition point fires twice.

func (l *Line) incActive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.NumberOfActiveChannels++
}

func (l *Line) decActive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats.NumberOfActiveChannels > 0 {
		l.stats.NumberOfActiveChannels--
	}
}

func (l *Line) incHold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.NumberOfHoldChannels++
}

func (l *Line) decHold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats.NumberOfHoldChannels > 0 {
		l.stats.NumberOfHoldChannels--
	}
}
