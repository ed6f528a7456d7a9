// Package codec defines the audio codec identifiers exchanged with SCCP
// stations and the capability-set arithmetic used during media negotiation.
package codec

import (
	"sort"
	"strings"
)

// Codec identifies a single audio format as a bit flag, so a set of codecs
// can be expressed as a bitwise union (see Set).
type Codec uint32

const (
	None     Codec = 0
	G711Alaw Codec = 1 << iota
	G711Ulaw
	G722
	G729
	G729A
	G7231
	GSM
	Wideband256k
)

// skinnyPayload maps a codec to the payload type value carried in station
// media instructions. Values follow the Skinny station protocol tables.
var skinnyPayload = map[Codec]int{
	G711Alaw:     2,
	G711Ulaw:     4,
	G722:         6,
	G7231:        9,
	G729:         12,
	G729A:        13,
	GSM:          80,
	Wideband256k: 25,
}

// DefaultPayloadType is used when no payload could be determined for the
// negotiated format. The station protocol treats it as G.711 u-law.
const DefaultPayloadType = 4

var names = map[Codec]string{
	G711Alaw:     "alaw",
	G711Ulaw:     "ulaw",
	G722:         "g722",
	G729:         "g729",
	G729A:        "g729a",
	G7231:        "g723.1",
	GSM:          "gsm",
	Wideband256k: "wideband",
}

func (c Codec) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unknown"
}

// PayloadType returns the station payload type for the codec, or 0 for a
// codec the station protocol cannot express.
func (c Codec) PayloadType() int {
	return skinnyPayload[c]
}

// PacketSizeMS returns the default packetization interval in milliseconds.
func (c Codec) PacketSizeMS() int {
	switch c {
	case G7231:
		return 30
	default:
		return 20
	}
}

// Set is a bitwise union of codecs, used for device capabilities and per
// channel negotiated capability.
type Set uint32

// NewSet builds a Set from individual codecs.
func NewSet(codecs ...Codec) Set {
	var s Set
	for _, c := range codecs {
		s |= Set(c)
	}
	return s
}

// FallbackCapability is assumed for channels that have no device attached
// yet, e.g. a call-forward child before path selection.
func FallbackCapability() Set {
	return NewSet(G711Alaw, G711Ulaw, G729A)
}

// Contains reports whether the set includes the given codec.
func (s Set) Contains(c Codec) bool {
	return s&Set(c) != 0
}

// Intersect returns the codecs present in both sets.
func (s Set) Intersect(other Set) Set {
	return s & other
}

// Empty reports whether the set contains no codecs.
func (s Set) Empty() bool {
	return s == 0
}

func (s Set) String() string {
	var parts []string
	for c := range names {
		if s.Contains(c) {
			parts = append(parts, c.String())
		}
	}
	if len(parts) == 0 {
		return "(none)"
	}
	// map iteration order is random; keep output stable
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Preference is an ordered codec preference list, most preferred first.
type Preference []Codec

// DefaultPreference is the process-wide preference order applied when a
// device does not carry its own.
func DefaultPreference() Preference {
	return Preference{G711Ulaw, G711Alaw, G729A, G729, G722, GSM}
}

// Choose returns the most preferred codec present in the capability set.
// Returns (None, false) if no preferred codec is available.
func (p Preference) Choose(capability Set) (Codec, bool) {
	for _, c := range p {
		if capability.Contains(c) {
			return c, true
		}
	}
	return None, false
}

// Clone returns a copy of the preference list.
func (p Preference) Clone() Preference {
	out := make(Preference, len(p))
	copy(out, p)
	return out
}

// Parse converts a comma-separated codec name list into a Preference.
// Unknown names are skipped.
func Parse(list string) Preference {
	var p Preference
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		for c, name := range names {
			if name == part {
				p = append(p, c)
				break
			}
		}
	}
	return p
}
