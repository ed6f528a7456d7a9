package codec

import "testing"

func TestPayloadType(t *testing.T) {
	cases := []struct {
		codec Codec
		want  int
	}{
		{G711Alaw, 2},
		{G711Ulaw, 4},
		{G722, 6},
		{G7231, 9},
		{G729, 12},
		{G729A, 13},
		{GSM, 80},
		{None, 0},
	}
	for _, tc := range cases {
		if got := tc.codec.PayloadType(); got != tc.want {
			t.Errorf("%s: payload type = %d, want %d", tc.codec, got, tc.want)
		}
	}
}

func TestPacketSizeMS(t *testing.T) {
	if got := G7231.PacketSizeMS(); got != 30 {
		t.Errorf("g723 packet size = %d, want 30", got)
	}
	if got := G711Ulaw.PacketSizeMS(); got != 20 {
		t.Errorf("ulaw packet size = %d, want 20", got)
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet(G711Ulaw, G729A)
	if !s.Contains(G711Ulaw) || !s.Contains(G729A) {
		t.Fatal("set missing members")
	}
	if s.Contains(G722) {
		t.Fatal("set contains codec it should not")
	}

	other := NewSet(G729A, G722)
	inter := s.Intersect(other)
	if !inter.Contains(G729A) || inter.Contains(G711Ulaw) || inter.Contains(G722) {
		t.Fatalf("intersect = %s", inter)
	}

	if !NewSet().Empty() {
		t.Fatal("empty set not reported empty")
	}
	if s.Empty() {
		t.Fatal("populated set reported empty")
	}
}

func TestSetStringStable(t *testing.T) {
	s := NewSet(G729A, G711Ulaw, G722)
	want := "g722,g729a,ulaw"
	for i := 0; i < 10; i++ {
		if got := s.String(); got != want {
			t.Fatalf("set string = %q, want %q", got, want)
		}
	}
	if got := NewSet().String(); got != "(none)" {
		t.Fatalf("empty set string = %q", got)
	}
}

func TestPreferenceChoose(t *testing.T) {
	p := Preference{G722, G711Ulaw, G711Alaw}

	if c, ok := p.Choose(NewSet(G711Alaw, G711Ulaw)); !ok || c != G711Ulaw {
		t.Errorf("choose = %s, want ulaw", c)
	}
	if c, ok := p.Choose(NewSet(G711Alaw)); !ok || c != G711Alaw {
		t.Errorf("choose = %s, want alaw", c)
	}
	if _, ok := p.Choose(NewSet(G729)); ok {
		t.Error("choose found a codec outside the preference list")
	}
	if _, ok := p.Choose(NewSet()); ok {
		t.Error("choose found a codec in the empty set")
	}
}

func TestParse(t *testing.T) {
	p := Parse("ulaw, alaw, bogus, g729a")
	if len(p) != 3 {
		t.Fatalf("parsed %d codecs, want 3", len(p))
	}
	if p[0] != G711Ulaw || p[1] != G711Alaw || p[2] != G729A {
		t.Fatalf("parse order wrong: %v", p)
	}
}

func TestFallbackCapability(t *testing.T) {
	fb := FallbackCapability()
	for _, c := range []Codec{G711Alaw, G711Ulaw, G729A} {
		if !fb.Contains(c) {
			t.Errorf("fallback capability missing %s", c)
		}
	}
}
