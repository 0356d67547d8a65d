package graphmodel

import "testing"

func TestNormalizeTopicName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"TLS Handshake", "tls-handshake"},
		{"  tls-handshake  ", "tls-handshake"},
		{"TLS_Handshake!!", "tls-handshake"},
		{"", ""},
		{"---", ""},
	}
	for _, c := range cases {
		if got := NormalizeTopicName(c.in); got != c.want {
			t.Errorf("NormalizeTopicName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeTopicNameIdempotent(t *testing.T) {
	raw := "Certificate Pinning & TLS"
	once := NormalizeTopicName(raw)
	twice := NormalizeTopicName(once)
	if once != twice {
		t.Fatalf("normalization not idempotent: %q != %q", once, twice)
	}
}

func TestClampStrength(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, c := range cases {
		if got := ClampStrength(c.in); got != c.want {
			t.Errorf("ClampStrength(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
