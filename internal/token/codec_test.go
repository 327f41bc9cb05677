package token

import (
	"errors"
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	cases := []Token{
		{Kind: KindUser, IssuedAt: 1767225600000, Nonce: 0xdeadbeef},
		{Kind: KindService, IssuedAt: 1767225600001, Nonce: 0},
		{Kind: KindUser, IssuedAt: 0, Nonce: 1},
	}

	for _, tok := range cases {
		bearer := tok.String()

		wantPrefix := "acp_"
		if tok.Kind == KindService {
			wantPrefix = "acs_"
		}
		if !strings.HasPrefix(bearer, wantPrefix) {
			t.Errorf("String() = %q, want prefix %q", bearer, wantPrefix)
		}

		got, err := Parse(bearer)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", bearer, err)
		}
		if got != tok {
			t.Errorf("Parse(String()) = %+v, want %+v", got, tok)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	valid := Token{Kind: KindUser, IssuedAt: 1767225600000, Nonce: 42}.String()

	cases := map[string]string{
		"empty":           "",
		"no separator":    "acpdeadbeef",
		"unknown prefix":  "acx" + valid[3:],
		"bad base64":      "acp_!!!!",
		"truncated":       valid[:len(valid)-4],
		"padded tail":     valid + "AAAA",
		"missing payload": "acp_",
	}

	for name, bearer := range cases {
		if _, err := Parse(bearer); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: Parse(%q) error = %v, want ErrInvalidToken", name, bearer, err)
		}
	}
}

func TestParse_ChecksumMismatch(t *testing.T) {
	bearer := Token{Kind: KindUser, IssuedAt: 1767225600000, Nonce: 42}.String()

	// Flip a character inside the payload; the checksum must catch it.
	b := []byte(bearer)
	i := len(b) - 8
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}

	if _, err := Parse(string(b)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse(tampered) error = %v, want ErrInvalidToken", err)
	}
}
