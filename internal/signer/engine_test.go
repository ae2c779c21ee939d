// Copyright 2024 The flux-imp Authors
// This file is part of the flux-imp library.
//
// The flux-imp library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The flux-imp library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the flux-imp library. If not, see <http://www.gnu.org/licenses/>.

package signer

import (
	"os"
	"regexp"
	"testing"

	"golang.org/x/crypto/nacl/sign"

	"github.com/flux-framework/flux-imp/internal/signer/mechanism"
)

func newTestRegistry(t *testing.T) *mechanism.Registry {
	t.Helper()
	daemon := mechanism.NewLocalDaemon([]byte("test-shared-secret"), os.Getuid)

	pub, priv, err := sign.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate curve key: %v", err)
	}
	ks := mechanism.MapKeystore{os.Getuid(): *pub}

	return mechanism.NewRegistry(
		mechanism.None(),
		mechanism.Munge(daemon),
		mechanism.Curve(*pub, *priv, ks),
	)
}

func TestRoundTripNone(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := Config{MaxTTL: 30, DefaultType: "none", AllowedTypes: []string{"none"}}
	eng, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	env, err := eng.Wrap(1000, []byte("hi"), "")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9+/=]+\.aGk=\.none$`).MatchString(env) {
		t.Fatalf("envelope %q does not match expected shape", env)
	}

	res, err := eng.Unwrap(env, 0)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if string(res.Payload) != "hi" || res.UserID != 1000 || res.Mechanism != "none" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRoundTripAllMechanisms(t *testing.T) {
	registry := newTestRegistry(t)
	for _, mech := range []string{"none", "munge", "curve"} {
		t.Run(mech, func(t *testing.T) {
			cfg := Config{MaxTTL: 30, DefaultType: mech, AllowedTypes: registry.Names()}
			eng, err := NewEngine(cfg, registry)
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			for _, payload := range [][]byte{[]byte(""), []byte("a"), []byte("hello world")} {
				env, err := eng.Wrap(os.Getuid(), payload, mech)
				if err != nil {
					t.Fatalf("Wrap(%s): %v", mech, err)
				}
				res, err := eng.Unwrap(env, 0)
				if err != nil {
					t.Fatalf("Unwrap(%s): %v", mech, err)
				}
				if string(res.Payload) != string(payload) {
					t.Fatalf("payload mismatch: got %q want %q", res.Payload, payload)
				}
				if res.UserID != os.Getuid() || res.Mechanism != mech {
					t.Fatalf("unexpected result: %+v", res)
				}
			}
		})
	}
}

func TestWrapCurrent(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := Config{MaxTTL: 30, DefaultType: "none", AllowedTypes: []string{"none"}}
	eng, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env, err := eng.WrapCurrent([]byte("x"), "")
	if err != nil {
		t.Fatalf("WrapCurrent: %v", err)
	}
	res, err := eng.Unwrap(env, 0)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if res.UserID != os.Getuid() {
		t.Fatalf("got uid %d want %d", res.UserID, os.Getuid())
	}
}

func TestWrapUnknownMechanism(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := Config{MaxTTL: 30, DefaultType: "none", AllowedTypes: []string{"none"}}
	eng, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	_, err = eng.Wrap(1000, []byte("x"), "bogus")
	if err == nil {
		t.Fatalf("expected failure for unknown mechanism")
	}
	if got := eng.LastError(); !regexp.MustCompile(`bogus`).MatchString(got) {
		t.Fatalf("last_error %q does not mention the bad mechanism name", got)
	}
}

func TestUnwrapPolicyRejection(t *testing.T) {
	registry := newTestRegistry(t)
	// allowed-types excludes "none"; wrap a "none" envelope for test purposes.
	cfg := Config{MaxTTL: 30, DefaultType: "curve", AllowedTypes: []string{"curve"}}
	eng, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env, err := eng.Wrap(1000, []byte("x"), "none")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := eng.Unwrap(env, 0); err == nil {
		t.Fatalf("expected policy rejection")
	}
	res, err := eng.UnwrapAnymech(env, 0)
	if err != nil {
		t.Fatalf("UnwrapAnymech: %v", err)
	}
	if res.Mechanism != "none" {
		t.Fatalf("unexpected mechanism: %s", res.Mechanism)
	}
}

func TestTamperDetection(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := Config{MaxTTL: 30, DefaultType: "curve", AllowedTypes: []string{"curve"}}
	eng, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env, err := eng.Wrap(os.Getuid(), []byte("0123456789"), "curve")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	parts := []byte(env)
	// Flip a byte strictly inside the payload segment (between the two
	// dots), leaving header and signature intact.
	firstDot := indexByte(parts, '.')
	secondDot := firstDot + 1 + indexByte(parts[firstDot+1:], '.')
	mid := (firstDot + secondDot) / 2
	parts[mid] ^= 0x01
	tampered := string(parts)

	if _, err := eng.Unwrap(tampered, 0); err == nil {
		t.Fatalf("expected signature-invalid after tampering")
	}
}

func TestNoVerifySkipsSignatureButNotStructure(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := Config{MaxTTL: 30, DefaultType: "curve", AllowedTypes: []string{"curve"}}
	eng, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env, err := eng.Wrap(os.Getuid(), []byte("hello"), "curve")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	parts := []byte(env)
	firstDot := indexByte(parts, '.')
	secondDot := firstDot + 1 + indexByte(parts[firstDot+1:], '.')
	parts[firstDot+1] ^= 0x01 // corrupt inside the payload region
	tampered := string(parts)
	_ = secondDot

	if _, err := eng.Unwrap(tampered, NoVerify); err != nil {
		t.Fatalf("NoVerify should not fail on payload tampering: %v", err)
	}

	if _, err := eng.Unwrap("not-a-valid-envelope", NoVerify); err == nil {
		t.Fatalf("NoVerify must still reject structurally malformed envelopes")
	}
}

func TestMaxTTLValidation(t *testing.T) {
	registry := newTestRegistry(t)
	for _, ttl := range []int{0, -1, -50} {
		cfg := Config{MaxTTL: ttl, DefaultType: "none", AllowedTypes: []string{"none"}}
		if _, err := NewEngine(cfg, registry); err == nil {
			t.Fatalf("max-ttl=%d should fail init", ttl)
		}
	}
	cfg := Config{MaxTTL: -100, DefaultType: "none", AllowedTypes: []string{"none"}}
	if _, err := NewEngine(cfg, registry); err != nil {
		t.Fatalf("max-ttl=-100 should be accepted: %v", err)
	}
}

func TestAllowedTypesValidation(t *testing.T) {
	registry := newTestRegistry(t)
	cases := []Config{
		{MaxTTL: 30, DefaultType: "none", AllowedTypes: nil},
		{MaxTTL: 30, DefaultType: "none", AllowedTypes: []string{""}},
		{MaxTTL: 30, DefaultType: "none", AllowedTypes: []string{"nope"}},
		{MaxTTL: 30, DefaultType: "nope", AllowedTypes: []string{"none"}},
	}
	for i, cfg := range cases {
		if _, err := NewEngine(cfg, registry); err == nil {
			t.Fatalf("case %d: expected validation failure", i)
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
