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

package mechanism

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/sign"

	"github.com/flux-framework/flux-imp/internal/signer/envelope"
)

// Keystore maps a uid to the public key(s) it is allowed to sign with, the
// local lookup used by curve's Verify step (spec §4.A: "confirms that this
// public key belongs to a principal whose uid equals header.userid by
// consulting a local keystore keyed by uid").
type Keystore interface {
	// Owns reports whether pubkey is a key the given uid is authorized to
	// present.
	Owns(uid int, pubkey [32]byte) bool
}

// MapKeystore is a simple in-memory Keystore, adequate for tests and for
// small static deployments.
type MapKeystore map[int][32]byte

func (m MapKeystore) Owns(uid int, pubkey [32]byte) bool {
	want, ok := m[uid]
	return ok && want == pubkey
}

// curveMechanism implements the "curve" public-key back-end using
// nacl/sign's Ed25519-based detached signatures.
type curveMechanism struct {
	publicKey [32]byte
	secretKey [64]byte
	keystore  Keystore
}

// Curve returns the public-key mechanism. publicKey/secretKey are the
// process's own signing keypair (added to every header this process
// signs with); keystore resolves the (uid -> pubkey) binding checked
// during Verify.
func Curve(publicKey [32]byte, secretKey [64]byte, keystore Keystore) Mechanism {
	return curveMechanism{publicKey: publicKey, secretKey: secretKey, keystore: keystore}
}

func (curveMechanism) Name() string { return "curve" }

// Prep adds curve.pubkey (base64 of the public key) to the header, per
// spec §4.A.
func (c curveMechanism) Prep(h *envelope.Header, _ Flag) error {
	h.Set("curve.pubkey", base64.StdEncoding.EncodeToString(c.publicKey[:]))
	return nil
}

func (c curveMechanism) Sign(prefix []byte) (string, error) {
	signed := sign.Sign(nil, prefix, &c.secretKey)
	// sign.Sign returns the 64-byte signature followed by the message;
	// we only want the detached signature, the leading 64 bytes.
	if len(signed) < sign.Overhead {
		return "", fmt.Errorf("curve: unexpected signed output length")
	}
	detached := signed[:sign.Overhead]
	return base64.StdEncoding.EncodeToString(detached), nil
}

func (c curveMechanism) Verify(h *envelope.Header, prefix []byte, signature string, flags Flag) error {
	if flags&NoVerify != 0 {
		return nil
	}
	pubkeyB64, ok := h.Get("curve.pubkey")
	if !ok {
		return fmt.Errorf("curve: header missing curve.pubkey")
	}
	pubkeyBytes, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil || len(pubkeyBytes) != 32 {
		return fmt.Errorf("curve: malformed curve.pubkey")
	}
	var pubkey [32]byte
	copy(pubkey[:], pubkeyBytes)

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sigBytes) != sign.Overhead {
		return fmt.Errorf("curve: malformed signature")
	}

	reconstructed := make([]byte, 0, len(sigBytes)+len(prefix))
	reconstructed = append(reconstructed, sigBytes...)
	reconstructed = append(reconstructed, prefix...)
	if _, ok := sign.Open(nil, reconstructed, &pubkey); !ok {
		return fmt.Errorf("curve: signature verification failed")
	}

	claimed, ok := h.GetInt("userid")
	if !ok {
		return fmt.Errorf("curve: header has no userid")
	}
	if c.keystore == nil {
		return fmt.Errorf("curve: no keystore configured")
	}
	if !c.keystore.Owns(int(claimed), pubkey) {
		return fmt.Errorf("curve: pubkey is not owned by uid %d", claimed)
	}
	return nil
}
