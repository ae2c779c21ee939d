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
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/flux-framework/flux-imp/internal/signer/envelope"
)

// MungeDaemon is the narrow interface to the external shared-secret
// authentication daemon named in spec §1 and §4.A. Encode hands the
// "HEADER.PAYLOAD" prefix to the daemon and gets back an opaque credential
// carrying the uid the daemon authenticated (mungeMechanism.Sign passes 0
// for the uid argument); Decode submits a credential and recovers the
// prefix bytes plus the daemon-authenticated uid. LocalDaemon below is the
// only implementation in this repository; there is no client for an
// external daemon socket.
type MungeDaemon interface {
	Encode(uid int, prefix []byte) (credential string, err error)
	Decode(credential string) (prefix []byte, uid int, err error)
}

// mungeMechanism implements the "munge" shared-secret back-end.
type mungeMechanism struct {
	daemon MungeDaemon
}

// Munge returns the shared-secret mechanism backed by daemon.
func Munge(daemon MungeDaemon) Mechanism {
	return mungeMechanism{daemon: daemon}
}

func (mungeMechanism) Name() string { return "munge" }

func (mungeMechanism) Prep(*envelope.Header, Flag) error { return nil }

func (m mungeMechanism) Sign(prefix []byte) (string, error) {
	if m.daemon == nil {
		return "", fmt.Errorf("munge: no daemon configured")
	}
	// The uid embedded in the credential is the sign engine's caller uid;
	// the mechanism signs whatever prefix it is given and leaves uid
	// binding to the caller via header.userid, matching spec's
	// "compares the daemon-authenticated uid with header.userid" design.
	cred, err := m.daemon.Encode(0, prefix)
	if err != nil {
		return "", fmt.Errorf("munge: encode: %w", err)
	}
	return cred, nil
}

func (m mungeMechanism) Verify(h *envelope.Header, prefix []byte, signature string, flags Flag) error {
	if flags&NoVerify != 0 {
		return nil
	}
	if m.daemon == nil {
		return fmt.Errorf("munge: no daemon configured")
	}
	recovered, daemonUID, err := m.daemon.Decode(signature)
	if err != nil {
		return fmt.Errorf("munge: decode: %w", err)
	}
	if !bytes.Equal(recovered, prefix) {
		return fmt.Errorf("munge: recovered prefix does not match envelope")
	}
	claimed, ok := h.GetInt("userid")
	if !ok {
		return fmt.Errorf("munge: header has no userid")
	}
	if int64(daemonUID) != claimed {
		return fmt.Errorf("munge: daemon-authenticated uid %d does not match header userid %d", daemonUID, claimed)
	}
	return nil
}

// LocalDaemon is a self-contained MungeDaemon that exercises the munge
// code path without a running munged. Tests use it, and so does
// signer.BuildRegistry whenever a munge secret file is configured. It
// authenticates the *current process's* uid rather than a kernel-verified
// peer credential, so it gives no cross-process proof of identity.
type LocalDaemon struct {
	secret []byte
	uid    func() int
}

// NewLocalDaemon builds a LocalDaemon keyed by secret, authenticating
// every Encode call as the uid returned by uidFn.
func NewLocalDaemon(secret []byte, uidFn func() int) *LocalDaemon {
	return &LocalDaemon{secret: secret, uid: uidFn}
}

func (d *LocalDaemon) tag(uid int, prefix []byte) ([]byte, error) {
	h, err := blake2b.New256(d.secret)
	if err != nil {
		return nil, err
	}
	var uidBuf [8]byte
	binary.BigEndian.PutUint64(uidBuf[:], uint64(uid))
	h.Write(uidBuf[:])
	h.Write(prefix)
	return h.Sum(nil), nil
}

func (d *LocalDaemon) Encode(_ int, prefix []byte) (string, error) {
	uid := d.uid()
	tag, err := d.tag(uid, prefix)
	if err != nil {
		return "", err
	}
	var uidBuf [8]byte
	binary.BigEndian.PutUint64(uidBuf[:], uint64(uid))
	body := append(append(tag, uidBuf[:]...), prefix...)
	return base64.RawURLEncoding.EncodeToString(body), nil
}

func (d *LocalDaemon) Decode(credential string) ([]byte, int, error) {
	body, err := base64.RawURLEncoding.DecodeString(credential)
	if err != nil {
		return nil, 0, fmt.Errorf("malformed credential: %w", err)
	}
	if len(body) < blake2b.Size256+8 {
		return nil, 0, fmt.Errorf("credential too short")
	}
	tag := body[:blake2b.Size256]
	uid := int(binary.BigEndian.Uint64(body[blake2b.Size256 : blake2b.Size256+8]))
	prefix := body[blake2b.Size256+8:]

	want, err := d.tag(uid, prefix)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(tag, want) {
		return nil, 0, fmt.Errorf("credential authentication failed")
	}
	return prefix, uid, nil
}
