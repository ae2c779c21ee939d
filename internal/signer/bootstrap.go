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
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flux-framework/flux-imp/internal/signer/mechanism"
)

// KeyMaterial names the on-disk key material used to compile the
// mechanism registry a running IMP or sign invocation needs (spec §4.A
// leaves key provisioning to the deployment; this is this repository's
// file-based convention for it). Leaving MungeSecretFile or
// CurveSecretKeyFile empty skips that mechanism entirely, so a deployment
// that only uses "none" and "curve" need not provision a munge secret.
// Leaving CurveKeystoreDir empty does not skip curve: it is registered
// with an empty keystore, and every curve envelope then fails Verify.
type KeyMaterial struct {
	// MungeSecretFile holds the raw shared-secret bytes used by the
	// in-process LocalDaemon stand-in (see mechanism.LocalDaemon).
	MungeSecretFile string

	// CurveSecretKeyFile holds a raw 64-byte nacl/sign secret key (seed
	// || public key, the same layout golang.org/x/crypto/nacl/sign's
	// GenerateKey produces).
	CurveSecretKeyFile string

	// CurveKeystoreDir holds one file per authorized uid, named by the
	// decimal uid, each containing that uid's base64-encoded 32-byte
	// public key.
	CurveKeystoreDir string
}

// BuildRegistry compiles the mechanism registry named by km. "none" is
// always registered; "munge" is registered only when MungeSecretFile is
// set, and "curve" only when CurveSecretKeyFile is set.
func BuildRegistry(km KeyMaterial) (*mechanism.Registry, error) {
	mechs := []mechanism.Mechanism{mechanism.None()}

	if km.MungeSecretFile != "" {
		secret, err := os.ReadFile(km.MungeSecretFile)
		if err != nil {
			return nil, fmt.Errorf("signer: read munge secret: %w", err)
		}
		daemon := mechanism.NewLocalDaemon(secret, os.Getuid)
		mechs = append(mechs, mechanism.Munge(daemon))
	}

	if km.CurveSecretKeyFile != "" {
		raw, err := os.ReadFile(km.CurveSecretKeyFile)
		if err != nil {
			return nil, fmt.Errorf("signer: read curve secret key: %w", err)
		}
		if len(raw) != 64 {
			return nil, fmt.Errorf("signer: curve secret key must be 64 bytes, got %d", len(raw))
		}
		var secretKey [64]byte
		copy(secretKey[:], raw)
		var publicKey [32]byte
		copy(publicKey[:], raw[32:])

		keystore, err := loadKeystore(km.CurveKeystoreDir)
		if err != nil {
			return nil, err
		}
		mechs = append(mechs, mechanism.Curve(publicKey, secretKey, keystore))
	}

	return mechanism.NewRegistry(mechs...), nil
}

func loadKeystore(dir string) (mechanism.MapKeystore, error) {
	ks := make(mechanism.MapKeystore)
	if dir == "" {
		return ks, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("signer: read keystore dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		uid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("signer: read keystore entry %s: %w", e.Name(), err)
		}
		pubkeyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(pubkeyBytes) != 32 {
			return nil, fmt.Errorf("signer: malformed keystore entry for uid %d", uid)
		}
		var pubkey [32]byte
		copy(pubkey[:], pubkeyBytes)
		ks[uid] = pubkey
	}
	return ks, nil
}
