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
	"fmt"

	"github.com/flux-framework/flux-imp/internal/signer/envelope"
)

// noneMechanism is the no-op back-end used for replay and integration
// tests. Production configurations must keep "none" out of allowed-types;
// nothing in this repository enforces that: neither this type nor
// signer.Config.Validate rejects "none" in allowed-types.
type noneMechanism struct{}

// None returns the "none" mechanism.
func None() Mechanism { return noneMechanism{} }

const noneSignature = "none"

func (noneMechanism) Name() string { return "none" }

func (noneMechanism) Prep(*envelope.Header, Flag) error { return nil }

func (noneMechanism) Sign([]byte) (string, error) { return noneSignature, nil }

func (noneMechanism) Verify(_ *envelope.Header, _ []byte, signature string, flags Flag) error {
	if flags&NoVerify != 0 {
		return nil
	}
	if signature != noneSignature {
		return fmt.Errorf("none: signature %q is not %q", signature, noneSignature)
	}
	return nil
}
