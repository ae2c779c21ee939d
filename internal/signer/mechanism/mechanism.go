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

// Package mechanism implements the three signing back-ends named in spec
// §4.A: none, shared-secret ("munge"), and public-key ("curve"). Back-ends
// are compile-time known, not dynamically registered (spec §9 design
// note): Registry below is a fixed, uniform dispatch surface over a small
// literal set of implementations.
package mechanism

import (
	"github.com/flux-framework/flux-imp/internal/signer/envelope"
)

// Flag mirrors the wrap/unwrap flags threaded through from the sign
// engine (spec §4.C).
type Flag uint32

// NoVerify skips a mechanism's cryptographic check during Verify. It must
// still perform no check silently beyond that: structural header/payload
// validation happens in the envelope codec, upstream of Verify.
const NoVerify Flag = 1 << 0

// Mechanism is the capability set every signing back-end satisfies.
type Mechanism interface {
	// Name is the mechanism's stable registry identifier.
	Name() string

	// Prep adds mechanism-specific fields to the header before signing
	// (e.g. curve.pubkey). Mechanisms with nothing to add may no-op.
	Prep(h *envelope.Header, flags Flag) error

	// Sign computes the signature over prefix, the raw "HEADER.PAYLOAD"
	// bytes (base64 segments and the separating dot, not decoded).
	Sign(prefix []byte) (string, error)

	// Verify checks signature against prefix and the already-parsed
	// header. flags may contain NoVerify, in which case Verify must
	// return nil without performing the cryptographic check.
	Verify(h *envelope.Header, prefix []byte, signature string, flags Flag) error
}

// Registry is a uniform, name-keyed dispatch surface over the compiled-in
// mechanisms.
type Registry struct {
	byName map[string]Mechanism
	order  []string
}

// NewRegistry builds a registry from a fixed list of mechanisms. Order is
// preserved for diagnostics (e.g. listing allowed-types in order).
func NewRegistry(mechanisms ...Mechanism) *Registry {
	r := &Registry{byName: make(map[string]Mechanism, len(mechanisms))}
	for _, m := range mechanisms {
		r.byName[m.Name()] = m
		r.order = append(r.order, m.Name())
	}
	return r
}

// Lookup returns the mechanism registered under name.
func (r *Registry) Lookup(name string) (Mechanism, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names returns the registered mechanism names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Known reports whether name is a registered mechanism. Used by sign
// configuration validation (spec §4.C) to reject unknown default-type and
// allowed-types entries at init.
func (r *Registry) Known(name string) bool {
	_, ok := r.byName[name]
	return ok
}
