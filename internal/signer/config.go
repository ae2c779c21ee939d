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
	"fmt"

	"github.com/flux-framework/flux-imp/internal/signer/mechanism"
)

// disableExpirySentinel is the magic max-ttl value tests use to turn off
// expiry checking entirely (spec §3).
const disableExpirySentinel = -100

// Config is the validated [sign] configuration subtree (spec §3, §6).
type Config struct {
	MaxTTL       int
	DefaultType  string
	AllowedTypes []string
}

// Validate checks Config against the init-time rules in spec §4.C and
// §8, given the set of mechanisms actually compiled in.
func (c Config) Validate(registry *mechanism.Registry) error {
	if c.MaxTTL != disableExpirySentinel && c.MaxTTL <= 0 {
		return fmt.Errorf("%w: max-ttl must be positive (or %d to disable expiry), got %d",
			ErrConfigInvalid, disableExpirySentinel, c.MaxTTL)
	}
	if len(c.AllowedTypes) == 0 {
		return fmt.Errorf("%w: allowed-types must not be empty", ErrConfigInvalid)
	}
	seen := make(map[string]bool, len(c.AllowedTypes))
	for _, name := range c.AllowedTypes {
		if name == "" {
			return fmt.Errorf("%w: allowed-types contains an empty entry", ErrConfigInvalid)
		}
		if !registry.Known(name) {
			return fmt.Errorf("%w: allowed-types names unknown mechanism %q", ErrConfigInvalid, name)
		}
		seen[name] = true
	}
	if c.DefaultType == "" {
		return fmt.Errorf("%w: default-type must be set", ErrConfigInvalid)
	}
	if !registry.Known(c.DefaultType) {
		return fmt.Errorf("%w: default-type names unknown mechanism %q", ErrConfigInvalid, c.DefaultType)
	}
	return nil
}

// allows reports whether name is in AllowedTypes.
func (c Config) allows(name string) bool {
	for _, n := range c.AllowedTypes {
		if n == name {
			return true
		}
	}
	return false
}
