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

import "errors"

// Error kinds from spec §7. Public so callers that need to branch on kind
// (rather than parse last_error) can use errors.Is. The sign engine
// (this package) only ever produces the first six; the remaining four are
// declared here too so every package on the privileged exec path
// (internal/execpipe, internal/cgroup, internal/privsep) wraps into the
// same typed set instead of inventing parallel sentinels.
var (
	ErrConfigInvalid        = errors.New("configuration invalid")
	ErrInputMalformed       = errors.New("input malformed")
	ErrPolicyDenied         = errors.New("policy denied")
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrMechanismUnknown     = errors.New("mechanism unknown")
	ErrMechanismUnavailable = errors.New("mechanism unavailable")
	ErrPrivilegeDropFailed  = errors.New("privilege drop failed")
	ErrExecFailed           = errors.New("exec failed")
	ErrIOFailed             = errors.New("io failed")
	ErrResourceExhausted    = errors.New("resource exhausted")
)
