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

package execpipe

import "errors"

// ErrPAMUnavailable is returned by OpenSession when this binary was not
// built with PAM support. No PAM binding ships anywhere in this
// repository's dependency corpus (see DESIGN.md), so pam-support is
// carried as the narrow interface below rather than a vendored or
// hand-stubbed cgo binding.
var ErrPAMUnavailable = errors.New("execpipe: this build has no PAM support")

// Session is an open PAM session for a target user (spec §4.E step 5).
type Session interface {
	Close() error
}

// SessionOpener opens a PAM session for user. Production builds with PAM
// support link a real implementation in; the default below always
// reports unavailability, so RunPrivileged rejects every request while
// pam-support is set and no other opener is supplied. With pam-support
// unset no session is opened at all.
type SessionOpener func(user string) (Session, error)

// DefaultSessionOpener is used when the caller does not supply one.
var DefaultSessionOpener SessionOpener = func(string) (Session, error) {
	return nil, ErrPAMUnavailable
}
