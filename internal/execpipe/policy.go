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

import "strconv"

// UserAllowed reports whether uid appears in allowedUsers. Entries are
// compared as decimal uid strings: /etc/passwd name resolution is named
// in spec §1 as an out-of-scope external collaborator, so this package
// never maps a username to a uid itself.
func UserAllowed(uid int, allowedUsers []string) bool {
	s := strconv.Itoa(uid)
	for _, u := range allowedUsers {
		if u == s {
			return true
		}
	}
	return false
}

// ShellAllowed reports whether shell is exactly one of allowedShells.
func ShellAllowed(shell string, allowedShells []string) bool {
	for _, s := range allowedShells {
		if s == shell {
			return true
		}
	}
	return false
}
