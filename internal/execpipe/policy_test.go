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

import "testing"

func TestUserAllowed(t *testing.T) {
	allowed := []string{"1000", "1001"}
	if !UserAllowed(1000, allowed) {
		t.Fatal("expected 1000 to be allowed")
	}
	if UserAllowed(2000, allowed) {
		t.Fatal("expected 2000 to be denied")
	}
}

func TestShellAllowed(t *testing.T) {
	allowed := []string{"/bin/sh", "/bin/bash"}
	if !ShellAllowed("/bin/sh", allowed) {
		t.Fatal("expected /bin/sh to be allowed")
	}
	if ShellAllowed("/bin/zsh", allowed) {
		t.Fatal("expected /bin/zsh to be denied")
	}
}
