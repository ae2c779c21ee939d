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

package reexec

import "testing"

func TestInitNoopUnderGoTest(t *testing.T) {
	// The test binary's argv[0] is never a registered reexec name, so
	// Init must report false and let the normal test run proceed.
	if Init() {
		t.Fatal("Init unexpectedly claimed argv[0] as a registered entry point")
	}
}

func TestCommandSetsArgs(t *testing.T) {
	Register("reexec-test-noop", func() {})
	cmd := Command("reexec-test-noop", "a", "b")
	if len(cmd.Args) != 3 || cmd.Args[0] != "reexec-test-noop" {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
}
