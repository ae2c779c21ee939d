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

package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestStripContainerPrefix(t *testing.T) {
	cases := map[string]string{
		"/user.slice/imp-shell-1": "/user.slice/imp-shell-1",
		"/../user.slice/x":        "/user.slice/x",
		"/../../a/b":              "/a/b",
		"/..":                     "/",
	}
	for in, want := range cases {
		if got := stripContainerPrefix(in); got != want {
			t.Errorf("stripContainerPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArmedPrefixDetection(t *testing.T) {
	cases := map[string]bool{
		"/a/b/imp-shell-42": true,
		"/a/b/imp-shell":    true,
		"/a/b/other":        false,
	}
	for path, want := range cases {
		got := filepath_HasArmedBase(path)
		if got != want {
			t.Errorf("armed(%q) = %v, want %v", path, got, want)
		}
	}
}

func filepath_HasArmedBase(path string) bool {
	return len(filepath.Base(path)) >= len(ArmedPrefix) && filepath.Base(path)[:len(ArmedPrefix)] == ArmedPrefix
}

func TestDrainAndWaitForEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}

	// Only the caller's own pid is listed, so Drain must signal nobody
	// and report a count of zero.
	n, err := Drain(dir, syscall.Signal(0))
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 signaled, got %d", n)
	}

	if err := WaitForEmpty(dir); err != nil {
		t.Fatalf("WaitForEmpty: %v", err)
	}
}

func TestDrainMissingDir(t *testing.T) {
	if _, err := Drain(filepath.Join(t.TempDir(), "missing"), syscall.Signal(0)); err == nil {
		t.Fatalf("expected error for missing cgroup.procs")
	}
}
