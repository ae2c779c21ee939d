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

// Package reexec is a thin wrapper around docker/docker/pkg/reexec,
// mirroring the teacher's own internal/reexec package (used there by
// cmd/clef's black-box tests, and here to actually spawn the
// unprivileged half of the exec pipeline as a real subprocess connected
// by a pipe rather than a raw fork — see cmd/flux-imp).
package reexec

import (
	dockerreexec "github.com/docker/docker/pkg/reexec"
	"os/exec"
)

// Register records initFunc to run instead of main() when the current
// binary is re-exec'd under name.
func Register(name string, initFunc func()) {
	dockerreexec.Register(name, initFunc)
}

// Init runs the registered initFunc for os.Args[0], if any, and reports
// whether it did. Callers should exit immediately when this returns true.
func Init() bool {
	return dockerreexec.Init()
}

// Command builds an *exec.Cmd that re-execs the current binary with
// args[0] used to select the registered entry point.
func Command(args ...string) *exec.Cmd {
	return dockerreexec.Command(args...)
}
