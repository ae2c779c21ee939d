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
	"syscall"
	"time"
)

// maxPollInterval is the upper bound on sleep between drain probes (spec
// §4.F: "sleeps up to one second").
const maxPollInterval = time.Second

// backoff is the short extra pause spec §4.F calls for "when the sleep is
// interrupted, to let reaping settle". Go's time.Sleep isn't itself
// interruptible by signals the way usleep(3) is, so there is no EINTR
// branch to special-case here; the fixed backoff after every probe
// reproduces the intended pacing (never hammer cgroup.procs in a tight
// loop) without depending on libc signal semantics.
const backoff = 50 * time.Millisecond

// WaitForEmpty polls path's cgroup.procs (via repeated zero-signal Drain
// probes) until it reports no pids other than the caller, per spec §4.F.
func WaitForEmpty(path string) error {
	for {
		n, _ := Drain(path, syscall.Signal(0))
		if n == 0 {
			return nil
		}
		// n == -1 means every listed pid failed to answer signal 0 (most
		// likely already exited); n > 0 means pids are still live. Either
		// way cgroup.procs hasn't gone empty yet, so keep polling.
		time.Sleep(maxPollInterval)
		time.Sleep(backoff)
	}
}
