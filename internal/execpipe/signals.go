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

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// ForwardedSignals is the fixed set spec §4.E step 8 names.
var ForwardedSignals = []os.Signal{
	syscall.SIGTERM,
	syscall.SIGINT,
	syscall.SIGHUP,
	syscall.SIGCONT,
	syscall.SIGALRM,
	syscall.SIGWINCH,
	syscall.SIGTTIN,
	syscall.SIGTTOU,
}

// targetPID is the single process-wide cell holding the pid (or, for a
// negative value, the negated pgid) signals get forwarded to. Only one
// exec pipeline is ever in flight per process (spec §9 design note), so a
// single atomic slot is sufficient; it replaces what would otherwise be
// file-scope mutable state touched from a signal handler.
var targetPID atomic.Int64

// SetForwardingTarget records the pid (or -pgid) that ForwardSignals
// should relay incoming signals to.
func SetForwardingTarget(pid int) {
	targetPID.Store(int64(pid))
}

// targetPollInterval is how often waitForTarget re-checks for
// SetForwardingTarget while a signal received before the target pid is
// known waits; it keeps waiting until the stop function is called.
const targetPollInterval = time.Millisecond

// ForwardSignals installs handlers for the forwarded set and relays each
// one to the process or process group recorded via SetForwardingTarget.
// It returns a stop function that must be called once the child has been
// waited on, restoring default signal handling.
//
// Per spec §4.E step 6 / §5, the parent must block all signals across the
// fork and only unblock/install forwarding after, "so they cannot be lost
// to the default disposition": callers must call ForwardSignals *before*
// starting the child (before the fork, in the spec's process model), not
// after. signal.Notify takes effect synchronously, so from that point on
// the runtime queues the forwarded set onto this package's channel instead
// of ever applying the default disposition (which, for SIGTERM/SIGINT,
// would otherwise kill this process before the child is even known,
// orphaning it). A signal that arrives before SetForwardingTarget has run
// is not dropped: the relay goroutine waits for the target to appear
// before delivering it, rather than discarding it on a one-shot check.
func ForwardSignals() func() {
	ch := make(chan os.Signal, len(ForwardedSignals))
	signal.Notify(ch, ForwardedSignals...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				unixSig, ok := sig.(syscall.Signal)
				if !ok {
					continue
				}
				pid := waitForTarget(done)
				if pid == 0 {
					continue
				}
				// pid may be negative (a process group); syscall.Kill
				// treats that transparently, per spec §4.E.
				_ = syscall.Kill(pid, unixSig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// waitForTarget blocks until SetForwardingTarget has recorded a non-zero
// pid or done is closed (in which case it returns 0, meaning "give up").
func waitForTarget(done <-chan struct{}) int {
	for {
		if pid := int(targetPID.Load()); pid != 0 {
			return pid
		}
		select {
		case <-done:
			return 0
		case <-time.After(targetPollInterval):
		}
	}
}
