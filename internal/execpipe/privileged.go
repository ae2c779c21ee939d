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
	"os/exec"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/flux-framework/flux-imp/internal/config"
	"github.com/flux-framework/flux-imp/internal/privsep"
	"github.com/flux-framework/flux-imp/internal/signer"
)

// PrivilegedDeps collects everything RunPrivileged needs beyond pure
// policy, each swappable so the state machine is testable without a real
// fork, a real PAM stack, or a real cgroup.
type PrivilegedDeps struct {
	Engine      *signer.Engine
	Cfg         config.Exec
	WaitChild   func() (exitCode int, err error)
	OpenSession SessionOpener
	DrainCgroup func() error // no-op if the reaper isn't armed
	Spawn       func(shellPath string, args []string, uid, gid uint32, groups []uint32) *exec.Cmd
	Log         log.Logger
}

func (d *PrivilegedDeps) fillDefaults() {
	if d.OpenSession == nil {
		d.OpenSession = DefaultSessionOpener
	}
	if d.DrainCgroup == nil {
		d.DrainCgroup = func() error { return nil }
	}
	if d.Spawn == nil {
		d.Spawn = SpawnShell
	}
	if d.Log == nil {
		d.Log = log.New("component", "execpipe", "half", "privileged")
	}
}

// RunPrivileged implements the privileged half's state machine (spec
// §4.E steps 1-8) and returns the IMP's final process exit code.
func RunPrivileged(req privsep.ExecRequest, deps PrivilegedDeps) int {
	deps.fillDefaults()

	res, err := deps.Engine.Unwrap(req.J, 0)
	if err != nil {
		deps.Log.Error("envelope verification failed", "err", err)
		return ExitGenericError
	}
	if res.UserID == 0 {
		deps.Log.Error("refusing to launch a shell as uid 0")
		return ExitGenericError
	}
	if !ShellAllowed(req.ShellPath, deps.Cfg.AllowedShells) {
		deps.Log.Error("shell is not in allowed-shells", "shell", req.ShellPath)
		return ExitGenericError
	}

	if code, err := deps.WaitChild(); err != nil || code != 0 {
		deps.Log.Error("unprivileged child exited abnormally", "code", code, "err", err)
		return ExitGenericError
	}

	var session Session
	if deps.Cfg.PAMSupport {
		uidStr := strconv.Itoa(res.UserID)
		s, err := deps.OpenSession(uidStr)
		if err != nil {
			deps.Log.Error("pam session open failed", "err", err)
			return ExitGenericError
		}
		session = s
	}
	if session != nil {
		defer session.Close()
	}

	gid, err := PrimaryGroup(strconv.Itoa(res.UserID))
	if err != nil {
		deps.Log.Error("resolving primary group failed", "err", err)
		return ExitGenericError
	}
	groups, err := SupplementaryGroups(strconv.Itoa(res.UserID))
	if err != nil {
		deps.Log.Error("resolving supplementary groups failed", "err", err)
		return ExitGenericError
	}

	// Install the forwarding handlers before starting the child (spec
	// §4.E step 6 / §5): from this point on, a forwarded signal is queued
	// by the runtime instead of falling through to its default
	// disposition, which would otherwise kill this process mid-fork and
	// orphan the child.
	stopForwarding := ForwardSignals()

	cmd := deps.Spawn(req.ShellPath, req.Args, uint32(res.UserID), gid, groups)
	if err := cmd.Start(); err != nil {
		stopForwarding()
		code := ExecFailureCode(err)
		deps.Log.Error("exec of job shell failed", "err", err, "exit", code)
		return code
	}

	SetForwardingTarget(cmd.Process.Pid)
	waitErr := cmd.Wait()
	stopForwarding()

	if err := deps.DrainCgroup(); err != nil {
		deps.Log.Warn("cgroup drain did not fully complete", "err", err)
	}

	return WaitExitCode(waitErr)
}
