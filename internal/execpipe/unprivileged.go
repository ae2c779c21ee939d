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
	"github.com/flux-framework/flux-imp/internal/config"
	"github.com/flux-framework/flux-imp/internal/privsep"
)

// Action is what the unprivileged half should do next, decided by
// Unprivileged without performing any I/O or privilege operations itself
// so the policy is unit-testable in isolation.
type Action int

const (
	// ActionDeny means policy rejected the request; exit 1, nothing forked.
	ActionDeny Action = iota
	// ActionSend means a privileged parent is present: send req over the
	// privsep channel and exit 0.
	ActionSend
	// ActionExecDirect means no privileged parent is present and
	// allow-unprivileged-exec is set: exec the shell directly as the
	// caller.
	ActionExecDirect
)

// Decision is the result of the unprivileged half's "check" state (spec
// §4.E).
type Decision struct {
	Action  Action
	Request privsep.ExecRequest
}

// Unprivileged implements the unprivileged half's "check" state and the
// branch that follows it (spec §4.E steps 3-5); config loading and input
// reading happen in the caller. envelope is the already-read "J" value; hasParent
// is true when running setuid (a privileged parent is present to hand the
// bundle to).
func Unprivileged(callerUID int, envelope, shellPath string, args []string, cfg config.Exec, hasParent bool) Decision {
	if !UserAllowed(callerUID, cfg.AllowedUsers) {
		return Decision{Action: ActionDeny}
	}

	req := privsep.ExecRequest{J: envelope, ShellPath: shellPath, Args: args}

	if hasParent {
		if !ShellAllowed(shellPath, cfg.AllowedShells) {
			return Decision{Action: ActionDeny}
		}
		return Decision{Action: ActionSend, Request: req}
	}

	if !cfg.AllowUnprivilegedExec {
		return Decision{Action: ActionDeny}
	}
	return Decision{Action: ActionExecDirect, Request: req}
}
