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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/flux-framework/flux-imp/internal/signer"
)

// ExitEACCES and ExitExecFailure are the exit codes spec §6 assigns to a
// failed execvp: 126 when the target exists but isn't runnable by the
// target user, 127 for any other failure (path missing, not a file, ...).
// Spec §9 calls out a known bug in the original implementation where the
// 126 assignment was silently overwritten by 127 due to a missing
// `else`; this package keeps the two branches explicit and mutually
// exclusive instead.
const (
	ExitEACCES       = 126
	ExitExecFailure  = 127
	ExitGenericError = 1
)

// PrimaryGroup resolves uid's primary gid via the standard library's
// passwd lookup (the IMP still needs this one passwd fact to build a
// Credential; the broader "/etc/passwd lookups" collaborator named
// out-of-scope in spec §1 refers to username<->uid resolution for policy
// decisions, which this package never performs).
func PrimaryGroup(uidStr string) (uint32, error) {
	u, err := user.LookupId(uidStr)
	if err != nil {
		return 0, fmt.Errorf("%w: lookup uid %s: %v", signer.ErrPrivilegeDropFailed, uidStr, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed gid for uid %s: %v", signer.ErrPrivilegeDropFailed, uidStr, err)
	}
	return uint32(gid), nil
}

// SupplementaryGroups resolves the OS supplementary group ids for uid,
// used to populate syscall.Credential.Groups during the irrevocable
// privilege switch (spec §4.E step 7).
func SupplementaryGroups(uidStr string) ([]uint32, error) {
	u, err := user.LookupId(uidStr)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup uid %s: %v", signer.ErrPrivilegeDropFailed, uidStr, err)
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("%w: lookup groups for uid %s: %v", signer.ErrPrivilegeDropFailed, uidStr, err)
	}
	out := make([]uint32, 0, len(gids))
	for _, g := range gids {
		n, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

// SpawnShell forks and execs the job shell under the target uid/gid with
// the given supplementary groups, chdir'd to "/" (spec §4.E step 7). The
// privilege switch is irrevocable because it happens inside the
// kernel's fork+exec sequence via syscall.Credential — no Go code ever
// runs as the job shell's process under the parent's privileges.
func SpawnShell(shellPath string, args []string, uid, gid uint32, groups []uint32) *exec.Cmd {
	cmd := exec.Command(shellPath, args...)
	cmd.Dir = "/"
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid:    uid,
			Gid:    gid,
			Groups: groups,
		},
		Setpgid: true,
	}
	return cmd
}

// ExecFailureCode classifies a failed Cmd.Start()/exec error into the
// 126/127 split named in spec §6.
func ExecFailureCode(err error) int {
	if errors.Is(err, os.ErrPermission) {
		return ExitEACCES
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.EACCES) {
		return ExitEACCES
	}
	return ExitExecFailure
}

// WaitExitCode translates a Cmd.Wait() result into the final IMP exit
// code per spec §4.E step 8: the child's own exit code, 128+signum if it
// died from a signal, or 1 for any other wait failure.
func WaitExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return ExitGenericError
}
