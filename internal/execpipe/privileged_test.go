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
	"testing"

	"github.com/flux-framework/flux-imp/internal/config"
	"github.com/flux-framework/flux-imp/internal/privsep"
	"github.com/flux-framework/flux-imp/internal/signer"
	"github.com/flux-framework/flux-imp/internal/signer/mechanism"
)

func newTestEngine(t *testing.T) *signer.Engine {
	t.Helper()
	registry := mechanism.NewRegistry(mechanism.None())
	cfg := signer.Config{MaxTTL: 30, DefaultType: "none", AllowedTypes: []string{"none"}}
	eng, err := signer.NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func noopSpawn(shellPath string, args []string, uid, gid uint32, groups []uint32) *exec.Cmd {
	return exec.Command("true")
}

func TestRunPrivilegedRejectsRootTarget(t *testing.T) {
	eng := newTestEngine(t)
	env, err := eng.Wrap(0, nil, "none")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	req := privsep.ExecRequest{J: env, ShellPath: "/bin/true"}
	deps := PrivilegedDeps{
		Engine: eng,
		Cfg:    config.Exec{AllowedShells: []string{"/bin/true"}},
		WaitChild: func() (int, error) { return 0, nil },
		Spawn:     noopSpawn,
	}
	if code := RunPrivileged(req, deps); code != ExitGenericError {
		t.Fatalf("got %d want %d", code, ExitGenericError)
	}
}

func TestRunPrivilegedRejectsDisallowedShell(t *testing.T) {
	eng := newTestEngine(t)
	env, err := eng.Wrap(1000, nil, "none")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	req := privsep.ExecRequest{J: env, ShellPath: "/bin/zsh"}
	deps := PrivilegedDeps{
		Engine:    eng,
		Cfg:       config.Exec{AllowedShells: []string{"/bin/true"}},
		WaitChild: func() (int, error) { return 0, nil },
		Spawn:     noopSpawn,
	}
	if code := RunPrivileged(req, deps); code != ExitGenericError {
		t.Fatalf("got %d want %d", code, ExitGenericError)
	}
}

func TestRunPrivilegedRejectsBadChildExit(t *testing.T) {
	eng := newTestEngine(t)
	env, err := eng.Wrap(1000, nil, "none")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	req := privsep.ExecRequest{J: env, ShellPath: "/bin/true"}
	deps := PrivilegedDeps{
		Engine:    eng,
		Cfg:       config.Exec{AllowedShells: []string{"/bin/true"}},
		WaitChild: func() (int, error) { return 1, nil },
		Spawn:     noopSpawn,
	}
	if code := RunPrivileged(req, deps); code != ExitGenericError {
		t.Fatalf("got %d want %d", code, ExitGenericError)
	}
}

func TestRunPrivilegedRejectsBadSignature(t *testing.T) {
	eng := newTestEngine(t)
	req := privsep.ExecRequest{J: "not-a-real-envelope", ShellPath: "/bin/true"}
	deps := PrivilegedDeps{
		Engine:    eng,
		Cfg:       config.Exec{AllowedShells: []string{"/bin/true"}},
		WaitChild: func() (int, error) { return 0, nil },
		Spawn:     noopSpawn,
	}
	if code := RunPrivileged(req, deps); code != ExitGenericError {
		t.Fatalf("got %d want %d", code, ExitGenericError)
	}
}
