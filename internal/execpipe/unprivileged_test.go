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
	"testing"

	"github.com/flux-framework/flux-imp/internal/config"
)

func TestUnprivilegedDeniesUnknownUser(t *testing.T) {
	cfg := config.Exec{AllowedUsers: []string{"1000"}, AllowedShells: []string{"/bin/true"}}
	d := Unprivileged(2000, "env", "/bin/true", nil, cfg, true)
	if d.Action != ActionDeny {
		t.Fatalf("expected deny, got %v", d.Action)
	}
}

func TestUnprivilegedDeniesDisallowedShell(t *testing.T) {
	cfg := config.Exec{AllowedUsers: []string{"1000"}, AllowedShells: []string{"/bin/true"}}
	d := Unprivileged(1000, "env", "/bin/zsh", nil, cfg, true)
	if d.Action != ActionDeny {
		t.Fatalf("expected deny, got %v", d.Action)
	}
}

func TestUnprivilegedSendsWhenParentPresent(t *testing.T) {
	cfg := config.Exec{AllowedUsers: []string{"1000"}, AllowedShells: []string{"/bin/true"}}
	d := Unprivileged(1000, "env", "/bin/true", []string{"/bin/true"}, cfg, true)
	if d.Action != ActionSend {
		t.Fatalf("expected send, got %v", d.Action)
	}
	if d.Request.J != "env" || d.Request.ShellPath != "/bin/true" {
		t.Fatalf("unexpected request: %+v", d.Request)
	}
}

func TestUnprivilegedExecDirectRequiresOptIn(t *testing.T) {
	cfg := config.Exec{AllowedUsers: []string{"1000"}, AllowUnprivilegedExec: false}
	d := Unprivileged(1000, "env", "/bin/true", nil, cfg, false)
	if d.Action != ActionDeny {
		t.Fatalf("expected deny without opt-in, got %v", d.Action)
	}

	cfg.AllowUnprivilegedExec = true
	d = Unprivileged(1000, "env", "/bin/true", nil, cfg, false)
	if d.Action != ActionExecDirect {
		t.Fatalf("expected exec-direct with opt-in, got %v", d.Action)
	}
}
