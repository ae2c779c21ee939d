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

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/flux-framework/flux-imp/internal/config"
)

// These exercise the non-setuid path directly (runUnprivilegedOnly),
// which needs no root privileges: the test binary's own uid stands in
// for "the caller".
func TestRunUnprivilegedOnlyDeniesWithoutOptIn(t *testing.T) {
	cfg := config.Exec{AllowedUsers: []string{strconv.Itoa(os.Getuid())}}
	code := runUnprivilegedOnly(os.Getuid(), "/bin/true", nil, cfg)
	if code == 0 {
		t.Fatal("expected a nonzero exit without allow-unprivileged-exec")
	}
}

func TestRunUnprivilegedOnlyDeniesUnknownUser(t *testing.T) {
	cfg := config.Exec{AllowedUsers: []string{"99999999"}, AllowUnprivilegedExec: true}
	code := runUnprivilegedOnly(os.Getuid(), "/bin/true", nil, cfg)
	if code == 0 {
		t.Fatal("expected a nonzero exit for a caller not in allowed-users")
	}
}

func TestDrainCgroupIsSafeWithoutCgroupfs(t *testing.T) {
	// On a host with no reachable /sys/fs/cgroup this should report an
	// error rather than panic; it's acceptable either way here, the point
	// is that it returns instead of blocking.
	_ = drainCgroup()
}

func TestConfigLoadFromEnvMissing(t *testing.T) {
	t.Setenv(config.EnvPattern, filepath.Join(t.TempDir(), "nomatch-*.toml"))
	if _, err := config.LoadFromEnv(); err == nil {
		t.Fatal("expected an error for a pattern matching nothing")
	}
}
