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

// Package cgroup implements the cgroup-kill reaper of spec §4.F: detect
// the v1/v2 flavor, locate the current process's cgroup, and drain
// lingering processes by repeated signaling plus polling.
//
// Discovery uses golang.org/x/sys/unix directly rather than a higher-level
// cgroup manager library: the algorithm in spec §4.F (statfs magic probes
// across three candidate mountpoints, "/..". prefix-stripping on the
// relative path parsed from /proc/self/cgroup) is bespoke and doesn't
// correspond to a stable operation on any cgroup manager's public API —
// it's the same statfs-probing approach containerd and runc perform
// internally before handing a resolved path to their own managers.
package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sys/unix"

	"github.com/flux-framework/flux-imp/internal/signer"
)

// ArmedPrefix is the cgroup basename prefix that enables the reaper
// (spec §3, §4.F).
const ArmedPrefix = "imp-shell"

// Info is the discovered cgroup location (spec §3).
type Info struct {
	MountDir string // absolute cgroup mount directory
	Path     string // absolute path to this process's cgroup
	Unified  bool   // true for cgroup v2, false for legacy v1
	Armed    bool   // true if the reaper should run on exit
}

func statfsType(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Type), nil
}

// Discover implements the mount discovery algorithm in spec §4.F.
func Discover() (*Info, error) {
	mountDir, unified, err := discoverMount()
	if err != nil {
		return nil, err
	}
	path, err := resolvePath(mountDir, unified)
	if err != nil {
		return nil, fmt.Errorf("cgroup: resolve path under %s: %w", mountDir, err)
	}
	return &Info{
		MountDir: mountDir,
		Path:     path,
		Unified:  unified,
		Armed:    strings.HasPrefix(filepath.Base(path), ArmedPrefix),
	}, nil
}

func discoverMount() (dir string, unified bool, err error) {
	const root = "/sys/fs/cgroup"

	if t, err := statfsType(root); err == nil && t == unix.CGROUP2_SUPER_MAGIC {
		return root, true, nil
	}

	unifiedAlt := filepath.Join(root, "unified")
	if t, err := statfsType(unifiedAlt); err == nil && t == unix.CGROUP2_SUPER_MAGIC {
		return unifiedAlt, true, nil
	}

	if t, err := statfsType(root); err == nil && t == unix.TMPFS_MAGIC {
		systemd := filepath.Join(root, "systemd")
		if t, err := statfsType(systemd); err == nil && t == unix.CGROUP_SUPER_MAGIC {
			return systemd, false, nil
		}
	}

	return "", false, fmt.Errorf("cgroup: no usable cgroup mount found under %s", root)
}

// resolvePath parses /proc/self/cgroup to find this process's path within
// the hierarchy identified by unified, per spec §4.F.
func resolvePath(mountDir string, unified bool) (string, error) {
	f, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		subsys, relpath := parts[1], parts[2]

		match := (unified && subsys == "") || (!unified && subsys == "name=systemd")
		if !match {
			continue
		}
		relpath = stripContainerPrefix(relpath)
		return filepath.Join(mountDir, relpath), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no matching line in /proc/self/cgroup")
}

// stripContainerPrefix removes leading "/.." segments that appear when
// running inside a container whose cgroup root is nested (spec §4.F).
func stripContainerPrefix(relpath string) string {
	for strings.HasPrefix(relpath, "/..") {
		relpath = strings.TrimPrefix(relpath, "/..")
	}
	if relpath == "" {
		return "/"
	}
	return relpath
}

// Drain sends sig to every pid in <path>/cgroup.procs other than the
// current process. It returns the count signaled, or -1 if at least one
// send was attempted and none succeeded (spec §4.F, §7: io-failed here is
// partially recoverable — each failed send is logged and the drain
// continues; only total failure is reported).
func Drain(path string, sig syscall.Signal) (int, error) {
	pids, err := readProcs(path)
	if err != nil {
		return 0, fmt.Errorf("cgroup: read procs: %w", err)
	}
	self := os.Getpid()

	sent, attempted, lastErr := 0, 0, error(nil)
	for _, pid := range pids {
		if pid == self {
			continue
		}
		attempted++
		if err := unix.Kill(pid, sig); err != nil {
			log.Warn("cgroup: signal send failed", "pid", pid, "sig", int(sig), "err", err)
			lastErr = err
			continue
		}
		sent++
	}
	if attempted > 0 && sent == 0 {
		return -1, fmt.Errorf("%w: all %d cgroup signal sends failed: %v", signer.ErrIOFailed, attempted, lastErr)
	}
	return sent, nil
}

func readProcs(path string) ([]int, error) {
	f, err := os.Open(filepath.Join(path, "cgroup.procs"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, n)
	}
	return pids, sc.Err()
}
