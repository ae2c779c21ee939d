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

// Package config loads the [sign] and [exec] TOML subtrees named in spec
// §6, using the teacher's own TOML decoder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// EnvPattern is the environment variable both CLIs read the config glob
// pattern from (spec §6).
const EnvPattern = "FLUX_IMP_CONFIG_PATTERN"

// Sign mirrors the [sign] table.
type Sign struct {
	MaxTTL       int      `toml:"max-ttl"`
	DefaultType  string   `toml:"default-type"`
	AllowedTypes []string `toml:"allowed-types"`
}

// Exec mirrors the [exec] table.
type Exec struct {
	AllowedUsers          []string `toml:"allowed-users"`
	AllowedShells         []string `toml:"allowed-shells"`
	AllowUnprivilegedExec bool     `toml:"allow-unprivileged-exec"`
	PAMSupport            bool     `toml:"pam-support"`
}

// File is the on-disk shape of an IMP/sign configuration file. Multiple
// files matching FLUX_IMP_CONFIG_PATTERN are merged (last-write-wins per
// field) to support the common layout of one file per subsystem.
type File struct {
	Sign Sign `toml:"sign"`
	Exec Exec `toml:"exec"`
}

// LoadGlob reads and merges every file matching pattern, in sorted path
// order, into a single File. pattern is typically the value of
// FLUX_IMP_CONFIG_PATTERN (spec §6).
func LoadGlob(pattern string) (File, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return File{}, fmt.Errorf("config: bad glob pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return File{}, fmt.Errorf("config: no files match pattern %q", pattern)
	}
	sort.Strings(paths)

	var merged File
	for _, p := range paths {
		var f File
		if _, err := toml.DecodeFile(p, &f); err != nil {
			return File{}, fmt.Errorf("config: %s: %w", p, err)
		}
		mergeInto(&merged, f)
	}
	return merged, nil
}

// LoadFromEnv is LoadGlob with the pattern taken from EnvPattern.
func LoadFromEnv() (File, error) {
	pattern := os.Getenv(EnvPattern)
	if pattern == "" {
		return File{}, fmt.Errorf("config: %s is not set", EnvPattern)
	}
	return LoadGlob(pattern)
}

// mergeInto overlays non-zero fields of f onto dst.
func mergeInto(dst *File, f File) {
	if f.Sign.MaxTTL != 0 {
		dst.Sign.MaxTTL = f.Sign.MaxTTL
	}
	if f.Sign.DefaultType != "" {
		dst.Sign.DefaultType = f.Sign.DefaultType
	}
	if len(f.Sign.AllowedTypes) != 0 {
		dst.Sign.AllowedTypes = f.Sign.AllowedTypes
	}
	if len(f.Exec.AllowedUsers) != 0 {
		dst.Exec.AllowedUsers = f.Exec.AllowedUsers
	}
	if len(f.Exec.AllowedShells) != 0 {
		dst.Exec.AllowedShells = f.Exec.AllowedShells
	}
	dst.Exec.AllowUnprivilegedExec = dst.Exec.AllowUnprivilegedExec || f.Exec.AllowUnprivilegedExec
	dst.Exec.PAMSupport = dst.Exec.PAMSupport || f.Exec.PAMSupport
}
