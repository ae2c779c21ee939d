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

// Package privsep implements the byte-framed parent/child channel of spec
// §4.D: the unprivileged child sends one ExecRequest bundle, the
// privileged parent answers with one exit status.
package privsep

import (
	"fmt"
	"strconv"
	"strings"
)

// ExecRequest is the exec request bundle of spec §3: the attested
// envelope, the shell to run, and its argument vector.
type ExecRequest struct {
	J         string   // the full envelope string
	ShellPath string   // absolute path to the job shell binary
	Args      []string // argv, encoded as "args.n" plus "args.0","args.1",...
}

// encode renders req as a flat key/value bundle: "J", "shell_path",
// "args.n" (the argument count), and the arguments under positional keys
// "args.0", "args.1", ….
func (req ExecRequest) encode() []byte {
	var b strings.Builder
	writeKV(&b, "J", req.J)
	writeKV(&b, "shell_path", req.ShellPath)
	writeKV(&b, "args.n", strconv.Itoa(len(req.Args)))
	for i, a := range req.Args {
		writeKV(&b, fmt.Sprintf("args.%d", i), a)
	}
	return []byte(b.String())
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s\t%d\t%s\n", key, len(value), value)
}

// decodeExecRequest parses the wire form produced by encode. Values are
// length-prefixed so they may contain newlines or tabs (argv elements
// commonly do).
func decodeExecRequest(raw []byte) (ExecRequest, error) {
	kv, err := parseLengthPrefixedKV(raw)
	if err != nil {
		return ExecRequest{}, err
	}

	req := ExecRequest{J: kv["J"], ShellPath: kv["shell_path"]}
	n, err := strconv.Atoi(kv["args.n"])
	if err != nil {
		return ExecRequest{}, fmt.Errorf("privsep: malformed args.n: %w", err)
	}
	req.Args = make([]string, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("args.%d", i)
		v, ok := kv[key]
		if !ok {
			return ExecRequest{}, fmt.Errorf("privsep: missing %s", key)
		}
		req.Args[i] = v
	}
	return req, nil
}

func parseLengthPrefixedKV(raw []byte) (map[string]string, error) {
	kv := make(map[string]string)
	rest := raw
	for len(rest) > 0 {
		tab1 := indexByte(rest, '\t')
		if tab1 < 0 {
			return nil, fmt.Errorf("privsep: malformed bundle entry")
		}
		key := string(rest[:tab1])
		rest = rest[tab1+1:]

		tab2 := indexByte(rest, '\t')
		if tab2 < 0 {
			return nil, fmt.Errorf("privsep: malformed bundle entry for key %q", key)
		}
		n, err := strconv.Atoi(string(rest[:tab2]))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("privsep: malformed length for key %q", key)
		}
		rest = rest[tab2+1:]
		if len(rest) < n+1 {
			return nil, fmt.Errorf("privsep: truncated value for key %q", key)
		}
		kv[key] = string(rest[:n])
		rest = rest[n+1:] // skip trailing '\n'
	}
	return kv, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
