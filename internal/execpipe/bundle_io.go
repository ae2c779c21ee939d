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

// Package execpipe implements the privilege-separated exec pipeline of
// spec §4.E: input acquisition, signature verification, user switch,
// fork/exec, signal forwarding, wait.
package execpipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// execInput is the JSON object read from stdin or the exec helper (spec
// §6): {"J": "<envelope>"}.
type execInput struct {
	J string `json:"J"`
}

// ReadInput implements spec §4.E state "input": if helperCmd is
// non-empty, it is run and its stdout is parsed as JSON (a non-zero exit
// aborts); otherwise stdin is parsed directly.
func ReadInput(stdin io.Reader, helperCmd string) (string, error) {
	var r io.Reader = stdin
	if helperCmd != "" {
		out, err := runHelper(helperCmd)
		if err != nil {
			return "", err
		}
		r = bytes.NewReader(out)
	}

	dec := json.NewDecoder(r)
	var in execInput
	if err := dec.Decode(&in); err != nil {
		return "", fmt.Errorf("execpipe: malformed input JSON: %w", err)
	}
	if in.J == "" {
		return "", fmt.Errorf("execpipe: input JSON missing \"J\"")
	}
	return in.J, nil
}

func runHelper(helperCmd string) ([]byte, error) {
	fields := strings.Fields(helperCmd)
	if len(fields) == 0 {
		return nil, fmt.Errorf("execpipe: empty FLUX_IMP_EXEC_HELPER")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("execpipe: exec helper %q failed: %w", helperCmd, err)
	}
	return out, nil
}
