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
	"os"
	"os/exec"
	"syscall"
	"testing"
)

func TestWaitExitCodeSuccess(t *testing.T) {
	if code := WaitExitCode(nil); code != 0 {
		t.Fatalf("got %d want 0", code)
	}
}

func TestWaitExitCodeNonZero(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 3")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected sh -c 'exit 3' to fail")
	}
	if code := WaitExitCode(err); code != 3 {
		t.Fatalf("got %d want 3", code)
	}
}

func TestWaitExitCodeSignaled(t *testing.T) {
	cmd := exec.Command("sh", "-c", "kill -TERM $$; sleep 5")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected the shell to die from SIGTERM")
	}
	if code := WaitExitCode(err); code != 128+int(syscall.SIGTERM) {
		t.Fatalf("got %d want %d", code, 128+int(syscall.SIGTERM))
	}
}

func TestExecFailureCodeGeneric(t *testing.T) {
	_, err := exec.LookPath("/definitely/not/a/real/path/xyz")
	if err == nil {
		t.Skip("unexpectedly found a binary at that path")
	}
	cmd := exec.Command("/definitely/not/a/real/path/xyz")
	startErr := cmd.Start()
	if startErr == nil {
		t.Fatal("expected Start to fail for a missing binary")
	}
	if code := ExecFailureCode(startErr); code != ExitExecFailure {
		t.Fatalf("got %d want %d", code, ExitExecFailure)
	}
}

func TestExecFailureCodePermission(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/not-executable"
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(path)
	startErr := cmd.Start()
	if startErr == nil {
		t.Skip("environment allowed executing a non-executable file")
	}
	if code := ExecFailureCode(startErr); code != ExitEACCES {
		t.Fatalf("got %d want %d", code, ExitEACCES)
	}
}
