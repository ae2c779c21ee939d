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

// Command flux-imp is the privilege-separated job-shell launcher of spec
// §4.E. It is normally installed setuid-root; "flux-imp exec <shell>
// [args...]" reads a signed envelope from stdin (or FLUX_IMP_EXEC_HELPER),
// re-execs itself as an unprivileged child to perform the untrusted-input
// half of the pipeline, and, in the parent, verifies the envelope and
// execs the job shell under the target uid.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/flux-framework/flux-imp/internal/cgroup"
	"github.com/flux-framework/flux-imp/internal/config"
	"github.com/flux-framework/flux-imp/internal/execpipe"
	"github.com/flux-framework/flux-imp/internal/privsep"
	"github.com/flux-framework/flux-imp/internal/reexec"
	"github.com/flux-framework/flux-imp/internal/signer"
)

// childName is the argv[0] internal/reexec dispatches to childMain.
const childName = "flux-imp-unprivileged-child"

var (
	gitCommit = ""
	gitDate   = ""
)

func init() {
	reexec.Register(childName, childMain)
}

func main() {
	if reexec.Init() {
		return
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		os.Exit(1)
	}
}

var app = &cli.App{
	Name:    "flux-imp",
	Usage:   "privilege-separated job-shell launcher",
	Version: fmt.Sprintf("%s-%s", gitCommit, gitDate),
	Commands: []*cli.Command{
		{
			Name:      "exec",
			Usage:     "verify a signed envelope and exec the job shell as its target user",
			ArgsUsage: "<shell_path> [args...]",
			Action: func(c *cli.Context) error {
				if code := runExec(c); code != 0 {
					return cli.Exit("", code)
				}
				return nil
			},
		},
	},
}

func runExec(c *cli.Context) int {
	args := c.Args().Slice()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "flux-imp: exec requires a shell path")
		return execpipe.ExitGenericError
	}
	shellPath, shellArgs := args[0], args[1:]

	callerUID, callerGID := os.Getuid(), os.Getgid()
	setuidMode := os.Geteuid() == 0 && callerUID != 0

	cfgFile, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		return execpipe.ExitGenericError
	}

	if !setuidMode {
		return runUnprivilegedOnly(callerUID, shellPath, shellArgs, cfgFile.Exec)
	}
	return runSetuidParent(callerUID, callerGID, shellPath, shellArgs, cfgFile)
}

// runUnprivilegedOnly handles the case with no privileged parent to hand
// off to: either exec the shell directly (if allow-unprivileged-exec is
// set) or deny (spec §4.E "check" state, hasParent=false branch).
func runUnprivilegedOnly(callerUID int, shellPath string, args []string, execCfg config.Exec) int {
	envelope, err := execpipe.ReadInput(os.Stdin, os.Getenv("FLUX_IMP_EXEC_HELPER"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		return execpipe.ExitGenericError
	}
	decision := execpipe.Unprivileged(callerUID, envelope, shellPath, args, execCfg, false)
	if decision.Action != execpipe.ActionExecDirect {
		fmt.Fprintln(os.Stderr, "flux-imp: request denied by policy")
		return execpipe.ExitGenericError
	}

	cmd := exec.Command(shellPath, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return execpipe.ExecFailureCode(err)
	}
	return execpipe.WaitExitCode(cmd.Wait())
}

// runSetuidParent implements the privileged half of the model: fork a
// dropped-privilege child (self re-exec'd under childName) to read input
// and run policy, then verify and exec the job shell here at full
// privilege (spec §4.D, §4.E).
func runSetuidParent(callerUID, callerGID int, shellPath string, shellArgs []string, cfgFile config.File) int {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp: create pipe:", err)
		return execpipe.ExitGenericError
	}

	childArgs := append([]string{childName, shellPath}, shellArgs...)
	cmd := reexec.Command(childArgs...)
	cmd.ExtraFiles = []*os.File{reqW}
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uint32(callerUID), Gid: uint32(callerGID)},
	}
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp: spawn unprivileged child:", err)
		return execpipe.ExitGenericError
	}
	reqW.Close()

	ch := privsep.New(reqR, nil)
	req, err := ch.ReceiveRequest()
	if err != nil {
		_ = cmd.Wait()
		fmt.Fprintln(os.Stderr, "flux-imp: receive request:", err)
		return execpipe.ExitGenericError
	}

	registry, err := signer.BuildRegistry(signer.KeyMaterial{
		MungeSecretFile:    os.Getenv("FLUX_IMP_MUNGE_SECRET_FILE"),
		CurveSecretKeyFile: os.Getenv("FLUX_IMP_CURVE_SECRET_KEY_FILE"),
		CurveKeystoreDir:   os.Getenv("FLUX_IMP_CURVE_KEYSTORE_DIR"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		return execpipe.ExitGenericError
	}
	engCfg := signer.Config{
		MaxTTL:       cfgFile.Sign.MaxTTL,
		DefaultType:  cfgFile.Sign.DefaultType,
		AllowedTypes: cfgFile.Sign.AllowedTypes,
	}
	eng, err := signer.NewEngine(engCfg, registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		return execpipe.ExitGenericError
	}

	deps := execpipe.PrivilegedDeps{
		Engine: eng,
		Cfg:    cfgFile.Exec,
		WaitChild: func() (int, error) {
			return execpipe.WaitExitCode(cmd.Wait()), nil
		},
		DrainCgroup: drainCgroup,
		Log:         log.New("component", "flux-imp", "half", "privileged"),
	}
	return execpipe.RunPrivileged(req, deps)
}

// childMain is the entry point internal/reexec dispatches to in the
// dropped-privilege child: read input, run the unprivileged half of
// policy, and relay the request bundle to the parent (spec §4.E
// hasParent=true branch). It never touches the signing key material or
// the allowed-types policy; that happens only in the parent, after
// verification.
func childMain() {
	reqW := os.NewFile(3, "flux-imp-req-pipe")
	ch := privsep.New(nil, reqW)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "flux-imp: missing shell path")
		os.Exit(execpipe.ExitGenericError)
	}
	shellPath, shellArgs := os.Args[1], os.Args[2:]

	cfgFile, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		os.Exit(execpipe.ExitGenericError)
	}

	envelope, err := execpipe.ReadInput(os.Stdin, os.Getenv("FLUX_IMP_EXEC_HELPER"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-imp:", err)
		os.Exit(execpipe.ExitGenericError)
	}

	decision := execpipe.Unprivileged(os.Getuid(), envelope, shellPath, shellArgs, cfgFile.Exec, true)
	switch decision.Action {
	case execpipe.ActionSend:
		if err := ch.SendRequest(decision.Request); err != nil {
			fmt.Fprintln(os.Stderr, "flux-imp:", err)
			os.Exit(execpipe.ExitGenericError)
		}
		os.Exit(0)
	default:
		fmt.Fprintln(os.Stderr, "flux-imp: request denied by policy")
		os.Exit(execpipe.ExitGenericError)
	}
}

func drainCgroup() error {
	info, err := cgroup.Discover()
	if err != nil {
		return err
	}
	if !info.Armed {
		return nil
	}
	if _, err := cgroup.Drain(info.Path, syscall.SIGKILL); err != nil {
		return err
	}
	return cgroup.WaitForEmpty(info.Path)
}
