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

// Command sign reads an unsigned payload from stdin and writes a signed
// envelope to stdout, per spec §6.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/flux-framework/flux-imp/internal/config"
	"github.com/flux-framework/flux-imp/internal/signer"
)

// maxPayload bounds the growing stdin read (spec §9 open question,
// resolved against the fixed 1024-byte buffer of the original tool).
const maxPayload = 1 << 20

var (
	gitCommit = ""
	gitDate   = ""
)

var (
	mechanismFlag = &cli.StringFlag{
		Name:  "mechanism",
		Usage: "signing mechanism to use (default: sign.default-type from config)",
	}
	asUIDFlag = &cli.IntFlag{
		Name:  "as-uid",
		Usage: "sign as this uid instead of the process's real uid",
		Value: -1,
	}
	mungeSecretFlag = &cli.StringFlag{
		Name:    "munge-secret-file",
		Usage:   "path to the shared secret backing the munge mechanism",
		EnvVars: []string{"FLUX_IMP_MUNGE_SECRET_FILE"},
	}
	curveKeyFlag = &cli.StringFlag{
		Name:    "curve-secret-key-file",
		Usage:   "path to this principal's 64-byte curve secret key",
		EnvVars: []string{"FLUX_IMP_CURVE_SECRET_KEY_FILE"},
	}
	curveKeystoreFlag = &cli.StringFlag{
		Name:    "curve-keystore-dir",
		Usage:   "directory of uid -> base64 pubkey files used to verify curve envelopes",
		EnvVars: []string{"FLUX_IMP_CURVE_KEYSTORE_DIR"},
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity (0=crit, 5=trace); parsed but not applied, logs use the handler's default level",
		Value: 3,
	}
	logJSONFlag = &cli.BoolFlag{
		Name:  "log-json",
		Usage: "emit structured JSON logs instead of term format",
	}
)

var app = &cli.App{
	Name:    "sign",
	Usage:   "sign a payload for the flux-imp exec pipeline",
	Version: fmt.Sprintf("%s-%s", gitCommit, gitDate),
	Flags: []cli.Flag{
		mechanismFlag, asUIDFlag, mungeSecretFlag, curveKeyFlag,
		curveKeystoreFlag, verbosityFlag, logJSONFlag,
	},
	Before: func(c *cli.Context) error {
		setupLogging(c)
		return nil
	},
	Action: run,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) {
	var handler slog.Handler
	if c.Bool(logJSONFlag.Name) {
		handler = log.JSONHandler(os.Stderr)
	} else {
		handler = log.NewTerminalHandler(os.Stderr, false)
	}
	log.SetDefault(log.NewLogger(handler))
}

func run(c *cli.Context) error {
	cfgFile, err := config.LoadFromEnv()
	if err != nil {
		return cli.Exit(err, 1)
	}

	registry, err := signer.BuildRegistry(signer.KeyMaterial{
		MungeSecretFile:    c.String(mungeSecretFlag.Name),
		CurveSecretKeyFile: c.String(curveKeyFlag.Name),
		CurveKeystoreDir:   c.String(curveKeystoreFlag.Name),
	})
	if err != nil {
		return cli.Exit(err, 1)
	}

	engCfg := signer.Config{
		MaxTTL:       cfgFile.Sign.MaxTTL,
		DefaultType:  cfgFile.Sign.DefaultType,
		AllowedTypes: cfgFile.Sign.AllowedTypes,
	}
	eng, err := signer.NewEngine(engCfg, registry)
	if err != nil {
		return cli.Exit(err, 1)
	}

	payload, err := io.ReadAll(io.LimitReader(os.Stdin, maxPayload+1))
	if err != nil {
		return cli.Exit(fmt.Errorf("sign: read stdin: %w", err), 1)
	}
	if len(payload) > maxPayload {
		return cli.Exit(fmt.Errorf("sign: payload exceeds %d bytes", maxPayload), 1)
	}

	var env string
	if uid := c.Int(asUIDFlag.Name); uid >= 0 {
		env, err = eng.Wrap(uid, payload, c.String(mechanismFlag.Name))
	} else {
		env, err = eng.WrapCurrent(payload, c.String(mechanismFlag.Name))
	}
	if err != nil {
		return cli.Exit(fmt.Errorf("sign: %s", eng.LastError()), 1)
	}

	fmt.Println(env)
	return nil
}
