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

// Package signer implements the sign engine of spec §4.C: config
// validation, policy-checked wrap/unwrap, mechanism dispatch.
package signer

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/flux-framework/flux-imp/internal/signer/envelope"
	"github.com/flux-framework/flux-imp/internal/signer/mechanism"
)

const protocolVersion = 1

// Flag re-exports mechanism.Flag so callers of this package don't need to
// import the mechanism package just to pass NoVerify.
type Flag = mechanism.Flag

// NoVerify skips cryptographic verification during Unwrap. Privileged
// consumers must never pass this except on self-test paths (spec §4.C).
const NoVerify = mechanism.NoVerify

// Result is what Unwrap returns on success.
type Result struct {
	Payload   []byte
	Mechanism string
	UserID    int
}

// Engine is one security context's sign engine: a validated config, a
// compiled mechanism registry, and two reusable scratch buffers (spec
// §3). An Engine is not safe for concurrent use; create one per security
// context (spec §5).
type Engine struct {
	cfg       Config
	registry  *mechanism.Registry
	codec     envelope.HeaderCodec
	wrapBuf   envelope.Buffer
	unwrapBuf envelope.Buffer
	lastError string
	log       log.Logger
}

// NewEngine validates cfg against registry and returns a ready-to-use
// engine, or an error if cfg fails any of the init-time checks in spec
// §4.C / §8.
func NewEngine(cfg Config, registry *mechanism.Registry) (*Engine, error) {
	if err := cfg.Validate(registry); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		codec:    envelope.DefaultHeaderCodec,
		log:      log.New("component", "sign-engine"),
	}, nil
}

// LastError returns the message stashed by the most recent failing call,
// per the out-of-band error signaling in spec §4.C / §7.
func (e *Engine) LastError() string { return e.lastError }

func (e *Engine) fail(err error) error {
	e.lastError = err.Error()
	e.log.Debug("sign engine operation failed", "err", err)
	return err
}

// Wrap signs payload as userid under mechanismName (or the configured
// default-type if mechanismName is empty) and returns the envelope. The
// envelope is built in the engine's reusable wrap buffer, which the next
// Wrap overwrites; the returned string is a copy and stays valid after
// later calls.
func (e *Engine) Wrap(userid int, payload []byte, mechanismName string) (string, error) {
	if userid < 0 {
		return "", e.fail(fmt.Errorf("%w: userid must be non-negative", ErrInputMalformed))
	}
	name := mechanismName
	if name == "" {
		name = e.cfg.DefaultType
	}
	mech, ok := e.registry.Lookup(name)
	if !ok {
		return "", e.fail(fmt.Errorf("%w: %q", ErrMechanismUnknown, name))
	}

	h := envelope.NewHeader()
	h.SetInt("version", protocolVersion)
	h.Set("mechanism", name)
	h.SetInt("userid", int64(userid))
	if err := mech.Prep(h, 0); err != nil {
		return "", e.fail(fmt.Errorf("%w: mechanism prep: %v", ErrMechanismUnavailable, err))
	}

	if err := envelope.HeaderEncodeCpy(&e.wrapBuf, h, e.codec); err != nil {
		return "", e.fail(fmt.Errorf("%w: %v", ErrInputMalformed, err))
	}
	envelope.PayloadEncodeCat(&e.wrapBuf, payload)

	prefix := append([]byte(nil), e.wrapBuf.Bytes()...)
	signature, err := mech.Sign(prefix)
	if err != nil {
		return "", e.fail(fmt.Errorf("%w: %v", ErrMechanismUnavailable, err))
	}
	if err := envelope.SignatureCat(&e.wrapBuf, signature); err != nil {
		return "", e.fail(fmt.Errorf("%w: %v", ErrInputMalformed, err))
	}
	return e.wrapBuf.String(), nil
}

// WrapCurrent is Wrap with userid set to the process's real uid.
func (e *Engine) WrapCurrent(payload []byte, mechanismName string) (string, error) {
	return e.Wrap(os.Getuid(), payload, mechanismName)
}

// Unwrap verifies and decodes env, enforcing that its mechanism is in
// allowed-types. flags may contain NoVerify (spec §4.C).
func (e *Engine) Unwrap(env string, flags Flag) (Result, error) {
	return e.unwrap(env, flags, true)
}

// UnwrapAnymech is Unwrap without the allowed-types policy check, for
// tooling that inspects foreign envelopes (spec §4.C).
func (e *Engine) UnwrapAnymech(env string, flags Flag) (Result, error) {
	return e.unwrap(env, flags, false)
}

func (e *Engine) unwrap(env string, flags Flag, enforcePolicy bool) (Result, error) {
	h, _, err := envelope.HeaderDecode(env, e.codec)
	if err != nil {
		return Result{}, e.fail(fmt.Errorf("%w: %v", ErrInputMalformed, err))
	}

	version, ok := h.GetInt("version")
	if !ok {
		return Result{}, e.fail(fmt.Errorf("%w: header missing version", ErrInputMalformed))
	}
	if version != protocolVersion {
		return Result{}, e.fail(fmt.Errorf("%w: unsupported version %d", ErrInputMalformed, version))
	}

	name, ok := h.Get("mechanism")
	if !ok || name == "" {
		return Result{}, e.fail(fmt.Errorf("%w: header missing mechanism", ErrInputMalformed))
	}
	userid, ok := h.GetInt("userid")
	if !ok {
		return Result{}, e.fail(fmt.Errorf("%w: header missing userid", ErrInputMalformed))
	}

	if enforcePolicy && !e.cfg.allows(name) {
		return Result{}, e.fail(fmt.Errorf("%w: mechanism %q is not in allowed-types", ErrPolicyDenied, name))
	}
	mech, ok := e.registry.Lookup(name)
	if !ok {
		return Result{}, e.fail(fmt.Errorf("%w: %q", ErrMechanismUnknown, name))
	}

	payload, _, signature, err := envelope.PayloadDecodeCpy(&e.unwrapBuf, env, flags&NoVerify != 0)
	if err != nil {
		return Result{}, e.fail(fmt.Errorf("%w: %v", ErrInputMalformed, err))
	}

	headerB64, payloadB64, _, err := envelope.Split(env)
	if err != nil {
		return Result{}, e.fail(fmt.Errorf("%w: %v", ErrInputMalformed, err))
	}
	prefix := []byte(headerB64 + "." + payloadB64)

	if err := mech.Verify(h, prefix, signature, flags); err != nil {
		return Result{}, e.fail(fmt.Errorf("%w: %v", ErrSignatureInvalid, err))
	}

	return Result{Payload: payload, Mechanism: name, UserID: int(userid)}, nil
}
