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

package privsep

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flux-framework/flux-imp/internal/signer"
)

// maxFrame bounds a single frame so a misbehaving peer cannot force an
// unbounded allocation.
const maxFrame = 1 << 20

// Channel is the bidirectional byte-framed pipe of spec §4.D: the
// unprivileged side writes exactly one ExecRequest, the privileged side
// answers with exactly one exit status.
type Channel struct {
	r io.Reader
	w io.Writer
}

// New wraps r/w (typically the two ends of an os.Pipe shared with a child
// process) as a Channel.
func New(r io.Reader, w io.Writer) *Channel {
	return &Channel{r: r, w: w}
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("privsep: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("privsep: write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("privsep: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrame {
		return nil, fmt.Errorf("%w: privsep frame of %d bytes exceeds the %d-byte limit", signer.ErrResourceExhausted, n, maxFrame)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("privsep: read frame body: %w", err)
	}
	return buf, nil
}

// SendRequest writes req as the channel's single request frame. Called by
// the unprivileged side.
func (c *Channel) SendRequest(req ExecRequest) error {
	return writeFrame(c.w, req.encode())
}

// ReceiveRequest reads the request frame. Called by the privileged side.
// The privileged side must treat every field of the returned ExecRequest
// as untrusted input until J has been verified by the sign engine (spec
// §3 invariants).
func (c *Channel) ReceiveRequest() (ExecRequest, error) {
	raw, err := readFrame(c.r)
	if err != nil {
		return ExecRequest{}, err
	}
	return decodeExecRequest(raw)
}

// SendStatus writes an exit status frame. cmd/flux-imp does not call it:
// its privileged parent sends no status back to the unprivileged child.
func (c *Channel) SendStatus(code int) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(int32(code)))
	return writeFrame(c.w, buf[:])
}

// ReceiveStatus reads an exit status frame. cmd/flux-imp does not call
// it: its unprivileged child exits 0 right after SendRequest.
func (c *Channel) ReceiveStatus() (int, error) {
	raw, err := readFrame(c.r)
	if err != nil {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("privsep: malformed status frame of %d bytes", len(raw))
	}
	return int(int32(binary.BigEndian.Uint32(raw))), nil
}
