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

package envelope

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Buffer is a growable byte buffer that keeps its backing array across
// calls, the way the engine's wrap/unwrap scratch buffers are specified to
// behave (spec §3, §4.B): reused in place, invalidated by the next call,
// owned by whoever holds it.
type Buffer struct {
	b []byte
}

// Reset truncates the buffer to zero length without releasing capacity.
func (buf *Buffer) Reset() {
	buf.b = buf.b[:0]
}

// Bytes returns the buffer's current contents. The slice is only valid
// until the next mutating call on buf.
func (buf *Buffer) Bytes() []byte { return buf.b }

// String returns the buffer's current contents as a string copy.
func (buf *Buffer) String() string { return string(buf.b) }

func (buf *Buffer) appendString(s string) {
	buf.b = append(buf.b, s...)
}

func (buf *Buffer) appendByte(c byte) {
	buf.b = append(buf.b, c)
}

// HeaderEncodeCpy writes a fresh base64-encoded header into buf, replacing
// any prior contents.
func HeaderEncodeCpy(buf *Buffer, h *Header, codec HeaderCodec) error {
	if codec == nil {
		codec = DefaultHeaderCodec
	}
	raw, err := codec.Encode(h)
	if err != nil {
		return err
	}
	buf.Reset()
	buf.appendString(base64.StdEncoding.EncodeToString(raw))
	return nil
}

// PayloadEncodeCat appends ".<base64(payload)>" to buf.
func PayloadEncodeCat(buf *Buffer, payload []byte) {
	buf.appendByte('.')
	buf.appendString(base64.StdEncoding.EncodeToString(payload))
}

// SignatureCat appends ".<signature>" to buf. signature must not contain
// '.' or whitespace; callers (mechanisms) are responsible for that
// invariant, matching spec §3.
func SignatureCat(buf *Buffer, signature string) error {
	if strings.ContainsAny(signature, ". \t\r\n") {
		return fmt.Errorf("envelope: signature contains a reserved character")
	}
	buf.appendByte('.')
	buf.appendString(signature)
	return nil
}

// Split locates the two '.' separators in an envelope string. It returns
// an error if fewer than two are present, matching spec §4.B.
func Split(envelope string) (headerB64, payloadB64, signature string, err error) {
	first := strings.IndexByte(envelope, '.')
	if first < 0 {
		return "", "", "", fmt.Errorf("envelope: missing separators")
	}
	rest := envelope[first+1:]
	second := strings.IndexByte(rest, '.')
	if second < 0 {
		return "", "", "", fmt.Errorf("envelope: missing second separator")
	}
	headerB64 = envelope[:first]
	payloadB64 = rest[:second]
	signature = rest[second+1:]
	return headerB64, payloadB64, signature, nil
}

// HeaderDecode finds the first '.', base64-decodes the prefix, and parses
// it as a key/value bundle.
func HeaderDecode(envelope string, codec HeaderCodec) (h *Header, headerB64 string, err error) {
	headerB64, _, _, err = Split(envelope)
	if err != nil {
		return nil, "", err
	}
	raw, err := base64.StdEncoding.DecodeString(headerB64)
	if err != nil {
		return nil, "", fmt.Errorf("envelope: header is not valid base64: %w", err)
	}
	if codec == nil {
		codec = DefaultHeaderCodec
	}
	h, err = codec.Decode(raw)
	if err != nil {
		return nil, "", fmt.Errorf("envelope: header does not parse as key/value: %w", err)
	}
	return h, headerB64, nil
}

// PayloadDecodeCpy decodes the full envelope into buf and returns the
// payload bytes (a view into buf, invalidated on the next call), the
// base64 payload segment, and the trailing signature. An empty payload
// segment decodes to a nil, zero-length payload, matching spec §4.B.
//
// tolerant must be set when the caller's flags include NoVerify. Per spec
// §8, NoVerify skips only the mechanism's cryptographic check; header
// structure is still validated, but "byte-level tampering in the payload
// region is undetected (by design)" — so a corrupted base64 payload must
// not surface as a structural error under NoVerify. When tolerant and the
// payload segment fails to base64-decode, the raw undecoded segment bytes
// are returned as the payload instead of an error.
func PayloadDecodeCpy(buf *Buffer, envelope string, tolerant bool) (payload []byte, payloadB64, signature string, err error) {
	_, payloadB64, signature, err = Split(envelope)
	if err != nil {
		return nil, "", "", err
	}
	buf.Reset()
	if payloadB64 == "" {
		return nil, payloadB64, signature, nil
	}
	raw, decErr := base64.StdEncoding.DecodeString(payloadB64)
	if decErr != nil {
		if !tolerant {
			return nil, "", "", fmt.Errorf("envelope: payload is not valid base64: %w", decErr)
		}
		buf.appendString(payloadB64)
		return buf.Bytes(), payloadB64, signature, nil
	}
	buf.b = append(buf.b, raw...)
	return buf.Bytes(), payloadB64, signature, nil
}
