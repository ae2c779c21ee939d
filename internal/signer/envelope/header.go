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

// Package envelope implements the HEADER.PAYLOAD.SIGNATURE wire codec.
//
// The header is a small key/value bundle. Its concrete wire format (how a
// bundle of strings becomes a byte slice) is treated as a narrow,
// swappable concern: HeaderCodec is the seam, and textCodec below is the
// one concrete implementation this repository ships. Nothing downstream
// of Header depends on the wire format directly.
package envelope

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Header is the key/value bundle carried by an envelope: version,
// mechanism, userid, plus whatever mechanism-specific fields a Prep hook
// adds (curve.pubkey, ctime, xtime, ...).
type Header struct {
	values map[string]string
}

// NewHeader returns an empty, ready-to-use header.
func NewHeader() *Header {
	return &Header{values: make(map[string]string)}
}

// Set stores a string field.
func (h *Header) Set(key, value string) {
	h.values[key] = value
}

// SetInt stores an integer field.
func (h *Header) SetInt(key string, value int64) {
	h.values[key] = strconv.FormatInt(value, 10)
}

// Get returns a string field and whether it was present.
func (h *Header) Get(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// GetInt returns an integer field. The second result is false if the field
// is absent or not a valid integer.
func (h *Header) GetInt(key string) (int64, bool) {
	v, ok := h.values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HeaderCodec serializes and parses the header's key/value bundle to and
// from bytes. It is the out-of-scope "generic key/value serialization"
// collaborator named in spec §1, represented here as a narrow interface
// so a production deployment can swap in whatever bundle format the rest
// of its stack already standardizes on.
type HeaderCodec interface {
	Encode(h *Header) ([]byte, error)
	Decode(b []byte) (*Header, error)
}

// textCodec is the default HeaderCodec: deterministic, sorted "key=value"
// lines. It exists so this package is self-contained; it is not meant to
// be the last word on wire format compatibility.
type textCodec struct{}

// DefaultHeaderCodec is the codec used when callers do not supply one.
var DefaultHeaderCodec HeaderCodec = textCodec{}

func (textCodec) Encode(h *Header) ([]byte, error) {
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if strings.ContainsAny(k, "=\n") {
			return nil, fmt.Errorf("envelope: header key %q contains reserved character", k)
		}
		v := h.values[k]
		if strings.Contains(v, "\n") {
			return nil, fmt.Errorf("envelope: header value for %q contains a newline", k)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func (textCodec) Decode(b []byte) (*Header, error) {
	h := NewHeader()
	for _, line := range strings.Split(string(b), "\n") {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("envelope: malformed header line %q", line)
		}
		h.values[k] = v
	}
	return h, nil
}
