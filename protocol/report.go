package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// A status report line looks like:
//
//	>up=12000 tk=12000 t0=24 t1=12 t2=6*3fa1
//
// '>' opens the frame, '*' separates the payload from four hex digits of
// CRC16 over the payload, and a newline ends it. Everything else on the
// wire is lab menu text and passes through untouched.
const (
	frameStart = '>'
	frameCheck = '*'
)

var (
	ErrNotFrame    = errors.New("not a report frame")
	ErrBadChecksum = errors.New("report frame checksum mismatch")
	ErrBadField    = errors.New("malformed report field")
)

// Report is one periodic scheduler status sample: the uptime clock, the raw
// tick counter and the cumulative per-task firing counts in registration
// order.
type Report struct {
	UptimeMS uint64
	Ticks    uint32
	Fired    []uint32
}

// AppendFrame appends the framed, checksummed encoding of r to dst and
// returns the extended slice. Built on strconv.Append* so the firmware can
// reuse one buffer and stay allocation-free in the steady state.
func AppendFrame(dst []byte, r *Report) []byte {
	start := len(dst) + 1 // payload begins after '>'

	dst = append(dst, frameStart)
	dst = append(dst, "up="...)
	dst = strconv.AppendUint(dst, r.UptimeMS, 10)
	dst = append(dst, " tk="...)
	dst = strconv.AppendUint(dst, uint64(r.Ticks), 10)
	for i, n := range r.Fired {
		dst = append(dst, " t"...)
		dst = strconv.AppendInt(dst, int64(i), 10)
		dst = append(dst, '=')
		dst = strconv.AppendUint(dst, uint64(n), 10)
	}

	crc := CRC16(dst[start:])
	dst = append(dst, frameCheck)
	dst = appendHex16(dst, crc)
	dst = append(dst, '\r', '\n')
	return dst
}

// EncodeFrame is AppendFrame into a fresh buffer, for host-side use where
// allocation does not matter.
func EncodeFrame(r *Report) []byte {
	return AppendFrame(nil, r)
}

// IsFrame reports whether a line (without its newline) looks like a report
// frame. It checks only the start byte; validation happens in ParseFrame.
func IsFrame(line string) bool {
	return len(line) > 0 && line[0] == frameStart
}

// ParseFrame decodes one line (without its trailing newline) into a Report.
// Plain text returns ErrNotFrame, a corrupted frame ErrBadChecksum or
// ErrBadField.
func ParseFrame(line string) (*Report, error) {
	line = strings.TrimRight(line, "\r")
	if !IsFrame(line) {
		return nil, ErrNotFrame
	}

	star := strings.LastIndexByte(line, frameCheck)
	if star < 0 || len(line)-star-1 != 4 {
		return nil, ErrBadChecksum
	}

	payload := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 16)
	if err != nil {
		return nil, ErrBadChecksum
	}
	if CRC16([]byte(payload)) != uint16(want) {
		return nil, ErrBadChecksum
	}

	r := &Report{}
	for _, field := range strings.Fields(payload) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, ErrBadField
		}
		switch {
		case key == "up":
			r.UptimeMS, err = strconv.ParseUint(value, 10, 64)
		case key == "tk":
			var v uint64
			v, err = strconv.ParseUint(value, 10, 32)
			r.Ticks = uint32(v)
		case len(key) > 1 && key[0] == 't':
			var idx int
			idx, err = strconv.Atoi(key[1:])
			if err != nil || idx < 0 || idx >= 64 {
				// No scheduler has anywhere near 64 task slots; a huge
				// index is corruption that slipped past the checksum.
				return nil, ErrBadField
			}
			for len(r.Fired) <= idx {
				r.Fired = append(r.Fired, 0)
			}
			var v uint64
			v, err = strconv.ParseUint(value, 10, 32)
			r.Fired[idx] = uint32(v)
		default:
			return nil, ErrBadField
		}
		if err != nil {
			return nil, ErrBadField
		}
	}

	return r, nil
}

const hexDigits = "0123456789abcdef"

func appendHex16(dst []byte, v uint16) []byte {
	return append(dst,
		hexDigits[v>>12&0xF],
		hexDigits[v>>8&0xF],
		hexDigits[v>>4&0xF],
		hexDigits[v&0xF],
	)
}
