// Package archive implements the binary record format used by the cache:
// fixed-endianness layouts that a byte buffer can be reinterpreted into
// without a parsing pass. Each record kind pairs an owned, materialized Go
// struct with an Archived* view type over the raw bytes.
//
// Views are produced by the View* functions, which validate the buffer once.
// That is the trust boundary: accessors on a view perform no further checks,
// so view bytes must come either from this package's Marshal* functions or
// from a store read that passed validation.
package archive

import "errors"

// Record kind tags. The tag is the first byte of every record.
const (
	KindGuild byte = iota + 1
	KindUser
	KindCurrentUser
	KindMember
	KindChannel
	KindRole
	KindSessions
	KindGuildShards
)

const (
	headerSize    = 4
	recordVersion = 1
)

// noneLen is the niche length encoding for an absent optional string: a
// present string can never be 2^32-1 bytes long, so absence costs nothing.
const noneLen = ^uint32(0)

var (
	ErrTruncated    = errors.New("archive: truncated record")
	ErrKindMismatch = errors.New("archive: record kind mismatch")
	ErrVersion      = errors.New("archive: unsupported record version")
	ErrBounds       = errors.New("archive: field out of bounds")
	ErrAlignment    = errors.New("archive: misaligned field")
)

// checkHeader validates the common header and the fixed-field region size.
func checkHeader(buf []byte, kind byte, fixed int) error {
	if len(buf) < fixed {
		return ErrTruncated
	}
	if buf[0] != kind {
		return ErrKindMismatch
	}
	if buf[1] != recordVersion {
		return ErrVersion
	}
	return nil
}

// checkStringRef validates the (offset, length) pair at pos against the
// buffer bounds. The niche "absent" encoding and empty strings are valid.
func checkStringRef(buf []byte, pos, fixed int) error {
	n := u32(buf, pos+4)
	if n == noneLen || n == 0 {
		return nil
	}
	off := u32(buf, pos)
	if off < uint32(fixed) || uint64(off)+uint64(n) > uint64(len(buf)) {
		return ErrBounds
	}
	return nil
}

// checkArrayRef validates the (offset, count) pair at pos for an array of
// elemSize-byte entries. Arrays must start on an 8-byte boundary.
func checkArrayRef(buf []byte, pos, fixed, elemSize int) error {
	cnt := u32(buf, pos+4)
	if cnt == 0 {
		return nil
	}
	off := u32(buf, pos)
	if off%8 != 0 {
		return ErrAlignment
	}
	if off < uint32(fixed) {
		return ErrBounds
	}
	if uint64(off)+uint64(cnt)*uint64(elemSize) > uint64(len(buf)) {
		return ErrBounds
	}
	return nil
}
