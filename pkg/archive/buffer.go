package archive

import (
	"encoding/binary"
	"sync"
	"unsafe"
)

// writer is the reusable scratch serializer. Records are assembled in a
// pooled buffer and copied out exactly-sized by finish, so steady-state
// serialization allocates only the output bytes.
type writer struct {
	buf []byte
}

var writerPool = sync.Pool{
	New: func() any { return &writer{buf: make([]byte, 0, 512)} },
}

// acquire returns a pooled writer initialized with a zeroed fixed-field
// region of the given size and the common record header.
func acquire(kind byte, flags uint16, fixed int) *writer {
	w := writerPool.Get().(*writer)
	if cap(w.buf) < fixed {
		w.buf = make([]byte, fixed, fixed+256)
	} else {
		w.buf = w.buf[:fixed]
		clear(w.buf)
	}
	w.buf[0] = kind
	w.buf[1] = recordVersion
	binary.LittleEndian.PutUint16(w.buf[2:], flags)
	return w
}

func (w *writer) putU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *writer) putU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(w.buf[off:], v)
}

// putString appends s to the tail region and records its (offset, length)
// pair at pos inside the fixed region.
func (w *writer) putString(pos int, s string) {
	w.putU32(pos, uint32(len(w.buf)))
	w.putU32(pos+4, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// putNoString records the niche "absent" encoding at pos, costing no tail bytes.
func (w *writer) putNoString(pos int) {
	w.putU32(pos, 0)
	w.putU32(pos+4, noneLen)
}

// beginArray pads the tail to an 8-byte boundary and records the array's
// (offset, count) pair at pos. Elements are appended by the caller.
func (w *writer) beginArray(pos, count int) {
	for len(w.buf)%8 != 0 {
		w.buf = append(w.buf, 0)
	}
	w.putU32(pos, uint32(len(w.buf)))
	w.putU32(pos+4, uint32(count))
}

func (w *writer) appendU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) appendU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// finish copies the record into an exactly-sized buffer owned by the caller
// and returns the scratch writer to the pool.
func (w *writer) finish() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	w.buf = w.buf[:0]
	writerPool.Put(w)
	return out
}

func u16(buf []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(buf[off:])
}

func u32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func u64(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off:])
}

func hasFlag(buf []byte, bit uint16) bool {
	return u16(buf, 2)&bit != 0
}

func setFlag(buf []byte, bit uint16, on bool) {
	flags := u16(buf, 2)
	if on {
		flags |= bit
	} else {
		flags &^= bit
	}
	binary.LittleEndian.PutUint16(buf[2:], flags)
}

func binaryPutU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

func binaryPutU64(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:], v)
}

// putHash writes an optional hash field together with its presence and
// animated flag bits. Clearing the bytes on absence keeps records produced
// by in-place mutation byte-identical to freshly serialized ones.
func putHash(buf []byte, off int, presentBit, animatedBit uint16, h *ImageHash) {
	if h == nil {
		setFlag(buf, presentBit, false)
		setFlag(buf, animatedBit, false)
		clear(buf[off : off+16])
		return
	}
	setFlag(buf, presentBit, true)
	setFlag(buf, animatedBit, h.Animated)
	copy(buf[off:], h.Bytes[:])
}

// viewHash reads an optional hash field guarded by its presence flag bit.
func viewHash(buf []byte, off int, presentBit, animatedBit uint16) (ImageHash, bool) {
	if !hasFlag(buf, presentBit) {
		return ImageHash{}, false
	}
	var h ImageHash
	copy(h.Bytes[:], buf[off:])
	h.Animated = hasFlag(buf, animatedBit)
	return h, true
}

// viewString returns a zero-copy view of the string recorded at pos. The
// second result is false for the niche "absent" encoding.
func viewString(buf []byte, pos int) (string, bool) {
	n := u32(buf, pos+4)
	if n == noneLen {
		return "", false
	}
	if n == 0 {
		return "", true
	}
	off := u32(buf, pos)
	return unsafe.String(&buf[off], int(n)), true
}
