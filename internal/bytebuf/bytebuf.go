package bytebuf

import "unsafe"

// ByteString is an owned view into a backing array shared with the views that
// were split off of it. Splitting never copies; Unsplit re-adjoins a
// previously split prefix in O(1) as long as the two views are still
// physically adjacent. Parsed frames are therefore free to carve a read
// buffer into pieces, mutate a few of them and glue the rest back together
// while emitting the exact original bytes.
type ByteString struct {
	b []byte
}

func New(data []byte) ByteString {
	return ByteString{b: data}
}

func NewString(s string) ByteString {
	return ByteString{b: []byte(s)}
}

// NewCapacity returns an empty ByteString backed by cap bytes of storage.
// Used as the per-connection read buffer.
func NewCapacity(cap int) ByteString {
	return ByteString{b: make([]byte, 0, cap)}
}

func (bs *ByteString) Len() int {
	return len(bs.b)
}

func (bs *ByteString) Empty() bool {
	return len(bs.b) == 0
}

func (bs *ByteString) Bytes() []byte {
	return bs.b
}

func (bs *ByteString) String() string {
	return string(bs.b)
}

// Append copies data into the view, growing the backing array if needed.
func (bs *ByteString) Append(data []byte) {
	bs.b = append(bs.b, data...)
}

// Spare returns the unused capacity of the backing array for a read call to
// fill, growing the array when no room is left. Advance commits the bytes
// actually read.
func (bs *ByteString) Spare() []byte {
	if len(bs.b) == cap(bs.b) {
		grown := make([]byte, len(bs.b), cap(bs.b)*2+defaultGrowth)
		copy(grown, bs.b)
		bs.b = grown
	}

	return bs.b[len(bs.b):cap(bs.b)]
}

func (bs *ByteString) Advance(n int) {
	bs.b = bs.b[: len(bs.b)+n : cap(bs.b)]
}

const defaultGrowth = 4096

// SplitTo splits off and returns the first n bytes; the receiver keeps the
// suffix. Both views keep aliasing the same storage.
func (bs *ByteString) SplitTo(n int) ByteString {
	prefix := bs.b[:n:n]
	bs.b = bs.b[n:]

	return ByteString{b: prefix}
}

// SplitOff splits off and returns the suffix starting at n; the receiver
// keeps the prefix.
func (bs *ByteString) SplitOff(n int) ByteString {
	suffix := bs.b[n:]
	bs.b = bs.b[:n:n]

	return ByteString{b: suffix}
}

// Unsplit re-adjoins other to the end of the receiver. When other still sits
// right behind the receiver in the same backing array the merge is a pure
// bounds extension; otherwise the bytes are appended.
func (bs *ByteString) Unsplit(other ByteString) {
	switch {
	case other.Empty():
	case bs.Empty():
		bs.b = other.b
	case bs.adjacent(other):
		bs.b = unsafe.Slice(&bs.b[0], len(bs.b)+len(other.b))
	default:
		bs.b = append(bs.b, other.b...)
	}
}

func (bs *ByteString) adjacent(other ByteString) bool {
	end := uintptr(unsafe.Pointer(&bs.b[0])) + uintptr(len(bs.b))
	return end == uintptr(unsafe.Pointer(&other.b[0]))
}

// Clear resets the view to zero length, keeping the storage for reuse.
func (bs *ByteString) Clear() {
	bs.b = bs.b[:0]
}

func (bs *ByteString) Clone() ByteString {
	cloned := make([]byte, len(bs.b))
	copy(cloned, bs.b)

	return ByteString{b: cloned}
}
