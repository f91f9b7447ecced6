package buf

import (
	"bytes"
	"io"
	"strconv"
)

// Buffer is a fixed-capacity byte buffer. Writes never grow the backing
// array: a write that does not fit is rejected as a whole with
// io.ErrShortBuffer and leaves the buffer untouched.
type Buffer struct {
	data  []byte
	start int
	end   int
}

func NewSize(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// With wraps data as an empty buffer using data as its storage.
func With(data []byte) *Buffer {
	return &Buffer{data: data}
}

// As wraps data as a full buffer.
func As(data []byte) *Buffer {
	return &Buffer{data: data, end: len(data)}
}

func (b *Buffer) Write(data []byte) (n int, err error) {
	if len(data) == 0 {
		return
	}
	if len(data) > b.FreeLen() {
		return 0, io.ErrShortBuffer
	}
	n = copy(b.data[b.end:], data)
	b.end += n
	return
}

func (b *Buffer) WriteString(s string) (n int, err error) {
	if len(s) == 0 {
		return
	}
	if len(s) > b.FreeLen() {
		return 0, io.ErrShortBuffer
	}
	n = copy(b.data[b.end:], s)
	b.end += n
	return
}

func (b *Buffer) WriteByte(d byte) error {
	if b.IsFull() {
		return io.ErrShortBuffer
	}
	b.data[b.end] = d
	b.end++
	return nil
}

// WriteInt writes the decimal form of v.
func (b *Buffer) WriteInt(v int64) error {
	var scratch [20]byte
	_, err := b.Write(strconv.AppendInt(scratch[:0], v, 10))
	return err
}

// ReadOnceFrom performs a single Read into the free space.
func (b *Buffer) ReadOnceFrom(r io.Reader) (int, error) {
	if b.IsFull() {
		return 0, io.ErrShortBuffer
	}
	n, err := r.Read(b.FreeBytes())
	if n > 0 {
		b.end += n
	}
	return n, err
}

func (b *Buffer) Read(data []byte) (n int, err error) {
	if b.IsEmpty() {
		return 0, io.EOF
	}
	n = copy(data, b.data[b.start:b.end])
	b.start += n
	return
}

func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes())
	b.start += n
	return int64(n), err
}

// Find returns the offset of sep relative to the readable region, or -1.
func (b *Buffer) Find(sep []byte) int {
	return bytes.Index(b.Bytes(), sep)
}

func (b *Buffer) Advance(n int) {
	b.start += n
	if b.start > b.end {
		b.start = b.end
	}
}

func (b *Buffer) Truncate(to int) {
	b.end = b.start + to
}

func (b *Buffer) Reset() {
	b.start = 0
	b.end = 0
}

func (b *Buffer) Start() int {
	return b.start
}

func (b *Buffer) Len() int {
	return b.end - b.start
}

func (b *Buffer) Cap() int {
	return len(b.data)
}

func (b *Buffer) Bytes() []byte {
	return b.data[b.start:b.end]
}

func (b *Buffer) From(n int) []byte {
	return b.data[b.start+n : b.end]
}

func (b *Buffer) To(n int) []byte {
	return b.data[b.start : b.start+n]
}

func (b *Buffer) FreeLen() int {
	return len(b.data) - b.end
}

func (b *Buffer) FreeBytes() []byte {
	return b.data[b.end:]
}

func (b *Buffer) IsEmpty() bool {
	return b.end == b.start
}

func (b *Buffer) IsFull() bool {
	return b.end == len(b.data)
}
