package http

import (
	E "github.com/sagernet/sing-reactor/common/exceptions"
)

var ErrMalformedChunk = E.New("http: malformed chunked encoding")

const maxChunkSize = 1 << 40

type chunkState uint8

const (
	chunkSize chunkState = iota
	chunkExtension
	chunkSizeLF
	chunkData
	chunkDataCR
	chunkDataLF
	chunkTrailer
	chunkTrailerLF
	chunkDone
)

// chunkedDecoder removes chunked transfer framing. It holds no reference to
// its input, so a body may be fed to it in pieces split at any byte.
type chunkedDecoder struct {
	state      chunkState
	digits     int
	remaining  int64
	lineLength int
}

func (d *chunkedDecoder) Reset() {
	*d = chunkedDecoder{}
}

func (d *chunkedDecoder) Done() bool {
	return d.state == chunkDone
}

// Decode copies chunk payload from src to dst until dst is full, src is
// exhausted or the terminal chunk and its trailer have been consumed.
// It returns the bytes written to dst and the bytes consumed from src.
func (d *chunkedDecoder) Decode(dst []byte, src []byte) (n int, consumed int, err error) {
	for consumed < len(src) && d.state != chunkDone {
		if d.state == chunkData {
			if n == len(dst) {
				return
			}
			size := len(src) - consumed
			if free := len(dst) - n; size > free {
				size = free
			}
			if int64(size) > d.remaining {
				size = int(d.remaining)
			}
			copy(dst[n:], src[consumed:consumed+size])
			n += size
			consumed += size
			d.remaining -= int64(size)
			if d.remaining == 0 {
				d.state = chunkDataCR
			}
			continue
		}
		c := src[consumed]
		consumed++
		switch d.state {
		case chunkSize:
			switch {
			case c == '\r':
				if d.digits == 0 {
					return n, consumed, ErrMalformedChunk
				}
				d.state = chunkSizeLF
			case c == ';' || c == ' ' || c == '\t':
				if d.digits == 0 {
					return n, consumed, ErrMalformedChunk
				}
				d.state = chunkExtension
			default:
				value, valid := unhex(c)
				if !valid || d.remaining > maxChunkSize {
					return n, consumed, ErrMalformedChunk
				}
				d.remaining = d.remaining<<4 | int64(value)
				d.digits++
			}
		case chunkExtension:
			if c == '\r' {
				d.state = chunkSizeLF
			}
		case chunkSizeLF:
			if c != '\n' {
				return n, consumed, ErrMalformedChunk
			}
			d.digits = 0
			if d.remaining == 0 {
				d.state = chunkTrailer
				d.lineLength = 0
			} else {
				d.state = chunkData
			}
		case chunkDataCR:
			if c != '\r' {
				return n, consumed, ErrMalformedChunk
			}
			d.state = chunkDataLF
		case chunkDataLF:
			if c != '\n' {
				return n, consumed, ErrMalformedChunk
			}
			d.state = chunkSize
		case chunkTrailer:
			if c == '\r' {
				d.state = chunkTrailerLF
			} else {
				d.lineLength++
			}
		case chunkTrailerLF:
			if c != '\n' {
				return n, consumed, ErrMalformedChunk
			}
			if d.lineLength == 0 {
				d.state = chunkDone
			} else {
				d.state = chunkTrailer
				d.lineLength = 0
			}
		}
	}
	return
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
