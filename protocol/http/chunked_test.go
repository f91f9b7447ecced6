package http

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const wikipediaChunked = "4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n"

func decodeAll(t *testing.T, encoded string, srcStep int, dstSize int) (string, bool) {
	var (
		decoder chunkedDecoder
		output  []byte
		dst     = make([]byte, dstSize)
	)
	src := []byte(encoded)
	for len(src) > 0 && !decoder.Done() {
		step := srcStep
		if step > len(src) {
			step = len(src)
		}
		piece := src[:step]
		for len(piece) > 0 && !decoder.Done() {
			n, consumed, err := decoder.Decode(dst, piece)
			require.NoError(t, err)
			output = append(output, dst[:n]...)
			piece = piece[consumed:]
		}
		src = src[step:]
	}
	return string(output), decoder.Done()
}

func TestChunkedDecode(t *testing.T) {
	for _, srcStep := range []int{1, 2, 3, 7, len(wikipediaChunked)} {
		for _, dstSize := range []int{1, 3, 64} {
			output, done := decodeAll(t, wikipediaChunked, srcStep, dstSize)
			require.True(t, done)
			require.Equal(t, "Wikipedia in\r\n\r\nchunks.", output, "src step %d, dst size %d", srcStep, dstSize)
		}
	}
}

func TestChunkedExtensionAndTrailer(t *testing.T) {
	output, done := decodeAll(t, "5;name=value\r\nhello\r\na \r\n, world!!!\r\n0\r\nX-Checksum: 1\r\nX-Other: 2\r\n\r\n", 4, 5)
	require.True(t, done)
	require.Equal(t, "hello, world!!!", output)
}

func TestChunkedStopsAtTerminal(t *testing.T) {
	var decoder chunkedDecoder
	dst := make([]byte, 16)
	src := []byte("3\r\nabc\r\n0\r\n\r\nextra")
	n, consumed, err := decoder.Decode(dst, src)
	require.NoError(t, err)
	require.Equal(t, "abc", string(dst[:n]))
	require.Equal(t, len(src)-len("extra"), consumed)
	require.True(t, decoder.Done())

	n, consumed, err = decoder.Decode(dst, []byte("more"))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, consumed)
}

func TestChunkedMalformed(t *testing.T) {
	for _, encoded := range []string{
		"zz\r\n",
		"\r\n",
		";ext\r\n",
		"3\r\nabcXX",
		"3\r\nabc\rX",
		"3\rX",
		"0\r\n\rX",
		"fffffffffffffffff\r\n",
	} {
		var decoder chunkedDecoder
		_, _, err := decoder.Decode(make([]byte, 64), []byte(encoded))
		require.ErrorIs(t, err, ErrMalformedChunk, encoded)
	}
}
