package buf_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/sagernet/sing-reactor/common/buf"

	"github.com/stretchr/testify/require"
)

func TestBufferRejectsOverflow(t *testing.T) {
	buffer := buf.NewSize(8)
	_, err := buffer.WriteString("GET ")
	require.NoError(t, err)
	_, err = buffer.WriteString("/index")
	require.ErrorIs(t, err, io.ErrShortBuffer)
	require.Equal(t, "GET ", string(buffer.Bytes()))
	require.NoError(t, buffer.WriteInt(1234))
	require.True(t, buffer.IsFull())
	require.ErrorIs(t, buffer.WriteByte('x'), io.ErrShortBuffer)
}

func TestBufferFindAndAdvance(t *testing.T) {
	buffer := buf.NewSize(64)
	_, err := buffer.ReadOnceFrom(bytes.NewReader([]byte("HTTP/1.1 200 OK\r\n\r\nbody")))
	require.NoError(t, err)
	index := buffer.Find([]byte("\r\n\r\n"))
	require.Equal(t, 15, index)
	buffer.Advance(index + 4)
	require.Equal(t, "body", string(buffer.Bytes()))
	data := make([]byte, 2)
	n, err := buffer.Read(data)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "dy", string(buffer.Bytes()))
	buffer.Reset()
	require.True(t, buffer.IsEmpty())
	require.Equal(t, 64, buffer.FreeLen())
}
