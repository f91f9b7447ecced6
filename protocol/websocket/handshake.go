// Package websocket extracts the negotiation fields of a WebSocket upgrade
// request.
package websocket

import (
	"bytes"
	"strconv"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

// MinHandshakeSize is the shortest buffer worth scanning.
const MinHandshakeSize = 40

var (
	ErrHandshakeTooShort = E.New("websocket: handshake too short")
	ErrMissingKey        = E.New("websocket: missing Sec-WebSocket-Key")
)

var (
	keyField      = []byte("Sec-WebSocket-Key: ")
	protocolField = []byte("Sec-WebSocket-Protocol: ")
	versionField  = []byte("Sec-WebSocket-Version: ")
)

type Handshake struct {
	Key        string
	Protocol   string
	Version    uint
	HasVersion bool
}

// ParseHandshake reads the Sec-WebSocket-* fields from a raw request
// header. Field names are matched exactly and each value runs up to the
// next CR. Only the key is required.
func ParseHandshake(data []byte) (Handshake, error) {
	var handshake Handshake
	if len(data) < MinHandshakeSize {
		return handshake, ErrHandshakeTooShort
	}
	key, found := fieldValue(data, keyField)
	if !found {
		return handshake, ErrMissingKey
	}
	handshake.Key = string(key)
	if protocol, found := fieldValue(data, protocolField); found {
		handshake.Protocol = string(protocol)
	}
	if version, found := fieldValue(data, versionField); found {
		value, err := strconv.ParseUint(string(bytes.TrimSpace(version)), 10, strconv.IntSize)
		if err == nil {
			handshake.Version = uint(value)
			handshake.HasVersion = true
		}
	}
	return handshake, nil
}

func fieldValue(data []byte, field []byte) ([]byte, bool) {
	index := bytes.Index(data, field)
	if index < 0 {
		return nil, false
	}
	value := data[index+len(field):]
	end := bytes.IndexByte(value, '\r')
	if end < 0 {
		return nil, false
	}
	return value[:end], true
}
