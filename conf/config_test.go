package conf

import (
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagernet/sing-reactor/common/poll"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	config, err := Parse([]byte(`{
		"listen": "127.0.0.1:8080",
		"max_connections": 64,
		"accept_timeout": "250ms",
		"poll_timeout": "1s",
		"overload_wait": "5s",
		"recv_timeout": "2m"
	}`))
	require.NoError(t, err)
	addr, err := config.ListenAddr()
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddrPort("127.0.0.1:8080"), addr)
	require.Equal(t, 250*time.Millisecond, config.AcceptTimeout.Duration())
	require.Equal(t, time.Second, config.PollTimeout.Duration())
	require.Equal(t, 5*time.Second, config.OverloadWait.Duration())
	require.Equal(t, 2*time.Minute, config.RecvTimeout.Duration())
	require.Equal(t, 64, config.ReactorOptions().MaxConnections)
}

func TestParseInvalid(t *testing.T) {
	for _, content := range []string{
		`{"listen": "localhost"}`,
		`{"listen": "127.0.0.1:80", "unknown": true}`,
		`{"listen": "127.0.0.1:80", "poll_timeout": 100}`,
		`{"listen": "127.0.0.1:80", "poll_timeout": "soon"}`,
		`{"listen": "127.0.0.1:80", "poll_timeout": "-1s"}`,
		`{"listen": "127.0.0.1:80", "max_connections": -1}`,
		`{"listen": "127.0.0.1:80", "backend": "iocp"}`,
		`{"listen": "127.0.0.1:80", "backend": "select", "edge_triggered": true}`,
	} {
		_, err := Parse([]byte(content))
		require.Error(t, err, content)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content, err := json.Marshal(Config{
		Listen:      "[::1]:9000",
		Backend:     poll.Native(),
		PollTimeout: Duration(100 * time.Millisecond),
	})
	require.NoError(t, err)
	require.Contains(t, string(content), `"poll_timeout":"100ms"`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	config, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, poll.Native(), config.Backend)
	require.Equal(t, 100*time.Millisecond, config.PollTimeout.Duration())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
