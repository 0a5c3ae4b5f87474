package repeater

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harpoon-proxy/harpoon/internal/intercept"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubOrigin accepts one connection, records the request bytes and answers
// with a fixed response.
func stubOrigin(t *testing.T, response string) (addr string, got chan []byte) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	got = make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 64*1024)
		n, _ := conn.Read(buf)
		got <- buf[:n]
		_, _ = conn.Write([]byte(response)) //nolint:errcheck
	}()

	return listener.Addr().String(), got
}

func TestReplayRewritesAndRecords(t *testing.T) {
	addr, got := stubOrigin(t, "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\nupdated")

	dir := t.TempDir()
	artifact := filepath.Join(dir, "1.req")
	// stale Content-Length, the update path must fix it before sending
	stored := "POST /echo HTTP/1.1\r\nHost: target\r\nContent-Length: 99\r\n\r\nabc"
	require.NoError(t, os.WriteFile(artifact, []byte(stored), 0o644))

	in := make(chan *intercept.ForwardInfo, 1)
	r := New(in, zerolog.Nop())

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	require.NoError(t, r.replay(context.Background(), &intercept.ForwardInfo{
		File:       artifact,
		ServerInfo: &serverinfo.JSON{Host: host + ":" + port, HTTP: "1"},
	}))

	expected := "POST /echo HTTP/1.1\r\nHost: target\r\nContent-Length: 3\r\n\r\nabc"
	select {
	case sent := <-got:
		require.Equal(t, expected, string(sent))
	case <-time.After(2 * time.Second):
		t.Fatal("origin saw nothing")
	}

	rewritten, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.Equal(t, expected, string(rewritten))

	response, err := os.ReadFile(filepath.Join(dir, "rep.res"))
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\nupdated", string(response))
}

func TestReplayWithoutUpdateSendsVerbatim(t *testing.T) {
	addr, got := stubOrigin(t, "HTTP/1.1 204 No Content\r\n\r\n")

	dir := t.TempDir()
	artifact := filepath.Join(dir, "1.req")
	stored := "POST / HTTP/1.1\r\nHost: target\r\nContent-Length: 99\r\n\r\nabc"
	require.NoError(t, os.WriteFile(artifact, []byte(stored), 0o644))

	r := New(make(chan *intercept.ForwardInfo), zerolog.Nop())
	r.SetShouldUpdate(false)

	require.NoError(t, r.replay(context.Background(), &intercept.ForwardInfo{
		File:       artifact,
		ServerInfo: &serverinfo.JSON{Host: addr, HTTP: "1"},
	}))

	select {
	case sent := <-got:
		require.Equal(t, stored, string(sent))
	case <-time.After(2 * time.Second):
		t.Fatal("origin saw nothing")
	}

	unchanged, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.Equal(t, stored, string(unchanged))
}
