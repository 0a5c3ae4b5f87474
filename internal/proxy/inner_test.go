package proxy

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harpoon-proxy/harpoon/http/mime"
	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/harpoon-proxy/harpoon/internal/commander"
	"github.com/harpoon-proxy/harpoon/internal/history"
	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestURIExtension(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/index.html", "html"},
		{"/a/b/script.JS?v=1", "js"},
		{"/style.css#frag", "css"},
		{"/", ""},
		{"/api/v1.2/users", ""},
		{"/trailingdot.", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, uriExtension(tt.uri), tt.uri)
	}
}

// commanderStub answers soldier requests the way the real commander would
// with logging on and interception off, recording what it saw.
type commanderStub struct {
	t        *testing.T
	requests chan commander.Request
	mailbox  chan commander.Response
	logDir   string
	history  chan history.Record
	seen     chan commander.Request
}

func newCommanderStub(t *testing.T) *commanderStub {
	t.Helper()
	s := &commanderStub{
		t:        t,
		requests: make(chan commander.Request, 16),
		mailbox:  make(chan commander.Response, 1),
		logDir:   t.TempDir(),
		history:  make(chan history.Record, 100),
		seen:     make(chan commander.Request, 16),
	}
	go s.serve()

	return s
}

func (s *commanderStub) serve() {
	logID := 0
	for request := range s.requests {
		s.seen <- request
		switch request.Kind {
		case commander.ReqShouldLogHTTP, commander.ReqShouldLogHTTPCt:
			dir := filepath.Join(s.logDir, itoa(logID))
			if err := os.Mkdir(dir, 0o755); err != nil {
				s.t.Error(err)
			}
			s.mailbox <- commander.Response{Kind: commander.RespHTTPLog, HTTPLog: &commander.HTTPLogGrant{
				LogID: logID, Dir: dir, History: s.history,
			}}
			logID++
		case commander.ReqIntercept:
			s.mailbox <- commander.Response{Kind: commander.RespResume}
		case commander.ReqShouldProxyWs:
			s.mailbox <- commander.Response{Kind: commander.RespWsProxy, WsProxy: false}
		case commander.ReqClose:
		default:
			s.t.Errorf("unexpected request kind %v", request.Kind)
		}
	}
}

func TestInnerPipelineRelaysExchange(t *testing.T) {
	stub := newCommanderStub(t)

	clientNear, clientFar := net.Pipe()
	serverNear, serverFar := net.Pipe()

	c := NewConn(1, clientFar, stub.requests, zerolog.Nop())
	c.server = serverNear
	c.mailbox = stub.mailbox
	c.info = serverinfo.New(serverinfo.Address{Host: "example.org", Port: 80}, false)

	done := make(chan struct{})
	go func() {
		c.runHTTP(context.Background(), pipeReceive)
		close(done)
	}()

	request := "POST /echo.html HTTP/1.1\r\nHost: example.org\r\nContent-Length: 5\r\n\r\nhello"
	go func() {
		_, _ = clientNear.Write([]byte(request)) //nolint:errcheck
	}()

	// upstream sees the canonical request
	got := make([]byte, len(request))
	_, err := io.ReadFull(serverFar, got)
	require.NoError(t, err)
	require.Equal(t, request, string(got))

	// upstream answers; the client must receive it verbatim
	response := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	go func() {
		_, _ = serverFar.Write([]byte(response)) //nolint:errcheck
	}()

	reply := make([]byte, len(response))
	_, err = io.ReadFull(clientNear, reply)
	require.NoError(t, err)
	require.Equal(t, response, string(reply))

	clientNear.Close()
	serverFar.Close()
	<-done

	// artifacts: 0.req and 0.res under the granted directory
	reqData, err := os.ReadFile(filepath.Join(stub.logDir, "0", "0.req"))
	require.NoError(t, err)
	require.Equal(t, request, string(reqData))

	resData, err := os.ReadFile(filepath.Join(stub.logDir, "0", "0.res"))
	require.NoError(t, err)
	require.Equal(t, response, string(resData))

	// history got a request line then a response line, in order
	first := <-stub.history
	second := <-stub.history
	require.Equal(t, history.KindHTTP, first.Kind)
	require.Contains(t, first.Line, `"method":"POST"`)
	require.Contains(t, second.Line, `"status":"200"`)
}

func TestShouldLogRoutesAcceptHeaderThroughContentType(t *testing.T) {
	stub := newCommanderStub(t)

	frame, err := oneone.New(oneone.RoleRequest, newFrameBytes(
		"GET / HTTP/1.1\r\nHost: x\r\nAccept: text/html, text/plain\r\n\r\n"))
	require.NoError(t, err)

	c := &Conn{id: 1, commander: stub.requests, mailbox: stub.mailbox, log: zerolog.Nop()}
	h := &httpSession{c: c, role: oneone.RoleRequest, frame: frame}

	require.Equal(t, pipeWriteHistory, h.shouldLog())

	select {
	case request := <-stub.seen:
		require.Equal(t, commander.ReqShouldLogHTTPCt, request.Kind)
		require.Equal(t, mime.Text, request.Ct)
	case <-time.After(time.Second):
		t.Fatal("no request reached the commander")
	}
	require.NotNil(t, h.grant)
}

func TestShouldLogBypassesForHead(t *testing.T) {
	stub := newCommanderStub(t)

	frame, err := oneone.New(oneone.RoleRequest, newFrameBytes("HEAD / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	c := &Conn{id: 1, commander: stub.requests, mailbox: stub.mailbox, log: zerolog.Nop()}
	h := &httpSession{c: c, role: oneone.RoleRequest, frame: frame}

	require.Equal(t, pipeSend, h.shouldLog())
	require.Nil(t, h.grant)
	select {
	case request := <-stub.seen:
		t.Fatalf("unexpected commander request %v", request.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func newFrameBytes(raw string) bytebuf.ByteString {
	return bytebuf.NewString(raw)
}
