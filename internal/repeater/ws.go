package repeater

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/gorilla/websocket"
	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
)

const (
	scratchName   = "scratch.wreq"
	wsHistoryName = "history.wsess"
)

// wsSession is a live repeater WebSocket: the dialed connection, the
// scratch file the user edits, the session log and the frame counter.
type wsSession struct {
	r       *Repeater
	conn    *websocket.Conn
	dir     string
	counter int
}

/* The WebSocket repeater: the stored upgrade request names target and
 * path; the handshake is redone against the chosen server. Afterwards
 * every UI Send replays the scratch file as one message, while a reader
 * drains and logs the server's frames.
 */
func (r *Repeater) websocketSession(ctx context.Context, frame *oneone.OneOne, target serverinfo.ServerInfo, dir string) error {
	sessionDir := filepath.Join(dir, "repeater-"+uniuri.NewLen(8))
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return err
	}

	conn, err := dialWebSocket(frame, target)
	if err != nil {
		return err
	}

	session := &wsSession{r: r, conn: conn, dir: sessionDir}
	if err := session.ensureScratch(); err != nil {
		conn.Close()
		return err
	}

	return session.run(ctx)
}

func dialWebSocket(frame *oneone.OneOne, target serverinfo.ServerInfo) (*websocket.Conn, error) {
	scheme := "ws"
	if target.TLS() {
		scheme = "wss"
	}
	path, query, _ := strings.Cut(frame.Request().URIString(), "?")
	u := url.URL{
		Scheme:   scheme,
		Host:     target.Address.String(),
		Path:     path,
		RawQuery: query,
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec
			ServerName:         target.EffectiveSNI(),
		},
	}

	// carry the stored request's headers, minus the ones the handshake owns
	header := http.Header{}
	for _, h := range frame.Headers().Headers() {
		switch h.Key() {
		case "Host", "Upgrade", "Connection",
			"Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Extensions":
		default:
			header.Add(h.Key(), h.Value())
		}
	}

	conn, _, err := dialer.Dial(u.String(), header)

	return conn, err
}

func (s *wsSession) ensureScratch() error {
	path := filepath.Join(s.dir, scratchName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.WriteFile(path, nil, 0o644)
	}

	return nil
}

func (s *wsSession) run(ctx context.Context) error {
	defer s.conn.Close()

	incoming := make(chan struct{})
	go func() {
		defer close(incoming)
		for {
			kind, payload, err := s.conn.ReadMessage()
			if err != nil {
				return
			}
			s.logFrame("wres", "<-", kind == websocket.BinaryMessage, payload)
		}
	}()

	for {
		select {
		case op := <-s.r.ops:
			switch op.Kind {
			case OpSend:
				if err := s.sendScratch(); err != nil {
					s.r.log.Error().Err(err).Msg("ws send")
					return err
				}
			case OpClose:
				return nil
			}

		case <-incoming:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// sendScratch replays the scratch file as one text message and logs it as
// the next .wreq frame.
func (s *wsSession) sendScratch() error {
	payload, err := os.ReadFile(filepath.Join(s.dir, scratchName))
	if err != nil {
		return err
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	s.logFrame("wreq", "->", false, payload)

	return nil
}

func (s *wsSession) logFrame(ext, arrow string, binary bool, payload []byte) {
	id := s.counter
	s.counter++

	path := filepath.Join(s.dir, strconv.Itoa(id)+"."+ext)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		s.r.log.Error().Err(err).Msg("ws frame write")
	}

	line := strconv.Itoa(id) + " | " + arrow + " | "
	if binary {
		line += "b | "
	}
	line += strconv.Itoa(len(payload)) + "\n"

	f, err := os.OpenFile(filepath.Join(s.dir, wsHistoryName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.r.log.Error().Err(err).Msg("ws history open")
		return
	}
	if _, err := f.WriteString(line); err != nil {
		s.r.log.Error().Err(err).Msg("ws history write")
	}
	f.Close()
}
