// Package repeater replays stored request artifacts against arbitrary
// targets: the HTTP phase re-sends an edited frame and records the reply;
// a 101 answer converts the session into an interactive WebSocket.
package repeater

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/harpoon-proxy/harpoon/internal/intercept"
	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
	"github.com/rs/zerolog"
)

// OpKind enumerates the repeater UI's requests.
type OpKind uint8

const (
	// OpSend replays the scratch file over the live WebSocket session.
	OpSend OpKind = iota + 1
	// OpClose ends the live session.
	OpClose
)

type Op struct {
	Kind OpKind
}

const (
	responseName = "rep.res"
	dialTimeout  = 30 * time.Second
)

// Repeater consumes forward requests from the commander and replays them.
type Repeater struct {
	in           <-chan *intercept.ForwardInfo
	ops          chan Op
	shouldUpdate bool
	log          zerolog.Logger
}

func New(in <-chan *intercept.ForwardInfo, log zerolog.Logger) *Repeater {
	return &Repeater{
		in:           in,
		ops:          make(chan Op, 1),
		shouldUpdate: true,
		log:          log.With().Str("task", "repeater").Logger(),
	}
}

// Ops is the channel the repeater UI feeds during a WebSocket session.
func (r *Repeater) Ops() chan Op {
	return r.ops
}

// SetShouldUpdate toggles the header-accounting rewrite before sending.
// Defaults to on.
func (r *Repeater) SetShouldUpdate(update bool) {
	r.shouldUpdate = update
}

func (r *Repeater) Run(ctx context.Context) {
	for {
		select {
		case info := <-r.in:
			if err := r.replay(ctx, info); err != nil {
				r.log.Error().Err(err).Str("file", info.File).Msg("replay")
			}
		case <-ctx.Done():
			return
		}
	}
}

/* One replay:
 *      ReadFromFile -> UpdateFrame -> (Upgrade: websocket -> WebSocket
 *        session) | EstablishServerConn -> [EncryptConnection] -> [ReWrite]
 *        -> Send -> Receive -> WriteResponse -> End
 */
func (r *Repeater) replay(ctx context.Context, info *intercept.ForwardInfo) error {
	target, err := serverinfo.FromJSON(info.ServerInfo)
	if err != nil {
		return err
	}

	payload, err := r.readFromFile(info.File)
	if err != nil {
		return err
	}

	frame, err := oneone.Update(oneone.RoleRequest, payload.Clone())
	if err != nil {
		return err
	}
	if r.wantsUpgrade(frame) {
		return r.websocketSession(ctx, frame, target, filepath.Dir(info.File))
	}

	conn, err := r.connect(target)
	if err != nil {
		return err
	}
	defer conn.Close()

	out := payload
	if r.shouldUpdate {
		out = frame.IntoBytes()
		// the rewrite keeps the on-disk artifact in sync with what was sent
		if err := os.WriteFile(info.File, out.Bytes(), 0o644); err != nil {
			r.log.Error().Err(err).Msg("rewrite artifact")
		}
	}

	if _, err := conn.Write(out.Bytes()); err != nil {
		return err
	}

	response, err := r.receive(conn)
	if err != nil {
		return err
	}

	return r.writeResponse(filepath.Dir(info.File), response)
}

func (r *Repeater) readFromFile(path string) (bytebuf.ByteString, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bytebuf.ByteString{}, err
	}

	return bytebuf.New(data), nil
}

func (r *Repeater) connect(target serverinfo.ServerInfo) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", target.Address.String(), dialTimeout)
	if err != nil {
		return nil, err
	}

	if !target.TLS() {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		// the repeater points at arbitrary, often self-signed, targets
		InsecureSkipVerify: true, //nolint:gosec
		ServerName:         target.EffectiveSNI(),
		NextProtos:         []string{"http/1.1"},
	})
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	return tlsConn, nil
}

// receive reads the full response frame, canonicalised.
func (r *Repeater) receive(conn net.Conn) (bytebuf.ByteString, error) {
	buf := bytebuf.NewCapacity(64 * 1024)
	cur := bytebuf.NewCursor(&buf)
	reader := oneone.NewReader(oneone.RoleResponse)

	for !reader.Ended() {
		chunk := buf.Spare()
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Advance(n)
			if nerr := reader.Next(bytebuf.Read, &cur); nerr != nil {
				return bytebuf.ByteString{}, nerr
			}
		}
		if err != nil {
			if nerr := reader.Next(bytebuf.End, &cur); nerr != nil {
				return bytebuf.ByteString{}, nerr
			}
			break
		}
	}

	frame, err := reader.Frame()
	if err != nil {
		return bytebuf.ByteString{}, err
	}

	return frame.IntoBytes(), nil
}

func (r *Repeater) writeResponse(dir string, response bytebuf.ByteString) error {
	return os.WriteFile(filepath.Join(dir, responseName), response.Bytes(), 0o644)
}

func (r *Repeater) wantsUpgrade(frame *oneone.OneOne) bool {
	value, found := frame.Headers().Value("Upgrade")
	return found && value == "websocket"
}
