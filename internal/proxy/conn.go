package proxy

import (
	"io"
	"net"
	"time"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/harpoon-proxy/harpoon/internal/commander"
	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
	"github.com/rs/zerolog"
)

// bufCapacity is the per-connection read buffer; frames are views into it.
const bufCapacity = 2 << 20

const dialTimeout = 30 * time.Second

// Conn is one proxied client connection: the two streams, the reusable
// read buffer and the channel pair toward the commander.
type Conn struct {
	id        int
	client    net.Conn
	server    net.Conn
	buf       bytebuf.ByteString
	commander chan<- commander.Request
	mailbox   chan commander.Response
	frame     *oneone.OneOne
	info      serverinfo.ServerInfo
	log       zerolog.Logger
}

func NewConn(id int, client net.Conn, toCommander chan<- commander.Request, log zerolog.Logger) *Conn {
	return &Conn{
		id:        id,
		client:    client,
		commander: toCommander,
		buf:       bytebuf.NewCapacity(bufCapacity),
		log:       log.With().Int("conn", id).Logger(),
	}
}

// ask sends a request and waits for the reply on the registered mailbox.
func (c *Conn) ask(request commander.Request) (commander.Response, error) {
	request.ID = c.id
	c.commander <- request

	response, ok := <-c.mailbox
	if !ok {
		return commander.Response{}, stageErr(StageCommander, io.ErrClosedPipe)
	}

	return response, nil
}

// readFrame drives a frame reader over the stream until the frame
// completes. Bytes a pipelined peer left in the buffer are parsed first;
// the frame's views alias the buffer.
func (c *Conn) readFrame(stream io.Reader, role oneone.Role) (*oneone.OneOne, error) {
	reader := oneone.NewReader(role)
	cur := bytebuf.NewCursor(&c.buf)

	// a pipelined peer may have left the next frame's prefix behind
	if c.buf.Len() > 0 {
		if err := reader.Next(bytebuf.Read, &cur); err != nil {
			return nil, err
		}
	}

	for !reader.Ended() {
		chunk := c.buf.Spare()
		n, err := stream.Read(chunk)
		if n > 0 {
			c.buf.Advance(n)
			if nerr := reader.Next(bytebuf.Read, &cur); nerr != nil {
				return nil, nerr
			}
		}
		if err != nil {
			if err == io.EOF && !reader.Ended() {
				if nerr := reader.Next(bytebuf.End, &cur); nerr != nil {
					return nil, nerr
				}
				break
			}
			if !reader.Ended() {
				return nil, err
			}
		}
	}

	return reader.Frame()
}

func writeAndFlush(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// dial opens the upstream TCP connection.
func dial(addr serverinfo.Address) (net.Conn, error) {
	return net.DialTimeout("tcp", addr.String(), dialTimeout)
}
