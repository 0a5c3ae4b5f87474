package proxy

import (
	"context"
	"io"

	"github.com/harpoon-proxy/harpoon/http/method"
	"github.com/harpoon-proxy/harpoon/internal/commander"
	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
)

// proxyEstablished is written to the client once the upstream connection
// stands, before any TLS handshaking.
var proxyEstablished = []byte("HTTP/1.1 200 Connection established\r\n\r\n")

type outerState uint8

const (
	stReadInitialClientData outerState = iota + 1
	stDetermineEncryption
	stDetermineServer
	stEstablishServerConnection
	stShouldProxy
	stRelay
	stTLSHandshakes
	stHandleTLS
	stHandleTCP
	stEnd
)

/* Outer machine:
 *      ReadInitialClientData -> DetermineEncryption -> DetermineServer
 *        -> EstablishServerConnection -> ShouldProxy
 *        -> Relay | (TLS: TLSHandshakes -> HandleTLS) | HandleTCP
 *        -> End
 */

// Handle drives one client connection to completion.
func (c *Conn) Handle(ctx context.Context) {
	defer c.teardown()

	state := stReadInitialClientData
	tls := false

	for state != stEnd {
		if ctx.Err() != nil {
			return
		}

		var err error
		switch state {
		case stReadInitialClientData:
			c.frame, err = c.readFrame(c.client, oneone.RoleRequest)
			if err != nil {
				c.log.Debug().Err(err).Msg("initial read")
				return
			}
			state = stDetermineEncryption

		case stDetermineEncryption:
			tls = method.Parse(c.frame.Request().Method()) == method.CONNECT
			state = stDetermineServer

		case stDetermineServer:
			var addr serverinfo.Address
			addr, err = serverinfo.FromRequestTarget(c.frame.Request().URI(), tls)
			if err != nil {
				c.log.Debug().Err(err).Msg("determine server")
				return
			}
			c.info = serverinfo.New(addr, tls)
			state = stEstablishServerConnection

		case stEstablishServerConnection:
			c.server, err = dial(c.info.Address)
			if err != nil {
				c.log.Debug().Err(err).Str("addr", c.info.Address.String()).Msg("server connect")
				return
			}
			state = stShouldProxy

		case stShouldProxy:
			oneshot := make(chan chan commander.Response, 1)
			c.commander <- commander.Request{
				Kind:  commander.ReqShouldProxy,
				ID:    c.id,
				Host:  c.info.Address.String(),
				Proxy: oneshot,
			}
			mailbox := <-oneshot
			if mailbox == nil {
				state = stRelay
				break
			}
			c.mailbox = mailbox
			if tls {
				state = stTLSHandshakes
			} else {
				state = stHandleTCP
			}

		case stRelay:
			c.relay(tls)
			state = stEnd

		case stTLSHandshakes:
			if err = c.interceptTLS(); err != nil {
				c.log.Debug().Err(err).Msg("tls intercept")
				return
			}
			state = stHandleTLS

		case stHandleTLS:
			// the CONNECT request is spent; the first real frame follows
			c.frame = nil
			c.runHTTP(ctx, pipeReceive)
			state = stEnd

		case stHandleTCP:
			// the request was already read as the initial client data
			c.runHTTP(ctx, pipeShouldLog)
			state = stEnd
		}
	}
}

// relay is the blind path: no parsing past the first frame, plain
// bidirectional copy.
func (c *Conn) relay(tls bool) {
	var err error
	if tls {
		err = writeAndFlush(c.client, proxyEstablished)
	} else {
		frame := c.frame
		c.frame = nil
		payload := frame.IntoBytes()
		err = writeAndFlush(c.server, payload.Bytes())
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("relay start")
		return
	}

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(c.server, c.client) //nolint:errcheck
		close(done)
	}()
	_, _ = io.Copy(c.client, c.server) //nolint:errcheck
	<-done
}

func (c *Conn) teardown() {
	if c.client != nil {
		c.client.Close()
	}
	if c.server != nil {
		c.server.Close()
	}
	if c.mailbox != nil {
		c.commander <- commander.Request{Kind: commander.ReqClose, ID: c.id}
	}
}
