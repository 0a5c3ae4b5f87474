package proxy

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/harpoon-proxy/harpoon/http/method"
	"github.com/harpoon-proxy/harpoon/http/mime"
	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/harpoon-proxy/harpoon/internal/commander"
	"github.com/harpoon-proxy/harpoon/internal/history"
	"github.com/harpoon-proxy/harpoon/internal/intercept"
	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
)

type pipeState uint8

const (
	pipeReceive pipeState = iota + 1
	pipeShouldLog
	pipeWriteHistory
	pipeLog
	pipeShouldIntercept
	pipeIntercept
	pipeResumeIntercept
	pipeReadModFile
	pipeUpdateFrame
	pipeReWrite
	pipeSend
	pipeNewConnection
	pipeServerClose
	pipeSwitchProtocol
	pipeDrop
	pipeEnd
)

// reconnectBudget bounds the upstream failures tolerated for one request:
// the first failure is redialed, the reconnectBudget-th ends the session.
const reconnectBudget = 2

// httpSession drives the inner pipeline over one connection. The two
// directions run in series: a request walks the pipeline into Send, then
// the same walk repeats for the response, then the next request.
type httpSession struct {
	c          *Conn
	role       oneone.Role
	frame      *oneone.OneOne
	payload    bytebuf.ByteString
	reqPayload bytebuf.ByteString // replayed on reconnect
	resume     *intercept.ResumeInfo
	grant      *commander.HTTPLogGrant
	reconnects int
}

func (c *Conn) runHTTP(ctx context.Context, start pipeState) {
	h := &httpSession{c: c, role: oneone.RoleRequest, frame: c.frame}
	c.frame = nil
	h.run(ctx, start)
}

/* Inner pipeline:
 *      Receive -> ShouldLog -> WriteHistory -> Log -> ShouldIntercept
 *        -> Intercept -> ResumeIntercept -> ReadModFile -> UpdateFrame
 *        -> ReWrite -> Send -> (direction flips)
 * Branches: ServerClose (reconnect once), NewConnection (retarget),
 * Drop, SwitchProtocol (101 -> WebSocket hand-off).
 */
func (h *httpSession) run(ctx context.Context, state pipeState) {
	for state != pipeEnd {
		if ctx.Err() != nil {
			return
		}
		state = h.step(ctx, state)
	}
}

func (h *httpSession) step(ctx context.Context, state pipeState) pipeState {
	c := h.c

	switch state {
	case pipeReceive:
		stream, failure := c.client, StageReadFromClient
		if h.role == oneone.RoleResponse {
			stream, failure = c.server, StageReadFromServer
		}
		frame, err := c.readFrame(stream, h.role)
		if err != nil {
			if failure == StageReadFromServer {
				c.log.Debug().Err(err).Msg("read from server")
				return pipeServerClose
			}
			c.log.Debug().Err(err).Msg("read from client")
			return pipeEnd
		}
		h.frame = frame

		return pipeShouldLog

	case pipeShouldLog:
		return h.shouldLog()

	case pipeWriteHistory:
		h.writeHistory()
		return pipeLog

	case pipeLog:
		h.payload = h.frame.IntoBytes()
		h.frame = nil
		if err := h.writeLogFile(); err != nil {
			c.log.Error().Err(err).Msg("log write")
		}

		return pipeShouldIntercept

	case pipeShouldIntercept:
		return pipeIntercept

	case pipeIntercept:
		toUI := intercept.NewHTTPResToUI(h.grant.LogID)
		if h.role == oneone.RoleRequest {
			toUI = intercept.NewHTTPReqToUI(h.grant.LogID, c.info.ToJSON())
		}
		response, err := c.ask(commander.Request{Kind: commander.ReqIntercept, Intercept: toUI})
		if err != nil {
			c.log.Error().Err(err).Msg("intercept")
			return pipeEnd
		}
		if response.Kind == commander.RespDrop {
			return pipeDrop
		}
		h.resume = response.Resume

		return pipeResumeIntercept

	case pipeResumeIntercept:
		switch {
		case h.resume == nil:
			return pipeSend
		case h.resume.Modified:
			return pipeReadModFile
		case h.resume.ServerInfo != nil:
			return pipeNewConnection
		default:
			return pipeSend
		}

	case pipeReadModFile:
		data, err := os.ReadFile(h.logPath())
		if err != nil {
			c.log.Error().Err(err).Msg("mod file read")
			return pipeEnd
		}
		h.payload = bytebuf.New(data)
		if h.resume.Update() {
			return pipeUpdateFrame
		}
		if h.resume.ServerInfo != nil {
			return pipeNewConnection
		}

		return pipeSend

	case pipeUpdateFrame:
		updated, err := oneone.Update(h.role, h.payload)
		if err != nil {
			c.log.Error().Err(err).Msg("update frame")
			return pipeEnd
		}
		h.payload = updated.IntoBytes()

		return pipeReWrite

	case pipeReWrite:
		if err := os.WriteFile(h.logPath(), h.payload.Bytes(), 0o644); err != nil {
			c.log.Error().Err(err).Msg("rewrite")
		}
		if h.resume != nil && h.resume.ServerInfo != nil {
			return pipeNewConnection
		}

		return pipeSend

	case pipeSend:
		return h.send()

	case pipeNewConnection:
		return h.retarget()

	case pipeServerClose:
		return h.reconnect()

	case pipeSwitchProtocol:
		h.switchProtocol(ctx)
		return pipeEnd

	case pipeDrop:
		if h.role == oneone.RoleRequest {
			// nothing was relayed; the client may try again on the same
			// connection
			h.nextExchange()
			return pipeReceive
		}

		return pipeEnd
	}

	return pipeEnd
}

// shouldLog consults the commander once per exchange. The response side
// reuses the request's verdict.
func (h *httpSession) shouldLog() pipeState {
	c := h.c

	if h.role == oneone.RoleResponse {
		if h.grant == nil {
			return pipeSend
		}

		return pipeWriteHistory
	}

	m := method.Parse(h.frame.Request().Method())
	if method.BypassesLog(m) {
		h.grant = nil
		return pipeSend
	}

	request := commander.Request{Kind: commander.ReqShouldLogHTTP, Ext: uriExtension(h.frame.Request().URIString())}
	if request.Ext == "" {
		if accept, found := h.frame.Headers().Value("Accept"); found {
			if ct, ok := mime.FromAcceptHeader(accept); ok {
				request = commander.Request{Kind: commander.ReqShouldLogHTTPCt, Ct: ct}
			}
		}
	}

	response, err := c.ask(request)
	if err != nil {
		c.log.Error().Err(err).Msg("should log")
		return pipeEnd
	}
	h.grant = response.HTTPLog
	if h.grant == nil {
		return pipeSend
	}

	return pipeWriteHistory
}

func (h *httpSession) writeHistory() {
	var (
		record history.Record
		err    error
	)

	if h.role == oneone.RoleRequest {
		line := history.RequestLine{
			ID:     h.grant.LogID,
			Method: h.frame.Request().Method(),
			Host:   h.c.info.Address.StringFromScheme(h.c.info.Scheme),
			URI:    h.frame.Request().URIString(),
		}
		if !h.c.info.TLS() {
			line.HTTP = "1"
		}
		record, err = history.HTTPRecord(line)
	} else {
		length := 0
		if body := h.frame.Body(); body != nil {
			length = body.Len()
		}
		record, err = history.HTTPRecord(history.ResponseLine{
			ID:     h.grant.LogID,
			Status: h.frame.Response().Status(),
			Length: length,
		})
	}

	if err != nil {
		h.c.log.Error().Err(err).Msg("history record")
		return
	}
	h.grant.History <- record
}

// send relays the payload and flips the direction. The payload that went
// toward the server is retained for a possible reconnect replay.
func (h *httpSession) send() pipeState {
	c := h.c

	if h.role == oneone.RoleRequest {
		// frames that skipped logging still hold the parsed frame
		if h.frame != nil {
			h.payload = h.frame.IntoBytes()
			h.frame = nil
		}
		h.reqPayload = h.payload.Clone()
		if err := writeAndFlush(c.server, h.payload.Bytes()); err != nil {
			c.log.Debug().Err(err).Msg("send to server")
			return pipeServerClose
		}
		h.role = oneone.RoleResponse
		h.resume = nil

		return pipeReceive
	}

	switching := h.isSwitchingProtocols()
	if h.frame != nil {
		h.payload = h.frame.IntoBytes()
		h.frame = nil
	}
	if err := writeAndFlush(c.client, h.payload.Bytes()); err != nil {
		c.log.Debug().Err(err).Msg("send to client")
		return pipeEnd
	}
	if switching {
		return pipeSwitchProtocol
	}

	h.nextExchange()

	return pipeReceive
}

func (h *httpSession) isSwitchingProtocols() bool {
	if h.frame != nil && h.frame.Response() != nil {
		if code, ok := h.frame.Response().StatusCode(); ok {
			return code == 101
		}
	}

	return strings.HasPrefix(h.payload.String(), "HTTP/1.1 101")
}

// nextExchange resets the per-exchange state for the next request.
func (h *httpSession) nextExchange() {
	h.role = oneone.RoleRequest
	h.frame = nil
	h.grant = nil
	h.resume = nil
	h.reconnects = 0
}

// reconnect redials the upstream once and replays the captured request.
func (h *httpSession) reconnect() pipeState {
	c := h.c

	h.reconnects++
	if h.reconnects >= reconnectBudget || h.reqPayload.Empty() {
		return pipeEnd
	}

	if c.server != nil {
		c.server.Close()
	}
	server, err := dial(c.info.Address)
	if err != nil {
		c.log.Debug().Err(err).Msg("reconnect dial")
		return pipeEnd
	}
	c.server = server

	if c.info.TLS() {
		if err := c.encryptUpstream(c.info.EffectiveSNI()); err != nil {
			c.log.Debug().Err(err).Msg("reconnect tls")
			return pipeEnd
		}
	}

	h.role = oneone.RoleRequest
	h.frame = nil
	h.payload = h.reqPayload.Clone()

	return pipeSend
}

// retarget moves the upstream side to the server the user picked during
// intercept; the client side stays as it is.
func (h *httpSession) retarget() pipeState {
	c := h.c

	info, err := serverinfo.FromJSON(h.resume.ServerInfo)
	if err != nil {
		c.log.Error().Err(err).Msg("retarget info")
		return pipeEnd
	}

	if c.server != nil {
		c.server.Close()
	}
	server, err := dial(info.Address)
	if err != nil {
		c.log.Debug().Err(err).Msg("retarget dial")
		return pipeEnd
	}
	c.server = server
	c.info = info

	if info.TLS() {
		if err := c.encryptUpstream(info.EffectiveSNI()); err != nil {
			c.log.Debug().Err(err).Msg("retarget tls")
			return pipeEnd
		}
	}

	h.resume = nil

	return pipeSend
}

// switchProtocol hands the duplex over to the WebSocket sub-pipeline.
func (h *httpSession) switchProtocol(ctx context.Context) {
	c := h.c

	response, err := c.ask(commander.Request{Kind: commander.ReqShouldProxyWs})
	if err != nil || !response.WsProxy {
		c.relayUpgraded()
		return
	}

	logDir := ""
	if h.grant != nil {
		logDir = filepath.Join(h.grant.Dir, "websocket")
	}
	c.runWebSocket(ctx, logDir)
}

// relayUpgraded degrades an upgraded connection to a blind copy.
func (c *Conn) relayUpgraded() {
	done := make(chan struct{})
	go func() {
		_, _ = copyStream(c.server, c.client) //nolint:errcheck
		close(done)
	}()
	_, _ = copyStream(c.client, c.server) //nolint:errcheck
	<-done
}

func (h *httpSession) logPath() string {
	name := strings.Join([]string{
		filepath.Join(h.grant.Dir, itoa(h.grant.LogID)), h.roleExt(),
	}, ".")

	return name
}

func (h *httpSession) roleExt() string {
	if h.role == oneone.RoleRequest {
		return "req"
	}

	return "res"
}

// uriExtension extracts the file extension of the path component, ignoring
// query and fragment.
func uriExtension(uri string) string {
	if idx := strings.IndexAny(uri, "?#"); idx != -1 {
		uri = uri[:idx]
	}
	if idx := strings.LastIndexByte(uri, '/'); idx != -1 {
		uri = uri[idx+1:]
	}
	if idx := strings.LastIndexByte(uri, '.'); idx != -1 && idx < len(uri)-1 {
		return strings.ToLower(uri[idx+1:])
	}

	return ""
}
