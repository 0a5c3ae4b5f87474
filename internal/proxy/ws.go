package proxy

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/harpoon-proxy/harpoon/internal/commander"
	"github.com/harpoon-proxy/harpoon/internal/history"
	"github.com/harpoon-proxy/harpoon/internal/intercept"
)

// wsDirection is one of the two one-way workers of an upgraded connection.
type wsDirection struct {
	c       *Conn
	role    commander.WsRole
	src     io.Reader
	dst     io.Writer
	mailbox chan commander.Response
	history chan<- history.Record
	logDir  string
	// frames from the client toward the server must be re-masked
	maskOut bool
	cancel  context.CancelFunc
}

// runWebSocket converts the finished HTTP exchange into the two one-way
// message pipelines sharing one log directory.
func (c *Conn) runWebSocket(ctx context.Context, logDir string) {
	response, err := c.ask(commander.Request{Kind: commander.ReqWsRegister})
	if err != nil || response.WsRegister == nil {
		c.log.Error().Err(err).Msg("ws register")
		c.relayUpgraded()
		return
	}
	grant := response.WsRegister

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			c.log.Error().Err(err).Msg("ws log dir")
			logDir = ""
		}
		grant.History <- history.Record{Kind: history.KindRegisterWs, Reg: &history.WsRegistration{
			ConnID: c.id,
			Scheme: c.info.Scheme.String(),
			Host:   c.info.Address.StringFromScheme(c.info.Scheme),
			Dir:    logDir,
		}}
	}

	wsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := &wsDirection{
		c: c, role: commander.WsClient,
		src: c.client, dst: c.server,
		mailbox: grant.ClientMailbox, history: grant.History,
		logDir: logDir, maskOut: true, cancel: cancel,
	}
	server := &wsDirection{
		c: c, role: commander.WsServer,
		src: c.server, dst: c.client,
		mailbox: c.mailbox, history: grant.History,
		logDir: logDir, maskOut: false, cancel: cancel,
	}

	done := make(chan struct{})
	go func() {
		client.run(wsCtx)
		close(done)
	}()
	server.run(wsCtx)
	cancel()
	// unblock the companion if it still sits in a read
	c.client.Close()
	c.server.Close()
	<-done
}

/* Per-message pipeline, mirroring HTTP:
 *      Receive -> ShouldLog -> WriteHistory -> Log -> ShouldIntercept
 *        -> Intercept -> ResumeIntercept -> ReadModFile -> UpdateFrame
 *        -> Send -> Receive
 * Control frames are relayed unlogged; a Close ends both directions.
 */
func (d *wsDirection) run(ctx context.Context) {
	for ctx.Err() == nil {
		op, payload, err := readWsMessage(d.src)
		if err != nil {
			d.cancel()
			return
		}

		if op.Control() {
			if werr := writeWsMessage(d.dst, op, payload, d.maskOut); werr != nil || op == OpClose {
				d.cancel()
				return
			}
			continue
		}

		if !d.relayData(op, payload) {
			d.cancel()
			return
		}
	}
}

// relayData walks one text/binary message through log, intercept and send.
// Returns false when the session must end.
func (d *wsDirection) relayData(op Opcode, payload []byte) bool {
	logID, logged := d.writeLog(op, payload)

	if logged && d.shouldIntercept() {
		verdict, ok := d.intercept(op, payload, logID)
		if !ok {
			return false
		}
		if verdict.dropped {
			return true
		}
		if verdict.payload != nil {
			payload = verdict.payload
		}
	}

	if err := writeWsMessage(d.dst, op, payload, d.maskOut); err != nil {
		d.c.log.Debug().Err(err).Msg("ws send")
		return false
	}

	return true
}

// writeLog allocates the frame's log id, appends the session line and
// persists the payload. Only text and binary messages are persisted.
func (d *wsDirection) writeLog(op Opcode, payload []byte) (int, bool) {
	if d.logDir == "" {
		return 0, false
	}

	response, err := d.c.askOn(d.mailbox, commander.Request{Kind: commander.ReqWsLog, WsRole: d.role})
	if err != nil {
		return 0, false
	}
	logID := response.WsLogID

	line := strconv.Itoa(logID) + " | " + d.arrow() + " | "
	if op == OpBinary {
		line += "b | "
	}
	line += strconv.Itoa(len(payload)) + "\n"
	d.history <- history.Record{Kind: history.KindWs, ConnID: d.c.id, Line: line}

	path := filepath.Join(d.logDir, strconv.Itoa(logID)+"."+d.ext())
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		d.c.log.Error().Err(err).Msg("ws log write")
	}

	return logID, true
}

// shouldIntercept: the client direction always pauses (subject to the
// global toggle); the server direction only when the user asked to see the
// response to an edited client frame.
func (d *wsDirection) shouldIntercept() bool {
	if d.role == commander.WsClient {
		return true
	}

	response, err := d.c.askOn(d.mailbox, commander.Request{Kind: commander.ReqShouldInterceptWsResponse})
	if err != nil {
		return false
	}

	return response.NeedResponse
}

type wsVerdict struct {
	dropped bool
	payload []byte
}

func (d *wsDirection) intercept(op Opcode, payload []byte, logID int) (wsVerdict, bool) {
	toUI := intercept.NewWsToUI(d.c.id, logID, d.ft(), op == OpBinary)
	response, err := d.c.askOn(d.mailbox, commander.Request{Kind: commander.ReqIntercept, Intercept: toUI})
	if err != nil {
		return wsVerdict{}, false
	}

	if response.Kind == commander.RespDrop {
		return wsVerdict{dropped: true}, true
	}

	resume := response.Resume
	if resume == nil || !resume.Modified {
		return wsVerdict{}, true
	}

	path := filepath.Join(d.logDir, strconv.Itoa(logID)+"."+d.ext())
	edited, err := os.ReadFile(path)
	if err != nil {
		d.c.log.Error().Err(err).Msg("ws mod file")
		return wsVerdict{}, true
	}

	// the message kind is preserved; editing cannot turn text into a
	// control frame
	return wsVerdict{payload: edited}, true
}

func (d *wsDirection) arrow() string {
	if d.role == commander.WsClient {
		return "->"
	}

	return "<-"
}

func (d *wsDirection) ext() string {
	return d.ft().String()
}

func (d *wsDirection) ft() intercept.FileType {
	if d.role == commander.WsClient {
		return intercept.FileWreq
	}

	return intercept.FileWres
}

// askOn is ask against a specific mailbox, for the two WebSocket workers
// that each own one direction's channel.
func (c *Conn) askOn(mailbox chan commander.Response, request commander.Request) (commander.Response, error) {
	request.ID = c.id
	c.commander <- request

	response, ok := <-mailbox
	if !ok {
		return commander.Response{}, stageErr(StageCommander, io.ErrClosedPipe)
	}

	return response, nil
}
