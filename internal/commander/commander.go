// Package commander hosts the proxy's single coordinator task. It owns the
// CA material and cert cache, the compiled policy, the per-connection
// mailbox registry and the intercept queues, and it dispatches between the
// connection workers and the UI endpoints. Because it is one task, none of
// that state needs a lock.
package commander

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/harpoon-proxy/harpoon/config"
	"github.com/harpoon-proxy/harpoon/internal/history"
	"github.com/harpoon-proxy/harpoon/internal/intercept"
	"github.com/rs/zerolog"
)

// HistoryOpKind enumerates the history UI's requests toward the commander.
type HistoryOpKind uint8

const (
	HistoryReloadConfig HistoryOpKind = iota + 1
	HistoryForward
)

type HistoryOp struct {
	Kind    HistoryOpKind
	Forward *intercept.ForwardInfo
}

// Channels bundles every channel the commander serves.
type Channels struct {
	Soldiers      chan Request
	InterceptorUI chan *intercept.UIOp
	InterceptorTo chan *intercept.ToUI
	HistoryUI     chan HistoryOp
	ToHistory     chan history.Record
	ToRepeater    chan *intercept.ForwardInfo
	ToAddon       chan *intercept.ForwardInfo
}

// NewChannels builds the channel set with the standard capacities: 1 for
// request/reply style pairs, 100 toward history.
func NewChannels() Channels {
	return Channels{
		Soldiers:      make(chan Request, 100),
		InterceptorUI: make(chan *intercept.UIOp, 1),
		InterceptorTo: make(chan *intercept.ToUI, 1),
		HistoryUI:     make(chan HistoryOp, 1),
		ToHistory:     make(chan history.Record, 100),
		ToRepeater:    make(chan *intercept.ForwardInfo, 1),
		ToAddon:       make(chan *intercept.ForwardInfo, 1),
	}
}

// Commander is the coordinator state. Everything here is owned exclusively
// by the Run loop.
type Commander struct {
	crypto      *CaptainCrypto
	policy      *config.Policy
	soldiers    soldiers
	interceptor interceptorComm
	historyDir  string
	httpLogID   int
	ch          Channels
	log         zerolog.Logger
}

func New(crypto *CaptainCrypto, policy *config.Policy, sessionDir string, ch Channels, log zerolog.Logger) *Commander {
	return &Commander{
		crypto:      crypto,
		policy:      policy,
		soldiers:    newSoldiers(),
		interceptor: newInterceptorComm(ch.InterceptorTo),
		historyDir:  filepath.Join(sessionDir, "history"),
		ch:          ch,
		log:         log.With().Str("task", "commander").Logger(),
	}
}

// Run serves until the context is cancelled. A watcher on the session
// config feeds reloads; every other source is a channel.
func (c *Commander) Run(ctx context.Context) {
	c.log.Debug().Msg("commander started")

	watcher, watchEvents := c.watchSessionConfig()
	if watcher != nil {
		defer watcher.Close()
	}

	for {
		select {
		case request := <-c.ch.Soldiers:
			if err := c.handleSoldier(request); err != nil {
				c.log.Error().Err(err).Int("id", request.ID).Msg("soldier request")
			}

		case op := <-c.ch.InterceptorUI:
			if err := c.handleInterceptor(op); err != nil {
				c.log.Error().Err(err).Msg("interceptor op")
			}

		case op := <-c.ch.HistoryUI:
			c.handleHistory(op)

		case event := <-watchEvents:
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				c.reloadConfig()
			}

		case <-ctx.Done():
			c.log.Debug().Msg("commander stopped")
			return
		}
	}
}

func (c *Commander) handleSoldier(request Request) error {
	switch request.Kind {
	case ReqShouldProxy:
		if c.policy.ShouldProxy(request.Host) {
			c.log.Trace().Int("id", request.ID).Str("host", request.Host).Msg("proxying")
			request.Proxy <- c.soldiers.addHTTP(request.ID)
		} else {
			c.log.Trace().Int("id", request.ID).Str("host", request.Host).Msg("relay")
			request.Proxy <- nil
		}

		return nil

	case ReqClientTLS:
		return c.reply(request.ID, Response{Kind: RespClientTLS, ClientTLS: c.crypto.ClientTLS()})

	case ReqVerifyChain:
		verified := c.crypto.VerifyChain(request.Chain, request.ServerSNI)
		return c.reply(request.ID, Response{Kind: RespVerified, Verified: verified})

	case ReqCheckCert:
		cfg := c.crypto.CheckCert(request.Verified, request.Digest)
		return c.reply(request.ID, Response{Kind: RespServerConfig, ServerConfig: cfg})

	case ReqGenCert:
		cfg, err := c.crypto.GenCert(request.Verified, request.Digest, request.Chain)
		if err != nil {
			c.log.Error().Err(err).Int("id", request.ID).Msg("cert forge")
		}
		return c.reply(request.ID, Response{Kind: RespServerConfig, ServerConfig: cfg})

	case ReqShouldLogHTTP:
		var grant *HTTPLogGrant
		if c.policy.ShouldLog(request.Ext) {
			grant = c.allocateLogDir(request.ID)
		}
		return c.reply(request.ID, Response{Kind: RespHTTPLog, HTTPLog: grant})

	case ReqShouldLogHTTPCt:
		var grant *HTTPLogGrant
		if !c.policy.InExcludedContentTypes(request.Ct) {
			grant = c.allocateLogDir(request.ID)
		}
		return c.reply(request.ID, Response{Kind: RespHTTPLog, HTTPLog: grant})

	case ReqShouldProxyWs:
		return c.reply(request.ID, Response{Kind: RespWsProxy, WsProxy: c.policy.WithWS()})

	case ReqWsRegister:
		return c.wsRegister(request.ID)

	case ReqWsLog:
		logID, err := c.soldiers.nextWsLogID(request.ID)
		if err != nil {
			return err
		}
		response := Response{Kind: RespWsLogID, WsLogID: logID}
		if request.WsRole == WsClient {
			return c.soldiers.sendFt(request.ID, intercept.FileWreq, response)
		}
		return c.soldiers.sendFt(request.ID, intercept.FileWres, response)

	case ReqShouldInterceptWsResponse:
		need, err := c.soldiers.takeNeedResponse(request.ID)
		if err != nil {
			return err
		}
		return c.soldiers.sendFt(request.ID, intercept.FileWres,
			Response{Kind: RespShouldInterceptWs, NeedResponse: need})

	case ReqIntercept:
		return c.interceptFrame(request)

	case ReqClose:
		if c.soldiers.removeHTTP(request.ID) {
			c.log.Trace().Int("id", request.ID).Msg("removed http")
		} else if c.soldiers.removeWs(request.ID) {
			c.log.Trace().Int("id", request.ID).Msg("removed ws")
			c.ch.ToHistory <- history.Record{Kind: history.KindRemoveWs, ConnID: request.ID}
		}

		return nil
	}

	return nil
}

func (c *Commander) reply(id int, response Response) error {
	return c.soldiers.sendFt(id, intercept.FileReq, response)
}

// allocateLogDir creates history/<N> and hands out its id together with the
// history channel.
func (c *Commander) allocateLogDir(connID int) *HTTPLogGrant {
	logID := c.httpLogID
	dir := filepath.Join(c.historyDir, strconv.Itoa(logID))
	if err := os.Mkdir(dir, 0o755); err != nil {
		c.log.Error().Err(err).Int("id", connID).Msg("creating log directory")
		return nil
	}
	c.httpLogID++

	return &HTTPLogGrant{LogID: logID, Dir: dir, History: c.ch.ToHistory}
}

// wsRegister swaps the connection's HTTP mailbox into the server slot of
// the WebSocket registry, mints the client-direction mailbox and hands both
// over through the original channel.
func (c *Commander) wsRegister(id int) error {
	server, err := c.soldiers.popHTTP(id)
	if err != nil {
		return err
	}

	client := make(chan Response, 1)
	server <- Response{Kind: RespWsRegister, WsRegister: &WsRegisterGrant{
		ClientMailbox: client,
		History:       c.ch.ToHistory,
	}}
	c.soldiers.addWs(id, client, server)
	c.log.Trace().Int("id", id).Msg("ws registered")

	return nil
}

// interceptFrame pauses the frame: when interception is off the worker is
// resumed immediately with no edits, otherwise the announcement goes to the
// interceptor UI and the pause is queued.
func (c *Commander) interceptFrame(request Request) error {
	info := request.Intercept
	if !c.interceptor.enabled {
		c.log.Trace().Int("id", request.ID).Msg("interceptor off")
		return c.soldiers.sendFt(request.ID, info.Ft, Response{Kind: RespResume})
	}

	logID := info.ID
	if info.WsInfo != nil {
		logID = info.WsInfo.LogID
	}
	c.interceptor.push(info.Ft, request.ID, logID)
	c.interceptor.toUI <- info

	return nil
}

func (c *Commander) handleInterceptor(op *intercept.UIOp) error {
	switch op.Kind {
	case intercept.UIOpToggle:
		c.interceptor.toggle()
		if !c.interceptor.enabled {
			return c.emptyResumeQueues()
		}
		return nil

	case intercept.UIOpForward:
		return c.forward(op.Forward)

	case intercept.UIOpResume:
		resume := op.Resume
		connID, err := c.interceptor.pop(resume.Ft, resume.ID)
		if err != nil {
			return err
		}
		if resume.Ft == intercept.FileWreq && resume.NeedResponse {
			if err := c.soldiers.setNeedResponse(connID); err != nil {
				return err
			}
		}
		return c.soldiers.sendFt(connID, resume.Ft, Response{Kind: RespResume, Resume: resume})

	case intercept.UIOpDrop:
		connID, err := c.interceptor.pop(op.DropFt, op.DropID)
		if err != nil {
			return err
		}
		return c.soldiers.sendFt(connID, op.DropFt, Response{Kind: RespDrop})
	}

	return nil
}

// emptyResumeQueues resumes every paused worker with no edits: exactly one
// Resume per queue entry, then the queues are empty.
func (c *Commander) emptyResumeQueues() error {
	for ft, queue := range map[intercept.FileType]*[]queueEntry{
		intercept.FileReq:  &c.interceptor.http,
		intercept.FileWreq: &c.interceptor.wreq,
		intercept.FileWres: &c.interceptor.wres,
	} {
		for _, entry := range *queue {
			if err := c.soldiers.sendFt(entry.connID, ft, Response{Kind: RespResume}); err != nil {
				c.log.Error().Err(err).Int("id", entry.connID).Msg("broadcast resume")
			}
		}
		*queue = (*queue)[:0]
	}
	c.log.Trace().Msg("resume queues emptied")

	return nil
}

func (c *Commander) handleHistory(op HistoryOp) {
	switch op.Kind {
	case HistoryReloadConfig:
		c.reloadConfig()
	case HistoryForward:
		if err := c.forward(op.Forward); err != nil {
			c.log.Error().Err(err).Msg("history forward")
		}
	}
}

func (c *Commander) forward(info *intercept.ForwardInfo) error {
	if info == nil {
		return nil
	}
	if info.To.Repeater {
		c.ch.ToRepeater <- info
	} else {
		c.ch.ToAddon <- info
	}

	return nil
}

func (c *Commander) reloadConfig() {
	global, err := config.LoadGlobal()
	if err != nil {
		c.log.Error().Err(err).Msg("reload global config")
		return
	}
	local, err := config.LoadSession(filepath.Dir(c.historyDir))
	if err != nil {
		c.log.Error().Err(err).Msg("reload session config")
		return
	}

	c.policy = config.Build(local, global)
	c.log.Debug().Msg("config reloaded")
}

// watchSessionConfig registers an fsnotify watch on the session directory
// so edits to config.toml take effect without a restart.
func (c *Commander) watchSessionConfig() (*fsnotify.Watcher, chan fsnotify.Event) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Error().Err(err).Msg("config watcher")
		return nil, nil
	}
	if err := watcher.Add(filepath.Dir(c.historyDir)); err != nil {
		c.log.Error().Err(err).Msg("config watch add")
		watcher.Close()
		return nil, nil
	}

	events := make(chan fsnotify.Event, 1)
	go func() {
		for event := range watcher.Events {
			if filepath.Base(event.Name) != "config.toml" {
				continue
			}
			select {
			case events <- event:
			default:
			}
		}
	}()

	return watcher, events
}
