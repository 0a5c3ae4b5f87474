// Package harpoon wires the proxy together: configuration, the commander,
// the session workers and the TCP acceptor.
package harpoon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/harpoon-proxy/harpoon/config"
	"github.com/harpoon-proxy/harpoon/internal/addons"
	"github.com/harpoon-proxy/harpoon/internal/commander"
	"github.com/harpoon-proxy/harpoon/internal/history"
	"github.com/harpoon-proxy/harpoon/internal/proxy"
	"github.com/harpoon-proxy/harpoon/internal/repeater"
	"github.com/harpoon-proxy/harpoon/transport"
	"github.com/rs/zerolog"
)

const defaultPort = 8080

// App is one proxy session: a session directory, a listen port and the
// task tree serving them.
type App struct {
	sessionDir string
	port       int
	log        zerolog.Logger
	connID     atomic.Int64
	supervisor transport.Supervisor
}

func New(sessionDir string, log zerolog.Logger) *App {
	return &App{
		sessionDir: sessionDir,
		port:       defaultPort,
		log:        log,
		supervisor: transport.NewSupervisor(),
	}
}

// Port overrides the listen port unless the session config names one.
func (a *App) Port(port int) *App {
	a.port = port
	return a
}

// Run serves until the context ends. The cancellation is two-staged: the
// root context stops the commander and the acceptor; the UI workers stop
// only after the accept loop has drained.
func (a *App) Run(ctx context.Context) error {
	global, err := config.LoadGlobal()
	if err != nil {
		return err
	}
	local, err := config.LoadSession(a.sessionDir)
	if err != nil {
		return err
	}
	if local != nil && local.Port != 0 {
		a.port = local.Port
	}
	policy := config.Build(local, global)

	if err := os.MkdirAll(filepath.Join(a.sessionDir, "history"), 0o755); err != nil {
		return err
	}

	crypto, err := a.loadCrypto()
	if err != nil {
		return err
	}

	ch := commander.NewChannels()
	cmd := commander.New(crypto, policy, a.sessionDir, ch, a.log)

	uiCtx, stopUI := context.WithCancel(context.Background())
	defer stopUI()

	recorder := history.NewRecorder(filepath.Join(a.sessionDir, "history"), ch.ToHistory, a.log)
	go recorder.Run(uiCtx)
	go repeater.New(ch.ToRepeater, a.log).Run(uiCtx)

	var addonRegistry map[string]config.Addon
	if global != nil {
		addonRegistry = global.Addons
	}
	go addons.NewWorker(ch.ToAddon, addonRegistry, a.log).Run(uiCtx)

	go cmd.Run(ctx)

	onConn := func(conn net.Conn) {
		id := int(a.connID.Add(1))
		proxy.NewConn(id, conn, ch.Soldiers, a.log).Handle(ctx)
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(a.port))
	if err := a.supervisor.Add(addr, transport.NewTCP(), onConn); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		a.supervisor.Stop()
	}()

	a.log.Info().Str("addr", addr).Str("session", a.sessionDir).Msg("proxy listening")
	err = a.supervisor.Run()

	// acceptor drained; now the UI workers may go
	stopUI()

	return err
}

// loadCrypto prefers the installed CA material and falls back to
// process-lifetime ephemeral CAs when none is present.
func (a *App) loadCrypto() (*commander.CaptainCrypto, error) {
	dir, err := config.GlobalDir()
	if err == nil {
		if crypto, lerr := commander.LoadCaptainCrypto(dir); lerr == nil {
			return crypto, nil
		}
	}
	a.log.Warn().Msg("no CA material installed, using ephemeral CAs")

	return commander.NewEphemeralCrypto()
}
