// Package history is the session recorder: a single task that receives
// records from the commander, batches them and appends them to the
// session's history log, plus the per-WebSocket session files.
package history

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Kind uint8

const (
	// KindHTTP is one request or response line for the main log.
	KindHTTP Kind = iota + 1
	// KindRegisterWs announces an upgraded connection.
	KindRegisterWs
	// KindWs is one frame line for a WebSocket session file.
	KindWs
	// KindRemoveWs drops a WebSocket session.
	KindRemoveWs
)

// RequestLine is the JSON record announcing a logged request.
type RequestLine struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	HTTP   string `json:"http,omitempty"`
	Host   string `json:"host"`
	URI    string `json:"uri"`
}

// ResponseLine is the JSON record announcing the matching response.
type ResponseLine struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Length int    `json:"length"`
}

// WsRegistration announces an upgraded connection: its id, scheme and host
// land in ws.whis, Dir hosts the session files.
type WsRegistration struct {
	ConnID int
	Scheme string
	Host   string
	Dir    string
}

// Record is one message from the commander to the recorder.
type Record struct {
	Kind   Kind
	Line   string // serialized JSON for KindHTTP, the wsess line for KindWs
	ConnID int
	Reg    *WsRegistration
}

// HTTPRecord serializes a request or response line into a Record.
func HTTPRecord(line any) (Record, error) {
	data, err := json.Marshal(line)
	if err != nil {
		return Record{}, err
	}

	return Record{Kind: KindHTTP, Line: string(data)}, nil
}

const (
	batchSize     = 100
	baseIdle      = 2 * time.Second
	maxIdle       = 64 * time.Second
	stateFileName = ".history.state"
	whisFileName  = "history.whis"
	wsWhisName    = "ws.whis"
	wsessName     = "history.wsess"
)

// Recorder drains the commander's channel into the session directory.
type Recorder struct {
	dir     string
	in      <-chan Record
	log     zerolog.Logger
	pending []string
	ws      map[int]string // conn id -> websocket dir
}

func NewRecorder(dir string, in <-chan Record, log zerolog.Logger) *Recorder {
	return &Recorder{
		dir: dir,
		in:  in,
		log: log.With().Str("task", "history").Logger(),
		ws:  make(map[int]string),
	}
}

// Run loops until the context ends. Batches flush when full or when the
// idle timer fires; the timer starts at two seconds and doubles on every
// empty tick, resetting on activity.
func (r *Recorder) Run(ctx context.Context) {
	idle := baseIdle
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case record, ok := <-r.in:
			if !ok {
				r.shutdown()
				return
			}
			r.handle(record)
			idle = baseIdle
			resetTimer(timer, idle)

		case <-timer.C:
			if len(r.pending) > 0 {
				r.flush()
				idle = baseIdle
			} else if idle < maxIdle {
				idle *= 2
			}
			timer.Reset(idle)

		case <-ctx.Done():
			r.drain()
			r.shutdown()
			return
		}
	}
}

func (r *Recorder) handle(record Record) {
	switch record.Kind {
	case KindHTTP:
		r.pending = append(r.pending, record.Line)
		if len(r.pending) >= batchSize {
			r.flush()
		}

	case KindRegisterWs:
		r.registerWs(record.Reg)

	case KindWs:
		r.appendWsLine(record.ConnID, record.Line)

	case KindRemoveWs:
		delete(r.ws, record.ConnID)
	}
}

func (r *Recorder) registerWs(reg *WsRegistration) {
	if reg == nil {
		return
	}
	r.ws[reg.ConnID] = reg.Dir

	line := strconv.Itoa(reg.ConnID) + " | " + reg.Scheme + " | " + reg.Host + "\n"
	if err := appendFile(filepath.Join(r.dir, wsWhisName), []byte(line)); err != nil {
		r.log.Error().Err(err).Msg("ws.whis append")
	}
}

func (r *Recorder) appendWsLine(connID int, line string) {
	dir, ok := r.ws[connID]
	if !ok {
		r.log.Error().Int("id", connID).Msg("wsess line for unregistered session")
		return
	}
	if err := appendFile(filepath.Join(dir, wsessName), []byte(line)); err != nil {
		r.log.Error().Err(err).Msg("wsess append")
	}
}

// flush appends the pending batch to the session log in one write.
func (r *Recorder) flush() {
	if len(r.pending) == 0 {
		return
	}

	buf := bytebufferpool.Get()
	for _, line := range r.pending {
		buf.WriteString(line) //nolint:errcheck
		buf.WriteByte('\n')   //nolint:errcheck
	}

	if err := appendFile(filepath.Join(r.dir, whisFileName), buf.B); err != nil {
		r.log.Error().Err(err).Msg("history flush")
	} else {
		r.pending = r.pending[:0]
	}
	bytebufferpool.Put(buf)
}

// drain consumes whatever is already queued without blocking.
func (r *Recorder) drain() {
	for {
		select {
		case record := <-r.in:
			r.handle(record)
		default:
			return
		}
	}
}

// shutdown persists unflushed entries so a crashed or cancelled session
// loses nothing.
func (r *Recorder) shutdown() {
	if len(r.pending) == 0 {
		return
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, line := range r.pending {
		buf.WriteString(line) //nolint:errcheck
		buf.WriteByte('\n')   //nolint:errcheck
	}

	if err := os.WriteFile(filepath.Join(r.dir, stateFileName), buf.B, 0o600); err != nil {
		r.log.Error().Err(err).Msg("history state write")
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
