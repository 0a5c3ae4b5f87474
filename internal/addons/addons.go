// Package addons receives forwarded request artifacts and stages them for
// external command-line tools: each handed-off request is copied into the
// exchange's addons/ directory under the tool's prefix. Formatting and
// spawning the actual command line is the launcher's business.
package addons

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/harpoon-proxy/harpoon/config"
	"github.com/harpoon-proxy/harpoon/internal/intercept"
	"github.com/rs/zerolog"
)

const dirName = "addons"

// Worker drains the commander's addon channel.
type Worker struct {
	in       <-chan *intercept.ForwardInfo
	registry map[string]config.Addon
	counters map[string]int
	log      zerolog.Logger
}

func NewWorker(in <-chan *intercept.ForwardInfo, registry map[string]config.Addon, log zerolog.Logger) *Worker {
	return &Worker{
		in:       in,
		registry: registry,
		counters: make(map[string]int),
		log:      log.With().Str("task", "addons").Logger(),
	}
}

func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case info := <-w.in:
			if _, err := w.Stage(info); err != nil {
				w.log.Error().Err(err).Str("file", info.File).Msg("stage")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stage copies the artifact to addons/<prefix><k>.req next to the original
// and returns the copy's path.
func (w *Worker) Stage(info *intercept.ForwardInfo) (string, error) {
	addon, ok := w.registry[info.To.Addon]
	if !ok {
		addon = config.Addon{Prefix: info.To.Addon}
	}

	data, err := os.ReadFile(info.File)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(filepath.Dir(info.File), dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	k := w.counters[info.To.Addon]
	w.counters[info.To.Addon]++

	path := filepath.Join(dir, addon.Prefix+strconv.Itoa(k)+".req")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	w.log.Debug().Str("addon", info.To.Addon).Str("copy", path).Msg("staged")

	return path, nil
}
