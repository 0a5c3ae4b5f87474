package commander

import (
	"errors"

	"github.com/harpoon-proxy/harpoon/internal/intercept"
)

var ErrNotQueued = errors.New("commander: log id not in intercept queue")

type queueEntry struct {
	connID int
	logID  int
}

// interceptorComm tracks the frames currently paused for the user: one
// queue per artifact kind, plus the global interception toggle.
type interceptorComm struct {
	enabled bool
	http    []queueEntry
	wreq    []queueEntry
	wres    []queueEntry
	toUI    chan<- *intercept.ToUI
}

func newInterceptorComm(toUI chan<- *intercept.ToUI) interceptorComm {
	return interceptorComm{toUI: toUI}
}

func (c *interceptorComm) queueFor(ft intercept.FileType) *[]queueEntry {
	switch ft {
	case intercept.FileWreq:
		return &c.wreq
	case intercept.FileWres:
		return &c.wres
	default:
		return &c.http
	}
}

func (c *interceptorComm) push(ft intercept.FileType, connID, logID int) {
	queue := c.queueFor(ft)
	*queue = append(*queue, queueEntry{connID: connID, logID: logID})
}

// pop removes the entry announced under logID and returns its connection.
func (c *interceptorComm) pop(ft intercept.FileType, logID int) (int, error) {
	queue := c.queueFor(ft)
	for i, entry := range *queue {
		if entry.logID == logID {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return entry.connID, nil
		}
	}

	return 0, ErrNotQueued
}

func (c *interceptorComm) toggle() {
	c.enabled = !c.enabled
}
