package commander

import (
	"errors"

	"github.com/harpoon-proxy/harpoon/internal/intercept"
)

var ErrUnknownSoldier = errors.New("commander: no such soldier")

// wsComm is the pair of mailboxes of an upgraded connection plus its frame
// log counter and the pending need-response flag set when the user asks to
// see the reply to an edited client frame.
type wsComm struct {
	client       chan Response // client -> server worker (wreq side)
	server       chan Response // server -> client worker (wres side)
	logCounter   int
	needResponse bool
}

// soldiers is the per-connection mailbox registry. HTTP connections own one
// mailbox; WebSocket connections two, one per direction.
type soldiers struct {
	http map[int]chan Response
	ws   map[int]*wsComm
}

func newSoldiers() soldiers {
	return soldiers{
		http: make(map[int]chan Response),
		ws:   make(map[int]*wsComm),
	}
}

// addHTTP registers a fresh capacity-1 mailbox for the connection and
// returns it for the worker's end.
func (s *soldiers) addHTTP(id int) chan Response {
	mailbox := make(chan Response, 1)
	s.http[id] = mailbox

	return mailbox
}

// popHTTP removes and returns the HTTP mailbox, for the upgrade hand-off.
func (s *soldiers) popHTTP(id int) (chan Response, error) {
	mailbox, ok := s.http[id]
	if !ok {
		return nil, ErrUnknownSoldier
	}
	delete(s.http, id)

	return mailbox, nil
}

// addWs registers the two directional mailboxes of an upgraded connection.
func (s *soldiers) addWs(id int, client, server chan Response) {
	s.ws[id] = &wsComm{client: client, server: server}
}

func (s *soldiers) removeHTTP(id int) bool {
	if _, ok := s.http[id]; !ok {
		return false
	}
	delete(s.http, id)

	return true
}

func (s *soldiers) removeWs(id int) bool {
	if _, ok := s.ws[id]; !ok {
		return false
	}
	delete(s.ws, id)

	return true
}

// sendFt routes a response to the mailbox owning the artifact kind: the
// HTTP mailbox for req/res, the directional WebSocket mailbox otherwise.
func (s *soldiers) sendFt(id int, ft intercept.FileType, response Response) error {
	switch ft {
	case intercept.FileWreq:
		comm, ok := s.ws[id]
		if !ok {
			return ErrUnknownSoldier
		}
		comm.client <- response
	case intercept.FileWres:
		comm, ok := s.ws[id]
		if !ok {
			return ErrUnknownSoldier
		}
		comm.server <- response
	default:
		mailbox, ok := s.http[id]
		if !ok {
			return ErrUnknownSoldier
		}
		mailbox <- response
	}

	return nil
}

// nextWsLogID increments and returns the shared frame counter.
func (s *soldiers) nextWsLogID(id int) (int, error) {
	comm, ok := s.ws[id]
	if !ok {
		return 0, ErrUnknownSoldier
	}
	logID := comm.logCounter
	comm.logCounter++

	return logID, nil
}

func (s *soldiers) setNeedResponse(id int) error {
	comm, ok := s.ws[id]
	if !ok {
		return ErrUnknownSoldier
	}
	comm.needResponse = true

	return nil
}

// takeNeedResponse reads and clears the companion flag.
func (s *soldiers) takeNeedResponse(id int) (bool, error) {
	comm, ok := s.ws[id]
	if !ok {
		return false, ErrUnknownSoldier
	}
	need := comm.needResponse
	comm.needResponse = false

	return need, nil
}
