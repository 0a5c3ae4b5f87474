package proxy

import (
	"errors"
	"fmt"
)

// Stage labels where in the pipeline a failure happened; the outer machine
// uses it to choose between reconnect, reroute and teardown.
type Stage uint8

const (
	StageInitialRead Stage = iota + 1
	StageAddress
	StageServerConnect
	StageCommander
	StageClientWrite
	StageClientHandshake
	StageServerEncrypt
	StageClientEncrypt
	StageReadFromClient
	StageReadFromServer
	StageSendToClient
	StageSendToServer
	StageHistory
	StageLogWrite
	StageModFile
	StageUpdateFrame
	StageDrop
)

var stageNames = [...]string{
	StageInitialRead:     "initial_read",
	StageAddress:         "address",
	StageServerConnect:   "server_connect",
	StageCommander:       "commander",
	StageClientWrite:     "client_write",
	StageClientHandshake: "client_handshake",
	StageServerEncrypt:   "server_encrypt",
	StageClientEncrypt:   "client_encrypt",
	StageReadFromClient:  "read_from_client",
	StageReadFromServer:  "read_from_server",
	StageSendToClient:    "send_to_client",
	StageSendToServer:    "send_to_server",
	StageHistory:         "history",
	StageLogWrite:        "log_write",
	StageModFile:         "mod_file",
	StageUpdateFrame:     "update_frame",
	StageDrop:            "drop",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) && s > 0 {
		return stageNames[s]
	}

	return "unknown"
}

// StateError carries the underlying error plus the stage it was raised in.
type StateError struct {
	Stage Stage
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s| %s", e.Stage, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *StateError {
	return &StateError{Stage: stage, Err: err}
}

// ErrDropped marks a frame discarded on the user's request.
var ErrDropped = errors.New("frame dropped by user")
