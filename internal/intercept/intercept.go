// Package intercept defines the message vocabulary between the paused
// connection workers, the commander and the interceptor UI.
package intercept

import "github.com/harpoon-proxy/harpoon/internal/serverinfo"

// FileType names the on-disk artifact a paused frame lives in and doubles
// as the queue selector on the commander side.
type FileType uint8

const (
	FileReq FileType = iota + 1
	FileRes
	FileWreq
	FileWres
)

var fileTypeNames = [...]string{
	FileReq:  "req",
	FileRes:  "res",
	FileWreq: "wreq",
	FileWres: "wres",
}

func (f FileType) String() string {
	if int(f) < len(fileTypeNames) && f > 0 {
		return fileTypeNames[f]
	}

	return "req"
}

func ParseFileType(s string) FileType {
	switch s {
	case "res":
		return FileRes
	case "wreq":
		return FileWreq
	case "wres":
		return FileWres
	default:
		return FileReq
	}
}

func (f FileType) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FileType) UnmarshalText(text []byte) error {
	*f = ParseFileType(string(text))
	return nil
}

func (f FileType) IsWs() bool {
	return f == FileWreq || f == FileWres
}

// ResumeInfo is the user's reply to a paused frame. ID is the log id the
// pause was announced under.
type ResumeInfo struct {
	ID           int              `json:"id"`
	Modified     bool             `json:"modified,omitempty"`
	Ft           FileType         `json:"ft"`
	ServerInfo   *serverinfo.JSON `json:"server_info,omitempty"`
	NeedResponse bool             `json:"need_response,omitempty"`
	// NoUpdate skips the header-accounting rewrite when the user edited the
	// artifact as opaque bytes.
	NoUpdate bool `json:"no_update,omitempty"`
}

// Update reports whether the edited artifact goes through the re-parse
// path. WebSocket artifacts always do.
func (r *ResumeInfo) Update() bool {
	if r.Ft.IsWs() {
		return true
	}

	return !r.NoUpdate
}

// ResumeForReconnect is the synthetic resume used when a send failure forces
// a replay of the captured request.
func ResumeForReconnect() *ResumeInfo {
	return &ResumeInfo{Ft: FileReq}
}

// WsInfo rides along for paused WebSocket messages.
type WsInfo struct {
	LogID int  `json:"log_id"`
	IsBin bool `json:"is_bin,omitempty"`
}

// ToUI announces a paused frame to the interceptor UI.
type ToUI struct {
	ID         int              `json:"id"`
	Ft         FileType         `json:"ft"`
	ServerInfo *serverinfo.JSON `json:"server_info,omitempty"`
	WsInfo     *WsInfo          `json:"ws_info,omitempty"`
}

func NewHTTPReqToUI(logID int, info *serverinfo.JSON) *ToUI {
	return &ToUI{ID: logID, Ft: FileReq, ServerInfo: info}
}

func NewHTTPResToUI(logID int) *ToUI {
	return &ToUI{ID: logID, Ft: FileRes}
}

func NewWsToUI(connID, logID int, ft FileType, isBin bool) *ToUI {
	return &ToUI{ID: connID, Ft: ft, WsInfo: &WsInfo{LogID: logID, IsBin: isBin}}
}

func (t *ToUI) IsHTTP() bool {
	return t.Ft == FileReq || t.Ft == FileRes
}

// UIOpKind enumerates the interceptor UI's operations.
type UIOpKind uint8

const (
	UIOpClose UIOpKind = iota + 1
	UIOpToggle
	UIOpResume
	UIOpDrop
	UIOpForward
	UIOpEncode
	UIOpDecode
)

// UIOp is one interceptor UI operation. Only the fields of the named kind
// are populated.
type UIOp struct {
	Kind    UIOpKind     `json:"kind"`
	Resume  *ResumeInfo  `json:"resume,omitempty"`
	DropID  int          `json:"drop_id,omitempty"`
	DropFt  FileType     `json:"drop_ft,omitempty"`
	Forward *ForwardInfo `json:"forward,omitempty"`
	Codec   string       `json:"codec,omitempty"`
	Data    string       `json:"data,omitempty"`
}

// ForwardModule is the destination of a forwarded artifact.
type ForwardModule struct {
	Repeater bool   `json:"repeater,omitempty"`
	Addon    string `json:"addon,omitempty"`
}

// ForwardInfo hands a stored artifact to the repeater or an addon.
type ForwardInfo struct {
	To         ForwardModule    `json:"to"`
	File       string           `json:"file"`
	ServerInfo *serverinfo.JSON `json:"server_info,omitempty"`
}
