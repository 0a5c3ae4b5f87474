package commander

import (
	"crypto/tls"

	"github.com/harpoon-proxy/harpoon/http/mime"
	"github.com/harpoon-proxy/harpoon/internal/history"
	"github.com/harpoon-proxy/harpoon/internal/intercept"
)

// RequestKind enumerates everything a connection worker can ask of the
// commander.
type RequestKind uint8

const (
	// ReqShouldProxy asks whether the host is intercepted or relayed.
	ReqShouldProxy RequestKind = iota + 1
	// ReqClientTLS asks for the shared no-verify upstream TLS config.
	ReqClientTLS
	// ReqVerifyChain asks whether a captured chain verifies under web PKI.
	ReqVerifyChain
	// ReqCheckCert looks the forged config up in the cert cache.
	ReqCheckCert
	// ReqGenCert mints, caches and returns a forged config.
	ReqGenCert
	// ReqShouldLogHTTP applies the extension policy and allocates a log dir.
	ReqShouldLogHTTP
	// ReqShouldLogHTTPCt applies the content-type policy instead.
	ReqShouldLogHTTPCt
	// ReqShouldProxyWs asks whether WebSocket upgrades are proxied.
	ReqShouldProxyWs
	// ReqWsRegister swaps an HTTP mailbox into the WebSocket registry.
	ReqWsRegister
	// ReqWsLog allocates the next WebSocket frame log id.
	ReqWsLog
	// ReqShouldInterceptWsResponse reads the companion's need-response flag.
	ReqShouldInterceptWsResponse
	// ReqIntercept pauses a frame and forwards it to the interceptor UI.
	ReqIntercept
	// ReqClose releases the worker's mailbox.
	ReqClose
)

// WsRole says which of the two one-way WebSocket workers is talking.
type WsRole uint8

const (
	WsClient WsRole = iota + 1 // client -> server, logs .wreq
	WsServer                   // server -> client, logs .wres
)

// Request is one worker-to-commander message. Only the fields of the named
// kind are set. Replies arrive on the worker's registered mailbox, except
// for ShouldProxy which carries its own one-shot channel (the mailbox does
// not exist yet).
type Request struct {
	Kind RequestKind
	ID   int

	Host      string             // ShouldProxy
	Ext       string             // ShouldLogHTTP
	Ct        mime.ContentType   // ShouldLogHTTPCt
	Verified  bool               // CheckCert, GenCert
	Digest    [32]byte           // CheckCert, GenCert
	Chain     [][]byte           // VerifyChain, GenCert (DER, leaf first)
	ServerSNI string             // VerifyChain (hostname the chain must cover)
	WsRole    WsRole             // WsLog
	Intercept *intercept.ToUI    // Intercept
	Proxy     chan chan Response // ShouldProxy one-shot reply
}

// ResponseKind tags the commander's replies.
type ResponseKind uint8

const (
	RespClientTLS ResponseKind = iota + 1
	RespVerified
	RespServerConfig
	RespHTTPLog
	RespWsProxy
	RespWsRegister
	RespWsLogID
	RespShouldInterceptWs
	// RespResume resumes a paused frame; a nil ResumeInfo means "forward
	// unchanged" (interception off or toggled off mid-pause).
	RespResume
	// RespDrop discards the paused frame.
	RespDrop
)

// HTTPLogGrant is the commander's go-ahead to log one exchange.
type HTTPLogGrant struct {
	LogID   int
	Dir     string
	History chan<- history.Record
}

// WsRegisterGrant carries the second (client-direction) mailbox and the
// history channel to the upgraded connection.
type WsRegisterGrant struct {
	ClientMailbox chan Response
	History       chan<- history.Record
}

// Response is one commander-to-worker message.
type Response struct {
	Kind ResponseKind

	ClientTLS    *tls.Config
	Verified     bool
	ServerConfig *tls.Config // nil on cache miss or forge failure
	HTTPLog      *HTTPLogGrant
	WsProxy      bool
	WsRegister   *WsRegisterGrant
	WsLogID      int
	NeedResponse bool
	Resume       *intercept.ResumeInfo
}
