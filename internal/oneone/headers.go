package oneone

// Wire literals and header names the framing engine touches.
const (
	crlf            = "\r\n"
	headerFS        = ": "
	headerDelimiter = "\r\n\r\n"

	hdrContentLength    = "Content-Length"
	hdrTransferEncoding = "Transfer-Encoding"
	hdrContentEncoding  = "Content-Encoding"
	hdrContentType      = "Content-Type"
	hdrTrailer          = "Trailer"
	hdrConnection       = "Connection"
	hdrProxyConnection  = "Proxy-Connection"
	hdrWsExtensions     = "Sec-WebSocket-Extensions"
	hdrAccept           = "Accept"

	valKeepAlive = "Keep-Alive"
	valClose     = "close"
	valChunked   = "chunked"
)
