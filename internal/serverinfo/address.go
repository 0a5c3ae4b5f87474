package serverinfo

import (
	"strings"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
)

// FromRequestTarget derives the upstream address from a request's target.
// CONNECT carries the bare authority. Absolute-form targets are rewritten
// to origin-form in place: the scheme://authority prefix is split off the
// URI view and parsed, leaving only the path behind.
func FromRequestTarget(uri *bytebuf.ByteString, tls bool) (Address, error) {
	target := uri.String()

	if tls {
		// CONNECT authority-form
		return ParseAuthority(target, SchemeHTTPS)
	}

	scheme := SchemeHTTP
	rest := target
	switch {
	case strings.HasPrefix(target, "http://"):
		rest = target[len("http://"):]
	case strings.HasPrefix(target, "https://"):
		scheme = SchemeHTTPS
		rest = target[len("https://"):]
	default:
		// origin-form carries no authority; the Host header is not
		// consulted, so such a target is rejected
		return Address{}, ErrBadAuthority
	}

	slash := strings.IndexByte(rest, '/')
	if slash == -1 {
		slash = len(rest)
	}
	authority := rest[:slash]

	addr, err := ParseAuthority(authority, scheme)
	if err != nil {
		return Address{}, err
	}

	// rewrite to origin-form: drop everything before the path
	prefix := len(target) - len(rest) + slash
	*uri = uri.SplitOff(prefix)
	if uri.Empty() {
		*uri = bytebuf.NewString("/")
	}

	return addr, nil
}
