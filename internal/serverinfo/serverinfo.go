// Package serverinfo names the upstream a connection talks to: authority,
// scheme and (for TLS) the SNI to present. It is the proxy's routing key
// and the unit the repeater and interceptor exchange with the UIs.
package serverinfo

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

type Scheme uint8

const (
	SchemeHTTP Scheme = iota + 1
	SchemeHTTPS
)

func (s Scheme) String() string {
	if s == SchemeHTTPS {
		return "https"
	}

	return "http"
}

func (s Scheme) DefaultPort() int {
	if s == SchemeHTTPS {
		return 443
	}

	return 80
}

var ErrBadAuthority = errors.New("bad authority")

// Address is a resolved-enough upstream endpoint: host plus explicit port.
type Address struct {
	Host string
	Port int
}

// ParseAuthority splits "host[:port]", filling the scheme's default port
// when none is present. IPv6 literals keep their brackets in the input and
// lose them in Host.
func ParseAuthority(authority string, scheme Scheme) (Address, error) {
	if authority == "" {
		return Address{}, ErrBadAuthority
	}

	host, portStr, err := net.SplitHostPort(authority)
	if err != nil {
		// no port in the authority
		host = strings.Trim(authority, "[]")
		if strings.Contains(host, ":") && !strings.HasPrefix(authority, "[") {
			return Address{}, fmt.Errorf("%w| %s", ErrBadAuthority, authority)
		}

		return Address{Host: host, Port: scheme.DefaultPort()}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("%w| %s", ErrBadAuthority, authority)
	}

	return Address{Host: host, Port: port}, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// StringFromScheme prints the address, dropping the port when it is the
// scheme's default.
func (a Address) StringFromScheme(scheme Scheme) string {
	if a.Port == scheme.DefaultPort() {
		return a.Host
	}

	return a.String()
}

// ServerInfo is the full upstream identity of a proxied connection.
type ServerInfo struct {
	Address Address
	Scheme  Scheme
	SNI     string
}

func New(address Address, tls bool) ServerInfo {
	scheme := SchemeHTTP
	if tls {
		scheme = SchemeHTTPS
	}

	return ServerInfo{Address: address, Scheme: scheme}
}

func (s *ServerInfo) TLS() bool {
	return s.Scheme == SchemeHTTPS
}

// EffectiveSNI is the name presented to the origin: the captured client SNI
// when one exists, the host otherwise.
func (s *ServerInfo) EffectiveSNI() string {
	if s.SNI != "" {
		return s.SNI
	}

	return s.Address.Host
}

// SNIDiffers reports whether the SNI deviates from the host and is worth
// recording separately.
func (s *ServerInfo) SNIDiffers() bool {
	return s.SNI != "" && s.SNI != s.Address.Host
}

func (s ServerInfo) String() string {
	return s.Scheme.String() + "|" + s.Address.String()
}

// JSON is the wire shape exchanged with the UIs. http is present (as "1")
// only for plain-text upstreams; sni only when it differs from the host.
type JSON struct {
	Host string `json:"host"`
	HTTP string `json:"http,omitempty"`
	SNI  string `json:"sni,omitempty"`
}

func (s *ServerInfo) ToJSON() *JSON {
	j := &JSON{Host: s.Address.StringFromScheme(s.Scheme)}
	if !s.TLS() {
		j.HTTP = "1"
	}
	if s.SNIDiffers() {
		j.SNI = s.SNI
	}

	return j
}

// FromJSON rebuilds the upstream identity from the UI's wire shape.
func FromJSON(j *JSON) (ServerInfo, error) {
	scheme := SchemeHTTPS
	if j.HTTP != "" {
		scheme = SchemeHTTP
	}

	addr, err := ParseAuthority(j.Host, scheme)
	if err != nil {
		return ServerInfo{}, err
	}

	info := ServerInfo{Address: addr, Scheme: scheme}
	if scheme == SchemeHTTPS {
		info.SNI = j.SNI
		if info.SNI == "" {
			info.SNI = addr.Host
		}
	}

	return info, nil
}
