package proxy

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/harpoon-proxy/harpoon/internal/commander"
)

var errNoForgedConfig = errors.New("no forged server config")

/* TLS interception, three steps in one client handshake:
 *      1. "200 Connection established" tells the client to start TLS; the
 *         accept is lazy, we see its ClientHello before presenting a cert.
 *      2. Inside the hello callback the origin is contacted with the
 *         no-verify connector using the client's SNI; the real chain is
 *         captured.
 *      3. The chain's digest keys the commander's cert cache; on a miss
 *         the commander mints a leaf signed by the trusted CA (chain
 *         verified under web PKI) or the untrusted one. The client
 *         handshake completes with that config, ALPN pinned to http/1.1.
 */
func (c *Conn) interceptTLS() error {
	if err := writeAndFlush(c.client, proxyEstablished); err != nil {
		return stageErr(StageClientWrite, err)
	}

	clientTLS := tls.Server(c.client, &tls.Config{
		GetConfigForClient: c.forgeForHello,
		NextProtos:         []string{"http/1.1"},
	})
	if err := clientTLS.Handshake(); err != nil {
		return stageErr(StageClientEncrypt, err)
	}
	c.client = clientTLS

	return nil
}

// forgeForHello runs step 2 and 3 once the ClientHello is on the table.
// Any failure here fails the client handshake, which is the user-visible
// signal; no surrogate error page exists on a TLS session.
func (c *Conn) forgeForHello(hello *tls.ClientHelloInfo) (*tls.Config, error) {
	sni := hello.ServerName
	if sni == "" {
		sni = c.info.Address.Host
	}
	c.info.SNI = sni

	chain, err := c.encryptServer(sni)
	if err != nil {
		return nil, err
	}

	verifiedResp, err := c.ask(commander.Request{
		Kind:      commander.ReqVerifyChain,
		Chain:     chain,
		ServerSNI: sni,
	})
	if err != nil {
		return nil, err
	}
	verified := verifiedResp.Verified
	digest := commander.Digest(chain[0])

	cached, err := c.ask(commander.Request{
		Kind:     commander.ReqCheckCert,
		Verified: verified,
		Digest:   digest,
	})
	if err != nil {
		return nil, err
	}
	if cached.ServerConfig != nil {
		return cached.ServerConfig, nil
	}

	minted, err := c.ask(commander.Request{
		Kind:     commander.ReqGenCert,
		Verified: verified,
		Digest:   digest,
		Chain:    chain,
	})
	if err != nil {
		return nil, err
	}
	if minted.ServerConfig == nil {
		return nil, errNoForgedConfig
	}

	return minted.ServerConfig, nil
}

// encryptServer upgrades the upstream TCP connection to TLS with the
// commander's no-verify connector and returns the captured chain.
func (c *Conn) encryptServer(sni string) ([][]byte, error) {
	response, err := c.ask(commander.Request{Kind: commander.ReqClientTLS})
	if err != nil {
		return nil, err
	}

	cfg := response.ClientTLS
	cfg.ServerName = sni

	serverTLS := tls.Client(c.server, cfg)
	if err := serverTLS.Handshake(); err != nil {
		return nil, stageErr(StageServerEncrypt, err)
	}
	c.server = serverTLS

	peers := serverTLS.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil, stageErr(StageServerEncrypt, fmt.Errorf("no peer certificates"))
	}
	chain := make([][]byte, len(peers))
	for i, cert := range peers {
		chain[i] = cert.Raw
	}

	return chain, nil
}

// encryptUpstream redoes only the upstream TLS leg, for reconnects and
// retargets of an already intercepted session.
func (c *Conn) encryptUpstream(sni string) error {
	_, err := c.encryptServer(sni)
	return err
}
