package commander

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const alpnH1 = "http/1.1"

var (
	ErrNoPEMBlock  = errors.New("crypto: no PEM block found")
	ErrNoLeafChain = errors.New("crypto: empty certificate chain")
)

// ca is one forging authority plus its cache of minted server configs,
// keyed by the SHA-256 of the origin's leaf certificate.
type ca struct {
	cert  *x509.Certificate
	der   []byte
	store []cacheEntry
}

type cacheEntry struct {
	digest [32]byte
	config *tls.Config
}

func (c *ca) lookup(digest [32]byte) *tls.Config {
	for i := range c.store {
		if c.store[i].digest == digest {
			return c.store[i].config
		}
	}

	return nil
}

func (c *ca) add(digest [32]byte, config *tls.Config) {
	c.store = append(c.store, cacheEntry{digest: digest, config: config})
}

// CaptainCrypto owns all TLS material: the shared leaf key, the trusted CA
// (user-installed cert), the per-process untrusted CA, the web-PKI root
// pool used only to pick the signing CA, and the no-verify client config
// presented to origins.
type CaptainCrypto struct {
	key       crypto.Signer
	trusted   *ca
	untrusted *ca
	roots     *x509.CertPool
	clientTLS *tls.Config
}

// LoadCaptainCrypto reads private.key (PKCS#8 PEM) and the trusted CA cert
// from the global config directory, then self-signs the untrusted CA for
// this process.
func LoadCaptainCrypto(dir string) (*CaptainCrypto, error) {
	keyPEM, err := os.ReadFile(filepath.Join(dir, "private.key"))
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	certPEM, err := os.ReadFile(filepath.Join(dir, "zxca.crt"))
	if err != nil {
		return nil, err
	}
	trusted, err := caFromPEM(certPEM)
	if err != nil {
		return nil, err
	}

	return newCaptainCrypto(key, trusted)
}

// NewEphemeralCrypto generates all material in memory. Both CAs are
// process-lifetime self-signed; useful for tests and for running without
// installed CA material.
func NewEphemeralCrypto() (*CaptainCrypto, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	trusted, err := selfSignedCA(key, "harpoon trusted CA")
	if err != nil {
		return nil, err
	}

	return newCaptainCrypto(key, trusted)
}

func newCaptainCrypto(key crypto.Signer, trusted *ca) (*CaptainCrypto, error) {
	untrusted, err := selfSignedCA(key, "harpoon untrusted CA")
	if err != nil {
		return nil, err
	}

	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}

	return &CaptainCrypto{
		key:       key,
		trusted:   trusted,
		untrusted: untrusted,
		roots:     roots,
		clientTLS: &tls.Config{
			// the proxy intentionally accepts any origin certificate; the
			// chain is captured and judged separately
			InsecureSkipVerify: true, //nolint:gosec
			NextProtos:         []string{alpnH1},
		},
	}, nil
}

// ClientTLS returns the shared no-verify upstream config.
func (c *CaptainCrypto) ClientTLS() *tls.Config {
	return c.clientTLS.Clone()
}

// Digest keys the cert cache: SHA-256 of the origin's leaf DER.
func Digest(leafDER []byte) [32]byte {
	return sha256.Sum256(leafDER)
}

// VerifyChain judges a captured chain under web PKI for the given host.
// The outcome only selects the signing CA; it never blocks the connection.
func (c *CaptainCrypto) VerifyChain(chainDER [][]byte, host string) bool {
	if len(chainDER) == 0 {
		return false
	}

	leaf, err := x509.ParseCertificate(chainDER[0])
	if err != nil {
		return false
	}

	intermediates := x509.NewCertPool()
	for _, der := range chainDER[1:] {
		if cert, err := x509.ParseCertificate(der); err == nil {
			intermediates.AddCert(cert)
		}
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         c.roots,
		Intermediates: intermediates,
		DNSName:       host,
	})

	return err == nil
}

// CheckCert looks up a previously forged config in the matching CA's cache.
func (c *CaptainCrypto) CheckCert(verified bool, digest [32]byte) *tls.Config {
	return c.signerFor(verified).lookup(digest)
}

// GenCert forges a leaf mirroring the origin's, signs it with the matching
// CA and caches the resulting server config.
func (c *CaptainCrypto) GenCert(verified bool, digest [32]byte, chainDER [][]byte) (*tls.Config, error) {
	if len(chainDER) == 0 {
		return nil, ErrNoLeafChain
	}

	signer := c.signerFor(verified)
	leafDER, err := forgeLeaf(chainDER[0], signer.cert, c.key)
	if err != nil {
		return nil, err
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{leafDER, signer.der},
			PrivateKey:  c.key,
		}},
		NextProtos: []string{alpnH1},
	}
	signer.add(digest, config)

	return config, nil
}

func (c *CaptainCrypto) signerFor(verified bool) *ca {
	if verified {
		return c.trusted
	}

	return c.untrusted
}

// forgeLeaf clones the identity of the origin's leaf (subject, SANs,
// validity) onto a fresh certificate signed by the forging CA.
func forgeLeaf(originDER []byte, signer *x509.Certificate, key crypto.Signer) ([]byte, error) {
	origin, err := x509.ParseCertificate(originDER)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(0).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               origin.Subject,
		DNSNames:              origin.DNSNames,
		IPAddresses:           origin.IPAddresses,
		NotBefore:             origin.NotBefore,
		NotAfter:              origin.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	return x509.CreateCertificate(rand.Reader, template, signer, key.Public(), key)
}

func selfSignedCA(key crypto.Signer, commonName string) (*ca, error) {
	serial, err := rand.Int(rand.Reader, big.NewInt(0).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &ca{cert: cert, der: der}, nil
}

func caFromPEM(certPEM []byte) (*ca, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("trusted CA cert: %w", err)
	}

	return &ca{cert: cert, der: block.Bytes}, nil
}

func parsePrivateKey(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}

	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key: unusable key type %T", parsed)
	}

	return signer, nil
}
