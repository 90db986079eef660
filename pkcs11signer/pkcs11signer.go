// Package pkcs11signer resolves a "pkcs11://" keyspec into a
// dsig.CertificateSigner backed by a hardware token, via
// github.com/ThalesIgnite/crypto11. This is the kind of collaborator
// the core engine's Signer interface exists to admit without the
// private key material ever leaving the token.
package pkcs11signer

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ThalesIgnite/crypto11"
)

// Config mirrors the fields adrianodrix-sped-nfe-go's A3 loader passes
// to crypto11.Config: library path, optional token label, PIN, and an
// optional explicit slot.
type Config struct {
	LibraryPath      string
	TokenLabel       string
	PIN              string
	Slot             *uint
	CertificateLabel string
	CertificateID    []byte
}

// ParsePKCS11URL recovers a Config from a "pkcs11://<library>?..." URL,
// the keyspec form SPEC_FULL.md's domain stack assigns to
// PKCS#11-backed signing.
//
// Recognized query parameters: token (label), pin, slot (decimal),
// label (certificate label), id (hex certificate id).
func ParsePKCS11URL(raw string) (Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("pkcs11signer: invalid keyspec url: %w", err)
	}
	if u.Scheme != "pkcs11" {
		return Config{}, fmt.Errorf("pkcs11signer: keyspec is not a pkcs11:// url")
	}

	cfg := Config{LibraryPath: u.Host + u.Path}

	q := u.Query()
	cfg.TokenLabel = q.Get("token")
	cfg.PIN = q.Get("pin")
	cfg.CertificateLabel = q.Get("label")

	if s := q.Get("slot"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("pkcs11signer: invalid slot %q: %w", s, err)
		}
		slot := uint(n)
		cfg.Slot = &slot
	}

	if id := q.Get("id"); id != "" {
		id = strings.TrimPrefix(id, "0x")
		raw, err := hex.DecodeString(id)
		if err != nil {
			return Config{}, fmt.Errorf("pkcs11signer: invalid certificate id %q: %w", id, err)
		}
		cfg.CertificateID = raw
	}

	return cfg, nil
}

// Signer is a dsig.CertificateSigner backed by a PKCS#11 token. Close
// must be called once signing is done to release the token session.
type Signer struct {
	ctx  *crypto11.Context
	key  crypto11.Signer
	cert *x509.Certificate
}

// Open initializes a PKCS#11 context with cfg and locates the signing
// certificate and its matching private key, following the
// label-then-id-then-first-available search order used by the token
// loaders in the retrieved pack.
func Open(cfg Config) (*Signer, error) {
	ctx, err := crypto11.Configure(&crypto11.Config{
		Path:       cfg.LibraryPath,
		TokenLabel: cfg.TokenLabel,
		Pin:        cfg.PIN,
		SlotNumber: cfg.Slot,
	})
	if err != nil {
		return nil, fmt.Errorf("pkcs11signer: failed to open token: %w", err)
	}

	cert, key, err := findCertAndKey(ctx, cfg)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	return &Signer{ctx: ctx, key: key, cert: cert}, nil
}

func findCertAndKey(ctx *crypto11.Context, cfg Config) (*x509.Certificate, crypto11.Signer, error) {
	var cert *x509.Certificate
	var err error

	switch {
	case cfg.CertificateLabel != "":
		cert, err = ctx.FindCertificate(nil, []byte(cfg.CertificateLabel), nil)
	case len(cfg.CertificateID) > 0:
		cert, err = ctx.FindCertificate(cfg.CertificateID, nil, nil)
	default:
		var all []*x509.Certificate
		all, err = ctx.FindAllCertificates()
		if err == nil && len(all) > 0 {
			cert = all[0]
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pkcs11signer: failed to find certificate: %w", err)
	}
	if cert == nil {
		return nil, nil, fmt.Errorf("pkcs11signer: no certificate found on token")
	}

	var key crypto11.Signer
	switch {
	case cfg.CertificateLabel != "":
		key, err = ctx.FindKeyPair(nil, []byte(cfg.CertificateLabel))
	case len(cfg.CertificateID) > 0:
		key, err = ctx.FindKeyPair(cfg.CertificateID, nil)
	default:
		key, err = findKeyPairMatchingCertificate(ctx, cert)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pkcs11signer: failed to find matching private key: %w", err)
	}
	if key == nil {
		return nil, nil, fmt.Errorf("pkcs11signer: no private key found on token")
	}

	return cert, key, nil
}

func findKeyPairMatchingCertificate(ctx *crypto11.Context, cert *x509.Certificate) (crypto11.Signer, error) {
	pairs, err := ctx.FindAllKeyPairs()
	if err != nil {
		return nil, err
	}

	rsaPub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return nil, fmt.Errorf("pkcs11signer: certificate public key does not support comparison")
	}

	for _, pair := range pairs {
		if rsaPub.Equal(pair.Public()) {
			return pair, nil
		}
	}
	return nil, fmt.Errorf("pkcs11signer: no key pair on token matches certificate public key")
}

// Sign performs the raw PKCS#1 v1.5 private-key operation over an
// already ASN.1-encoded DigestInfo, using crypto.Hash(0) to tell the
// token not to prepend a second hash-algorithm prefix (the CKM_RSA_PKCS
// mechanism's "caller already built DigestInfo" convention), matching
// the padding responsibility any callable Signer takes on.
func (s *Signer) Sign(digestInfo []byte) ([]byte, error) {
	return s.key.Sign(rand.Reader, digestInfo, crypto.Hash(0))
}

// CertificatePEM satisfies dsig.CertificateSigner.
func (s *Signer) CertificatePEM() (string, error) {
	return pemEncodeCertificate(s.cert), nil
}

// Certificate returns the parsed signing certificate.
func (s *Signer) Certificate() *x509.Certificate {
	return s.cert
}

// Close releases the PKCS#11 session.
func (s *Signer) Close() error {
	return s.ctx.Close()
}

func pemEncodeCertificate(cert *x509.Certificate) string {
	body := base64.StdEncoding.EncodeToString(cert.Raw)

	var b strings.Builder
	b.WriteString("-----BEGIN CERTIFICATE-----\n")
	for len(body) > 64 {
		b.WriteString(body[:64])
		b.WriteByte('\n')
		body = body[64:]
	}
	b.WriteString(body)
	b.WriteByte('\n')
	b.WriteString("-----END CERTIFICATE-----\n")
	return b.String()
}
