// Package keyprovider resolves real-world private-key storage formats
// (PEM files, PKCS#12 bundles) into the dsig.Signer contract, keeping
// that format-specific parsing out of the core engine: the core only
// ever consumes an already-resolved dsig.KeySpec or dsig.Signer.
package keyprovider

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	dsig "github.com/sigflow/xmldsig"
)

// KeyProvider resolves a key/certificate pair from some external
// storage format. Its certificate can be passed to CheckExpiry, which
// reports the expiry state against a Clock.
type KeyProvider interface {
	// PrivateKey returns the RSA private key.
	PrivateKey() (*rsa.PrivateKey, error)
	// CertificatePEM returns the signing certificate, PEM-armored.
	CertificatePEM() (string, error)
	// Certificate returns the parsed signing certificate.
	Certificate() (*x509.Certificate, error)
}

// ExpiryStatus summarizes a certificate's validity window at a point in
// time, per the expiry reporting described in SPEC_FULL.md's domain
// stack.
type ExpiryStatus struct {
	NotBefore time.Time
	NotAfter  time.Time
	Expired   bool
	ExpiresIn time.Duration
}

// CheckExpiry evaluates cert's validity window against clock (a nil
// clock uses real wall time).
func CheckExpiry(cert *x509.Certificate, clock *dsig.Clock) ExpiryStatus {
	now := clock.Now()
	return ExpiryStatus{
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		Expired:   now.After(cert.NotAfter),
		ExpiresIn: cert.NotAfter.Sub(now),
	}
}

// pemKeyProvider reads an already-decrypted PEM file containing both a
// private key ("PRIVATE KEY" or "RSA PRIVATE KEY") and a certificate
// ("CERTIFICATE") block.
type pemKeyProvider struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

// NewPEMKeyProvider loads a combined key+certificate PEM file.
func NewPEMKeyProvider(path string) (KeyProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := &pemKeyProvider{}

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, err
			}
			p.cert = cert

		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			p.key = key

		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			rsaKey, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, rsaKeyTypeError{}
			}
			p.key = rsaKey
		}
	}

	if p.key == nil {
		return nil, missingPEMBlockError{blockType: "private key"}
	}
	if p.cert == nil {
		return nil, missingPEMBlockError{blockType: "CERTIFICATE"}
	}

	return p, nil
}

func (p *pemKeyProvider) PrivateKey() (*rsa.PrivateKey, error) { return p.key, nil }

func (p *pemKeyProvider) Certificate() (*x509.Certificate, error) { return p.cert, nil }

func (p *pemKeyProvider) CertificatePEM() (string, error) {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: p.cert.Raw}
	return string(pem.EncodeToMemory(block)), nil
}

// pkcs12KeyProvider reads a password-protected PKCS#12 bundle (the
// common distribution format for qualified signing certificates),
// preferring PKCS#8 key parsing and falling back to PKCS#1.
type pkcs12KeyProvider struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

// NewPKCS12KeyProvider loads key and certificate from a .p12/.pfx file.
func NewPKCS12KeyProvider(path string, password string) (KeyProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, err
	}

	p := &pkcs12KeyProvider{}

	for _, block := range blocks {
		switch block.Type {
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				key2, err2 := x509.ParsePKCS1PrivateKey(block.Bytes)
				if err2 != nil {
					return nil, err
				}
				p.key = key2
				continue
			}
			rsaKey, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, rsaKeyTypeError{}
			}
			p.key = rsaKey

		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, err
			}
			if !cert.IsCA {
				p.cert = cert
			}
		}
	}

	if p.key == nil {
		return nil, missingPEMBlockError{blockType: "private key"}
	}
	if p.cert == nil {
		return nil, missingPEMBlockError{blockType: "signing certificate"}
	}

	return p, nil
}

func (p *pkcs12KeyProvider) PrivateKey() (*rsa.PrivateKey, error) { return p.key, nil }

func (p *pkcs12KeyProvider) Certificate() (*x509.Certificate, error) { return p.cert, nil }

func (p *pkcs12KeyProvider) CertificatePEM() (string, error) {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: p.cert.Raw}
	return string(pem.EncodeToMemory(block)), nil
}

// Signer adapts a KeyProvider to dsig.CertificateSigner, so a resolved
// key/cert pair can be used directly as a dsig.KeySpec via
// dsig.KeySpecFromSigner. Unlike the core's own filesystem-path
// resolution (which leaves padding to the orchestrator), a Signer is
// handed an already-built ASN.1 DigestInfo and is responsible for its
// own PKCS#1 v1.5 padding and the raw RSA private-key operation.
type Signer struct {
	Provider KeyProvider
}

// NewSigner wraps provider as a dsig.CertificateSigner.
func NewSigner(provider KeyProvider) *Signer {
	return &Signer{Provider: provider}
}

// Sign pads digestInfo per PKCS#1 v1.5 and performs the raw RSA private
// operation, returning the signature as minimal big-endian bytes,
// left-padded to the modulus size.
func (s *Signer) Sign(digestInfo []byte) ([]byte, error) {
	priv, err := s.Provider.PrivateKey()
	if err != nil {
		return nil, err
	}

	k := priv.Size()
	padSize := k - 3 - len(digestInfo)
	if padSize < 8 {
		return nil, keyTooSmallError{}
	}

	block := make([]byte, 0, k)
	block = append(block, 0x00, 0x01)
	for i := 0; i < padSize; i++ {
		block = append(block, 0xFF)
	}
	block = append(block, 0x00)
	block = append(block, digestInfo...)

	c := new(big.Int).SetBytes(block)
	m := new(big.Int).Exp(c, priv.D, priv.N)

	sig := m.Bytes()
	if len(sig) < k {
		padded := make([]byte, k)
		copy(padded[k-len(sig):], sig)
		sig = padded
	}
	return sig, nil
}

// CertificatePEM satisfies dsig.CertificateSigner, so Sign() need not be
// given a separate certificate when a callable Signer already knows its
// own.
func (s *Signer) CertificatePEM() (string, error) {
	return s.Provider.CertificatePEM()
}

type keyTooSmallError struct{}

func (keyTooSmallError) Error() string { return "keyprovider: modulus too small for padded DigestInfo" }

type missingPEMBlockError struct{ blockType string }

func (e missingPEMBlockError) Error() string { return "keyprovider: no " + e.blockType + " block found" }

type rsaKeyTypeError struct{}

func (rsaKeyTypeError) Error() string { return "keyprovider: private key is not RSA" }
