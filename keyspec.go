package dsig

import (
	"os"
	"strings"
)

// KeySpecKind discriminates the variants of KeySpec, in place of a
// single overloaded string parameter that could mean a path, a
// fingerprint, or raw PEM depending on its shape.
type KeySpecKind int

const (
	// KeySpecPath: a filesystem path to a PEM-encoded key or certificate.
	KeySpecPath KeySpecKind = iota + 1
	// KeySpecFingerprint: a SHA-1 fingerprint "aa:bb:...:zz" identifying
	// a certificate embedded in the signature being processed.
	KeySpecFingerprint
	// KeySpecPEM: a raw PEM string (certificate or key).
	KeySpecPEM
	// KeySpecCallable: an opaque Signer (e.g. a PKCS#11 handle), with an
	// optional accompanying certificate.
	KeySpecCallable
)

// KeySpec is a tagged variant over the ways a key or certificate can be
// located. Construct one with KeySpecFromPath,
// KeySpecFromFingerprint, KeySpecFromPEM, or KeySpecFromSigner; use
// ParseKeySpec only at an ergonomic string boundary (e.g. a CLI flag
// living outside this core).
type KeySpec struct {
	Kind        KeySpecKind
	Path        string
	Fingerprint string
	PEM         string
	Signer      Signer
}

// Signer is the pluggable external-collaborator contract for a
// private-key operation whose key material this package never sees
// directly, for example a PKCS#11 token. Sign must perform full
// PKCS#1 v1.5 signing, including padding: the orchestrator calls
// buildSignedBlock with doPad=false for callable signers and hands
// Sign the bare DigestInfo.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// CertificateSigner is implemented by a Signer that can also surface
// the certificate that goes with its key, so Sign does not need a
// separately supplied certificate for PKCS#11-backed signing.
type CertificateSigner interface {
	Signer
	CertificatePEM() (string, error)
}

func KeySpecFromPath(path string) KeySpec {
	return KeySpec{Kind: KeySpecPath, Path: path}
}

func KeySpecFromFingerprint(fingerprint string) KeySpec {
	return KeySpec{Kind: KeySpecFingerprint, Fingerprint: fingerprint}
}

func KeySpecFromPEM(pem string) KeySpec {
	return KeySpec{Kind: KeySpecPEM, PEM: pem}
}

func KeySpecFromSigner(signer Signer) KeySpec {
	return KeySpec{Kind: KeySpecCallable, Signer: signer}
}

// ParseKeySpec recovers a KeySpec from a single string an external
// caller might pass around: an existing file path, a colon-delimited
// fingerprint, or a raw PEM string. It never produces KeySpecCallable;
// callers with a Signer must use KeySpecFromSigner directly.
func ParseKeySpec(s string) KeySpec {
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		return KeySpecFromPath(s)
	}
	if strings.Contains(s, ":") && !strings.Contains(s, "BEGIN") {
		return KeySpecFromFingerprint(s)
	}
	return KeySpecFromPEM(s)
}

func (k KeySpec) asLegacyString() string {
	switch k.Kind {
	case KeySpecPath:
		return k.Path
	case KeySpecFingerprint:
		return k.Fingerprint
	case KeySpecPEM:
		return k.PEM
	default:
		return ""
	}
}
