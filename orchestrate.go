package dsig

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"

	"github.com/beevik/etree"
)

// VerifyOptions configures Verify, threading per-call configuration
// instead of relying on shared mutable process state.
type VerifyOptions struct {
	IDAttributes []string
}

// DefaultVerifyOptions returns the default ID-attribute list.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{IDAttributes: append([]string(nil), DefaultIDAttributes...)}
}

// SignOptions configures Sign.
type SignOptions struct {
	IDAttributes []string
	Template     TemplateOptions
}

// DefaultSignOptions returns the default template plus the default
// ID-attribute list.
func DefaultSignOptions() SignOptions {
	return SignOptions{
		IDAttributes: append([]string(nil), DefaultIDAttributes...),
		Template:     DefaultTemplateOptions(),
	}
}

// Verify checks every <Signature> element in doc. It returns true if at
// least one <Signature> validated; false only if the document contains
// none. Any other failure (mismatched digest, unresolvable reference,
// unknown transform, ...) is returned as an error rather than folded
// into a false result.
//
// The input document is never mutated: Verify works against an internal
// deep copy throughout, since reference processing below rewrites
// <DigestValue> in place.
func Verify(doc *etree.Document, keySpec KeySpec, opts VerifyOptions) (bool, error) {
	working := doc.Copy()

	signatures := findAllSignatures(working.Root())
	if len(signatures) == 0 {
		return false, nil
	}

	certIndex, err := buildCertificateIndex(working)
	if err != nil {
		return false, err
	}

	for _, sigEl := range signatures {
		if err := verifyOneSignature(working, sigEl, keySpec, certIndex, opts.IDAttributes); err != nil {
			return false, err
		}
	}

	return true, nil
}

// VerifyString is a convenience wrapper over Verify for callers that
// only have a keyspec in its historical single-string form.
func VerifyString(doc *etree.Document, keyspec string, opts VerifyOptions) (bool, error) {
	return Verify(doc, ParseKeySpec(keyspec), opts)
}

func verifyOneSignature(doc *etree.Document, sigEl *etree.Element, keySpec KeySpec, certIndex CertificateIndex, idAttrs []string) error {
	sv := sigEl.FindElement(SignatureValueTag)
	if sv == nil {
		return newErr(MissingElement, "Signature is missing SignatureValue")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(stripWhitespace(sv.Text()))
	if err != nil {
		return wrapErr(err, MissingElement, "SignatureValue is not valid base64")
	}

	certPEM, err := resolveCertPEM(keySpec.asLegacyString(), certIndex)
	if err != nil {
		return err
	}

	cert, err := parseCertificatePEM(certPEM)
	if err != nil {
		return err
	}

	pubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return newErr(KeyNotFound, "certificate does not contain an RSA public key")
	}

	hashName, err := processReferences(doc, sigEl, idAttrs)
	if err != nil {
		return err
	}

	signedInfo := sigEl.FindElement(SignedInfoTag)
	if signedInfo == nil {
		return newErr(MissingElement, "Signature is missing SignedInfo")
	}

	if err := checkSignatureMethodHash(signedInfo, hashName); err != nil {
		return err
	}

	cm := signedInfo.FindElement(CanonicalizationMethodTag)
	if cm == nil {
		return newErr(MissingElement, "SignedInfo is missing CanonicalizationMethod")
	}
	canonicalizer, err := canonicalizerFromMethodElement(cm)
	if err != nil {
		return err
	}

	siBytes, err := canonicalizer.Canonicalize(signedInfo)
	if err != nil {
		return err
	}

	siDigest, err := digestBytesWithHash(siBytes, hashName)
	if err != nil {
		return err
	}

	modulusBits := pubKey.N.BitLen() + 1
	expected, err := buildSignedBlock(siDigest, modulusBits, true, hashName)
	if err != nil {
		return err
	}

	actual := rsaPublicRaw(pubKey, sigBytes)

	if !bytes.Equal(expected, actual) {
		return newErr(SignatureMismatch, "signature validation failed")
	}

	return nil
}

// rsaPublicRaw computes the raw modular exponentiation image of sig
// under pubKey's public exponent, as big-endian bytes without a
// leading zero.
func rsaPublicRaw(pubKey *rsa.PublicKey, sig []byte) []byte {
	c := new(big.Int).SetBytes(sig)
	e := big.NewInt(int64(pubKey.E))
	m := new(big.Int).Exp(c, e, pubKey.N)
	return m.Bytes()
}

// Sign signs doc. If doc has no <Signature>, a template built from
// opts.Template, with its ReferenceURI set to referenceURI, is inserted
// as the first child of the root before References are processed. doc is mutated in place and also returned for convenience.
func Sign(doc *etree.Document, keySpec KeySpec, certPEM string, referenceURI string, opts SignOptions) (*etree.Document, error) {
	privSign, doPad, resolvedCertPEM, err := resolveSigner(keySpec, certPEM)
	if err != nil {
		return nil, err
	}

	cert, err := parseCertificatePEM(resolvedCertPEM)
	if err != nil {
		return nil, err
	}
	pubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, newErr(KeyNotFound, "signing certificate does not contain an RSA public key")
	}
	modulusBits := pubKey.N.BitLen() + 1

	root := doc.Root()
	if root == nil {
		return nil, newErr(MissingElement, "document has no root element")
	}

	template := opts.Template
	template.ReferenceURI = referenceURI

	if len(findAllSignatures(root)) == 0 {
		InsertTemplate(root, template)
	}

	for _, sigEl := range findAllSignatures(root) {
		hashName, err := processReferences(doc, sigEl, opts.IDAttributes)
		if err != nil {
			return nil, err
		}

		signedInfo := sigEl.FindElement(SignedInfoTag)
		if signedInfo == nil {
			return nil, newErr(MissingElement, "Signature is missing SignedInfo")
		}

		cm := signedInfo.FindElement(CanonicalizationMethodTag)
		if cm == nil {
			return nil, newErr(MissingElement, "SignedInfo is missing CanonicalizationMethod")
		}
		canonicalizer, err := canonicalizerFromMethodElement(cm)
		if err != nil {
			return nil, err
		}

		siBytes, err := canonicalizer.Canonicalize(signedInfo)
		if err != nil {
			return nil, err
		}

		siDigest, err := digestBytesWithHash(siBytes, hashName)
		if err != nil {
			return nil, err
		}

		block, err := buildSignedBlock(siDigest, modulusBits, doPad, hashName)
		if err != nil {
			return nil, err
		}

		sigValueBytes, err := privSign(block)
		if err != nil {
			return nil, wrapErr(err, KeyNotFound, "private key operation failed")
		}

		insertSignatureValueAndKeyInfo(sigEl, signedInfo, sigValueBytes, resolvedCertPEM)
	}

	return doc, nil
}

// resolveSigner resolves a KeySpec down to a raw private-key operation:
// a callable signer is used directly with doPad=false (it is
// responsible for its own PKCS#1 padding); a filesystem path to a PEM
// private key is parsed and doPad=true, since the raw modular
// exponentiation this package performs needs the padding applied
// first.
func resolveSigner(keySpec KeySpec, certPEM string) (sign func([]byte) ([]byte, error), doPad bool, resolvedCertPEM string, err error) {
	switch keySpec.Kind {
	case KeySpecCallable:
		if keySpec.Signer == nil {
			return nil, false, "", newErr(KeyNotFound, "callable KeySpec has no Signer")
		}
		resolvedCertPEM = certPEM
		if resolvedCertPEM == "" {
			if cs, ok := keySpec.Signer.(CertificateSigner); ok {
				if p, certErr := cs.CertificatePEM(); certErr == nil {
					resolvedCertPEM = p
				}
			}
		}
		if resolvedCertPEM == "" {
			return nil, false, "", newErr(KeyNotFound, "no certificate available for callable KeySpec")
		}
		return keySpec.Signer.Sign, false, resolvedCertPEM, nil

	case KeySpecPath, KeySpecPEM:
		var data []byte
		if keySpec.Kind == KeySpecPath {
			data, err = os.ReadFile(keySpec.Path)
			if err != nil {
				return nil, false, "", wrapErr(err, KeyNotFound, "failed to read key file %q", keySpec.Path)
			}
		} else {
			data = []byte(keySpec.PEM)
		}

		priv, err := parsePrivateKeyPEM(data)
		if err != nil {
			return nil, false, "", err
		}

		resolvedCertPEM = certPEM
		if resolvedCertPEM == "" {
			return nil, false, "", newErr(KeyNotFound, "no certificate supplied alongside private key")
		}

		return func(block []byte) ([]byte, error) {
			c := new(big.Int).SetBytes(block)
			s := new(big.Int).Exp(c, priv.D, priv.N)
			return s.Bytes(), nil
		}, true, resolvedCertPEM, nil

	default:
		return nil, false, "", newErr(KeyNotFound, "unable to load private key from KeySpec")
	}
}

func insertSignatureValueAndKeyInfo(sigEl *etree.Element, signedInfo *etree.Element, sigValueBytes []byte, certPEM string) {
	if existing := sigEl.FindElement(SignatureValueTag); existing != nil {
		sigEl.RemoveChild(existing)
	}
	if existing := sigEl.FindElement(KeyInfoTag); existing != nil {
		sigEl.RemoveChild(existing)
	}

	signedInfoIdx := -1
	for i, tok := range sigEl.Child {
		if tok == etree.Token(signedInfo) {
			signedInfoIdx = i
			break
		}
	}

	sv := etree.NewElement(SignatureValueTag)
	sv.Space = sigEl.Space
	sv.SetText(base64.StdEncoding.EncodeToString(sigValueBytes))

	keyInfo := etree.NewElement(KeyInfoTag)
	keyInfo.Space = sigEl.Space
	x509Data := keyInfo.CreateElement(X509DataTag)
	x509Data.Space = sigEl.Space
	x509Cert := x509Data.CreateElement(X509CertificateTag)
	x509Cert.Space = sigEl.Space
	x509Cert.SetText(pem2b64(certPEM))

	if signedInfoIdx >= 0 {
		sigEl.InsertChildAt(signedInfoIdx+1, sv)
		sigEl.InsertChildAt(signedInfoIdx+2, keyInfo)
	} else {
		sigEl.AddChild(sv)
		sigEl.AddChild(keyInfo)
	}
}

// checkSignatureMethodHash confirms SignedInfo's <SignatureMethod>
// names the same hash as the Reference digests already agreed on,
// rejecting a signature that claims rsa-sha256 while every Reference
// was digested with sha1 (or vice versa).
func checkSignatureMethodHash(signedInfo *etree.Element, hashName string) error {
	sm := signedInfo.FindElement(SignatureMethodTag)
	if sm == nil {
		return newErr(MissingElement, "SignedInfo is missing SignatureMethod")
	}
	algo := sm.SelectAttrValue(AlgorithmAttr, "")
	smHash, ok := hashNameBySignatureMethod[algo]
	if !ok {
		return newErr(UnknownTransform, "unsupported signature method %q", algo)
	}
	if smHash != hashName {
		return newErr(InconsistentHash, "SignatureMethod hash %q does not match Reference digest hash %q", smHash, hashName)
	}
	return nil
}

// canonicalizerFromMethodElement builds a Canonicalizer from a
// CanonicalizationMethod (or Transform) element's Algorithm attribute
// and optional InclusiveNamespaces child.
func canonicalizerFromMethodElement(el *etree.Element) (Canonicalizer, error) {
	algo := el.SelectAttrValue(AlgorithmAttr, "")
	switch AlgorithmID(algo) {
	case CanonicalXMLExclusiveAlgorithmID:
		return MakeExclusiveCanonicalizer(inclusivePrefixList(el), false), nil
	case CanonicalXMLExclusiveWithCommentsAlgorithmID:
		return MakeExclusiveCanonicalizer(inclusivePrefixList(el), true), nil
	case CanonicalXMLRecAlgorithmID:
		return MakeInclusiveCanonicalizer(false), nil
	default:
		return nil, newErr(UnknownTransform, "unsupported canonicalization method %q", algo)
	}
}

func findAllSignatures(root *etree.Element) []*etree.Element {
	if root == nil {
		return nil
	}
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if isSignatureElement(el) {
			out = append(out, el)
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return out
}

func parseCertificatePEM(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, newErr(KeyNotFound, "failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, wrapErr(err, KeyNotFound, "failed to parse certificate")
	}
	return cert, nil
}

func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newErr(KeyNotFound, "failed to decode private key PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, wrapErr(err, KeyNotFound, "failed to parse private key (tried PKCS1 and PKCS8)")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, newErr(KeyNotFound, "private key is not RSA")
	}
	return rsaKey, nil
}
