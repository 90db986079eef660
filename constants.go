package dsig

import "crypto"

// Namespace is the XML-Signature namespace this engine produces and consumes.
const Namespace = "http://www.w3.org/2000/09/xmldsig#"

// Default prefix used when constructing a signature template.
const DefaultPrefix = "ds"

// Element and attribute local names used throughout the package.
const (
	SignatureTag              = "Signature"
	SignedInfoTag             = "SignedInfo"
	CanonicalizationMethodTag = "CanonicalizationMethod"
	SignatureMethodTag        = "SignatureMethod"
	ReferenceTag              = "Reference"
	TransformsTag             = "Transforms"
	TransformTag              = "Transform"
	DigestMethodTag           = "DigestMethod"
	DigestValueTag            = "DigestValue"
	SignatureValueTag         = "SignatureValue"
	KeyInfoTag                = "KeyInfo"
	X509DataTag               = "X509Data"
	X509CertificateTag        = "X509Certificate"
	InclusiveNamespacesTag    = "InclusiveNamespaces"

	AlgorithmAttr  = "Algorithm"
	URIAttr        = "URI"
	PrefixListAttr = "PrefixList"
)

// AlgorithmID identifies a transform, canonicalization, digest, or
// signature-method algorithm by its full URI.
type AlgorithmID string

func (id AlgorithmID) String() string {
	return string(id)
}

// Transform algorithm URIs.
const (
	EnvelopedSignatureAlgorithmID AlgorithmID = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	CanonicalXMLExclusiveAlgorithmID             AlgorithmID = "http://www.w3.org/2001/10/xml-exc-c14n"
	CanonicalXMLExclusiveWithCommentsAlgorithmID AlgorithmID = "http://www.w3.org/2001/10/xml-exc-c14n#WithComments"
	CanonicalXMLRecAlgorithmID                   AlgorithmID = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
)

// Signature method URIs. The verify path accepts any of these whose
// hash has a tabulated DigestInfo prefix; InsertTemplate picks the one
// matching its DigestAlg.
const (
	RSASHA1SignatureMethod   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	RSASHA256SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	RSASHA384SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	RSASHA512SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
)

// Digest method URIs.
const (
	DigestSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	DigestSHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	DigestSHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"
)

var signatureMethodByHashName = map[string]string{
	"sha1":   RSASHA1SignatureMethod,
	"sha256": RSASHA256SignatureMethod,
	"sha384": RSASHA384SignatureMethod,
	"sha512": RSASHA512SignatureMethod,
}

var hashNameBySignatureMethod = map[string]string{
	RSASHA1SignatureMethod:   "sha1",
	RSASHA256SignatureMethod: "sha256",
	RSASHA384SignatureMethod: "sha384",
	RSASHA512SignatureMethod: "sha512",
}

var hashNameByDigestMethod = map[string]string{
	DigestSHA1:   "sha1",
	DigestSHA256: "sha256",
	DigestSHA384: "sha384",
	DigestSHA512: "sha512",
}

var cryptoHashByName = map[string]crypto.Hash{
	"sha1":   crypto.SHA1,
	"sha256": crypto.SHA256,
	"sha384": crypto.SHA384,
	"sha512": crypto.SHA512,
}

// digestInfoPrefix holds the ASN.1 BER DigestInfo designator prefix for
// each supported hash.
var digestInfoPrefix = map[string][]byte{
	"sha1":   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	"sha256": {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	"sha384": {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	"sha512": {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// DefaultIDAttributes is the insertion-ordered default set of attribute
// local names consulted to resolve a "#id" Reference URI.
var DefaultIDAttributes = []string{"ID", "id"}
