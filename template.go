package dsig

import "github.com/beevik/etree"

// TemplateOptions configures InsertTemplate's signature skeleton. The
// zero value is not directly usable; use DefaultTemplateOptions.
type TemplateOptions struct {
	C14NMethod   AlgorithmID
	DigestAlg    string
	Transforms   []AlgorithmID
	ReferenceURI string
}

// DefaultTemplateOptions returns the standard enveloped RSA-SHA1
// template defaults.
func DefaultTemplateOptions() TemplateOptions {
	return TemplateOptions{
		C14NMethod:   CanonicalXMLRecAlgorithmID,
		DigestAlg:    DigestSHA1,
		Transforms:   []AlgorithmID{EnvelopedSignatureAlgorithmID, CanonicalXMLExclusiveWithCommentsAlgorithmID},
		ReferenceURI: "",
	}
}

// InsertTemplate builds an empty enveloped-signature template, with
// every element under the DefaultPrefix namespace prefix, and inserts
// it as the first child of root, returning the new <Signature>
// element. DigestValue is left empty; reference processing populates it
// during signing.
func InsertTemplate(root *etree.Element, opts TemplateOptions) *etree.Element {
	sig := etree.NewElement(SignatureTag)
	sig.Space = DefaultPrefix
	sig.CreateAttr("xmlns:"+DefaultPrefix, Namespace)

	signedInfo := createNamespacedElement(sig, SignedInfoTag)

	cm := createNamespacedElement(signedInfo, CanonicalizationMethodTag)
	cm.CreateAttr(AlgorithmAttr, opts.C14NMethod.String())

	sm := createNamespacedElement(signedInfo, SignatureMethodTag)
	sm.CreateAttr(AlgorithmAttr, signatureMethodForDigestAlg(opts.DigestAlg))

	reference := createNamespacedElement(signedInfo, ReferenceTag)
	reference.CreateAttr(URIAttr, opts.ReferenceURI)

	transforms := createNamespacedElement(reference, TransformsTag)
	for _, algo := range opts.Transforms {
		t := createNamespacedElement(transforms, TransformTag)
		t.CreateAttr(AlgorithmAttr, algo.String())
	}

	dm := createNamespacedElement(reference, DigestMethodTag)
	dm.CreateAttr(AlgorithmAttr, opts.DigestAlg)

	createNamespacedElement(reference, DigestValueTag)

	root.InsertChildAt(0, sig)

	return sig
}

// createNamespacedElement adds a child to el tagged with DefaultPrefix,
// the way every element of a freshly inserted template is prefixed.
func createNamespacedElement(el *etree.Element, tag string) *etree.Element {
	child := el.CreateElement(tag)
	child.Space = DefaultPrefix
	return child
}

// signatureMethodForDigestAlg picks the SignatureMethod URI matching
// digestAlg's hash, falling back to rsa-sha1 for an unrecognized
// DigestMethod URI.
func signatureMethodForDigestAlg(digestAlg string) string {
	if hashName, ok := hashNameByDigestMethod[digestAlg]; ok {
		if method, ok := signatureMethodByHashName[hashName]; ok {
			return method
		}
	}
	return RSASHA1SignatureMethod
}
