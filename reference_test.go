package dsig

import (
	"encoding/base64"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

func buildSignedInfoWithReference(uri string) (*etree.Document, *etree.Element) {
	doc, _ := ParseXML([]byte(`<Doc><Payload ID="target">hello</Payload><ds:Signature xmlns:ds="` + Namespace + `"/></Doc>`))

	sig := doc.FindElement("//Signature")
	signedInfo := sig.CreateElement(SignedInfoTag)
	ref := signedInfo.CreateElement(ReferenceTag)
	if uri != "" {
		ref.CreateAttr(URIAttr, uri)
	}
	transforms := ref.CreateElement(TransformsTag)
	t := transforms.CreateElement(TransformTag)
	t.CreateAttr(AlgorithmAttr, string(CanonicalXMLExclusiveAlgorithmID))
	dm := ref.CreateElement(DigestMethodTag)
	dm.CreateAttr(AlgorithmAttr, DigestSHA256)
	ref.CreateElement(DigestValueTag)

	return doc, sig
}

func TestProcessReferencesWholeDocumentURI(t *testing.T) {
	doc, sig := buildSignedInfoWithReference("")
	hashName, err := processReferences(doc, sig, DefaultIDAttributes)
	require.NoError(t, err)
	require.Equal(t, "sha256", hashName)

	dv := sig.FindElement("SignedInfo").FindElement("Reference").FindElement("DigestValue")
	require.NotNil(t, dv)
	_, err = base64.StdEncoding.DecodeString(dv.Text())
	require.NoError(t, err)
}

func TestProcessReferencesByIDURI(t *testing.T) {
	doc, sig := buildSignedInfoWithReference("#target")
	hashName, err := processReferences(doc, sig, DefaultIDAttributes)
	require.NoError(t, err)
	require.Equal(t, "sha256", hashName)
}

func TestProcessReferencesUnknownURIErrors(t *testing.T) {
	doc, sig := buildSignedInfoWithReference("http://example.com/other")
	_, err := processReferences(doc, sig, DefaultIDAttributes)
	require.Error(t, err)
	require.ErrorIs(t, err, UnknownReference)
}

func TestProcessReferencesUnresolvedIDErrors(t *testing.T) {
	doc, sig := buildSignedInfoWithReference("#does-not-exist")
	_, err := processReferences(doc, sig, DefaultIDAttributes)
	require.Error(t, err)
	require.ErrorIs(t, err, UnresolvedReference)
}

func TestProcessReferencesInconsistentHashErrors(t *testing.T) {
	doc, sig := buildSignedInfoWithReference("")
	signedInfo := sig.FindElement(SignedInfoTag)

	ref2 := signedInfo.CreateElement(ReferenceTag)
	ref2.CreateAttr(URIAttr, "")
	transforms2 := ref2.CreateElement(TransformsTag)
	tr2 := transforms2.CreateElement(TransformTag)
	tr2.CreateAttr(AlgorithmAttr, string(CanonicalXMLExclusiveAlgorithmID))
	dm2 := ref2.CreateElement(DigestMethodTag)
	dm2.CreateAttr(AlgorithmAttr, DigestSHA1)
	ref2.CreateElement(DigestValueTag)

	_, err := processReferences(doc, sig, DefaultIDAttributes)
	require.Error(t, err)
	require.ErrorIs(t, err, InconsistentHash)
}

func TestFindByIDConsultsAttributesInOrder(t *testing.T) {
	// Both elements carry the value; <a> comes first in the document, but
	// "ID" is consulted before "id", so <b> wins.
	doc, err := ParseXML([]byte(`<Doc><a id="dup"/><b ID="dup"/></Doc>`))
	require.NoError(t, err)

	found := findByID(doc.Root(), "dup", []string{"ID", "id"})
	require.NotNil(t, found)
	require.Equal(t, "b", found.Tag)
}
