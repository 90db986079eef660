package dsig

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const nsSample = `<a:Root xmlns:a="urn:a" xmlns:b="urn:b" xmlns:unused="urn:unused"><a:Child b:attr="1"><!--comment--> text </a:Child></a:Root>`

func mustParse(t *testing.T, xmlText string) *etree.Document {
	t.Helper()
	doc, err := ParseXML([]byte(xmlText))
	require.NoError(t, err)
	return doc
}

func TestExclusiveCanonicalizeDropsUnusedNamespace(t *testing.T) {
	doc := mustParse(t, nsSample)
	c := MakeExclusiveCanonicalizer("", false)

	out, err := c.Canonicalize(doc.Root())
	require.NoError(t, err)

	// "b" is used by the Child's attribute, so it must survive; "unused"
	// is declared but never referenced, so exclusive c14n must drop it.
	require.Contains(t, string(out), `xmlns:b="urn:b"`)
	require.NotContains(t, string(out), "urn:unused")
	require.NotContains(t, string(out), "<!--")
}

func TestExclusiveCanonicalizeWithCommentsKeepsComments(t *testing.T) {
	doc := mustParse(t, nsSample)
	c := MakeExclusiveCanonicalizer("", true)

	out, err := c.Canonicalize(doc.Root())
	require.NoError(t, err)
	require.Contains(t, string(out), "<!--comment-->")
}

func TestExclusiveCanonicalizeIsIdempotent(t *testing.T) {
	doc := mustParse(t, nsSample)
	c := MakeExclusiveCanonicalizer("", false)

	first, err := c.Canonicalize(doc.Root())
	require.NoError(t, err)

	doc2 := mustParse(t, string(first))
	second, err := c.Canonicalize(doc2.Root())
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestInclusiveCanonicalizeKeepsUnusedNamespace(t *testing.T) {
	doc := mustParse(t, `<a:Root xmlns:a="urn:a" xmlns:unused="urn:unused"><a:Child/></a:Root>`)
	c := MakeInclusiveCanonicalizer(false)

	out, err := c.Canonicalize(doc.Root())
	require.NoError(t, err)
	require.Contains(t, string(out), `xmlns:unused="urn:unused"`)
}

func TestCanonicalizeSignedInfoInheritsAncestorNamespace(t *testing.T) {
	doc := mustParse(t, `<Doc xmlns:x="urn:x"><ds:Signature xmlns:ds="`+Namespace+`"><ds:SignedInfo><ds:Reference x:URI="#a"/></ds:SignedInfo></ds:Signature></Doc>`)
	signedInfo := doc.FindElement("//SignedInfo")
	require.NotNil(t, signedInfo)

	c := MakeExclusiveCanonicalizer("", false)
	out, err := c.Canonicalize(signedInfo)
	require.NoError(t, err)

	// SignedInfo's Reference uses the "x" prefix declared on the
	// grandparent <Doc>; detaching SignedInfo alone must not drop it.
	require.Contains(t, string(out), `xmlns:x="urn:x"`)
}
