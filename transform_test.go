package dsig

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

func buildTransformsEl(algos ...AlgorithmID) *etree.Element {
	transforms := etree.NewElement(TransformsTag)
	for _, a := range algos {
		tr := transforms.CreateElement(TransformTag)
		tr.CreateAttr(AlgorithmAttr, a.String())
	}
	return transforms
}

func TestApplyTransformsEnvelopedSignatureRemovesSignature(t *testing.T) {
	doc := mustParse(t, `<Doc><Payload>hi</Payload><ds:Signature xmlns:ds="`+Namespace+`"><ds:SignedInfo/></ds:Signature></Doc>`)

	transforms := buildTransformsEl(EnvelopedSignatureAlgorithmID, CanonicalXMLExclusiveAlgorithmID)
	out, err := applyTransforms(doc.Root(), transforms)
	require.NoError(t, err)
	require.NotContains(t, string(out), "Signature")
	require.Contains(t, string(out), "<Payload>hi</Payload>")
}

func TestApplyTransformsUnknownAlgorithmErrors(t *testing.T) {
	doc := mustParse(t, `<Doc/>`)
	transforms := buildTransformsEl(AlgorithmID("urn:not-a-real-transform"))

	_, err := applyTransforms(doc.Root(), transforms)
	require.Error(t, err)
	require.ErrorIs(t, err, UnknownTransform)
}

func TestApplyTransformsNilChainDefaultsToExclusiveC14N(t *testing.T) {
	doc := mustParse(t, `<Doc xmlns:unused="urn:unused"/>`)
	out, err := applyTransforms(doc.Root(), nil)
	require.NoError(t, err)
	require.NotContains(t, string(out), "urn:unused")
}

func TestRemoveFirstSignatureOnlyRemovesFirst(t *testing.T) {
	doc := mustParse(t, `<Doc>`+
		`<ds:Signature xmlns:ds="`+Namespace+`"><ds:SignedInfo/></ds:Signature>`+
		`<Nested><ds:Signature xmlns:ds="`+Namespace+`"><ds:SignedInfo/></ds:Signature></Nested>`+
		`</Doc>`)

	removed := removeFirstSignature(doc.Root())
	require.True(t, removed)

	nested := doc.Root().FindElement("Nested")
	require.NotNil(t, nested)
	require.Len(t, nested.FindElements("Signature"), 1)

	require.Nil(t, doc.Root().FindElement("Signature"))
}
