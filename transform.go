package dsig

import (
	"github.com/beevik/etree"
)

// applyTransforms runs the ordered Transform chain from a Reference's
// <Transforms> element (transformsEl may be nil, meaning no transforms)
// against obj. obj is consumed by the first transform; every subsequent
// transform consumes whatever the previous one produced. The first c14n
// transform ends the chain: its canonicalized bytes are returned, and
// any Transform elements after it are neither applied nor checked.
func applyTransforms(obj *etree.Element, transformsEl *etree.Element) ([]byte, error) {
	current := obj

	if transformsEl != nil {
		for _, t := range transformsEl.ChildElements() {
			if t.Tag != TransformTag {
				continue
			}

			algo := t.SelectAttrValue(AlgorithmAttr, "")
			switch AlgorithmID(algo) {
			case EnvelopedSignatureAlgorithmID:
				if !removeFirstSignature(current) {
					return nil, newErr(UnknownReference, "enveloped-signature transform found no Signature element to remove")
				}

			case CanonicalXMLExclusiveAlgorithmID:
				c := MakeExclusiveCanonicalizer(inclusivePrefixList(t), false)
				return c.Canonicalize(current)

			case CanonicalXMLExclusiveWithCommentsAlgorithmID:
				c := MakeExclusiveCanonicalizer(inclusivePrefixList(t), true)
				return c.Canonicalize(current)

			case CanonicalXMLRecAlgorithmID:
				c := MakeInclusiveCanonicalizer(false)
				return c.Canonicalize(current)

			default:
				return nil, newErr(UnknownTransform, "unsupported transform algorithm %q", algo)
			}
		}
	}

	// No c14n transform was present in the chain: fall back to plain
	// exclusive c14n without comments, matching the degenerate case of
	// digesting an already-selected element with no further processing.
	return MakeExclusiveCanonicalizer("", false).Canonicalize(current)
}

// inclusivePrefixList reads the InclusiveNamespaces/@PrefixList child of
// a <Transform> element.
func inclusivePrefixList(transformEl *etree.Element) string {
	ns := transformEl.FindElement(InclusiveNamespacesTag)
	if ns == nil {
		return ""
	}
	return ns.SelectAttrValue(PrefixListAttr, "")
}

// removeFirstSignature removes the first descendant {xmldsig}Signature
// element found under root, in document order. The root itself is
// never removed. etree keeps text nodes as independent siblings in an
// element's Child token list rather than attaching "tail" text to the
// node that follows them, so removing an element here already preserves
// the exact surrounding text concatenation with no special-case merging.
func removeFirstSignature(root *etree.Element) bool {
	for _, child := range root.ChildElements() {
		if isSignatureElement(child) {
			root.RemoveChild(child)
			return true
		}
		if removeFirstSignature(child) {
			return true
		}
	}
	return false
}

func isSignatureElement(el *etree.Element) bool {
	if el.Tag != SignatureTag {
		return false
	}
	return elementNamespace(el) == Namespace
}

// elementNamespace returns the namespace URI el resolves to, using its
// own xmlns/xmlns:prefix declarations and falling back to its parent
// chain.
func elementNamespace(el *etree.Element) string {
	prefix := el.Space
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if prefix == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value
			}
			if prefix != "" && a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	return ""
}

