package dsig

import (
	"encoding/base64"

	"github.com/beevik/etree"
)

// processReferences for each <Reference> child of signatureEl's
// <SignedInfo>, dereferences the URI, runs its Transform chain, digests
// the result, and writes the computed digest into the working copy's
// <DigestValue>. It returns the single hash name shared by every
// Reference; mixing hash algorithms across References in one signature
// is rejected.
//
// Each Reference is dereferenced against its own deep copy of doc. The
// Reference elements rooted under signatureEl ARE mutated in place
// (their DigestValue text is overwritten), and when signatureEl belongs
// to doc, as it does for both Sign and Verify, that is a change to doc.
// Verification relies on this overwrite: the recomputed digests become
// part of the canonicalized SignedInfo the signature value is checked
// against; the original DigestValue texts are not compared directly.
func processReferences(doc *etree.Document, signatureEl *etree.Element, idAttrs []string) (string, error) {
	signedInfo := signatureEl.FindElement(SignedInfoTag)
	if signedInfo == nil {
		return "", newErr(MissingElement, "Signature is missing SignedInfo")
	}

	references := signedInfo.SelectElements(ReferenceTag)
	if len(references) == 0 {
		return "", newErr(MissingElement, "SignedInfo has no Reference elements")
	}

	hashName := ""

	for _, ref := range references {
		obj, err := dereferenceURI(doc, ref, idAttrs)
		if err != nil {
			return "", err
		}

		digestBytes, err := applyTransforms(obj, ref.FindElement(TransformsTag))
		if err != nil {
			return "", err
		}

		digestMethod := ref.FindElement(DigestMethodTag)
		if digestMethod == nil {
			return "", newErr(MissingElement, "Reference is missing DigestMethod")
		}
		algURI := digestMethod.SelectAttrValue(AlgorithmAttr, "")
		thisHashName, ok := hashNameByDigestMethod[algURI]
		if !ok {
			return "", newErr(UnknownTransform, "unsupported digest method %q", algURI)
		}

		if hashName == "" {
			hashName = thisHashName
		} else if hashName != thisHashName {
			return "", newErr(InconsistentHash, "Reference digest algorithms differ: %s != %s", hashName, thisHashName)
		}

		digestValue, err := digestBytesWithHash(digestBytes, thisHashName)
		if err != nil {
			return "", err
		}

		dv := ref.FindElement(DigestValueTag)
		if dv == nil {
			return "", newErr(MissingElement, "Reference is missing DigestValue")
		}
		dv.SetText(base64.StdEncoding.EncodeToString(digestValue))
	}

	return hashName, nil
}

// dereferenceURI resolves a Reference's URI attribute against a fresh
// deep copy of doc.
func dereferenceURI(doc *etree.Document, ref *etree.Element, idAttrs []string) (*etree.Element, error) {
	uriAttr := ref.SelectAttr(URIAttr)
	uri := ""
	if uriAttr != nil {
		uri = uriAttr.Value
	}

	switch {
	case uri == "" || uri == "#":
		copyDoc := doc.Copy()
		stripCommentsAndPI(&copyDoc.Element)
		root := copyDoc.Root()
		if root == nil {
			return nil, newErr(MissingElement, "document has no root element")
		}
		return root, nil

	case len(uri) > 1 && uri[0] == '#':
		id := uri[1:]
		copyDoc := doc.Copy()
		root := copyDoc.Root()
		if root == nil {
			return nil, newErr(MissingElement, "document has no root element")
		}
		target := findByID(root, id, idAttrs)
		if target == nil {
			return nil, newErr(UnresolvedReference, "no element with id %q", id)
		}
		return target, nil

	default:
		return nil, newErr(UnknownReference, "unsupported Reference URI %q", uri)
	}
}

// findByID searches el and its descendants, in document order, for an
// element carrying one of idAttrs equal to id. idAttrs is consulted in
// order; the first attribute name that matches anywhere wins.
func findByID(el *etree.Element, id string, idAttrs []string) *etree.Element {
	for _, attrName := range idAttrs {
		if found := findByAttr(el, attrName, id); found != nil {
			return found
		}
	}
	return nil
}

func findByAttr(el *etree.Element, attrName, value string) *etree.Element {
	if el.SelectAttrValue(attrName, "") == value {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByAttr(child, attrName, value); found != nil {
			return found
		}
	}
	return nil
}

// stripCommentsAndPI removes every Comment and ProcInst token from el
// and its descendants; a whole-document Reference digests the document
// with comments and processing instructions stripped.
func stripCommentsAndPI(el *etree.Element) {
	kept := el.Child[:0]
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Comment, *etree.ProcInst:
			continue
		case *etree.Element:
			stripCommentsAndPI(t)
			kept = append(kept, t)
		default:
			kept = append(kept, tok)
		}
	}
	el.Child = kept
}

func digestBytesWithHash(data []byte, hashName string) ([]byte, error) {
	h, ok := cryptoHashByName[hashName]
	if !ok {
		return nil, newErr(UnknownTransform, "unsupported hash algorithm %q", hashName)
	}
	hasher := h.New()
	hasher.Write(data)
	return hasher.Sum(nil), nil
}
