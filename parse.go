package dsig

import (
	"github.com/beevik/etree"
)

// ParseXML parses data into an *etree.Document with whitespace-only text
// nodes between elements removed, so mixed-content-free whitespace does
// not pollute c14n output. The canonicalizer does not re-normalize
// whitespace itself; this is the only place it is stripped.
func ParseXML(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = false

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, wrapErr(err, MissingElement, "failed to parse XML document")
	}

	if doc.Root() == nil {
		return nil, newErr(MissingElement, "document has no root element")
	}

	stripBlankText(&doc.Element)
	return doc, nil
}

// stripBlankText removes whitespace-only character data tokens sitting
// between sibling elements, mirroring lxml's remove_blank_text parser
// option.
func stripBlankText(el *etree.Element) {
	hasElementChild := false
	for _, child := range el.Child {
		if _, ok := child.(*etree.Element); ok {
			hasElementChild = true
			break
		}
	}

	if hasElementChild {
		kept := el.Child[:0]
		for _, child := range el.Child {
			if cd, ok := child.(*etree.CharData); ok && isBlank(cd.Data) {
				continue
			}
			kept = append(kept, child)
		}
		el.Child = kept
	}

	for _, child := range el.ChildElements() {
		stripBlankText(child)
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return false
		}
	}
	return true
}
