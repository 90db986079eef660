package dsig

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/sigflow/xmldsig/etreeutils"
)

// Canonicalizer serializes an element subtree into one of the
// canonical XML byte forms this package supports.
type Canonicalizer interface {
	Canonicalize(el *etree.Element) ([]byte, error)
	Algorithm() AlgorithmID
}

const xmlnsSpace = "xmlns"

// exclusiveCanonicalizer implements exclusive XML canonicalization
// (http://www.w3.org/2001/10/xml-exc-c14n), optionally retaining
// comments.
type exclusiveCanonicalizer struct {
	inclusiveNamespaces map[string]struct{}
	withComments        bool
}

// MakeExclusiveCanonicalizer constructs an exclusive-c14n Canonicalizer.
// prefixList is NMTOKENS format (whitespace separated), matching the
// InclusiveNamespaces/@PrefixList attribute's syntax.
func MakeExclusiveCanonicalizer(prefixList string, withComments bool) Canonicalizer {
	prefixes := strings.Fields(prefixList)
	set := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		set[p] = struct{}{}
	}
	return &exclusiveCanonicalizer{inclusiveNamespaces: set, withComments: withComments}
}

func (c *exclusiveCanonicalizer) Algorithm() AlgorithmID {
	if c.withComments {
		return CanonicalXMLExclusiveWithCommentsAlgorithmID
	}
	return CanonicalXMLExclusiveAlgorithmID
}

func (c *exclusiveCanonicalizer) Canonicalize(el *etree.Element) ([]byte, error) {
	detached, err := detachWithNamespaceContext(el)
	if err != nil {
		return nil, err
	}
	// Prefixes named in the InclusiveNamespaces list are emitted on the
	// apex element even when only an ancestor of el declares them.
	for prefix := range c.inclusiveNamespaces {
		if detached.SelectAttr(xmlnsSpace+":"+prefix) != nil {
			continue
		}
		for p := el.Parent(); p != nil; p = p.Parent() {
			if a := p.SelectAttr(xmlnsSpace + ":" + prefix); a != nil {
				detached.CreateAttr(xmlnsSpace+":"+prefix, a.Value)
				break
			}
		}
	}
	prepared := excCanonicalPrep(detached, map[string]excNSDecl{}, c.inclusiveNamespaces)
	if !c.withComments {
		stripComments(prepared)
	}
	return canonicalSerialize(prepared)
}

// inclusiveCanonicalizer implements the 2001-03-15 REC-xml-c14n
// canonical form. It never strips unused namespace declarations. A
// default namespace (xmlns="...") declared only on an ancestor of the
// canonicalized element is not carried over.
type inclusiveCanonicalizer struct {
	withComments bool
}

// MakeInclusiveCanonicalizer constructs an inclusive-c14n Canonicalizer.
func MakeInclusiveCanonicalizer(withComments bool) Canonicalizer {
	return &inclusiveCanonicalizer{withComments: withComments}
}

func (c *inclusiveCanonicalizer) Algorithm() AlgorithmID {
	return CanonicalXMLRecAlgorithmID
}

func (c *inclusiveCanonicalizer) Canonicalize(el *etree.Element) ([]byte, error) {
	detached, err := detachWithNamespaceContext(el)
	if err != nil {
		return nil, err
	}
	// Inclusive c14n keeps every prefixed namespace in scope, so
	// declarations made by el's ancestors are carried onto the detached
	// copy too, the nearest ancestor's declaration winning.
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if a.Space == xmlnsSpace && detached.SelectAttr(xmlnsSpace+":"+a.Key) == nil {
				detached.CreateAttr(xmlnsSpace+":"+a.Key, a.Value)
			}
		}
	}
	prepared := canonicalPrep(detached, map[string]string{})
	if !c.withComments {
		stripComments(prepared)
	}
	return canonicalSerialize(prepared)
}

// detachWithNamespaceContext copies el free of its original parent,
// first making sure every namespace prefix el's subtree actually uses
// but only an ancestor declared gets re-declared on the copy. This
// matters most for a <SignedInfo> being canonicalized in place inside
// a larger document: without it, a prefix declared on an ancestor
// <Signature> or document root would silently vanish from the
// canonical form.
func detachWithNamespaceContext(el *etree.Element) (*etree.Element, error) {
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return nil, wrapErr(err, CanonicalizationError, "failed to build namespace context")
	}
	detached, err := etreeutils.NSDetatch(ctx, el)
	if err != nil {
		return nil, wrapErr(err, CanonicalizationError, "failed to detach element for canonicalization")
	}
	return detached, nil
}

type excNSDecl struct {
	attr etree.Attr
	used bool
}

// excCanonicalPrep recursively rewrites el into exclusive-canonical form:
// namespace redeclarations are stripped, unused namespaces are dropped
// (unless named in inclusiveNamespaces, which are always kept on the
// apex element), and attributes are sorted lexicographically. Only
// xmlns:prefix declarations are tracked here; a bare default namespace
// (xmlns="...") is out of scope.
func excCanonicalPrep(el *etree.Element, declaredByAncestor map[string]excNSDecl, inclusiveNamespaces map[string]struct{}) *etree.Element {
	declared := make(map[string]excNSDecl, len(declaredByAncestor))
	for k, v := range declaredByAncestor {
		declared[k] = v
	}

	usedHere := make(map[string]struct{})
	if el.Space != "" {
		usedHere[el.Space] = struct{}{}
	}

	var toRemove []string
	for _, a := range el.Attr {
		if a.Space != xmlnsSpace {
			if a.Space != "" {
				usedHere[a.Space] = struct{}{}
			}
			continue
		}

		toRemove = append(toRemove, a.Space+":"+a.Key)
		if _, ok := declared[a.Key]; !ok {
			declared[a.Key] = excNSDecl{attr: a}
		}
		if _, inclusive := inclusiveNamespaces[a.Key]; inclusive {
			usedHere[a.Key] = struct{}{}
		}
	}

	for _, name := range toRemove {
		el.RemoveAttr(name)
	}

	for k := range usedHere {
		decl, ok := declared[k]
		if ok && !decl.used {
			el.Attr = append(el.Attr, decl.attr)
			decl.used = true
			declared[k] = decl
		}
	}

	for _, child := range el.ChildElements() {
		excCanonicalPrep(child, declared, inclusiveNamespaces)
	}

	sort.Sort(etreeutils.SortedAttrs(el.Attr))
	return el
}

// canonicalPrep rewrites el into inclusive-canonical form: namespace
// redeclarations already seen in an ancestor are stripped, attributes
// are sorted, but unused namespaces are left alone (inclusive c14n does
// not prune them).
func canonicalPrep(el *etree.Element, seenSoFar map[string]string) *etree.Element {
	seen := make(map[string]string, len(seenSoFar))
	for k, v := range seenSoFar {
		seen[k] = v
	}

	sort.Sort(etreeutils.SortedAttrs(el.Attr))

	kept := el.Attr[:0]
	for _, a := range el.Attr {
		if a.Space != xmlnsSpace && !(a.Space == "" && a.Key == xmlnsSpace) {
			kept = append(kept, a)
			continue
		}
		key := composeAttrName(a.Space, a.Key)
		if uri, ok := seen[key]; ok && uri == a.Value {
			continue
		}
		kept = append(kept, a)
		seen[key] = a.Value
	}
	el.Attr = kept

	for _, child := range el.ChildElements() {
		canonicalPrep(child, seen)
	}

	return el
}

func composeAttrName(space, key string) string {
	if space == "" {
		return key
	}
	return space + ":" + key
}

func stripComments(el *etree.Element) {
	kept := el.Child[:0]
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Comment:
			continue
		case *etree.Element:
			stripComments(t)
			kept = append(kept, t)
		default:
			kept = append(kept, tok)
		}
	}
	el.Child = kept
}

// canonicalSerialize writes el with etree's canonical write settings and
// then replaces character/numeric references and a handful of named
// entities with their literal characters, leaving &amp;/&lt;/&gt;
// escaped. This is a deliberate post-processing pass rather than
// relying solely on etree's own escaping, matching the unescaped form
// downstream consumers expect.
func canonicalSerialize(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	doc.WriteSettings = etree.WriteSettings{
		CanonicalAttrVal: true,
		CanonicalEndTags: true,
		CanonicalText:    true,
	}

	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, wrapErr(err, CanonicalizationError, "failed to serialize canonical form")
	}

	out := bytes.TrimSpace(unescapeEntities(raw))
	if len(out) == 0 || out[0] != '<' || out[len(out)-1] != '>' {
		return nil, newErr(CanonicalizationError, "c14n buffer does not start with '<' and end with '>'")
	}
	return out, nil
}

// unescapeEntities replaces numeric character references and named
// entities with the literal characters they denote, except for &amp;,
// &lt;, and &gt; which are left escaped. Unknown named entities are
// left as-is.
func unescapeEntities(b []byte) []byte {
	var out bytes.Buffer
	i := 0
	for i < len(b) {
		if b[i] != '&' {
			out.WriteByte(b[i])
			i++
			continue
		}

		end := bytes.IndexByte(b[i:], ';')
		if end < 0 || end > 32 {
			out.WriteByte(b[i])
			i++
			continue
		}
		end += i

		entity := string(b[i : end+1])
		replaced, ok := resolveEntity(entity)
		if !ok {
			out.WriteString(entity)
		} else {
			out.WriteString(replaced)
		}
		i = end + 1
	}
	return out.Bytes()
}

func resolveEntity(entity string) (string, bool) {
	body := entity[1 : len(entity)-1] // strip & and ;

	if strings.HasPrefix(body, "#") {
		var codepoint int64
		var err error
		if strings.HasPrefix(body, "#x") || strings.HasPrefix(body, "#X") {
			codepoint, err = strconv.ParseInt(body[2:], 16, 32)
		} else {
			codepoint, err = strconv.ParseInt(body[1:], 10, 32)
		}
		if err != nil {
			return "", false
		}
		return string(rune(codepoint)), true
	}

	switch entity {
	case "&amp;", "&lt;", "&gt;":
		return "", false
	}

	if r, ok := namedEntities[body]; ok {
		return string(r), true
	}
	return "", false
}

// namedEntities covers a subset of the HTML4 named character
// references, minus amp/lt/gt which are deliberately left escaped
// above.
var namedEntities = map[string]rune{
	"quot": '"', "apos": '\'', "nbsp": ' ', "copy": '©',
	"reg": '®', "trade": '™', "euro": '€', "mdash": '—',
	"ndash": '–', "hellip": '…', "lsquo": '‘', "rsquo": '’',
	"ldquo": '“', "rdquo": '”',
}
