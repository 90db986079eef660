package etreeutils

import "github.com/beevik/etree"

// NSContext is an immutable view of which namespace prefixes (and the
// default, unprefixed namespace under key "") are declared and in
// scope at some point in a document. It is built from the root down to
// the element of interest via NSBuildParentContext and
// SubContext, then used by NSDetatch to make sure a subtree detached
// from its original location still declares every namespace prefix it
// actually uses.
type NSContext struct {
	parent *NSContext
	decls  map[string]string // prefix ("" for default) -> URI
}

// EmptyNSContext is a context with no declarations in scope.
var EmptyNSContext = &NSContext{}

// NSBuildParentContext walks up from el's parent to the document root,
// collecting namespace declarations in effect at el, without including
// any declarations on el itself.
func NSBuildParentContext(el *etree.Element) (NSContext, error) {
	var chain []*etree.Element
	for p := el.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}

	ctx := NSContext{}
	for i := len(chain) - 1; i >= 0; i-- {
		ctx = ctx.withDecls(chain[i])
	}

	return ctx, nil
}

// SubContext returns a new NSContext extending ctx with the namespace
// declarations found directly on el.
func (ctx NSContext) SubContext(el *etree.Element) (NSContext, error) {
	return ctx.withDecls(el), nil
}

func (ctx NSContext) withDecls(el *etree.Element) NSContext {
	decls := make(map[string]string)
	for prefix, uri := range ctx.decls {
		decls[prefix] = uri
	}

	for _, a := range el.Attr {
		switch {
		case a.Space == "" && a.Key == "xmlns":
			decls[""] = a.Value
		case a.Space == "xmlns":
			decls[a.Key] = a.Value
		}
	}

	return NSContext{parent: &ctx, decls: decls}
}

// lookup resolves a prefix ("" for default) to its declared URI, if any.
func (ctx NSContext) lookup(prefix string) (string, bool) {
	uri, ok := ctx.decls[prefix]
	return uri, ok
}

// prefixesUsedBy returns the set of namespace prefixes el and its
// descendants actually reference, either as an element/attribute
// namespace or via an xmlns declaration they themselves carry.
func prefixesUsedBy(el *etree.Element, out map[string]struct{}) {
	if el.Space != "" {
		out[el.Space] = struct{}{}
	} else {
		out[""] = struct{}{}
	}

	for _, a := range el.Attr {
		switch {
		case a.Space == "" && a.Key == "xmlns":
			out[""] = struct{}{}
		case a.Space == "xmlns":
			out[a.Key] = struct{}{}
		case a.Space != "":
			out[a.Space] = struct{}{}
		}
	}

	for _, child := range el.ChildElements() {
		prefixesUsedBy(child, out)
	}
}

// NSDetatch returns a deep copy of el, disconnected from any parent,
// with xmlns declarations added for every namespace prefix used
// anywhere in el's subtree but declared only in ctx (i.e. on some
// ancestor el no longer has once detached). This is what lets a
// detached SignedInfo canonicalize correctly under inclusive c14n,
// which requires namespaces to be visibly declared in the serialized
// scope rather than merely "in effect".
func NSDetatch(ctx NSContext, el *etree.Element) (*etree.Element, error) {
	detached := el.Copy()

	used := make(map[string]struct{})
	prefixesUsedBy(detached, used)

	declaredOnElement := make(map[string]struct{})
	for _, a := range detached.Attr {
		switch {
		case a.Space == "" && a.Key == "xmlns":
			declaredOnElement[""] = struct{}{}
		case a.Space == "xmlns":
			declaredOnElement[a.Key] = struct{}{}
		}
	}

	for prefix := range used {
		if prefix == "" {
			continue // bare default namespace (xmlns="...") re-declaration is out of scope
		}
		if _, already := declaredOnElement[prefix]; already {
			continue
		}
		if uri, ok := ctx.lookup(prefix); ok {
			detached.CreateAttr("xmlns:"+prefix, uri)
		}
	}

	return detached, nil
}
