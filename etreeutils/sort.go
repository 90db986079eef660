// Package etreeutils provides small, focused helpers on top of
// beevik/etree that the core canonicalizer and signer need: attribute
// sorting for c14n's canonical attribute order, and a namespace-context
// chain for detaching a subtree (like SignedInfo) while preserving the
// namespace declarations it depends on. Ported and adapted from
// russellhaering/goxmldsig's etreeutils package, as vendored and reused
// by l-d-t-fiskalhrgo/etreeutils.
package etreeutils

import "github.com/beevik/etree"

// SortedAttrs sorts etree.Attr slices into XML canonicalization's
// attribute order: namespace declarations first (xmlns before
// xmlns:prefix, prefixes then sorted lexicographically), followed by
// the remaining attributes sorted by namespace prefix then local name.
// The comparison uses the prefix string as written, not the namespace
// URI the prefix is bound to.
type SortedAttrs []etree.Attr

func (a SortedAttrs) Len() int {
	return len(a)
}

func (a SortedAttrs) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
}

func (a SortedAttrs) Less(i, j int) bool {
	an, bn := a[i], a[j]

	// A bare default namespace declaration (xmlns="...") sorts first.
	if bn.Space == "" && bn.Key == "xmlns" {
		return false
	}
	if an.Space == "" && an.Key == "xmlns" {
		return true
	}

	if an.Space == "xmlns" && bn.Space != "xmlns" {
		return true
	}
	if an.Space != "xmlns" && bn.Space == "xmlns" {
		return false
	}
	if an.Space == "xmlns" && bn.Space == "xmlns" {
		return an.Key < bn.Key
	}

	if an.Space == bn.Space {
		return an.Key < bn.Key
	}

	return an.Space < bn.Space
}
