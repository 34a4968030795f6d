// Package canon reduces domain names to their registrable form using a
// public suffix oracle.
package canon

import (
	"fmt"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	xpublicsuffix "golang.org/x/net/publicsuffix"
)

// Oracle resolves a domain to its registrable (eTLD+1) form.
type Oracle interface {
	EffectiveTLDPlusOne(domain string) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(domain string) (string, error)

func (f OracleFunc) EffectiveTLDPlusOne(domain string) (string, error) {
	return f(domain)
}

// Builtin returns the oracle backed by the list compiled into
// golang.org/x/net/publicsuffix.
func Builtin() Oracle {
	return OracleFunc(xpublicsuffix.EffectiveTLDPlusOne)
}

// ListOracle resolves domains against a Public Suffix List loaded from disk.
type ListOracle struct {
	list *publicsuffix.List
	opts *publicsuffix.FindOptions
}

// ListOptions controls how a PSL file is read and queried
type ListOptions struct {
	IgnorePrivate bool
}

// LoadListFile parses the PSL file at path.
func LoadListFile(path string, opts ListOptions) (*ListOracle, error) {
	list, err := publicsuffix.NewListFromFile(path, &publicsuffix.ParserOption{
		PrivateDomains: !opts.IgnorePrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("load public suffix list %s: %w", path, err)
	}
	return &ListOracle{
		list: list,
		opts: &publicsuffix.FindOptions{
			IgnorePrivate: opts.IgnorePrivate,
			DefaultRule:   publicsuffix.DefaultRule,
		},
	}, nil
}

// Size returns the number of rules in the list.
func (o *ListOracle) Size() int {
	return o.list.Size()
}

func (o *ListOracle) EffectiveTLDPlusOne(domain string) (string, error) {
	return publicsuffix.DomainFromListWithOptions(o.list, domain, o.opts)
}

// Result is the outcome of canonicalization: either the registrable form of
// the input, or the input itself when no registrable form exists.
type Result struct {
	value    string
	fallback bool
}

// Canonical returns a Result holding a registrable domain.
func Canonical(domain string) Result {
	return Result{value: domain}
}

// Fallback returns a Result holding a raw domain used as its own canonical form.
func Fallback(raw string) Result {
	return Result{value: raw, fallback: true}
}

// String returns the canonical form to encode.
func (r Result) String() string {
	return r.value
}

// IsFallback reports whether the oracle had no registrable form for the input.
func (r Result) IsFallback() bool {
	return r.fallback
}

// Canonicalizer maps raw domains to canonical results.
type Canonicalizer struct {
	oracle Oracle
}

// New creates a Canonicalizer. A nil oracle selects Builtin.
func New(oracle Oracle) *Canonicalizer {
	if oracle == nil {
		oracle = Builtin()
	}
	return &Canonicalizer{oracle: oracle}
}

// Canonicalize returns the registrable form of raw, or Fallback(raw) when the
// oracle cannot produce one.
func (c *Canonicalizer) Canonicalize(raw string) Result {
	d, err := c.oracle.EffectiveTLDPlusOne(raw)
	if err != nil || d == "" {
		return Fallback(raw)
	}
	return Canonical(d)
}
