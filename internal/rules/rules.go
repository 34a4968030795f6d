// Package rules holds the inclusion/exclusion policy applied to suffix records.
package rules

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/bnema/geosite-keys/internal/canon"
	"github.com/bnema/geosite-keys/internal/domainkey"
	"github.com/bnema/geosite-keys/internal/models"
)

// Reject reasons
const (
	RejectExcludedTLD    = "excluded-tld"
	RejectExcludedDomain = "excluded-domain"
)

// DefaultExcludedTLDs are country TLDs whose domains never enter the key file.
var DefaultExcludedTLDs = []string{
	// Asia
	"hk", "tw", "sg", "jp", "kr", "in", "th", "vn", "my", "id", "io",
	// Europe
	"uk", "de", "fr", "it", "es", "nl", "ru",
	// Americas
	"us", "ca", "mx", "br",
	// Oceania
	"au", "nz",
}

// DefaultAdditionalDomains are forced into the key file even when the
// archive does not list them.
var DefaultAdditionalDomains = []string{
	"apple.com",
	"icloud.com",
	"microsoft.com",
}

// DefaultExcludedDomains are registrable domains kept out of the key file.
var DefaultExcludedDomains = []string{
	"googleapis.cn",
	"gstatic.cn",
}

// DefaultConfig returns the literal default tables.
func DefaultConfig() models.RulesConfig {
	return models.RulesConfig{
		AdditionalDomains: append([]string(nil), DefaultAdditionalDomains...),
		ExcludedDomains:   append([]string(nil), DefaultExcludedDomains...),
		ExcludedTLDs:      append([]string(nil), DefaultExcludedTLDs...),
	}
}

// Verdict is the result of evaluating one suffix domain.
type Verdict struct {
	Admitted  bool
	Reason    string // set when rejected
	Canonical canon.Result
	Key       domainkey.Key
}

// RuleSet is immutable once built and safe for concurrent use.
type RuleSet struct {
	canon        *canon.Canonicalizer
	additional   []string
	excluded     map[domainkey.Key]string
	excludedTLDs map[string]struct{}
}

// New builds a RuleSet from cfg. Excluded domains are canonicalized and
// encoded here, once.
func New(cfg models.RulesConfig, c *canon.Canonicalizer) *RuleSet {
	if c == nil {
		c = canon.New(nil)
	}

	rs := &RuleSet{
		canon:        c,
		additional:   cleanDomains(cfg.AdditionalDomains),
		excluded:     make(map[domainkey.Key]string),
		excludedTLDs: make(map[string]struct{}),
	}

	for _, d := range cleanDomains(cfg.ExcludedDomains) {
		k := domainkey.Encode(c.Canonicalize(d).String())
		if _, ok := rs.excluded[k]; !ok {
			rs.excluded[k] = d
		}
	}

	for _, tld := range cfg.ExcludedTLDs {
		tld = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tld)), ".")
		if tld != "" {
			rs.excludedTLDs[tld] = struct{}{}
		}
	}

	return rs
}

func cleanDomains(domains []string) []string {
	cleaned := lo.FilterMap(domains, func(d string, _ int) (string, bool) {
		d = strings.ToLower(strings.TrimSpace(d))
		return d, d != ""
	})
	return lo.Uniq(cleaned)
}

// TopLabel returns the text after the last dot of domain, or domain itself.
func TopLabel(domain string) string {
	if i := strings.LastIndexByte(domain, '.'); i != -1 {
		return domain[i+1:]
	}
	return domain
}

// ExcludedTLD reports whether the top label of domain is excluded.
func (rs *RuleSet) ExcludedTLD(domain string) bool {
	_, ok := rs.excludedTLDs[strings.ToLower(TopLabel(domain))]
	return ok
}

// ExcludedKey reports whether k belongs to an excluded domain.
func (rs *RuleSet) ExcludedKey(k domainkey.Key) bool {
	_, ok := rs.excluded[k]
	return ok
}

// Evaluate applies the rules to a suffix domain value: excluded TLD first,
// then excluded key, then admit.
func (rs *RuleSet) Evaluate(value string) Verdict {
	if rs.ExcludedTLD(value) {
		return Verdict{Reason: RejectExcludedTLD}
	}

	c := rs.canon.Canonicalize(value)
	k := domainkey.Encode(c.String())
	if rs.ExcludedKey(k) {
		return Verdict{Reason: RejectExcludedDomain, Canonical: c, Key: k}
	}

	return Verdict{Admitted: true, Canonical: c, Key: k}
}

// Admit reports whether rec belongs in the key file. Only suffix records
// are ever admitted.
func (rs *RuleSet) Admit(rec models.DomainRecord) bool {
	if rec.Type != models.MatchSuffix {
		return false
	}
	return rs.Evaluate(rec.Value).Admitted
}

// AdditionalDomains returns the forced inclusions. They bypass Evaluate.
func (rs *RuleSet) AdditionalDomains() []string {
	return append([]string(nil), rs.additional...)
}

// ExcludedDomains returns the configured exclusions, sorted.
func (rs *RuleSet) ExcludedDomains() []string {
	domains := lo.Values(rs.excluded)
	slices.Sort(domains)
	return domains
}

// ExcludedTLDs returns the excluded top-level labels, sorted.
func (rs *RuleSet) ExcludedTLDs() []string {
	tlds := lo.Keys(rs.excludedTLDs)
	slices.Sort(tlds)
	return tlds
}

// Canonicalizer returns the canonicalizer the rule set encodes with.
func (rs *RuleSet) Canonicalizer() *canon.Canonicalizer {
	return rs.canon
}
