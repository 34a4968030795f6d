package extractor

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/geosite-keys/internal/canon"
	"github.com/bnema/geosite-keys/internal/domainkey"
	"github.com/bnema/geosite-keys/internal/logging"
	"github.com/bnema/geosite-keys/internal/models"
	"github.com/bnema/geosite-keys/internal/rules"
)

func suffix(v string) models.DomainRecord {
	return models.DomainRecord{Type: models.MatchSuffix, Value: v}
}

func newRules(cfg models.RulesConfig) *rules.RuleSet {
	return rules.New(cfg, canon.New(nil))
}

func TestSubdomainsCollapseToOneKey(t *testing.T) {
	groups := []models.Group{{
		Tag:     "cn",
		Domains: []models.DomainRecord{suffix("example.cn"), suffix("sub.example.cn")},
	}}

	e := New(newRules(models.RulesConfig{}))
	set := e.Extract(groups)

	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []domainkey.Key{domainkey.Encode("example.cn")}, set.SortedKeys())
	assert.Equal(t, []string{"example.cn"}, set.SortedOriginals())

	stats := e.Stats()
	assert.Equal(t, 2, stats.Suffix)
	assert.Equal(t, 1, stats.Admitted)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestFirstSeenWins(t *testing.T) {
	groups := []models.Group{{
		Tag:     "cn",
		Domains: []models.DomainRecord{suffix("www.example.cn"), suffix("example.cn")},
	}}

	set := New(newRules(models.RulesConfig{})).Extract(groups)
	e, ok := set.Entry(domainkey.Encode("example.cn"))
	require.True(t, ok)
	assert.Equal(t, "www.example.cn", e.Original)
	assert.Equal(t, "example.cn", e.Canonical)
}

func TestExcludedTLDNeverAdmitted(t *testing.T) {
	rs := newRules(models.RulesConfig{ExcludedTLDs: []string{"hk"}})
	groups := []models.Group{{Tag: "cn", Domains: []models.DomainRecord{suffix("foo.hk"), suffix("bar.cn")}}}

	e := New(rs)
	set := e.Extract(groups)

	assert.False(t, set.Contains(domainkey.Encode("foo.hk")))
	assert.True(t, set.Contains(domainkey.Encode("bar.cn")))
	assert.Equal(t, 1, e.Stats().SkipReasons[rules.RejectExcludedTLD])
}

func TestAdditionalDomainInjected(t *testing.T) {
	rs := newRules(models.RulesConfig{AdditionalDomains: []string{"icloud.com"}})

	e := New(rs)
	set := e.Extract([]models.Group{{Tag: "cn", Domains: []models.DomainRecord{suffix("qq.com")}}})

	assert.True(t, set.Contains(domainkey.Encode("icloud.com")))
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 1, e.Stats().Additional)
}

func TestAdditionalDomainShadowedByArchive(t *testing.T) {
	rs := newRules(models.RulesConfig{AdditionalDomains: []string{"icloud.com"}})

	e := New(rs)
	set := e.Extract([]models.Group{{Tag: "apple-cn", Domains: []models.DomainRecord{suffix("www.icloud.com")}}})

	entry, ok := set.Entry(domainkey.Encode("icloud.com"))
	require.True(t, ok)
	assert.Equal(t, "www.icloud.com", entry.Original)
	assert.Equal(t, 0, e.Stats().Additional)
}

func TestExcludedDomainsOnlyBackViaAdditional(t *testing.T) {
	rs := newRules(models.RulesConfig{
		ExcludedDomains:   []string{"blocked.cn", "forced.cn"},
		AdditionalDomains: []string{"forced.cn"},
	})
	groups := []models.Group{{Tag: "cn", Domains: []models.DomainRecord{
		suffix("blocked.cn"), suffix("a.blocked.cn"), suffix("forced.cn"), suffix("ok.cn"),
	}}}

	e := New(rs)
	set := e.Extract(groups)

	assert.False(t, set.Contains(domainkey.Encode("blocked.cn")))
	assert.True(t, set.Contains(domainkey.Encode("forced.cn")))
	assert.True(t, set.Contains(domainkey.Encode("ok.cn")))
	assert.Equal(t, 3, e.Stats().SkipReasons[rules.RejectExcludedDomain])
}

func TestGroupSelection(t *testing.T) {
	groups := []models.Group{
		{Tag: "CN", Domains: []models.DomainRecord{suffix("a.cn")}},
		{Tag: "Apple-CN", Domains: []models.DomainRecord{suffix("apple.com")}},
		{Tag: "google", Domains: []models.DomainRecord{suffix("google.com")}},
	}

	e := New(newRules(models.RulesConfig{}))
	set := e.Extract(groups)
	assert.Equal(t, 2, set.Len())
	assert.False(t, set.Contains(domainkey.Encode("google.com")))
	assert.Equal(t, 2, e.Stats().Groups)

	set = New(newRules(models.RulesConfig{}), WithTags(" Google ")).Extract(groups)
	assert.Equal(t, []string{"google.com"}, set.SortedOriginals())
}

func TestNonSuffixRecordsGoToResidual(t *testing.T) {
	regex := models.DomainRecord{Type: models.MatchRegex, Value: `^ads\d+\.example\.hk$`}
	full := models.DomainRecord{Type: models.MatchFull, Value: "foo.hk", Attributes: []models.Attribute{models.BoolAttr("ads", true)}}
	plain := models.DomainRecord{Type: models.MatchPlain, Value: "baidu"}

	groups := []models.Group{{Tag: "cn", Domains: []models.DomainRecord{regex, suffix("a.cn"), full, plain}}}
	rs := newRules(models.RulesConfig{ExcludedTLDs: []string{"hk"}})

	e := New(rs)
	set := e.Extract(groups)

	assert.Equal(t, []models.DomainRecord{regex, full, plain}, set.Residual())
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 3, e.Stats().Residual)
	assert.Zero(t, e.Stats().Skipped)
}

func TestCanonicalizationMissFallsBack(t *testing.T) {
	var logs bytes.Buffer
	e := New(newRules(models.RulesConfig{}), WithLogger(logging.New(&logs, false)))

	set := e.Extract([]models.Group{{Tag: "cn", Domains: []models.DomainRecord{suffix("com.cn")}}})

	entry, ok := set.Entry(domainkey.Encode("com.cn"))
	require.True(t, ok)
	assert.True(t, entry.Fallback)
	assert.Equal(t, 1, e.Stats().Fallbacks)
	assert.Contains(t, logs.String(), "|WARN| no registrable form, using raw domain domain=com.cn")
}

func TestTruncatedKeysCounted(t *testing.T) {
	e := New(newRules(models.RulesConfig{}))
	set := e.Extract([]models.Group{{Tag: "cn", Domains: []models.DomainRecord{
		suffix("www.averyveryverylongname.cn"),
		suffix("www.xaveryveryverylongname.cn"), // same trailing 16 bytes
	}}})

	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 2, e.Stats().Truncated)
	assert.Equal(t, 1, e.Stats().Duplicates)
}

func TestExtractIsRepeatable(t *testing.T) {
	groups := []models.Group{{Tag: "cn", Domains: []models.DomainRecord{suffix("b.cn"), suffix("a.cn")}}}
	e := New(newRules(models.RulesConfig{}))

	first := e.Extract(groups)
	second := e.Extract(groups)
	assert.Equal(t, first.SortedKeys(), second.SortedKeys())
	assert.Equal(t, first.SortedOriginals(), second.SortedOriginals())
	assert.Equal(t, 2, e.Stats().Admitted)
}

func TestParallelMatchesSequential(t *testing.T) {
	var domains []models.DomainRecord
	for i := 0; i < 5000; i++ {
		switch i % 7 {
		case 0:
			domains = append(domains, models.DomainRecord{Type: models.MatchFull, Value: fmt.Sprintf("full%d.cn", i)})
		case 1:
			domains = append(domains, suffix(fmt.Sprintf("host%d.hk", i)))
		default:
			// several records share a registrable domain
			domains = append(domains, suffix(fmt.Sprintf("h%d.site%d.cn", i, i%500)))
		}
	}
	groups := []models.Group{{Tag: "cn", Domains: domains}}
	rs := newRules(rules.DefaultConfig())

	seq := New(rs)
	want := seq.Extract(groups)

	par := New(rs, WithWorkers(4))
	got := par.Extract(groups)

	require.Equal(t, want.SortedKeys(), got.SortedKeys())
	for _, k := range want.SortedKeys() {
		we, _ := want.Entry(k)
		ge, _ := got.Entry(k)
		assert.Equal(t, we, ge)
	}
	assert.Equal(t, want.Residual(), got.Residual())
	assert.Equal(t, seq.Stats(), par.Stats())
}

func TestOutputSetInsert(t *testing.T) {
	s := NewOutputSet()
	k := domainkey.Encode("a.cn")

	assert.True(t, s.Insert(k, Entry{Original: "a.cn"}))
	assert.False(t, s.Insert(k, Entry{Original: "www.a.cn"}))

	e, _ := s.Entry(k)
	assert.Equal(t, "a.cn", e.Original)
}
