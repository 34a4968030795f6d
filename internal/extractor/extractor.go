// Package extractor walks decoded geosite groups and builds the set of domain
// keys destined for the binary key file.
package extractor

import (
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"

	"github.com/bnema/geosite-keys/internal/domainkey"
	"github.com/bnema/geosite-keys/internal/logging"
	"github.com/bnema/geosite-keys/internal/models"
	"github.com/bnema/geosite-keys/internal/rules"
)

// minChunk keeps parallel chunks large enough to be worth a goroutine.
const minChunk = 1024

// Extractor filters, canonicalizes, encodes and deduplicates domain records
type Extractor struct {
	rules   *rules.RuleSet
	tags    map[string]struct{}
	workers int
	log     logrus.FieldLogger
	stats   Stats
}

// Stats tracks extraction statistics
type Stats struct {
	Groups      int // selected groups
	Records     int // records in selected groups
	Suffix      int
	Residual    int
	Admitted    int
	Duplicates  int
	Fallbacks   int
	Truncated   int
	Additional  int
	Skipped     int
	SkipReasons map[string]int
}

// Option configures an Extractor
type Option func(*Extractor)

// WithTags replaces the selection set. Tags match case-insensitively.
func WithTags(tags ...string) Option {
	return func(e *Extractor) {
		e.tags = tagSet(tags)
	}
}

// WithWorkers evaluates records on n goroutines. n <= 1 runs sequentially.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		e.workers = n
	}
}

// WithLogger sets the logger used for canonicalization misses and debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Extractor) {
		e.log = l
	}
}

// New creates a new extractor
func New(rs *rules.RuleSet, opts ...Option) *Extractor {
	e := &Extractor{
		rules:   rs,
		tags:    tagSet(models.DefaultSelectTags),
		workers: 1,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resetStats()
	return e
}

func tagSet(tags []string) map[string]struct{} {
	normalized := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	})
	return lo.SliceToMap(normalized, func(t string) (string, struct{}) {
		return t, struct{}{}
	})
}

func (e *Extractor) resetStats() {
	e.stats = Stats{SkipReasons: make(map[string]int)}
}

// skip records a rejected record with reason
func (e *Extractor) skip(reason string) {
	e.stats.Skipped++
	e.stats.SkipReasons[reason]++
}

// Stats returns statistics of the last Extract call
func (e *Extractor) Stats() Stats {
	return e.stats
}

// Selected reports whether a group tag is in the selection set.
func (e *Extractor) Selected(tag string) bool {
	_, ok := e.tags[strings.ToLower(tag)]
	return ok
}

// evaluated is a record together with its rule verdict. Non-suffix records
// carry a zero verdict.
type evaluated struct {
	rec     models.DomainRecord
	suffix  bool
	verdict rules.Verdict
}

func (e *Extractor) evaluate(rec models.DomainRecord) evaluated {
	if rec.Type != models.MatchSuffix {
		return evaluated{rec: rec}
	}
	return evaluated{rec: rec, suffix: true, verdict: e.rules.Evaluate(rec.Value)}
}

// Extract builds the output set from groups. Suffix records that pass the
// rules are inserted first-seen-per-key; other records go to the residual
// side channel untouched. Additional domains are inserted after the walk.
func (e *Extractor) Extract(groups []models.Group) *OutputSet {
	e.resetStats()
	set := NewOutputSet()

	var records []models.DomainRecord
	for _, g := range groups {
		if !e.Selected(g.Tag) {
			continue
		}
		e.stats.Groups++
		e.log.WithField("tag", g.Tag).WithField("domains", len(g.Domains)).Debug("processing group")
		records = append(records, g.Domains...)
	}
	e.stats.Records = len(records)

	for _, ev := range e.evaluateAll(records) {
		e.apply(set, ev)
	}

	for _, d := range e.rules.AdditionalDomains() {
		c := e.rules.Canonicalizer().Canonicalize(d)
		k := domainkey.Encode(c.String())
		if set.Insert(k, Entry{Original: d, Canonical: c.String(), Fallback: c.IsFallback()}) {
			e.stats.Additional++
		} else {
			e.log.WithField("domain", d).Debug("additional domain already present")
		}
	}

	e.log.WithFields(logrus.Fields{
		"groups":     e.stats.Groups,
		"records":    e.stats.Records,
		"keys":       set.Len(),
		"residual":   e.stats.Residual,
		"skipped":    e.stats.Skipped,
		"duplicates": e.stats.Duplicates,
		"fallbacks":  e.stats.Fallbacks,
	}).Info("extraction finished")

	return set
}

// evaluateAll runs the pure per-record step, in parallel when configured.
// Results keep input order so the sequential merge in Extract sees records
// exactly as a single-threaded walk would.
func (e *Extractor) evaluateAll(records []models.DomainRecord) []evaluated {
	if e.workers <= 1 || len(records) < 2*minChunk {
		out := make([]evaluated, len(records))
		for i, rec := range records {
			out[i] = e.evaluate(rec)
		}
		return out
	}

	size := max((len(records)+e.workers-1)/e.workers, minChunk)
	chunks := lo.Chunk(records, size)

	mapper := iter.Mapper[[]models.DomainRecord, []evaluated]{MaxGoroutines: e.workers}
	results := mapper.Map(chunks, func(chunk *[]models.DomainRecord) []evaluated {
		out := make([]evaluated, len(*chunk))
		for i, rec := range *chunk {
			out[i] = e.evaluate(rec)
		}
		return out
	})

	return lo.Flatten(results)
}

func (e *Extractor) apply(set *OutputSet, ev evaluated) {
	if !ev.suffix {
		e.stats.Residual++
		set.AddResidual(ev.rec)
		return
	}
	e.stats.Suffix++

	v := ev.verdict
	if !v.Admitted {
		e.skip(v.Reason)
		e.log.WithField("domain", ev.rec.Value).WithField("reason", v.Reason).Debug("domain rejected")
		return
	}

	canonical := v.Canonical.String()
	if v.Canonical.IsFallback() {
		e.stats.Fallbacks++
		e.log.WithField("domain", ev.rec.Value).Warn("no registrable form, using raw domain")
	}
	if domainkey.Truncated(canonical) {
		e.stats.Truncated++
		e.log.WithField("canonical", canonical).Debug("key keeps trailing 16 bytes")
	}

	if set.Insert(v.Key, Entry{Original: ev.rec.Value, Canonical: canonical, Fallback: v.Canonical.IsFallback()}) {
		e.stats.Admitted++
	} else {
		e.stats.Duplicates++
	}
}
