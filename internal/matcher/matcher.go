// Package matcher answers membership queries against a binary key file.
package matcher

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bnema/geosite-keys/internal/domainkey"
	"github.com/bnema/geosite-keys/internal/logging"
	"github.com/bnema/geosite-keys/internal/rules"
)

// Matcher holds the sorted keys of a key file
type Matcher struct {
	keys     []domainkey.Key
	rules    *rules.RuleSet
	passTLDs map[string]struct{}
	log      logrus.FieldLogger
}

// Option configures a Matcher
type Option func(*Matcher)

// WithPassTLDs makes hosts under these top-level labels match without a key
// lookup, unless the rules exclude them.
func WithPassTLDs(tlds ...string) Option {
	return func(m *Matcher) {
		m.passTLDs = lo.SliceToMap(tlds, func(t string) (string, struct{}) {
			return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), "."), struct{}{}
		})
	}
}

// WithLogger sets the matcher logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Matcher) {
		m.log = l
	}
}

// New builds a matcher over keys. keys are sorted if needed.
func New(keys []domainkey.Key, rs *rules.RuleSet, opts ...Option) *Matcher {
	m := &Matcher{
		keys:     keys,
		rules:    rs,
		passTLDs: map[string]struct{}{},
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !domainkey.IsSorted(m.keys) {
		m.log.Warn("keys are not sorted, sorting")
		domainkey.Sort(m.keys)
	}
	return m
}

// Load reads the key file at path.
func Load(fs afero.Fs, path string, rs *rules.RuleSet, opts ...Option) (*Matcher, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	keys, err := ParseKeys(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m := New(keys, rs, opts...)
	m.log.WithField("path", path).WithField("keys", len(keys)).Info("key file loaded")
	for i, k := range m.keys[:min(len(m.keys), 10)] {
		m.log.WithFields(logrus.Fields{
			"dec":   k.String(),
			"hex":   domainkey.Hex(k),
			"ascii": domainkey.Decode(k),
		}).Debugf("key[%d]", i)
	}
	return m, nil
}

// ParseKeys splits a key file into keys. The data must be non-empty and a
// whole number of keys.
func ParseKeys(data []byte) ([]domainkey.Key, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("key file is empty")
	}
	if len(data)%domainkey.Size != 0 {
		return nil, fmt.Errorf("key file length %d is not a multiple of %d", len(data), domainkey.Size)
	}

	keys := make([]domainkey.Key, 0, len(data)/domainkey.Size)
	for off := 0; off < len(data); off += domainkey.Size {
		keys = append(keys, domainkey.FromBytes(data[off:]))
	}
	return keys, nil
}

// Len returns the number of keys
func (m *Matcher) Len() int {
	return len(m.keys)
}

// Keys returns the sorted keys
func (m *Matcher) Keys() []domainkey.Key {
	return m.keys
}

// Match reports whether host is covered: excluded TLDs never match, pass
// TLDs always match, anything else is looked up by its canonical key.
func (m *Matcher) Match(host string) bool {
	h, err := NormalizeHost(host)
	if err != nil {
		m.log.WithField("host", host).WithError(err).Debug("invalid host")
		return false
	}

	if m.rules.ExcludedTLD(h) {
		m.log.WithField("host", h).Debug("excluded by tld")
		return false
	}

	if _, ok := m.passTLDs[rules.TopLabel(h)]; ok {
		m.log.WithField("host", h).Debug("matched by tld")
		return true
	}

	k := domainkey.Encode(m.rules.Canonicalizer().Canonicalize(h).String())
	found := domainkey.Search(m.keys, k)
	m.log.WithField("host", h).WithField("key", k.String()).WithField("found", found).Debug("key lookup")
	return found
}
