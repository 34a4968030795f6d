package extractor

import (
	"slices"

	"github.com/bnema/geosite-keys/internal/domainkey"
	"github.com/bnema/geosite-keys/internal/models"
)

// Entry is what the output set remembers about a key.
type Entry struct {
	Original  string // value as it appeared in the archive or the additional list
	Canonical string // string the key was encoded from
	Fallback  bool   // Canonical is the raw value, the oracle had no registrable form
}

// OutputSet maps keys to the first entry inserted for them, plus the
// non-suffix records bound for the residual archive.
type OutputSet struct {
	entries  map[domainkey.Key]Entry
	residual []models.DomainRecord
}

// NewOutputSet creates an empty set
func NewOutputSet() *OutputSet {
	return &OutputSet{entries: make(map[domainkey.Key]Entry)}
}

// Insert stores e under k unless k is already present. First insert wins;
// the return value reports whether e was stored.
func (s *OutputSet) Insert(k domainkey.Key, e Entry) bool {
	if _, ok := s.entries[k]; ok {
		return false
	}
	s.entries[k] = e
	return true
}

// Len returns the number of keys
func (s *OutputSet) Len() int {
	return len(s.entries)
}

// Contains reports whether k is in the set
func (s *OutputSet) Contains(k domainkey.Key) bool {
	_, ok := s.entries[k]
	return ok
}

// Entry returns the entry stored under k
func (s *OutputSet) Entry(k domainkey.Key) (Entry, bool) {
	e, ok := s.entries[k]
	return e, ok
}

// SortedKeys returns all keys in ascending numeric order.
func (s *OutputSet) SortedKeys() []domainkey.Key {
	keys := make([]domainkey.Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	domainkey.Sort(keys)
	return keys
}

// SortedOriginals returns the recorded original strings in byte order.
func (s *OutputSet) SortedOriginals() []string {
	originals := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		originals = append(originals, e.Original)
	}
	slices.Sort(originals)
	return originals
}

// AddResidual appends a non-suffix record
func (s *OutputSet) AddResidual(rec models.DomainRecord) {
	s.residual = append(s.residual, rec)
}

// Residual returns the non-suffix records in encounter order.
func (s *OutputSet) Residual() []models.DomainRecord {
	return s.residual
}
