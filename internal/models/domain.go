package models

import "fmt"

// MatchType is the rule kind of a domain record. The numeric values are the
// geosite schema's enum codes and must not change.
type MatchType int32

const (
	MatchPlain  MatchType = 0 // keyword/substring match
	MatchRegex  MatchType = 1
	MatchSuffix MatchType = 2 // "Domain" in the geosite schema
	MatchFull   MatchType = 3
)

// String returns the schema name of the match type
func (t MatchType) String() string {
	switch t {
	case MatchPlain:
		return "Plain"
	case MatchRegex:
		return "Regex"
	case MatchSuffix:
		return "Domain"
	case MatchFull:
		return "Full"
	default:
		return fmt.Sprintf("MatchType(%d)", int32(t))
	}
}

// AttrKind tells which value of an Attribute is set
type AttrKind int

const (
	AttrAbsent AttrKind = iota
	AttrBool
	AttrInt
)

// Attribute is a key with an optional bool or int value
type Attribute struct {
	Key  string
	Kind AttrKind
	Bool bool
	Int  int64
}

// BoolAttr returns a bool-valued attribute
func BoolAttr(key string, v bool) Attribute {
	return Attribute{Key: key, Kind: AttrBool, Bool: v}
}

// IntAttr returns an int-valued attribute
func IntAttr(key string, v int64) Attribute {
	return Attribute{Key: key, Kind: AttrInt, Int: v}
}

// String renders the attribute as key, key=true or key=42
func (a Attribute) String() string {
	switch a.Kind {
	case AttrBool:
		return fmt.Sprintf("%s=%t", a.Key, a.Bool)
	case AttrInt:
		return fmt.Sprintf("%s=%d", a.Key, a.Int)
	default:
		return a.Key
	}
}

// DomainRecord is a single entry of a geosite group
type DomainRecord struct {
	Type       MatchType
	Value      string
	Attributes []Attribute
}

// Group is a tagged list of domain records
type Group struct {
	Tag     string
	Domains []DomainRecord
}
