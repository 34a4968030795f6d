// Package geosite reads and writes v2ray-style geosite archives.
//
// The archive is a protobuf message:
//
//	GeoSiteList { repeated GeoSite entry = 1; }
//	GeoSite     { string country_code = 1; repeated Domain domain = 2; }
//	Domain      { Type type = 1; string value = 2; repeated Attribute attribute = 3; }
//	Attribute   { string key = 1; oneof typed_value { bool bool_value = 2; int64 int_value = 3; } }
//
// It is handled directly on the wire with protowire; unknown fields are skipped.
package geosite

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bnema/geosite-keys/internal/models"
)

// ErrDecode is wrapped by every error returned for malformed input.
var ErrDecode = errors.New("geosite: malformed archive")

const (
	listEntry = 1

	siteCountryCode = 1
	siteDomain      = 2

	domainType      = 1
	domainValue     = 2
	domainAttribute = 3

	attrKey       = 1
	attrBoolValue = 2
	attrIntValue  = 3
)

// Read decodes an archive from r.
func Read(r io.Reader) ([]models.Group, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return Decode(data)
}

// Decode parses a serialized GeoSiteList.
func Decode(data []byte) ([]models.Group, error) {
	var groups []models.Group
	err := walk(data, "GeoSiteList", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != listEntry {
			return skip(num, typ, b)
		}
		v, n, err := consumeMessage(typ, b)
		if err != nil {
			return 0, err
		}
		g, err := decodeGroup(v)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", len(groups), err)
		}
		groups = append(groups, g)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func decodeGroup(data []byte) (models.Group, error) {
	var g models.Group
	err := walk(data, "GeoSite", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case siteCountryCode:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			g.Tag = string(v)
			return n, nil
		case siteDomain:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			d, err := decodeDomain(v)
			if err != nil {
				return 0, fmt.Errorf("domain %d: %w", len(g.Domains), err)
			}
			g.Domains = append(g.Domains, d)
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
	return g, err
}

func decodeDomain(data []byte) (models.DomainRecord, error) {
	var d models.DomainRecord
	err := walk(data, "Domain", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case domainType:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			d.Type = models.MatchType(int32(v))
			return n, nil
		case domainValue:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			d.Value = string(v)
			return n, nil
		case domainAttribute:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			a, err := decodeAttribute(v)
			if err != nil {
				return 0, err
			}
			d.Attributes = append(d.Attributes, a)
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
	return d, err
}

func decodeAttribute(data []byte) (models.Attribute, error) {
	var a models.Attribute
	err := walk(data, "Attribute", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case attrKey:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			a.Key = string(v)
			return n, nil
		case attrBoolValue:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			a.Kind, a.Bool, a.Int = models.AttrBool, protowire.DecodeBool(v), 0
			return n, nil
		case attrIntValue:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			a.Kind, a.Bool, a.Int = models.AttrInt, false, int64(v)
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
	return a, err
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk calls fn for every field of a message. fn returns how many bytes of
// the field value it consumed.
func walk(data []byte, msg string, fn fieldFunc) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %s: %v", ErrDecode, msg, protowire.ParseError(n))
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			if errors.Is(err, ErrDecode) {
				return err
			}
			return fmt.Errorf("%w: %s field %d: %v", ErrDecode, msg, num, err)
		}
		data = data[m:]
	}
	return nil
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
