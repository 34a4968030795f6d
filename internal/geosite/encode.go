package geosite

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bnema/geosite-keys/internal/models"
)

// Encode serializes groups as a GeoSiteList. Zero-valued scalar fields are
// omitted as proto3 does; attribute values are always written when set.
func Encode(groups []models.Group) []byte {
	var out []byte
	for _, g := range groups {
		out = protowire.AppendTag(out, listEntry, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeGroup(g))
	}
	return out
}

// Write encodes groups to w.
func Write(w io.Writer, groups []models.Group) error {
	if _, err := w.Write(Encode(groups)); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

func encodeGroup(g models.Group) []byte {
	var b []byte
	if g.Tag != "" {
		b = protowire.AppendTag(b, siteCountryCode, protowire.BytesType)
		b = protowire.AppendString(b, g.Tag)
	}
	for _, d := range g.Domains {
		b = protowire.AppendTag(b, siteDomain, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeDomain(d))
	}
	return b
}

func encodeDomain(d models.DomainRecord) []byte {
	var b []byte
	if d.Type != 0 {
		b = protowire.AppendTag(b, domainType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.Type))
	}
	if d.Value != "" {
		b = protowire.AppendTag(b, domainValue, protowire.BytesType)
		b = protowire.AppendString(b, d.Value)
	}
	for _, a := range d.Attributes {
		b = protowire.AppendTag(b, domainAttribute, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttribute(a))
	}
	return b
}

func encodeAttribute(a models.Attribute) []byte {
	var b []byte
	if a.Key != "" {
		b = protowire.AppendTag(b, attrKey, protowire.BytesType)
		b = protowire.AppendString(b, a.Key)
	}
	switch a.Kind {
	case models.AttrBool:
		b = protowire.AppendTag(b, attrBoolValue, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(a.Bool))
	case models.AttrInt:
		b = protowire.AppendTag(b, attrIntValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Int))
	}
	return b
}
