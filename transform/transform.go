// Package transform rewrites catalog records for dissemination:
// origin prefix rewriting, privileged field stripping, and conversion
// into the requested output format. Every function here is pure; the
// same input always yields the same output.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
)

// ErrNoConversion is returned for prefixes the transformer has no
// conversion for. The validator screens prefixes, so seeing this means
// a config mismatch, not client error.
var ErrNoConversion = errors.New("no conversion for metadata prefix")

// Output is a transformed record in one of the supported shapes.
// Exactly one of Record and DC is set.
type Output struct {
	Prefix string
	Record *marc.Record
	DC     *DublinCore
}

// Transformer applies the dissemination pipeline for one realm.
type Transformer struct {
	Realm *pmh.Realm
	// OriginPrefix is the legacy system's control number prefix,
	// e.g. "(FIN01)"; PublicPrefix replaces it, e.g. "(FI-MELINDA)".
	OriginPrefix string
	PublicPrefix string
	// OrgCode is written to the control number identifier field.
	OrgCode string
	// NativePrefix passes records through with only the prefix
	// rewrite applied.
	NativePrefix string
}

// Transform rewrites a record for output. The input record is not
// modified.
func (t *Transformer) Transform(rec *marc.Record, prefix string, privileged bool) (*Output, error) {
	out := rec.Clone()
	t.rewritePrefix(out)
	if !privileged {
		stripTags(out, t.Realm.PrivateTags)
	}
	if prefix == t.NativePrefix {
		return &Output{Prefix: prefix, Record: out}, nil
	}
	t.stripNonstandard(out)
	switch prefix {
	case "marc21":
		return &Output{Prefix: prefix, Record: out}, nil
	case "oai_dc":
		return &Output{Prefix: prefix, DC: ToDublinCore(out)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoConversion, prefix)
}

// rewritePrefix replaces the origin system prefix with the public one
// in the control number identifier (003) and in every system control
// number cross reference (035 $a, $z). Existing occurrences are
// replaced, never appended to.
func (t *Transformer) rewritePrefix(rec *marc.Record) {
	rec.SetControl("003", t.OrgCode)
	rec.Each("035", func(f *marc.DataField) {
		for i, sf := range f.Subfields {
			if sf.Code != "a" && sf.Code != "z" {
				continue
			}
			if strings.HasPrefix(sf.Value, t.OriginPrefix) {
				f.Subfields[i].Value = t.PublicPrefix + strings.TrimPrefix(sf.Value, t.OriginPrefix)
			}
		}
	})
}

// stripNonstandard removes everything a standard format must not
// carry: non-numeric tags and the realm's nonstandard subfields.
func (t *Transformer) stripNonstandard(rec *marc.Record) {
	controls := rec.Controls[:0]
	for _, f := range rec.Controls {
		if marc.IsNumericTag(f.Tag) {
			controls = append(controls, f)
		}
	}
	rec.Controls = controls
	fields := rec.Fields[:0]
	for _, f := range rec.Fields {
		if !marc.IsNumericTag(f.Tag) {
			continue
		}
		if drop := t.Realm.DropSubfields[f.Tag]; len(drop) > 0 {
			kept := f.Subfields[:0]
			for _, sf := range f.Subfields {
				if !contains(drop, sf.Code) {
					kept = append(kept, sf)
				}
			}
			f.Subfields = kept
		}
		fields = append(fields, f)
	}
	rec.Fields = fields
}

func stripTags(rec *marc.Record, tags []string) {
	controls := rec.Controls[:0]
	for _, f := range rec.Controls {
		if !contains(tags, f.Tag) {
			controls = append(controls, f)
		}
	}
	rec.Controls = controls
	fields := rec.Fields[:0]
	for _, f := range rec.Fields {
		if !contains(tags, f.Tag) {
			fields = append(fields, f)
		}
	}
	rec.Fields = fields
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
