// Package marc models the catalog's bibliographic records. The legacy
// system stores MARC with a few nonstandard, alphabetic tags (FMT, CAT,
// LOW, SID) next to the numeric ones; the model makes no assumption
// that tags are numeric.
package marc

import "strings"

// ControlField is a variable control field, a tag with a bare value.
type ControlField struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Subfield is one coded value inside a data field.
type Subfield struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// DataField is a tag with indicators and subfields.
type DataField struct {
	Tag       string     `json:"tag"`
	Ind1      string     `json:"ind1"`
	Ind2      string     `json:"ind2"`
	Subfields []Subfield `json:"subfields"`
}

// Record is a decoded catalog record.
type Record struct {
	Leader   string         `json:"leader"`
	Controls []ControlField `json:"controls,omitempty"`
	Fields   []DataField    `json:"fields,omitempty"`
}

// Control returns the value of the first control field with the given
// tag, or the empty string.
func (r *Record) Control(tag string) string {
	for _, f := range r.Controls {
		if f.Tag == tag {
			return f.Value
		}
	}
	return ""
}

// SetControl replaces the first control field with the given tag, or
// appends one.
func (r *Record) SetControl(tag, value string) {
	for i, f := range r.Controls {
		if f.Tag == tag {
			r.Controls[i].Value = value
			return
		}
	}
	r.Controls = append(r.Controls, ControlField{Tag: tag, Value: value})
}

// First returns the first data field with the given tag, or nil.
func (r *Record) First(tag string) *DataField {
	for i := range r.Fields {
		if r.Fields[i].Tag == tag {
			return &r.Fields[i]
		}
	}
	return nil
}

// Each calls fn for every data field with the given tag.
func (r *Record) Each(tag string, fn func(f *DataField)) {
	for i := range r.Fields {
		if r.Fields[i].Tag == tag {
			fn(&r.Fields[i])
		}
	}
}

// Subfield returns the first value of a subfield code, or "".
func (f *DataField) Subfield(code string) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value
		}
	}
	return ""
}

// Clone returns a deep copy. Transformations operate on copies so the
// same stored record can serve multiple formats within one page.
func (r *Record) Clone() *Record {
	out := &Record{Leader: r.Leader}
	out.Controls = append([]ControlField(nil), r.Controls...)
	out.Fields = make([]DataField, len(r.Fields))
	for i, f := range r.Fields {
		g := f
		g.Subfields = append([]Subfield(nil), f.Subfields...)
		out.Fields[i] = g
	}
	return out
}

// IsNumericTag reports whether a tag is a standard, numeric MARC tag.
func IsNumericTag(tag string) bool {
	if len(tag) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if tag[i] < '0' || tag[i] > '9' {
			return false
		}
	}
	return true
}

// Title is a convenience accessor for the main title (245 $a $b).
func (r *Record) Title() string {
	f := r.First("245")
	if f == nil {
		return ""
	}
	var parts []string
	for _, code := range []string{"a", "b"} {
		if v := f.Subfield(code); v != "" {
			parts = append(parts, strings.TrimRight(v, " /:;,"))
		}
	}
	return strings.Join(parts, " ")
}
