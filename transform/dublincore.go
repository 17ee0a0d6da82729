package transform

import (
	"encoding/xml"
	"strings"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
)

// DublinCore is the oai_dc metadata payload.
type DublinCore struct {
	XMLName      xml.Name `xml:"oai_dc:dc"`
	XmlnsOaiDC   string   `xml:"xmlns:oai_dc,attr"`
	XmlnsDC      string   `xml:"xmlns:dc,attr"`
	Titles       []string `xml:"dc:title"`
	Creators     []string `xml:"dc:creator"`
	Subjects     []string `xml:"dc:subject,omitempty"`
	Descriptions []string `xml:"dc:description,omitempty"`
	Publishers   []string `xml:"dc:publisher,omitempty"`
	Dates        []string `xml:"dc:date,omitempty"`
	Types        []string `xml:"dc:type,omitempty"`
	Identifiers  []string `xml:"dc:identifier,omitempty"`
	Languages    []string `xml:"dc:language,omitempty"`
	Rights       []string `xml:"dc:rights,omitempty"`
}

const (
	oaiDCNamespace = "http://www.openarchives.org/OAI/2.0/oai_dc/"
	dcNamespace    = "http://purl.org/dc/elements/1.1/"
)

// ToDublinCore maps a stripped MARC record to unqualified Dublin Core.
// The mapping is lossy on purpose: oai_dc is the lowest common
// denominator format every repository must serve.
func ToDublinCore(rec *marc.Record) *DublinCore {
	dc := &DublinCore{
		XmlnsOaiDC: oaiDCNamespace,
		XmlnsDC:    dcNamespace,
	}
	if title := rec.Title(); title != "" {
		dc.Titles = append(dc.Titles, title)
	}
	for _, tag := range []string{"100", "110", "700", "710"} {
		rec.Each(tag, func(f *marc.DataField) {
			if name := trimPunct(f.Subfield("a")); name != "" {
				dc.Creators = append(dc.Creators, name)
			}
		})
	}
	for _, tag := range []string{"650", "651", "653"} {
		rec.Each(tag, func(f *marc.DataField) {
			if s := trimPunct(f.Subfield("a")); s != "" {
				dc.Subjects = append(dc.Subjects, s)
			}
		})
	}
	rec.Each("520", func(f *marc.DataField) {
		if s := f.Subfield("a"); s != "" {
			dc.Descriptions = append(dc.Descriptions, s)
		}
	})
	for _, tag := range []string{"260", "264"} {
		rec.Each(tag, func(f *marc.DataField) {
			if p := trimPunct(f.Subfield("b")); p != "" {
				dc.Publishers = append(dc.Publishers, p)
			}
			if d := trimPunct(f.Subfield("c")); d != "" {
				dc.Dates = append(dc.Dates, d)
			}
		})
	}
	// Leader position 6 carries the record type.
	if len(rec.Leader) > 6 {
		if t, ok := leaderTypes[rec.Leader[6]]; ok {
			dc.Types = append(dc.Types, t)
		}
	}
	rec.Each("020", func(f *marc.DataField) {
		if isbn := f.Subfield("a"); isbn != "" {
			dc.Identifiers = append(dc.Identifiers, "ISBN "+isbn)
		}
	})
	rec.Each("022", func(f *marc.DataField) {
		if issn := f.Subfield("a"); issn != "" {
			dc.Identifiers = append(dc.Identifiers, "ISSN "+issn)
		}
	})
	rec.Each("856", func(f *marc.DataField) {
		if u := f.Subfield("u"); u != "" {
			dc.Identifiers = append(dc.Identifiers, u)
		}
	})
	// Language from 008 positions 35-37, then 041.
	if f008 := rec.Control("008"); len(f008) >= 38 {
		if lang := strings.TrimSpace(f008[35:38]); lang != "" && lang != "|||" {
			dc.Languages = append(dc.Languages, lang)
		}
	}
	rec.Each("041", func(f *marc.DataField) {
		for _, sf := range f.Subfields {
			if sf.Code == "a" && !contains(dc.Languages, sf.Value) {
				dc.Languages = append(dc.Languages, sf.Value)
			}
		}
	})
	rec.Each("540", func(f *marc.DataField) {
		if r := f.Subfield("a"); r != "" {
			dc.Rights = append(dc.Rights, r)
		}
	})
	return dc
}

var leaderTypes = map[byte]string{
	'a': "text",
	'c': "notated music",
	'e': "cartographic material",
	'g': "moving image",
	'i': "sound recording",
	'j': "sound recording",
	'k': "still image",
	'm': "software",
	'r': "physical object",
}

func trimPunct(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), " ,./:;")
}
