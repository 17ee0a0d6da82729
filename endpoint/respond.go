package endpoint

import (
	"encoding/xml"
	"time"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/transform"
)

// Response is the OAI-PMH envelope. Payload is one of the verb
// payload structs or ErrorPayload.
type Response struct {
	XMLName      xml.Name    `xml:"OAI-PMH"`
	Xmlns        string      `xml:"xmlns,attr"`
	ResponseDate string      `xml:"responseDate"`
	Request      RequestInfo `xml:"request"`
	Payload      interface{}
}

// RequestInfo echoes the request back in the envelope.
type RequestInfo struct {
	BaseURL string `xml:",chardata"`
	Verb    string `xml:"verb,attr,omitempty"`
}

const oaiNamespace = "http://www.openarchives.org/OAI/2.0/"

// NewResponse wraps a payload in the protocol envelope.
func NewResponse(baseURL, verb string, now time.Time, payload interface{}) *Response {
	return &Response{
		Xmlns:        oaiNamespace,
		ResponseDate: pmh.FormatDatestamp(now),
		Request:      RequestInfo{BaseURL: baseURL, Verb: verb},
		Payload:      payload,
	}
}

// ErrorPayload renders a protocol error inside the envelope. Per the
// protocol this still travels in a successful HTTP response.
type ErrorPayload struct {
	XMLName xml.Name `xml:"error"`
	Code    string   `xml:"code,attr"`
	Message string   `xml:",chardata"`
}

// IdentifyPayload answers the Identify verb.
type IdentifyPayload struct {
	XMLName           xml.Name `xml:"Identify"`
	RepositoryName    string   `xml:"repositoryName"`
	BaseURL           string   `xml:"baseURL"`
	ProtocolVersion   string   `xml:"protocolVersion"`
	AdminEmail        string   `xml:"adminEmail"`
	EarliestDatestamp string   `xml:"earliestDatestamp"`
	DeletedRecord     string   `xml:"deletedRecord"`
	Granularity       string   `xml:"granularity"`
}

// FormatPayload is one entry of ListMetadataFormats.
type FormatPayload struct {
	Prefix    string `xml:"metadataPrefix"`
	Schema    string `xml:"schema"`
	Namespace string `xml:"metadataNamespace"`
}

// ListMetadataFormatsPayload answers ListMetadataFormats.
type ListMetadataFormatsPayload struct {
	XMLName xml.Name        `xml:"ListMetadataFormats"`
	Formats []FormatPayload `xml:"metadataFormat"`
}

// SetPayload is one entry of ListSets.
type SetPayload struct {
	Spec        string `xml:"setSpec"`
	Name        string `xml:"setName"`
	Description string `xml:"setDescription>description,omitempty"`
}

// ListSetsPayload answers ListSets.
type ListSetsPayload struct {
	XMLName xml.Name     `xml:"ListSets"`
	Sets    []SetPayload `xml:"set"`
}

// Header identifies a record in list and get responses.
type Header struct {
	Status     string   `xml:"status,attr,omitempty"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpecs   []string `xml:"setSpec,omitempty"`
}

// Metadata wraps the format specific record body.
type Metadata struct {
	Body interface{}
}

// RecordPayload is one record with header and optional metadata.
type RecordPayload struct {
	XMLName  xml.Name  `xml:"record"`
	Header   Header    `xml:"header"`
	Metadata *Metadata `xml:"metadata,omitempty"`
}

// ResumptionToken carries the continuation token. An empty token on a
// resumed list marks the final page.
type ResumptionToken struct {
	XMLName        xml.Name `xml:"resumptionToken"`
	ExpirationDate string   `xml:"expirationDate,attr,omitempty"`
	Cursor         int64    `xml:"cursor,attr"`
	Token          string   `xml:",chardata"`
}

// GetRecordPayload answers GetRecord.
type GetRecordPayload struct {
	XMLName xml.Name      `xml:"GetRecord"`
	Record  RecordPayload `xml:"record"`
}

// ListIdentifiersPayload answers ListIdentifiers.
type ListIdentifiersPayload struct {
	XMLName xml.Name         `xml:"ListIdentifiers"`
	Headers []Header         `xml:"header"`
	Token   *ResumptionToken `xml:"resumptionToken,omitempty"`
}

// ListRecordsPayload answers ListRecords.
type ListRecordsPayload struct {
	XMLName xml.Name         `xml:"ListRecords"`
	Records []RecordPayload  `xml:"record"`
	Token   *ResumptionToken `xml:"resumptionToken,omitempty"`
}

// MarcxmlRecord renders a record as MARCXML.
type MarcxmlRecord struct {
	XMLName  xml.Name         `xml:"record"`
	Xmlns    string           `xml:"xmlns,attr"`
	Leader   string           `xml:"leader"`
	Controls []MarcxmlControl `xml:"controlfield"`
	Fields   []MarcxmlField   `xml:"datafield"`
}

// MarcxmlControl is a MARCXML controlfield element.
type MarcxmlControl struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

// MarcxmlField is a MARCXML datafield element.
type MarcxmlField struct {
	Tag       string            `xml:"tag,attr"`
	Ind1      string            `xml:"ind1,attr"`
	Ind2      string            `xml:"ind2,attr"`
	Subfields []MarcxmlSubfield `xml:"subfield"`
}

// MarcxmlSubfield is a MARCXML subfield element.
type MarcxmlSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

const marcxmlNamespace = "http://www.loc.gov/MARC21/slim"

// ToMarcxml converts a record to its MARCXML rendering.
func ToMarcxml(rec *marc.Record) *MarcxmlRecord {
	out := &MarcxmlRecord{Xmlns: marcxmlNamespace, Leader: rec.Leader}
	for _, f := range rec.Controls {
		out.Controls = append(out.Controls, MarcxmlControl{Tag: f.Tag, Value: f.Value})
	}
	for _, f := range rec.Fields {
		xf := MarcxmlField{Tag: f.Tag, Ind1: f.Ind1, Ind2: f.Ind2}
		for _, sf := range f.Subfields {
			xf.Subfields = append(xf.Subfields, MarcxmlSubfield{Code: sf.Code, Value: sf.Value})
		}
		out.Fields = append(out.Fields, xf)
	}
	return out
}

// metadataBody picks the XML body for a transform output.
func metadataBody(out *transform.Output) interface{} {
	if out.DC != nil {
		return out.DC
	}
	return ToMarcxml(out.Record)
}
