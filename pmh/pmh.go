// Package pmh carries the OAI-PMH protocol vocabulary: verbs, error
// codes, metadata formats, sets, target realms, and the per-verb
// request validation rules.
package pmh

import (
	"fmt"
	"net/url"
)

// Verb is one of the six OAI-PMH request verbs.
type Verb string

const (
	VerbIdentify            Verb = "Identify"
	VerbGetRecord           Verb = "GetRecord"
	VerbListIdentifiers     Verb = "ListIdentifiers"
	VerbListRecords         Verb = "ListRecords"
	VerbListMetadataFormats Verb = "ListMetadataFormats"
	VerbListSets            Verb = "ListSets"
)

// ParseVerb maps a raw verb parameter to a Verb.
func ParseVerb(s string) (Verb, bool) {
	switch Verb(s) {
	case VerbIdentify, VerbGetRecord, VerbListIdentifiers, VerbListRecords,
		VerbListMetadataFormats, VerbListSets:
		return Verb(s), true
	}
	return "", false
}

// ErrorCode is the closed protocol error vocabulary. Protocol errors
// are client attributable and render inside a successful response body;
// they are never conflated with infrastructure failures.
type ErrorCode string

const (
	ErrorBadArgument             ErrorCode = "badArgument"
	ErrorBadVerb                 ErrorCode = "badVerb"
	ErrorBadResumptionToken      ErrorCode = "badResumptionToken"
	ErrorCannotDisseminateFormat ErrorCode = "cannotDisseminateFormat"
	ErrorIDDoesNotExist          ErrorCode = "idDoesNotExist"
	ErrorNoRecordsMatch          ErrorCode = "noRecordsMatch"
	ErrorNoMetadataFormats       ErrorCode = "noMetadataFormats"
)

// Error is a protocol level error. It never carries stack traces or
// internals, only the code and a short message for the envelope.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a protocol error.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Request is a verb plus the raw query parameters as received.
// Immutable once parsed from the transport.
type Request struct {
	Verb string
	Args url.Values
}

// Format describes a metadata format the provider can disseminate.
type Format struct {
	Prefix    string `json:"metadataPrefix"`
	Schema    string `json:"schema"`
	Namespace string `json:"metadataNamespace"`
}

// Set is a named, harvestable subset of the catalog. Filters are
// heading index values that the set resolver turns into concrete
// catalog keys, lazily and memoized.
type Set struct {
	Spec        string   `json:"spec"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Filters     []string `json:"filters"`
}

// Realm is the target context a handler serves, e.g. bibliographic or
// authority records. Realms differ in which formats they disseminate
// and which fields only privileged callers may see.
type Realm struct {
	Name string
	// Formats supported in this realm, by prefix.
	Formats []string
	// PrivateTags are removed for unprivileged callers.
	PrivateTags []string
	// DropSubfields maps a tag to nonstandard subfield codes removed
	// when converting to a standard format.
	DropSubfields map[string][]string
}

// Supports reports whether a metadata prefix is disseminated in this
// realm.
func (r *Realm) Supports(prefix string) bool {
	for _, p := range r.Formats {
		if p == prefix {
			return true
		}
	}
	return false
}

// BibRealm is the bibliographic target context. Subfield 9 carries
// local linking data and is stripped from standard formats.
var BibRealm = &Realm{
	Name:        "bib",
	Formats:     []string{"melinda_marc", "marc21", "oai_dc"},
	PrivateTags: []string{"CAT", "LOW", "SID", "HLI"},
	DropSubfields: map[string][]string{
		"015": {"q"},
		"020": {"q"},
		"100": {"9"},
		"245": {"9"},
		"260": {"9"},
		"264": {"9"},
		"490": {"9"},
		"650": {"9"},
		"700": {"9"},
		"710": {"9"},
		"830": {"9"},
	},
}

// AutRealm is the authority target context. No Dublin Core mapping is
// defined for authorities.
var AutRealm = &Realm{
	Name:        "aut",
	Formats:     []string{"melinda_marc", "marc21"},
	PrivateTags: []string{"CAT", "SID"},
	DropSubfields: map[string][]string{
		"100": {"9"},
		"400": {"9"},
		"500": {"9"},
	},
}

// Realms by name.
var Realms = map[string]*Realm{
	BibRealm.Name: BibRealm,
	AutRealm.Name: AutRealm,
}
