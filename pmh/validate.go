package pmh

import (
	"net/url"
	"strings"
	"time"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/token"
)

// ParsedParams are the typed, verb specific parameters of a validated
// request. For resumed list requests the paging fields are filled from
// the decoded token and Resumed is set.
type ParsedParams struct {
	Verb       Verb
	Prefix     string
	From       time.Time
	Until      time.Time
	Set        string
	Identifier string

	Resumed    bool
	Cursor     string
	TimeCursor time.Time
	LastCount  int64
}

// Validator checks requests against the per-verb legality table and
// decodes resumption tokens. It holds no per-request state.
type Validator struct {
	Realm *Realm
	// Known metadata formats across all realms, by prefix.
	Known map[string]Format
	// Sets that may appear as a set argument, by spec.
	Sets map[string]Set
	// IDPrefix is the namespace prefix of public identifiers,
	// e.g. "oai:melinda.kansalliskirjasto.fi/".
	IDPrefix string
	Codec    *token.Codec
}

// rule is one row of the verb legality table: which parameters may
// appear, which must, and the verb specific semantic check that runs
// after the shape checks pass.
type rule struct {
	required []string
	optional []string
	semantic func(v *Validator, args url.Values, now time.Time, pp *ParsedParams) *Error
}

var rules = map[Verb]rule{
	VerbIdentify: {},
	VerbGetRecord: {
		required: []string{"identifier", "metadataPrefix"},
		semantic: (*Validator).checkGetRecord,
	},
	VerbListIdentifiers: {
		optional: []string{"metadataPrefix", "from", "until", "set", "resumptionToken"},
		semantic: (*Validator).checkList,
	},
	VerbListRecords: {
		optional: []string{"metadataPrefix", "from", "until", "set", "resumptionToken"},
		semantic: (*Validator).checkList,
	},
	VerbListMetadataFormats: {
		optional: []string{"identifier"},
		semantic: (*Validator).checkListMetadataFormats,
	},
	VerbListSets: {
		// Sets are config-sized and never paginated here; a supplied
		// resumptionToken is accepted without decoding.
		optional: []string{"resumptionToken"},
	},
}

// Validate runs the legality table for one request: badVerb first, then
// unknown parameters, then missing required parameters, then the verb
// specific semantics.
func (v *Validator) Validate(req Request, now time.Time) (*ParsedParams, *Error) {
	verb, ok := ParseVerb(req.Verb)
	if !ok {
		return nil, Errorf(ErrorBadVerb, "illegal verb: %q", req.Verb)
	}
	r := rules[verb]
	allowed := map[string]bool{"verb": true}
	for _, name := range r.required {
		allowed[name] = true
	}
	for _, name := range r.optional {
		allowed[name] = true
	}
	for name := range req.Args {
		if !allowed[name] {
			return nil, Errorf(ErrorBadArgument, "illegal argument: %s", name)
		}
	}
	for _, name := range r.required {
		if req.Args.Get(name) == "" {
			return nil, Errorf(ErrorBadArgument, "missing argument: %s", name)
		}
	}
	pp := &ParsedParams{Verb: verb}
	if r.semantic != nil {
		if perr := r.semantic(v, req.Args, now, pp); perr != nil {
			return nil, perr
		}
	}
	return pp, nil
}

func (v *Validator) checkGetRecord(args url.Values, now time.Time, pp *ParsedParams) *Error {
	prefix := args.Get("metadataPrefix")
	if _, ok := v.Known[prefix]; !ok {
		return Errorf(ErrorCannotDisseminateFormat, "unknown metadata prefix: %s", prefix)
	}
	if !v.Realm.Supports(prefix) {
		return Errorf(ErrorCannotDisseminateFormat, "format %s not available here", prefix)
	}
	id := args.Get("identifier")
	if !strings.HasPrefix(id, v.IDPrefix) {
		return Errorf(ErrorIDDoesNotExist, "unknown identifier: %s", id)
	}
	pp.Prefix = prefix
	pp.Identifier = id
	return nil
}

// checkList validates the two mutually exclusive legal shapes of
// ListIdentifiers and ListRecords: a resumption token alone, or a
// metadata prefix with optional from, until and set. Token presence
// short-circuits everything else; its fields are trusted once the
// codec opens it.
func (v *Validator) checkList(args url.Values, now time.Time, pp *ParsedParams) *Error {
	if tok := args.Get("resumptionToken"); tok != "" {
		if len(args) > 2 { // verb + resumptionToken
			return Errorf(ErrorBadArgument, "resumptionToken is an exclusive argument")
		}
		state, err := v.Codec.Decode(tok, now)
		if err != nil {
			return Errorf(ErrorBadResumptionToken, "token is expired or invalid")
		}
		pp.Resumed = true
		pp.Prefix = state.Prefix
		pp.From = state.From
		pp.Until = state.Until
		pp.Set = state.Set
		pp.Cursor = state.Cursor
		pp.TimeCursor = state.TimeCursor
		pp.LastCount = state.LastCount
		return nil
	}
	prefix := args.Get("metadataPrefix")
	if prefix == "" {
		return Errorf(ErrorBadArgument, "missing argument: metadataPrefix")
	}
	if _, ok := v.Known[prefix]; !ok {
		return Errorf(ErrorCannotDisseminateFormat, "unknown metadata prefix: %s", prefix)
	}
	if !v.Realm.Supports(prefix) {
		// Known in another realm, nothing to list in this one.
		return Errorf(ErrorNoRecordsMatch, "format %s has no records here", prefix)
	}
	pp.Prefix = prefix
	if s := args.Get("from"); s != "" {
		t, err := ParseFrom(s)
		if err != nil {
			return Errorf(ErrorBadArgument, "bad from argument: %s", s)
		}
		pp.From = t
	}
	if s := args.Get("until"); s != "" {
		t, err := ParseUntil(s)
		if err != nil {
			return Errorf(ErrorBadArgument, "bad until argument: %s", s)
		}
		pp.Until = t
	}
	if s := args.Get("set"); s != "" {
		if _, ok := v.Sets[s]; !ok {
			return Errorf(ErrorBadArgument, "unknown set: %s", s)
		}
		pp.Set = s
	}
	return nil
}

func (v *Validator) checkListMetadataFormats(args url.Values, now time.Time, pp *ParsedParams) *Error {
	if id := args.Get("identifier"); id != "" {
		if !strings.HasPrefix(id, v.IDPrefix) {
			return Errorf(ErrorIDDoesNotExist, "unknown identifier: %s", id)
		}
		pp.Identifier = id
	}
	return nil
}
