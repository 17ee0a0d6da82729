// Package endpoint wires the validator, harvest engine and record
// transformer into the OAI-PMH request/response cycle and serves it
// over HTTP.
package endpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/harvest"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/token"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/transform"
)

// Config is the externally supplied configuration the core consumes.
type Config struct {
	RepositoryName string
	BaseURL        string
	AdminEmail     string
	// IDPrefix is the namespace prefix of public identifiers.
	IDPrefix string
	// Privileged marks this endpoint as serving callers allowed to
	// see administrative fields. Authentication itself happens in
	// front of the provider.
	Privileged bool
	// Mode is the record parse leniency for stored records.
	Mode marc.DecodeMode
}

// Dispatcher routes validated requests to the harvest engine or single
// record lookup and assembles the response payload. It keeps no state
// between requests.
type Dispatcher struct {
	Validator   *pmh.Validator
	Engine      *harvest.Engine
	Store       catalog.Store
	Transformer *transform.Transformer
	Codec       *token.Codec
	Config      Config
}

// Handle evaluates one request. It returns a verb payload, or a
// protocol error for the envelope, or an infrastructure error that the
// transport must surface as a server failure.
func (d *Dispatcher) Handle(ctx context.Context, req pmh.Request, now time.Time) (interface{}, *pmh.Error, error) {
	pp, perr := d.Validator.Validate(req, now)
	if perr != nil {
		return nil, perr, nil
	}
	switch pp.Verb {
	case pmh.VerbIdentify:
		return d.identify(ctx)
	case pmh.VerbListSets:
		return d.listSets()
	case pmh.VerbListMetadataFormats:
		return d.listMetadataFormats(ctx, pp)
	case pmh.VerbGetRecord:
		return d.getRecord(ctx, pp)
	case pmh.VerbListIdentifiers, pmh.VerbListRecords:
		return d.list(ctx, pp, now)
	}
	// Unreachable: the validator rejects unknown verbs.
	return nil, pmh.Errorf(pmh.ErrorBadVerb, "illegal verb: %q", req.Verb), nil
}

func (d *Dispatcher) identify(ctx context.Context) (interface{}, *pmh.Error, error) {
	earliest, err := d.Store.EarliestTimestamp(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &IdentifyPayload{
		RepositoryName:    d.Config.RepositoryName,
		BaseURL:           d.Config.BaseURL,
		ProtocolVersion:   "2.0",
		AdminEmail:        d.Config.AdminEmail,
		EarliestDatestamp: pmh.FormatDatestamp(earliest),
		DeletedRecord:     "persistent",
		Granularity:       "YYYY-MM-DDThh:mm:ssZ",
	}, nil, nil
}

func (d *Dispatcher) listSets() (interface{}, *pmh.Error, error) {
	var payload ListSetsPayload
	for _, s := range d.Engine.Sets.Sets() {
		payload.Sets = append(payload.Sets, SetPayload{
			Spec:        s.Spec,
			Name:        s.Name,
			Description: s.Description,
		})
	}
	return &payload, nil, nil
}

func (d *Dispatcher) listMetadataFormats(ctx context.Context, pp *pmh.ParsedParams) (interface{}, *pmh.Error, error) {
	if pp.Identifier != "" {
		row, err := d.Store.FetchOne(ctx, d.localID(pp.Identifier))
		if err != nil {
			return nil, nil, err
		}
		if row == nil || row.Excluded {
			return nil, pmh.Errorf(pmh.ErrorIDDoesNotExist, "unknown identifier: %s", pp.Identifier), nil
		}
	}
	var payload ListMetadataFormatsPayload
	for _, prefix := range d.Validator.Realm.Formats {
		f, ok := d.Validator.Known[prefix]
		if !ok {
			continue
		}
		payload.Formats = append(payload.Formats, FormatPayload{
			Prefix:    f.Prefix,
			Schema:    f.Schema,
			Namespace: f.Namespace,
		})
	}
	if len(payload.Formats) == 0 {
		return nil, pmh.Errorf(pmh.ErrorNoMetadataFormats, "no formats available"), nil
	}
	return &payload, nil, nil
}

func (d *Dispatcher) getRecord(ctx context.Context, pp *pmh.ParsedParams) (interface{}, *pmh.Error, error) {
	row, err := d.Store.FetchOne(ctx, d.localID(pp.Identifier))
	if err != nil {
		return nil, nil, err
	}
	if row == nil || row.Excluded {
		return nil, pmh.Errorf(pmh.ErrorIDDoesNotExist, "unknown identifier: %s", pp.Identifier), nil
	}
	rp, err := d.recordPayload(row, pp.Prefix)
	if err != nil {
		return nil, nil, err
	}
	return &GetRecordPayload{Record: *rp}, nil, nil
}

func (d *Dispatcher) list(ctx context.Context, pp *pmh.ParsedParams, now time.Time) (interface{}, *pmh.Error, error) {
	opts := harvest.Options{
		From:        pp.From,
		Until:       pp.Until,
		Set:         pp.Set,
		Cursor:      pp.Cursor,
		TimeCursor:  pp.TimeCursor,
		LastCount:   pp.LastCount,
		NeedContent: pp.Verb == pmh.VerbListRecords,
		Mode:        d.Config.Mode,
	}
	page, err := d.Engine.Harvest(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	if !pp.Resumed && page.Scanned == 0 {
		// An empty first page is a protocol error, not an empty
		// success; harvesters depend on this to stop retrying.
		return nil, pmh.Errorf(pmh.ErrorNoRecordsMatch, "no records match the request"), nil
	}
	tok, perr, err := d.continuation(pp, page, now)
	if err != nil || perr != nil {
		return nil, perr, err
	}
	if pp.Verb == pmh.VerbListIdentifiers {
		payload := &ListIdentifiersPayload{Token: tok}
		for _, env := range page.Records {
			payload.Headers = append(payload.Headers, d.header(env, pp.Set))
		}
		return payload, nil, nil
	}
	payload := &ListRecordsPayload{Token: tok}
	for _, env := range page.Records {
		rp, err := d.envelopePayload(env, pp.Prefix, pp.Set)
		if err != nil {
			return nil, nil, err
		}
		payload.Records = append(payload.Records, *rp)
	}
	return payload, nil, nil
}

// continuation issues the next token on a full page, or the standard
// empty closing token when a resumed list ends.
func (d *Dispatcher) continuation(pp *pmh.ParsedParams, page *harvest.Page, now time.Time) (*ResumptionToken, *pmh.Error, error) {
	if !page.HasNext {
		if pp.Resumed {
			return &ResumptionToken{Cursor: page.LastCount}, nil, nil
		}
		return nil, nil, nil
	}
	state := token.State{
		Cursor:     page.NextCursor,
		TimeCursor: page.NextTimeCursor,
		Prefix:     pp.Prefix,
		From:       pp.From,
		Until:      pp.Until,
		Set:        pp.Set,
		LastCount:  page.LastCount,
	}
	value, expires, err := d.Codec.Encode(state, now)
	if err != nil {
		return nil, nil, fmt.Errorf("encode resumption token: %w", err)
	}
	return &ResumptionToken{
		Token:          value,
		ExpirationDate: pmh.FormatDatestamp(expires),
		Cursor:         page.LastCount,
	}, nil, nil
}

func (d *Dispatcher) header(env harvest.Envelope, set string) Header {
	h := Header{
		Identifier: d.Config.IDPrefix + env.ID,
		Datestamp:  pmh.FormatDatestamp(env.Time),
	}
	if env.Deleted {
		h.Status = "deleted"
	}
	if set != "" {
		h.SetSpecs = []string{set}
	}
	return h
}

func (d *Dispatcher) envelopePayload(env harvest.Envelope, prefix, set string) (*RecordPayload, error) {
	rp := &RecordPayload{Header: d.header(env, set)}
	if env.Deleted {
		return rp, nil
	}
	out, err := d.Transformer.Transform(env.Record, prefix, d.Config.Privileged)
	if err != nil {
		return nil, fmt.Errorf("transform record %s: %w", env.ID, err)
	}
	rp.Metadata = &Metadata{Body: metadataBody(out)}
	return rp, nil
}

// recordPayload builds a GetRecord payload from a raw row, decoding
// the stored bytes first.
func (d *Dispatcher) recordPayload(row *catalog.Row, prefix string) (*RecordPayload, error) {
	env := harvest.Envelope{ID: row.ID, Time: row.Time, Deleted: row.Raw == nil}
	if !env.Deleted {
		rec, err := marc.Decode(row.Raw, d.Config.Mode)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", row.ID, err)
		}
		env.Record = rec
	}
	return d.envelopePayload(env, prefix, "")
}

func (d *Dispatcher) localID(identifier string) string {
	return strings.TrimPrefix(identifier, d.Config.IDPrefix)
}
