package marc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ISO 2709 framing: a 24 byte leader whose first five bytes hold the
// record length and bytes 12-16 the base address of data, a directory
// of 12 byte entries (tag 3, length 4, offset 5) closed by a field
// terminator, then the field data.
const (
	leaderLength   = 24
	dirEntryLength = 12

	fieldTerminator   = 0x1e
	recordTerminator  = 0x1d
	subfieldDelimiter = 0x1f
	baseAddressStart  = 12
	baseAddressEnd    = 17
)

var (
	ErrBadRecord    = errors.New("bad marc record")
	ErrBadDirectory = errors.New("bad marc directory")
)

// DecodeMode controls how forgiving the binary decoder is. The mode is
// always an explicit argument, never process wide configuration.
type DecodeMode int

const (
	// DecodeStrict fails on any framing irregularity.
	DecodeStrict DecodeMode = iota
	// DecodeLenient skips fields with unparseable directory entries or
	// out of range extents and tolerates a missing record terminator.
	DecodeLenient
)

// Decode parses one ISO 2709 framed record.
func Decode(b []byte, mode DecodeMode) (*Record, error) {
	if len(b) < leaderLength {
		return nil, fmt.Errorf("%w: short record (%d bytes)", ErrBadRecord, len(b))
	}
	length, err := strconv.Atoi(string(b[0:5]))
	if err != nil || length > len(b) {
		if mode == DecodeStrict {
			return nil, fmt.Errorf("%w: bad length prefix %q", ErrBadRecord, string(b[0:5]))
		}
		length = len(b)
	}
	base, err := strconv.Atoi(string(b[baseAddressStart:baseAddressEnd]))
	if err != nil || base <= leaderLength || base > length {
		return nil, fmt.Errorf("%w: bad base address %q", ErrBadRecord, string(b[baseAddressStart:baseAddressEnd]))
	}
	if mode == DecodeStrict && b[length-1] != recordTerminator {
		return nil, fmt.Errorf("%w: missing record terminator", ErrBadRecord)
	}
	rec := &Record{Leader: string(b[0:leaderLength])}
	// The directory ends one field terminator before the base address.
	dir := b[leaderLength : base-1]
	if len(dir)%dirEntryLength != 0 {
		if mode == DecodeStrict {
			return nil, fmt.Errorf("%w: directory length %d", ErrBadDirectory, len(dir))
		}
		dir = dir[:len(dir)-len(dir)%dirEntryLength]
	}
	data := b[base:length]
	for off := 0; off+dirEntryLength <= len(dir); off += dirEntryLength {
		entry := dir[off : off+dirEntryLength]
		tag := string(entry[0:3])
		flen, err1 := strconv.Atoi(string(entry[3:7]))
		foff, err2 := strconv.Atoi(string(entry[7:12]))
		if err1 != nil || err2 != nil || foff+flen > len(data) {
			if mode == DecodeStrict {
				return nil, fmt.Errorf("%w: entry %q", ErrBadDirectory, string(entry))
			}
			continue
		}
		field := data[foff : foff+flen]
		// Field data includes the trailing field terminator.
		if n := len(field); n > 0 && field[n-1] == fieldTerminator {
			field = field[:n-1]
		} else if mode == DecodeStrict {
			return nil, fmt.Errorf("%w: field %s missing terminator", ErrBadRecord, tag)
		}
		appendField(rec, tag, field)
	}
	return rec, nil
}

// appendField classifies by content: fields without subfield delimiters
// are control fields. The legacy system emits alphabetic control-like
// tags (FMT) as well as alphabetic data tags (CAT, LOW, SID), so the
// tag alone does not decide.
func appendField(rec *Record, tag string, field []byte) {
	if bytes.IndexByte(field, subfieldDelimiter) == -1 {
		rec.Controls = append(rec.Controls, ControlField{Tag: tag, Value: string(field)})
		return
	}
	df := DataField{Tag: tag}
	if len(field) >= 2 {
		df.Ind1 = string(field[0])
		df.Ind2 = string(field[1])
	}
	for _, chunk := range bytes.Split(field, []byte{subfieldDelimiter})[1:] {
		if len(chunk) == 0 {
			continue
		}
		df.Subfields = append(df.Subfields, Subfield{
			Code:  string(chunk[0]),
			Value: string(chunk[1:]),
		})
	}
	rec.Fields = append(rec.Fields, df)
}

// Encode frames a record as ISO 2709. Used by the dump tool and for
// codec round trips in tests.
func Encode(rec *Record) []byte {
	type rawField struct {
		tag  string
		data []byte
	}
	var fields []rawField
	for _, f := range rec.Controls {
		fields = append(fields, rawField{f.Tag, append([]byte(f.Value), fieldTerminator)})
	}
	for _, f := range rec.Fields {
		var sb strings.Builder
		ind1, ind2 := f.Ind1, f.Ind2
		if ind1 == "" {
			ind1 = " "
		}
		if ind2 == "" {
			ind2 = " "
		}
		sb.WriteString(ind1)
		sb.WriteString(ind2)
		for _, sf := range f.Subfields {
			sb.WriteByte(subfieldDelimiter)
			sb.WriteString(sf.Code)
			sb.WriteString(sf.Value)
		}
		sb.WriteByte(fieldTerminator)
		fields = append(fields, rawField{f.Tag, []byte(sb.String())})
	}
	var (
		dir  strings.Builder
		data []byte
	)
	for _, f := range fields {
		dir.WriteString(fmt.Sprintf("%3s%04d%05d", f.tag, len(f.data), len(data)))
		data = append(data, f.data...)
	}
	dir.WriteByte(fieldTerminator)
	base := leaderLength + dir.Len()
	total := base + len(data) + 1 // record terminator
	leader := []byte(rec.Leader)
	if len(leader) != leaderLength {
		leader = []byte(fmt.Sprintf("%-24s", rec.Leader))[:leaderLength]
	}
	copy(leader[0:5], fmt.Sprintf("%05d", total))
	copy(leader[baseAddressStart:baseAddressEnd], fmt.Sprintf("%05d", base))
	out := make([]byte, 0, total)
	out = append(out, leader...)
	out = append(out, dir.String()...)
	out = append(out, data...)
	out = append(out, recordTerminator)
	return out
}
