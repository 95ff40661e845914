// Package encode implements the Row Encoder (spec.md §4.3): it turns a
// source Row plus the frozen TargetColumns list into either a CSV line
// (for StreamCopySink) or a positional parameter array (for
// BatchInsertSink).
package encode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/model"
)

// Dialect is the configurable subset of the CSV wire dialect (spec.md
// §4.3, §6): the null-vs-empty rule itself is fixed, everything else is a
// knob.
type Dialect struct {
	Delimiter byte
	Quote     byte
}

// DefaultDialect is the dialect named in spec.md §6: delimiter ',',
// quote '"'.
var DefaultDialect = Dialect{Delimiter: ',', Quote: '"'}

// Encoder converts Rows to the sink's wire representation for one run. It
// is stateless apart from the frozen TargetColumns and the run's start
// instant; CURRENT_TIMESTAMP constant columns arrive already resolved in
// TargetColumns, so encoding itself does not read RunStart.
type Encoder struct {
	Columns    model.TargetColumns
	Dialect    Dialect
	RunStart   time.Time
}

// New builds an Encoder for one run. columns must already carry the
// constant columns, parsed once per run by ParseConstantColumns (spec.md
// §4.3 "parsed once per run"); New itself parses nothing and freezes the
// list into the returned Encoder.
func New(columns model.TargetColumns, dialect Dialect, runStart time.Time) *Encoder {
	return &Encoder{Columns: columns, Dialect: dialect, RunStart: runStart}
}

// EncodeCSV renders one Row as a CSV line (no trailing newline) for the
// StreamCopySink. On failure it returns ("", err); every error it returns
// is an errs.KindRowEncoding per-row conversion failure, which the caller
// must count, not propagate as a partition failure.
func (e *Encoder) EncodeCSV(row model.Row) (string, error) {
	if len(row.Values) != len(e.Columns.SourceMapped) {
		return "", errs.New(errs.KindRowEncoding, fmt.Errorf(
			"row has %d values, expected %d mapped columns", len(row.Values), len(e.Columns.SourceMapped)))
	}

	fields := make([]string, 0, len(e.Columns.Names()))
	for _, v := range row.Values {
		f, err := e.csvField(v)
		if err != nil {
			return "", err
		}
		fields = append(fields, f)
	}
	for _, c := range e.Columns.Constants {
		f, err := e.csvField(c.Value)
		if err != nil {
			return "", err
		}
		fields = append(fields, f)
	}

	return strings.Join(fields, string(e.Dialect.Delimiter)), nil
}

// csvField renders a single Value per the CSV rules of spec.md §4.3:
// NULL -> unquoted empty field; empty string -> quoted empty field
// (`""`); non-scalar values are JSON-serialized, binary base64, temporal
// values ISO-8601, before quoting rules apply.
func (e *Encoder) csvField(v model.Value) (string, error) {
	if !v.Valid {
		return "", nil
	}

	raw, err := e.stringify(v)
	if err != nil {
		return "", err
	}

	return e.quoteIfNeeded(raw, v), nil
}

// stringify normalizes a typed Value to its pre-quoting text form.
func (e *Encoder) stringify(v model.Value) (string, error) {
	switch v.Kind {
	case model.KindJSON:
		b, err := json.Marshal(v.Raw)
		if err != nil {
			return "", errs.New(errs.KindRowEncoding, fmt.Errorf("json-encoding value: %w", err))
		}
		return string(b), nil
	case model.KindBinary:
		bs, ok := v.Raw.([]byte)
		if !ok {
			return "", errs.New(errs.KindRowEncoding, fmt.Errorf("binary value is not []byte"))
		}
		return base64.StdEncoding.EncodeToString(bs), nil
	case model.KindTimestamp:
		t, ok := v.Raw.(time.Time)
		if !ok {
			return "", errs.New(errs.KindRowEncoding, fmt.Errorf("timestamp value is not time.Time"))
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case model.KindDate:
		t, ok := v.Raw.(time.Time)
		if !ok {
			return "", errs.New(errs.KindRowEncoding, fmt.Errorf("date value is not time.Time"))
		}
		return t.UTC().Format("2006-01-02"), nil
	case model.KindUUID:
		return canonicalUUID(v.Str)
	default:
		return v.Str, nil
	}
}

// canonicalUUID parses and re-renders a UUID through google/uuid so every
// source spelling (upper/lower case, with or without braces) lands on the
// same canonical lowercase hyphenated form at the target.
func canonicalUUID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", errs.New(errs.KindRowEncoding, fmt.Errorf("invalid uuid %q: %w", s, err))
	}
	return id.String(), nil
}

// quoteIfNeeded applies the quoting rules of spec.md §4.3: quote on
// delimiter/quote/CR/LF/leading-trailing whitespace/non-printable-ASCII,
// double embedded quotes, strip NUL bytes, and always quote an
// empty-but-present string so it round-trips as distinct from NULL.
func (e *Encoder) quoteIfNeeded(s string, v model.Value) string {
	s = strings.ReplaceAll(s, "\x00", "")

	needsQuote := s == "" // present-but-empty must be quoted (distinct from NULL)
	if !needsQuote {
		if strings.TrimSpace(s) != s {
			needsQuote = true
		}
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c == e.Dialect.Delimiter || c == e.Dialect.Quote || c == '\r' || c == '\n' || c < 0x20 || c > 0x7E {
				needsQuote = true
				break
			}
		}
	}

	if !needsQuote {
		return s
	}

	q := string(e.Dialect.Quote)
	escaped := strings.ReplaceAll(s, q, q+q)
	return q + escaped + q
}

// EncodePositional renders one Row as a positional parameter slice for
// the BatchInsertSink. Values stay typed where possible so the driver's
// parameter binder carries the real type; collection/temporal
// normalization matches the CSV rules.
func (e *Encoder) EncodePositional(row model.Row) ([]interface{}, error) {
	if len(row.Values) != len(e.Columns.SourceMapped) {
		return nil, errs.New(errs.KindRowEncoding, fmt.Errorf(
			"row has %d values, expected %d mapped columns", len(row.Values), len(e.Columns.SourceMapped)))
	}

	out := make([]interface{}, 0, len(e.Columns.Names()))
	for _, v := range row.Values {
		val, err := e.positionalValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	for _, c := range e.Columns.Constants {
		val, err := e.positionalValue(c.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func (e *Encoder) positionalValue(v model.Value) (interface{}, error) {
	if !v.Valid {
		return nil, nil
	}
	switch v.Kind {
	case model.KindJSON:
		b, err := json.Marshal(v.Raw)
		if err != nil {
			return nil, errs.New(errs.KindRowEncoding, fmt.Errorf("json-encoding value: %w", err))
		}
		return string(b), nil
	case model.KindBinary:
		bs, ok := v.Raw.([]byte)
		if !ok {
			return nil, errs.New(errs.KindRowEncoding, fmt.Errorf("binary value is not []byte"))
		}
		return bs, nil
	case model.KindTimestamp, model.KindDate:
		t, ok := v.Raw.(time.Time)
		if !ok {
			return nil, errs.New(errs.KindRowEncoding, fmt.Errorf("temporal value is not time.Time"))
		}
		return t.UTC(), nil
	case model.KindUUID:
		return canonicalUUID(v.Str)
	case model.KindBool:
		b, err := strconv.ParseBool(v.Str)
		if err != nil {
			return nil, errs.New(errs.KindRowEncoding, fmt.Errorf("bool value %q: %w", v.Str, err))
		}
		return b, nil
	case model.KindInt:
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return nil, errs.New(errs.KindRowEncoding, fmt.Errorf("int value %q: %w", v.Str, err))
		}
		return n, nil
	case model.KindFloat:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return nil, errs.New(errs.KindRowEncoding, fmt.Errorf("float value %q: %w", v.Str, err))
		}
		return f, nil
	default:
		return v.Str, nil
	}
}
