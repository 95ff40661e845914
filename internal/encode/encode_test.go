package encode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakthi87/cstar2yb/internal/model"
)

func columns(n int) model.TargetColumns {
	names := make([]string, n)
	for i := range names {
		names[i] = "c"
	}
	return model.TargetColumns{SourceMapped: names}
}

// TestNullVsEmpty verifies S5 / P6: NULL renders as an unquoted empty
// field, "" renders as a quoted empty field, and both are distinguishable.
func TestNullVsEmpty(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())

	nullCSV, err := enc.EncodeCSV(model.Row{Values: []model.Value{model.Null(model.KindString)}})
	require.NoError(t, err)
	assert.Equal(t, "", nullCSV)

	emptyCSV, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: ""}}})
	require.NoError(t, err)
	assert.Equal(t, `""`, emptyCSV)

	assert.NotEqual(t, nullCSV, emptyCSV)
}

func TestWhitespaceOnlyIsQuoted(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: "   "}}})
	require.NoError(t, err)
	assert.Equal(t, `"   "`, csv)
}

func TestEmbeddedQuoteIsDoubled(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: `a"b`}}})
	require.NoError(t, err)
	assert.Equal(t, `"a""b"`, csv)
}

func TestDelimiterTriggersQuoting(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: "a,b"}}})
	require.NoError(t, err)
	assert.Equal(t, `"a,b"`, csv)
}

func TestNulByteStripped(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: "a\x00b"}}})
	require.NoError(t, err)
	assert.Equal(t, "ab", csv)
}

func TestJSONRoundTripsThroughCSV(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{{
		Valid: true, Kind: model.KindJSON, Raw: map[string]interface{}{"a": 1, "b": "x"},
	}}})
	require.NoError(t, err)
	// Contains a comma and quotes, so the whole field is CSV-quoted and
	// internal quotes are doubled.
	assert.Contains(t, csv, `""a""`)
}

func TestConstantColumnsAppendInOrder(t *testing.T) {
	start := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)
	tc := model.TargetColumns{
		SourceMapped: []string{"name"},
		Constants: ParseConstantColumns(
			[]string{"created_by", "migration_date"},
			[]string{"MIGRATION", "2024-12-16"},
			start,
		),
	}
	enc := New(tc, DefaultDialect, start)
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: "alice"}}})
	require.NoError(t, err)
	assert.Equal(t, "alice,MIGRATION,2024-12-16", csv)
}

func TestParseConstantColumnGrammar(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	b := ParseConstantColumn("x", "true", start)
	assert.Equal(t, model.KindBool, b.Value.Kind)

	i := ParseConstantColumn("x", "42", start)
	assert.Equal(t, model.KindInt, i.Value.Kind)
	assert.Equal(t, "42", i.Value.Str)

	neg := ParseConstantColumn("x", "-7", start)
	assert.Equal(t, model.KindInt, neg.Value.Kind)

	d := ParseConstantColumn("x", "3.14", start)
	assert.Equal(t, model.KindFloat, d.Value.Kind)

	ts := ParseConstantColumn("x", "CURRENT_TIMESTAMP", start)
	assert.Equal(t, model.KindTimestamp, ts.Value.Kind)
	assert.Equal(t, start, ts.Value.Raw)

	tsQuoted := ParseConstantColumn("x", `'current_timestamp'`, start)
	assert.Equal(t, model.KindTimestamp, tsQuoted.Value.Kind)

	s := ParseConstantColumn("x", `"MIGRATION"`, start)
	assert.Equal(t, model.KindString, s.Value.Kind)
	assert.Equal(t, "MIGRATION", s.Value.Str)

	bare := ParseConstantColumn("x", "MIGRATION", start)
	assert.Equal(t, model.KindString, bare.Value.Kind)
	assert.Equal(t, "MIGRATION", bare.Value.Str)
}

func TestPositionalEncodeIsNullSafe(t *testing.T) {
	enc := New(columns(2), DefaultDialect, time.Now())
	vals, err := enc.EncodePositional(model.Row{Values: []model.Value{
		model.Null(model.KindInt),
		{Valid: true, Kind: model.KindInt, Str: "7"},
	}})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Nil(t, vals[0])
	assert.Equal(t, int64(7), vals[1])
}

func TestEncodeRowEncodingErrorOnColumnCountMismatch(t *testing.T) {
	enc := New(columns(2), DefaultDialect, time.Now())
	_, err := enc.EncodeCSV(model.Row{Values: []model.Value{{Valid: true, Kind: model.KindString, Str: "only one"}}})
	require.Error(t, err)
}

func TestUUIDIsCanonicalizedToLowerHyphenated(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	csv, err := enc.EncodeCSV(model.Row{Values: []model.Value{
		{Valid: true, Kind: model.KindUUID, Str: "A1A2A3A4-B1B2-C1C2-D1D2-D3D4D5D6D7D8"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "a1a2a3a4-b1b2-c1c2-d1d2-d3d4d5d6d7d8", csv)
}

func TestUUIDEncodingErrorOnMalformedValue(t *testing.T) {
	enc := New(columns(1), DefaultDialect, time.Now())
	_, err := enc.EncodeCSV(model.Row{Values: []model.Value{
		{Valid: true, Kind: model.KindUUID, Str: "not-a-uuid"},
	}})
	require.Error(t, err)
}
