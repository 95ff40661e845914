package encode

import (
	"regexp"
	"strings"
	"time"

	"github.com/sakthi87/cstar2yb/internal/model"
)

var (
	intPattern     = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// ParseConstantColumn parses one table.constantColumns.{names,values}
// pair using the small grammar of spec.md §4.3: true/false -> boolean;
// an integer literal -> integer; a decimal literal -> decimal (carried
// as KindFloat); the literal CURRENT_TIMESTAMP (case-insensitive, quoted
// or bare) -> the run's start instant; anything else -> string, stripping
// one matched layer of surrounding quotes.
//
// Called once per run (not per partition) by the coordinator, per
// SPEC_FULL.md §11.
func ParseConstantColumn(name, raw string, runStart time.Time) model.ConstantColumn {
	trimmed := strings.TrimSpace(raw)
	unquoted, wasQuoted := stripOneQuoteLayer(trimmed)

	switch strings.ToLower(unquoted) {
	case "true":
		return model.ConstantColumn{Name: name, Value: model.Value{Valid: true, Kind: model.KindBool, Str: "true"}}
	case "false":
		return model.ConstantColumn{Name: name, Value: model.Value{Valid: true, Kind: model.KindBool, Str: "false"}}
	case "current_timestamp":
		return model.ConstantColumn{Name: name, Value: model.Value{
			Valid: true, Kind: model.KindTimestamp, Raw: runStart,
		}}
	}

	if intPattern.MatchString(unquoted) {
		return model.ConstantColumn{Name: name, Value: model.Value{Valid: true, Kind: model.KindInt, Str: unquoted}}
	}
	if decimalPattern.MatchString(unquoted) {
		return model.ConstantColumn{Name: name, Value: model.Value{Valid: true, Kind: model.KindFloat, Str: unquoted}}
	}

	value := unquoted
	if !wasQuoted {
		value = trimmed
	}
	return model.ConstantColumn{Name: name, Value: model.Value{Valid: true, Kind: model.KindString, Str: value}}
}

// stripOneQuoteLayer removes exactly one matched layer of surrounding
// single or double quotes, reporting whether it did.
func stripOneQuoteLayer(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}

// ParseConstantColumns parses the full names/values configuration pair
// once per run into the frozen slice carried by TargetColumns.
func ParseConstantColumns(names, values []string, runStart time.Time) []model.ConstantColumn {
	out := make([]model.ConstantColumn, 0, len(names))
	for i, name := range names {
		var raw string
		if i < len(values) {
			raw = values[i]
		}
		out = append(out, ParseConstantColumn(name, raw, runStart))
	}
	return out
}
