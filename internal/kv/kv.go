// Package kv implements the flat "k=v;k=v" codec used for every command and
// response payload exchanged between the arm_control service, the BT
// service, and the RPC control plane.
//
// # Total function
//
// Decode never errors: unparseable tokens are dropped rather than
// propagated, matching the wire contract's requirement that a malformed
// payload degrade to an empty/partial map instead of crashing the listener
// thread that received it.
package kv

import (
	"fmt"
	"strconv"
	"strings"
)

// Decode parses "k1=v1;k2=v2" into a map. Empty tokens and tokens without an
// '=' are ignored. When a key repeats, the last occurrence wins.
func Decode(raw string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Split(raw, ";") {
		if tok == "" {
			continue
		}
		idx := strings.IndexByte(tok, '=')
		if idx < 0 {
			continue
		}
		key := tok[:idx]
		if key == "" {
			continue
		}
		out[key] = tok[idx+1:]
	}
	return out
}

// Encode writes the keys of m listed in order first, in the order given,
// followed by any remaining keys in map iteration order. Passing the exact
// set of keys as they were filled in by the caller gives a stable,
// predictable wire format; passing nil falls back to map order.
func Encode(m map[string]string, order []string) string {
	var b strings.Builder
	seen := make(map[string]bool, len(order))
	first := true
	write := func(k, v string) {
		if !first {
			b.WriteByte(';')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	for _, k := range order {
		v, ok := m[k]
		if !ok {
			continue
		}
		seen[k] = true
		write(k, v)
	}
	for k, v := range m {
		if seen[k] {
			continue
		}
		write(k, v)
	}
	return b.String()
}

// ParseCSV6 parses a comma-separated sextuple of floats ("a,b,c,d,e,f").
// Any arity other than six, or any component that fails to parse, yields
// (zero vector, false) rather than a partial vector.
func ParseCSV6(s string) ([6]float64, bool) {
	var out [6]float64
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return out, false
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [6]float64{}, false
		}
		out[i] = f
	}
	return out, true
}

// FormatCSV6 renders a sextuple at the given decimal precision.
func FormatCSV6(v [6]float64, precision int) string {
	parts := make([]string, 6)
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', precision, 64)
	}
	return strings.Join(parts, ",")
}

// FormatCSV6Fixed renders a sextuple at the conventional 6-decimal precision
// used for all outbound joint/pose values.
func FormatCSV6Fixed(v [6]float64) string {
	return FormatCSV6(v, 6)
}

// ParseBool matches the wire convention: "1"/"true"/"TRUE" (and common
// case variants) are true, everything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// FormatBool renders a bool using the wire's 1/0 convention.
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// FormatInt is a small convenience used throughout response construction.
func FormatInt(n int) string {
	return strconv.Itoa(n)
}

// ParseFloat is a convenience wrapper that reports failures the way callers
// in this codebase expect: ok=false rather than a zero value.
func ParseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// MustFormatFloat renders a float with fixed precision; used for debug
// fields where a best-effort string is acceptable.
func MustFormatFloat(f float64, precision int) string {
	return strconv.FormatFloat(f, 'f', precision, 64)
}

// fmtKeyErr is a tiny helper for building "missing_<key>"/"invalid_<key>"
// error tokens consistently.
func fmtKeyErr(prefix, key string) string {
	return fmt.Sprintf("%s_%s", prefix, key)
}

// MissingFieldToken builds the "missing_<key>" error token.
func MissingFieldToken(key string) string { return fmtKeyErr("missing", key) }

// InvalidFieldToken builds the "invalid_<key>" error token.
func InvalidFieldToken(key string) string { return fmtKeyErr("invalid", key) }

// BadFieldToken builds the "bad_<key>" error token used for parse failures.
func BadFieldToken(key string) string { return fmtKeyErr("bad", key) }
