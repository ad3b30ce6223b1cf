package rpc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wxzhao/workstation/internal/kv"
)

// ArgsToKV translates a JSON args object into the flat KV wire format used
// by the DDS command pipeline: arrays become CSV-joined scalars, booleans
// become "1"/"0", everything else is formatted with fmt.Sprint. Key order
// is sorted for a deterministic wire string (the original request order
// isn't preserved through a JSON object anyway).
func ArgsToKV(op string, args map[string]any) string {
	fields := make(map[string]string, len(args)+1)
	fields["op"] = op
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields[k] = formatArg(args[k])
	}
	return kv.Encode(fields, append([]string{"op"}, keys...))
}

func formatArg(v any) string {
	switch t := v.(type) {
	case bool:
		return kv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = formatArg(e)
		}
		return strings.Join(parts, ",")
	case float64:
		return kv.MustFormatFloat(t, 6)
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
