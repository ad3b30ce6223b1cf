package wire

import "github.com/wxzhao/workstation/internal/kv"

// Command is a decoded, dispatch-ready request. It is constructed on
// ingress and discarded once its Response has been published; nothing
// holds a Command past that point.
type Command struct {
	Op  string
	ID  string
	KV  map[string]string
	Raw string
}

// ParseCommand decodes a raw KV payload into a Command. Decode is total, so
// ParseCommand never fails; callers check Op == "" to detect a missing op.
func ParseCommand(raw string) Command {
	m := kv.Decode(raw)
	return Command{
		Op:  m["op"],
		ID:  m["id"],
		KV:  m,
		Raw: raw,
	}
}

// Get returns a field from the command's KV map, or "" if absent.
func (c Command) Get(key string) string { return c.KV[key] }

// Has reports whether a field is present (even if its value is empty).
func (c Command) Has(key string) bool {
	_, ok := c.KV[key]
	return ok
}
