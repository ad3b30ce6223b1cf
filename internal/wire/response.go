package wire

import "github.com/wxzhao/workstation/internal/kv"

// responseKeyOrder gives responses a stable, human-legible field order on
// the wire regardless of map iteration order.
var responseKeyOrder = []string{
	"op", "id", "ok", "err_code", "err", "sdk_code", "code",
}

// Response is a KV response under construction. The zero value is a
// successful, empty response; use Fail to turn it into a failure.
//
// Invariant (spec.md §3, §9 open question): exactly one of
// (ok=1 ∧ err_code=0) or (ok=0 ∧ err_code≠0 ∧ err≠"") holds, and whenever a
// caller inspects both ok and err_code, err_code wins.
type Response struct {
	fields map[string]string
	order  []string
}

// NewResponse starts a successful response for the given op/id.
func NewResponse(op, id string) *Response {
	r := &Response{fields: map[string]string{
		"op":       op,
		"ok":       "1",
		"err_code": kv.FormatInt(int(Ok)),
	}}
	if id != "" {
		r.fields["id"] = id
	}
	return r
}

// Fail marks the response as failed with the given code/token.
func (r *Response) Fail(code Code, errToken string) *Response {
	r.fields["ok"] = "0"
	r.fields["err_code"] = kv.FormatInt(int(code))
	r.fields["err"] = errToken
	return r
}

// SetSdkResult attaches the SDK result code, normalizing ok/err_code the
// way arm_set_sdk_result does in the original: sdkCode == 0 means success
// unless the response was already failed by a safety gate before the SDK
// call was ever made.
func (r *Response) SetSdkResult(sdkCode int) *Response {
	r.fields["sdk_code"] = kv.FormatInt(sdkCode)
	r.fields["code"] = kv.FormatInt(sdkCode) // legacy mirror
	if sdkCode != 0 {
		return r.Fail(SdkCallFailed, "sdk_call_failed")
	}
	return r
}

// Set stores an arbitrary field, tracking insertion order for Encode.
func (r *Response) Set(key, value string) *Response {
	if _, exists := r.fields[key]; !exists {
		r.order = append(r.order, key)
	}
	r.fields[key] = value
	return r
}

// Get reads back a field, mainly for tests.
func (r *Response) Get(key string) string { return r.fields[key] }

// IsOK reports success per the err_code-wins rule.
func (r *Response) IsOK() bool { return r.fields["err_code"] == kv.FormatInt(int(Ok)) }

// Encode renders the response as a KV string with a stable field order:
// the canonical header fields first, then any op-specific fields in the
// order they were Set.
func (r *Response) Encode() string {
	order := append(append([]string{}, responseKeyOrder...), r.order...)
	return kv.Encode(r.fields, order)
}

// Map returns a copy of the underlying fields, e.g. for RPC passthrough.
func (r *Response) Map() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// FailResponse is a convenience constructor for the common
// "reject before the handler ran" case (missing op, unknown op, bad
// request, queue full, executor rejection).
func FailResponse(op, id string, code Code, errToken string) *Response {
	return NewResponse(op, id).Fail(code, errToken)
}
