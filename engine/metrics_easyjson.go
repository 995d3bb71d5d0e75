package engine

// Hand-written in the shape `easyjson -no_std_marshalers` would generate for
// Metrics, since generating it normally isn't an option here. Kept in its own
// file the way generated easyjson code normally lives separately from its
// source type (types.go).

import (
	json "encoding/json"

	easyjson "github.com/mailru/easyjson"
	jlexer "github.com/mailru/easyjson/jlexer"
	jwriter "github.com/mailru/easyjson/jwriter"
)

var (
	_ *json.RawMessage
	_ *jlexer.Lexer
	_ *jwriter.Writer
	_ easyjson.Marshaler
)

func easyjsonDecodeMetrics(in *jlexer.Lexer, out *Metrics) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		switch key {
		case "buffer_pool_hit_ratio":
			out.BufferPoolHitRatio = in.Float64()
		case "buffer_pool_dirty_pct":
			out.BufferPoolDirtyPct = in.Float64()
		case "active_transactions":
			out.ActiveTransactions = in.Int()
		case "lock_waits":
			out.LockWaits = in.Uint64()
		case "lock_timeouts":
			out.LockTimeouts = in.Uint64()
		case "deadlocks":
			out.Deadlocks = in.Uint64()
		case "index_searches":
			out.IndexSearches = in.Uint64()
		case "index_inserts":
			out.IndexInserts = in.Uint64()
		case "index_deletes":
			out.IndexDeletes = in.Uint64()
		case "index_splits":
			out.IndexSplits = in.Uint64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func easyjsonEncodeMetrics(out *jwriter.Writer, in Metrics) {
	out.RawByte('{')
	out.RawString(`"buffer_pool_hit_ratio":`)
	out.Float64(in.BufferPoolHitRatio)
	out.RawString(`,"buffer_pool_dirty_pct":`)
	out.Float64(in.BufferPoolDirtyPct)
	out.RawString(`,"active_transactions":`)
	out.Int(in.ActiveTransactions)
	out.RawString(`,"lock_waits":`)
	out.Uint64(in.LockWaits)
	out.RawString(`,"lock_timeouts":`)
	out.Uint64(in.LockTimeouts)
	out.RawString(`,"deadlocks":`)
	out.Uint64(in.Deadlocks)
	out.RawString(`,"index_searches":`)
	out.Uint64(in.IndexSearches)
	out.RawString(`,"index_inserts":`)
	out.Uint64(in.IndexInserts)
	out.RawString(`,"index_deletes":`)
	out.Uint64(in.IndexDeletes)
	out.RawString(`,"index_splits":`)
	out.Uint64(in.IndexSplits)
	out.RawByte('}')
}

// MarshalEasyJSON supports easyjson.Marshaler.
func (v Metrics) MarshalEasyJSON(w *jwriter.Writer) {
	easyjsonEncodeMetrics(w, v)
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler.
func (v *Metrics) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeMetrics(l, v)
}

// MarshalJSON implements json.Marshaler through the easyjson writer, so
// encoding/json callers (e.g. an information_schema HTTP handler) get the
// same output as a direct easyjson.Marshal call without reflection.
func (v Metrics) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	easyjsonEncodeMetrics(&w, v)
	return w.Buffer.BuildBytes(), w.Error
}

// UnmarshalJSON implements json.Unmarshaler through the easyjson reader.
func (v *Metrics) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	easyjsonDecodeMetrics(&r, v)
	return r.Error()
}
