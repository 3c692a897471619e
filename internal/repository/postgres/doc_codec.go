package postgres

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/and161185/onepass/internal/model"
)

// timestampKey marks a typed timestamp value inside a stored document.
const timestampKey = "timestampValue"

// encodeDoc serializes a document; timestamps become {"timestampValue": RFC3339Nano}.
func encodeDoc(doc model.RawRecord) (string, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = encodeValue(v)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]string{timestampKey: t.UTC().Format(time.RFC3339Nano)}
	case *timestamppb.Timestamp:
		if t == nil {
			return nil
		}
		return map[string]string{timestampKey: t.AsTime().UTC().Format(time.RFC3339Nano)}
	default:
		return v
	}
}

// decodeDoc parses a stored document. Top-level integers decode to int64, other numbers to float64,
// typed timestamps to *timestamppb.Timestamp. Everything else keeps its JSON shape.
func decodeDoc(b []byte) (model.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	doc := make(model.RawRecord, len(raw))
	for k, v := range raw {
		doc[k] = decodeValue(v)
	}
	return doc, nil
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	case map[string]any:
		if len(t) != 1 {
			return t
		}
		s, ok := t[timestampKey].(string)
		if !ok {
			return t
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return t
		}
		return timestamppb.New(ts)
	default:
		return v
	}
}
