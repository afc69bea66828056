// Package utapi holds decoding helpers shared by the UploadThing backends.
package utapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// opaqueKeys are never rewritten: their values belong to the caller.
var opaqueKeys = map[string]bool{
	"serverData":  true,
	"server_data": true,
}

// Decode unmarshals an UploadThing response body into out. Object keys are
// camelized first, so payloads using snake_case (has_more, file_key) decode
// into the same camelCase struct tags. An empty body decodes as JSON null.
func Decode(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		trimmed = []byte("null")
	}
	normalized, err := CamelizeKeys(trimmed)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, out)
}

// CamelizeKeys rewrites every snake_case object key in a JSON document to
// camelCase, recursing into nested objects and arrays. Values under opaque
// keys such as serverData are copied verbatim.
func CamelizeKeys(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(camelizeValue(doc))
}

func camelizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			key := Camelize(k)
			if opaqueKeys[k] {
				out[key] = inner
				continue
			}
			// An explicit camelCase key wins over its snake_case twin.
			if _, exists := out[key]; exists && key != k {
				continue
			}
			out[key] = camelizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = camelizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// Camelize converts a snake_case identifier to camelCase. Identifiers with
// leading or trailing underscores are returned unchanged.
func Camelize(s string) string {
	if !strings.Contains(s, "_") || strings.HasPrefix(s, "_") || strings.HasSuffix(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}
	return b.String()
}

// ErrorMessage extracts a human readable message from an error body. The
// API reports failures as {"error": "..."}; some gateways use "message".
// Returns "" when the body carries neither.
func ErrorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var asString string
		if err := json.Unmarshal(envelope.Error, &asString); err == nil {
			return asString
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return envelope.Message
}
