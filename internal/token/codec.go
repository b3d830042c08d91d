package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// headerJSON is the only header this engine emits. Keys are already in sorted order.
var headerJSON = []byte(`{"alg":"HS256","typ":"JWT"}`)

const algHS256 = "HS256"

var segmentEncoding = base64.RawURLEncoding.Strict()

// EncodeSegment returns the unpadded URL-safe base64 form of data.
func EncodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeSegment decodes an unpadded URL-safe base64 segment. Each byte string
// has exactly one accepted encoding: padding, line breaks and non-zero
// trailing bits are rejected.
func DecodeSegment(s string) ([]byte, error) {
	if strings.ContainsAny(s, "=\r\n") {
		return nil, ErrDecode
	}
	b, err := segmentEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrDecode
	}
	return b, nil
}

// marshalCanonical encodes v as compact JSON. encoding/json writes map keys in
// sorted order, which keeps the payload bytes stable for a given claim set.
func marshalCanonical(v map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// decodeObject parses a JSON object keeping numbers as json.Number so integer
// claims can be checked without float rounding.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrMalformedToken
	}
	if dec.More() {
		return nil, ErrMalformedToken
	}
	return out, nil
}
