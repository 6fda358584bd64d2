package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeBase64 mirrors encode_base64: standard (not URL-safe) base64.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 mirrors decode_base64.
func DecodeBase64(data string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("encoding: decode base64: %w", err)
	}
	return out, nil
}

// EncodeJSON mirrors encode_json: json.dumps with compact separators.
// Unlike the Python original's ensure_ascii=True, Go's json.Marshal
// leaves non-ASCII runes as raw UTF-8 rather than \uXXXX-escaping them;
// that's fine here since every caller round-trips through DecodeJSON,
// which accepts either form, and never inspects the encoded bytes for
// ASCII-only-ness directly.
func EncodeJSON(data interface{}) (string, error) {
	out, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding: encode json: %w", err)
	}
	return string(out), nil
}

// DecodeJSON mirrors decode_json, unmarshalling into a generic tree
// (map[string]interface{} / []interface{} / scalars) the way
// internal/serialize expects its raw tree input to look.
func DecodeJSON(data string) (interface{}, error) {
	var out interface{}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("encoding: decode json: %w", err)
	}
	return out, nil
}

// EncodeJSONBase64 mirrors encode_json_base64: marshal to JSON, then
// base64-encode the UTF-8 bytes.
func EncodeJSONBase64(data interface{}) (string, error) {
	text, err := EncodeJSON(data)
	if err != nil {
		return "", err
	}
	return EncodeBase64([]byte(text)), nil
}

// DecodeJSONBase64 mirrors decode_json_base64.
func DecodeJSONBase64(data string) (interface{}, error) {
	raw, err := DecodeBase64(data)
	if err != nil {
		return nil, err
	}
	return DecodeJSON(string(raw))
}
