package json

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

var (
	ErrDecodeJSON = errors.New("failed to decode JSON")
	ErrEncodeJSON = errors.New("failed to encode JSON")
)

// Decode is a generic version of the stdlib json decoder.
func Decode[T any](reader io.Reader) (T, error) {
	var value T
	if err := json.NewDecoder(reader).Decode(&value); err != nil {
		return value, errors.Join(err, ErrDecodeJSON)
	}

	return value, nil
}

// DecodeText decodes a serialized text column.
func DecodeText[T any](text string) (T, error) {
	return Decode[T](strings.NewReader(text))
}

// DecodeOr decodes text, returning fallback when text is empty or malformed.
func DecodeOr[T any](text string, fallback T) (T, bool) {
	if strings.TrimSpace(text) == "" {
		return fallback, false
	}

	value, err := DecodeText[T](text)
	if err != nil {
		return fallback, false
	}

	return value, true
}

// EncodeText serializes value into the compact text form stored in columns.
func EncodeText(value any) (string, error) {
	out, err := json.Marshal(value)
	if err != nil {
		return "", errors.Join(err, ErrEncodeJSON)
	}

	return string(out), nil
}
