// Package yamlutil is the project's single YAML surface: strict decoding
// for user configuration files and marshalling for the emitted pandoc
// defaults document. Keeping both behind one package pins every caller to
// the same library and the same input limits.
package yamlutil

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// MaxDocumentBytes caps decoded input. Config files and defaults documents
// are tiny; anything near this limit is a mistake, not a configuration.
const MaxDocumentBytes = 1 << 20

var (
	ErrEmptyDocument    = errors.New("empty yaml document")
	ErrNilTarget        = errors.New("nil yaml decode target")
	ErrOversizeDocument = errors.New("yaml document too large")
)

func check(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyDocument
	}
	if len(data) > MaxDocumentBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrOversizeDocument, len(data), MaxDocumentBytes)
	}
	if v == nil {
		return ErrNilTarget
	}
	return nil
}

// Unmarshal decodes data into v, tolerating unknown keys.
func Unmarshal(data []byte, v any) error {
	if err := check(data, v); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding yaml: %w", err)
	}
	return nil
}

// UnmarshalStrict decodes data into v and rejects unknown keys, so typos in
// a config file fail loudly instead of silently keeping the default.
func UnmarshalStrict(data []byte, v any) error {
	if err := check(data, v); err != nil {
		return err
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.Strict()); err != nil {
		return fmt.Errorf("decoding yaml: %w", err)
	}
	return nil
}

// Marshal encodes v as a YAML document.
func Marshal(v any) ([]byte, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return out, nil
}
