// Package encoding provides the codecs used for config files and
// transport payloads.
package encoding

import (
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/toolgate/encoding/json"
	tomlenc "github.com/effective-security/toolgate/encoding/toml"
	yamlenc "github.com/effective-security/toolgate/encoding/yaml"
)

// Codec marshals and unmarshals one wire format.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(bs []byte, ret any) error
	ContentType() string
}

// Validator is implemented by codecs that support struct validation
// via `validate` tags.
type Validator interface {
	Validate(any) error
}

type Format = string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	_ Codec     = (*jsonenc.Encoder)(nil)
	_ Codec     = (*tomlenc.Encoder)(nil)
	_ Codec     = (*yamlenc.Encoder)(nil)
	_ Validator = (*jsonenc.Encoder)(nil)
	_ Validator = (*tomlenc.Encoder)(nil)
	_ Validator = (*yamlenc.Encoder)(nil)
)

// CodecFor returns the codec of the given format.
func CodecFor(format Format) (Codec, error) {
	switch format {
	case FormatJSON:
		return jsonenc.NewEncoder(), nil
	case FormatYAML:
		return yamlenc.NewEncoder(), nil
	case FormatTOML:
		return tomlenc.NewEncoder(), nil
	default:
		return nil, errors.Newf("no predefined codec for format %q", format)
	}
}

// FormatForPath maps a file extension to its format.
func FormatForPath(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".json"):
		return FormatJSON, nil
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return FormatYAML, nil
	case strings.HasSuffix(path, ".toml"):
		return FormatTOML, nil
	default:
		return "", errors.Newf("unsupported file extension: %s", path)
	}
}

// Decode unmarshals the data in the given format and validates the
// result when the codec supports it.
func Decode[T any](format Format, data []byte) (*T, error) {
	codec, err := CodecFor(format)
	if err != nil {
		return nil, err
	}
	var target T
	if err := codec.Unmarshal(data, &target); err != nil {
		return nil, errors.Wrap(err, "failed to decode")
	}
	if v, ok := codec.(Validator); ok {
		if err := v.Validate(target); err != nil {
			return nil, errors.Wrap(err, "failed to validate")
		}
	}
	return &target, nil
}
