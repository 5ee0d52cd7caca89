package converter

import "encoding/json"

type Converter interface {
	// To converts the given value to a payload
	To(v any) (json.RawMessage, error)

	// From converts the given payload to a value
	From(data json.RawMessage, v any) error
}

var DefaultConverter Converter = &jsonConverter{}
