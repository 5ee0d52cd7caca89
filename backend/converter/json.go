package converter

import (
	"encoding/json"
)

type jsonConverter struct{}

func (jc *jsonConverter) To(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}

	return json.Marshal(v)
}

func (jc *jsonConverter) From(data json.RawMessage, vptr any) error {
	return json.Unmarshal(data, vptr)
}
