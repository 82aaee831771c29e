package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope describes which wrappers an endpoint may use around its payload.
// Wrappers are tried in order: data.data, data, key, then the bare body.
type envelope struct {
	endpoint string
	key      string
}

func (e envelope) unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrUnexpectedShape, e.endpoint)
	}
	if body[0] != '{' {
		return body, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", e.endpoint, err)
	}
	if raw, ok := obj["success"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("false")) {
		eb := parseErrorBody(body)
		return nil, fmt.Errorf("%w: %s: success=false: %s", ErrUnexpectedShape, e.endpoint, eb.Message)
	}
	if data, ok := obj["data"]; ok {
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '{' {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(data, &inner); err == nil {
				if nested, ok := inner["data"]; ok {
					return nested, nil
				}
				if e.key != "" {
					if keyed, ok := inner[e.key]; ok {
						return keyed, nil
					}
				}
			}
		}
		return data, nil
	}
	if e.key != "" {
		if keyed, ok := obj[e.key]; ok {
			return keyed, nil
		}
	}
	return body, nil
}

// decodeList decodes a list payload. A bare object with none of the known
// wrappers is rejected instead of silently producing an empty list.
func decodeList[T any](e envelope, body []byte) ([]T, error) {
	raw, err := e.unwrap(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: %s: expected a list", ErrUnexpectedShape, e.endpoint)
	}
	out := []T{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode list: %w", e.endpoint, err)
	}
	return out, nil
}

// decodeObject decodes a single-object payload; null and non-objects are errors.
func decodeObject[T any](e envelope, body []byte) (*T, error) {
	raw, err := e.unwrap(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: %s: expected an object", ErrUnexpectedShape, e.endpoint)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode object: %w", e.endpoint, err)
	}
	return &out, nil
}

// decodeAck accepts any 2xx body that is not an explicit success=false.
func decodeAck(e envelope, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	_, err := e.unwrap(body)
	return err
}

var (
	envUnavailableDates = envelope{endpoint: "unavailable_dates"}
	envUserLimit        = envelope{endpoint: "user_limit"}
	envCreateAppt       = envelope{endpoint: "create_appointment", key: "appointment"}
	envListAppts        = envelope{endpoint: "list_appointments", key: "appointments"}
	envSuggest          = envelope{endpoint: "suggest_alternative", key: "alternatives"}
	envCancelAppt       = envelope{endpoint: "cancel_appointment"}
	envAffected         = envelope{endpoint: "affected_appointments", key: "appointments"}
	envCreateBlackout   = envelope{endpoint: "create_unavailable_date", key: "unavailable_date"}
	envBulkCancel       = envelope{endpoint: "cancel_bulk_appointments"}
	envDashboardStats   = envelope{endpoint: "dashboard_stats", key: "stats"}
	envServices         = envelope{endpoint: "services", key: "services"}
)
