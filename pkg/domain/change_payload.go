package domain

import "encoding/json"

// ChangePayload holds a JSON snapshot of one side of a change. Rules decode it
// into the typed record they inspect, which keeps them independent of the
// store's in-memory representation.
type ChangePayload struct {
	raw json.RawMessage
}

// NewChangePayload marshals value into a payload.
func NewChangePayload(value any) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{raw: raw}, nil
}

// Defined reports whether the payload carries a snapshot. Creates have no
// Before side and hard deletes have no After side.
func (p ChangePayload) Defined() bool {
	return len(p.raw) > 0
}

// Raw returns a copy of the underlying JSON bytes, or nil when undefined.
func (p ChangePayload) Raw() json.RawMessage {
	if len(p.raw) == 0 {
		return nil
	}
	cloned := make(json.RawMessage, len(p.raw))
	copy(cloned, p.raw)
	return cloned
}

// DecodeChangePayload decodes the payload into T. It returns false when the
// payload is undefined or does not decode.
func DecodeChangePayload[T any](payload ChangePayload) (T, bool) {
	var out T
	if !payload.Defined() {
		return out, false
	}
	if err := json.Unmarshal(payload.raw, &out); err != nil {
		return out, false
	}
	return out, true
}
