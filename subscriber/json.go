package subscriber

import (
	"encoding/json"
	"time"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// subscriberWire is the on-disk shape of a Subscriber, used to implement
// forward-compatible marshaling: any JSON object key this struct doesn't
// name is captured separately and re-emitted verbatim on the next save.
type subscriberWire struct {
	ChatID    string  `json:"chat_id"`
	Email     string  `json:"email"`
	Enabled   bool    `json:"enabled"`
	Flags     Flags   `json:"flags"`
	Filter    *Filter `json:"filter"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// MarshalJSON implements json.Marshaler, re-emitting any unknown fields
// captured at load time alongside the fields this version understands.
func (s Subscriber) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"chat_id":    s.ChatID,
		"email":      s.Email,
		"enabled":    s.Enabled,
		"flags":      s.Flags,
		"filter":     s.Filter,
		"created_at": s.CreatedAt.Format(timeLayout),
		"updated_at": s.UpdatedAt.Format(timeLayout),
	}
	for k, v := range s.unknownFields {
		if _, known := out[k]; known {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler, compiling any stored filter
// regex and capturing unrecognized keys for a later round-trip.
func (s *Subscriber) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var w subscriberWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.ChatID = w.ChatID
	s.Email = w.Email
	s.Enabled = w.Enabled
	s.Flags = w.Flags
	s.Filter = w.Filter
	if s.Filter != nil {
		// a malformed stored filter is ignored rather than failing the
		// whole load; the command handler only ever writes filters it
		// has already validated, so this only guards against hand
		// edits of the state file.
		_ = s.Filter.Compile()
	}
	if w.CreatedAt != "" {
		if t, err := parseTime(w.CreatedAt); err == nil {
			s.CreatedAt = t
		}
	}
	if w.UpdatedAt != "" {
		if t, err := parseTime(w.UpdatedAt); err == nil {
			s.UpdatedAt = t
		}
	}

	known := map[string]struct{}{
		"chat_id": {}, "email": {}, "enabled": {}, "flags": {},
		"filter": {}, "created_at": {}, "updated_at": {},
	}
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if s.unknownFields == nil {
			s.unknownFields = map[string]interface{}{}
		}
		var val interface{}
		if err := json.Unmarshal(v, &val); err == nil {
			s.unknownFields[k] = val
		}
	}
	return nil
}
