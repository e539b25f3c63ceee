package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// mergeMetadata overlays patch onto the JSON object in raw. Invalid or empty
// raw input is treated as an empty object.
func mergeMetadata(raw datatypes.JSON, patch map[string]any) (datatypes.JSON, error) {
	merged := map[string]any{}
	if len(raw) > 0 {
		if errUnmarshal := json.Unmarshal(raw, &merged); errUnmarshal != nil || merged == nil {
			merged = map[string]any{}
		}
	}
	for k, v := range patch {
		merged[k] = v
	}
	out, errMarshal := json.Marshal(merged)
	if errMarshal != nil {
		return nil, fmt.Errorf("invoice: encode metadata: %w", errMarshal)
	}
	return datatypes.JSON(out), nil
}

// EmailLogEntry is one delivery record kept on the invoice.
type EmailLogEntry struct {
	Type           string    `json:"type"`
	SentAt         time.Time `json:"sent_at"`
	ReminderNumber int       `json:"reminder_number,omitempty"`
}

// appendEmailLog appends entry to the JSON array in raw.
func appendEmailLog(raw datatypes.JSON, entry EmailLogEntry) (datatypes.JSON, error) {
	var entries []json.RawMessage
	if len(raw) > 0 {
		if errUnmarshal := json.Unmarshal(raw, &entries); errUnmarshal != nil {
			entries = nil
		}
	}
	encoded, errMarshal := json.Marshal(entry)
	if errMarshal != nil {
		return nil, fmt.Errorf("invoice: encode email log entry: %w", errMarshal)
	}
	entries = append(entries, encoded)
	out, errMarshal := json.Marshal(entries)
	if errMarshal != nil {
		return nil, fmt.Errorf("invoice: encode email log: %w", errMarshal)
	}
	return datatypes.JSON(out), nil
}

// EmailLog decodes the delivery log of raw. Malformed logs decode as empty.
func EmailLog(raw datatypes.JSON) []EmailLogEntry {
	var entries []EmailLogEntry
	if len(raw) == 0 {
		return nil
	}
	if errUnmarshal := json.Unmarshal(raw, &entries); errUnmarshal != nil {
		return nil
	}
	return entries
}

// MetadataString returns the string value stored under key, if any.
func MetadataString(raw datatypes.JSON, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var values map[string]any
	if errUnmarshal := json.Unmarshal(raw, &values); errUnmarshal != nil {
		return ""
	}
	s, _ := values[key].(string)
	return s
}

// snapshot encodes v as a JSON column value; nil yields a NULL column.
func snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	out, errMarshal := json.Marshal(v)
	if errMarshal != nil {
		return nil, fmt.Errorf("invoice: encode snapshot: %w", errMarshal)
	}
	return datatypes.JSON(out), nil
}
