package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// The backend serialises naive UTC datetimes (no zone suffix) in some
// responses and RFC 3339 in others; both are accepted.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// UnmarshalJSON accepts zone-less timestamps.
func (u *UserIdentity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64  `json:"id"`
		Email     string `json:"email"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	created, err := parseTimestamp(raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("user created_at: %w", err)
	}
	updated, err := parseTimestamp(raw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("user updated_at: %w", err)
	}
	*u = UserIdentity{ID: raw.ID, Email: raw.Email, CreatedAt: created, UpdatedAt: updated}
	return nil
}

// UnmarshalJSON accepts zone-less timestamps.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          int64   `json:"id"`
		UserID      int64   `json:"user_id"`
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Completed   bool    `json:"is_completed"`
		CreatedAt   string  `json:"created_at"`
		UpdatedAt   string  `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	created, err := parseTimestamp(raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("task created_at: %w", err)
	}
	updated, err := parseTimestamp(raw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("task updated_at: %w", err)
	}
	*t = Task{
		ID:          raw.ID,
		UserID:      raw.UserID,
		Title:       raw.Title,
		Description: raw.Description,
		Completed:   raw.Completed,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	return nil
}
