package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/adapter/cli"
)

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// targetUser parses value, falling back to the app's current user.
func targetUser(app *cli.App, value string) (uuid.UUID, error) {
	if value != "" {
		return parseUUID(value)
	}
	if app.CurrentUserID == uuid.Nil {
		return uuid.Nil, errors.New("user_id is required")
	}
	return app.CurrentUserID, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time format, use RFC 3339: %w", err)
	}
	parsed = parsed.UTC()
	return &parsed, nil
}
