package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paperreel/backend/internal/job"
)

// Cursors encode the (created_at, job_id) position of the last row of a
// page as base64 "unixNano|jobID", opaque to clients.

func DecodeJobCursor(cursorStr string) (*job.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	createdAtNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at in cursor: %w", err)
	}

	return &job.Cursor{
		CreatedAt: time.Unix(0, createdAtNano).UTC(),
		ID:        parts[1],
	}, nil
}

func EncodeJobCursor(cursor *job.Cursor) (string, error) {
	if cursor == nil {
		return "", fmt.Errorf("cursor is nil")
	}
	raw := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.ID)
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}
