package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrettyDate formats a time the way chats are named when the client supplies
// no name, e.g. "Monday, January 02, 2006 03:04 PM".
func PrettyDate(t time.Time) string {
	return t.Format("Monday, January 02, 2006 03:04 PM")
}

// UniqueFilename derives a collision-free local name from a random token and
// the given extension (which may be empty).
func UniqueFilename(extension string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + extension
}
