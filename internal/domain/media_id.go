package domain

import "strings"

// ErrNoMediaID is returned when a media ID is required but not provided.
var ErrNoMediaID = NewError(KindValidation, "no media ID")

// MediaID is an alias for BlobID used to identify media objects.
type MediaID = BlobID

// ParseMediaID strips an optional file extension from a path segment such as
// "3xk9…q1.png".
func ParseMediaID(segment string) (MediaID, error) {
	id, _, _ := strings.Cut(segment, ".")
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", ErrNoMediaID
	}

	return MediaID(strings.ToLower(id)), nil
}
