package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownUserName is shown for profiles without any usable name.
const UnknownUserName = "Unknown User"

// ErrProfileNotFound is returned when looking up a non-existent profile.
var ErrProfileNotFound = NewError(KindNotFound, "profile not found")

// Profile is the public face of a user. Its ID equals the user ID.
type Profile struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	DisplayName *string   `db:"display_name" json:"displayName,omitempty"`
	FullName    *string   `db:"full_name"    json:"fullName,omitempty"`
	Username    *string   `db:"username"     json:"username,omitempty"`
	AvatarURL   *string   `db:"avatar_url"   json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updatedAt"`
}

// ResolvedName returns the first non-blank of display name, full name and
// username, or UnknownUserName. A nil profile resolves to UnknownUserName.
func (p *Profile) ResolvedName() string {
	if p == nil {
		return UnknownUserName
	}

	for _, name := range []*string{p.DisplayName, p.FullName, p.Username} {
		if name != nil && strings.TrimSpace(*name) != "" {
			return strings.TrimSpace(*name)
		}
	}

	return UnknownUserName
}

// ProfilePatch holds the profile fields a user may change. Nil fields are left
// untouched, empty strings clear the field.
type ProfilePatch struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=64"`
	FullName    *string `json:"fullName"    validate:"omitempty,max=128"`
	AvatarURL   *string `json:"avatarUrl"   validate:"omitempty,max=512"`
}

// Apply copies the set fields of the patch onto p.
func (patch ProfilePatch) Apply(p *Profile) {
	set := func(dst **string, src *string) {
		if src == nil {
			return
		}

		if *src == "" {
			*dst = nil

			return
		}

		v := *src
		*dst = &v
	}

	set(&p.DisplayName, patch.DisplayName)
	set(&p.FullName, patch.FullName)
	set(&p.AvatarURL, patch.AvatarURL)
}
