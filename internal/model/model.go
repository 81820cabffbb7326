// Package model defines domain entities shared by the client services.
package model

import (
	"strings"
	"time"
)

// Credentials is the bearer token issued by the authorization server.
type Credentials struct {
	AccessToken string
	ExpiresAt   time.Time // zero when the server does not bound the token lifetime
}

// Valid reports whether the credentials carry a token usable at now.
func (c Credentials) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// Profile is the current user's identity as returned by the server.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
	Bio       string
}

// Name joins first and last name, skipping empty parts.
func (p Profile) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// LoginName is the handle shown next to the display name.
func (p Profile) LoginName() string {
	if p.Username == "" {
		return ""
	}
	return "@" + p.Username
}

// Size is a photo's pixel dimensions.
type Size struct {
	Width  int
	Height int
}

// Photo is an immutable feed entry. Mutations produce a new value.
type Photo struct {
	ID          string
	Size        Size
	CreatedAt   time.Time // zero if the server omitted it
	Description string
	ThumbURL    string
	SmallURL    string
	RegularURL  string
	LargeURL    string
	IsLiked     bool
}

// WithLiked returns a copy of p with IsLiked set to liked.
func (p Photo) WithLiked(liked bool) Photo {
	p.IsLiked = liked
	return p
}
