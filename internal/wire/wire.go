// Package wire holds the server's JSON records as they appear on the wire.
package wire

// TokenResponse is the body of a successful authorization-code exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// ProfileRecord is the body of GET /me.
type ProfileRecord struct {
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}

// ProfileImage lists avatar URLs by size.
type ProfileImage struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// UserRecord is the body of GET /users/{username}.
type UserRecord struct {
	ProfileImage ProfileImage `json:"profile_image"`
}

// PhotoURLs lists photo renditions by size.
type PhotoURLs struct {
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// PhotoRecord is one element of GET /photos.
type PhotoRecord struct {
	ID          string    `json:"id"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   *string   `json:"created_at"`
	Description *string   `json:"description"`
	URLs        PhotoURLs `json:"urls"`
	LikedByUser bool      `json:"liked_by_user"`
}

// LikeResponse is the body of POST/DELETE /photos/{id}/like.
type LikeResponse struct {
	Photo PhotoRecord `json:"photo"`
}
