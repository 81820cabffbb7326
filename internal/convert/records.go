// Package convert maps wire records onto domain models.
package convert

import (
	"time"

	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/wire"
)

// --- helpers ---

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// parseTime accepts ISO-8601 timestamps with or without fractional seconds.
// Unparseable input yields the zero time.
func parseTime(p *string) time.Time {
	if p == nil || *p == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, *p)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- profile ---

// Profile converts the /me record.
func Profile(r wire.ProfileRecord) model.Profile {
	return model.Profile{
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  str(r.LastName),
		Bio:       str(r.Bio),
	}
}

// --- photos ---

// Photo converts a single feed record. The "full" rendition becomes LargeURL.
func Photo(r wire.PhotoRecord) model.Photo {
	return model.Photo{
		ID:          r.ID,
		Size:        model.Size{Width: r.Width, Height: r.Height},
		CreatedAt:   parseTime(r.CreatedAt),
		Description: str(r.Description),
		ThumbURL:    r.URLs.Thumb,
		SmallURL:    r.URLs.Small,
		RegularURL:  r.URLs.Regular,
		LargeURL:    r.URLs.Full,
		IsLiked:     r.LikedByUser,
	}
}

// Photos converts a page of records, preserving order.
func Photos(rs []wire.PhotoRecord) []model.Photo {
	out := make([]model.Photo, 0, len(rs))
	for _, r := range rs {
		out = append(out, Photo(r))
	}
	return out
}
