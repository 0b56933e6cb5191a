package models

import "time"

// Song represents a catalog entry in the system
type Song struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Cover    string `json:"cover,omitempty"` // relative cover image path, if any
	FilePath string `json:"-"`               // don't expose file path to client
	Duration int    `json:"duration"`        // in seconds
	FileSize int64  `json:"fileSize"`
}

// AnnotatedSong is a Song plus the requesting user's favorite state. It is
// only produced for authenticated callers; anonymous and guest callers get
// the plain Song list.
type AnnotatedSong struct {
	Song
	IsFavorite bool `json:"is_favorite"`
}

// Playlist represents a user-created playlist
type Playlist struct {
	ID        int       `json:"id"`
	UserID    int       `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// User represents a registered account. The password hash never leaves the
// server; the JSON tag drops it from every API response.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	IsPremium    bool      `json:"isPremium"`
	Created      time.Time `json:"created"`
}
