package models

import "time"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

type User struct {
	ID           int       `gorm:"primary_key;autoIncrement" json:"id"`
	Username     string    `gorm:"unique;not null;index" json:"username"`
	Email        string    `gorm:"unique;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"` // json:"-" prevents password from being exposed in API
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the per-user writer profile. Exactly one row per user after
// registration; accounts created before profiles existed get one lazily on
// the first settings visit.
type Profile struct {
	ID     int    `gorm:"primary_key;autoIncrement" json:"id"`
	UserID int    `gorm:"unique;not null;index" json:"user_id"`
	Avatar string `json:"avatar"`               // stored media path, empty when unset
	Bio    string `gorm:"type:text" json:"bio"` // max 500 chars, enforced at the handler
}

type Category struct {
	ID          int    `gorm:"primary_key;autoIncrement" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Slug        string `gorm:"unique;not null;index" json:"slug"`
}

type Article struct {
	ID          int       `gorm:"primary_key;autoIncrement" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Slug        string    `gorm:"unique;not null;index" json:"slug"`
	Content     string    `gorm:"type:text" json:"content"`
	AuthorID    int       `gorm:"not null;index" json:"author_id"`
	CategoryID  int       `gorm:"not null;index" json:"category_id"`
	Image       string    `json:"image"` // stored media path, empty when no cover
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Views       int64     `gorm:"not null;default:0" json:"views"`
	Recommended bool      `gorm:"default:false" json:"recommended"`
	Status      string    `gorm:"not null;default:'draft';index" json:"status"`
}

func (a *Article) Published() bool {
	return a.Status == StatusPublished
}
