package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile is keyed by the auth subject; rows are created lazily on first write.
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username  *string   `gorm:"column:username;uniqueIndex" json:"username,omitempty"`
	Name      string    `gorm:"column:name" json:"name"`
	Bio       string    `gorm:"column:bio" json:"bio,omitempty"`
	AvatarURL string    `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	Instagram string    `gorm:"column:instagram" json:"instagram,omitempty"`
	TikTok    string    `gorm:"column:tiktok" json:"tiktok,omitempty"`
	Twitter   string    `gorm:"column:twitter" json:"twitter,omitempty"`
	Role      string    `gorm:"column:role;not null;default:user" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// DisplayName prefers the username, then the name, then a short id.
func (p Profile) DisplayName() string {
	if p.Username != nil && strings.TrimSpace(*p.Username) != "" {
		return strings.TrimSpace(*p.Username)
	}
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return "fan-" + p.ID.String()[:8]
}
