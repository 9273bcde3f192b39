package models

import "time"

// AuthToken ist das API-Token eines Benutzers (Header "Authorization: Token <key>").
type AuthToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Key    string `json:"-" gorm:"uniqueIndex;size:40;not null"`
	UserID uint   `json:"user_id" gorm:"index;not null"`
	User   User   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (AuthToken) TableName() string {
	return "auth_tokens"
}
