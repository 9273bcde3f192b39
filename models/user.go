package models

import "time"

// User repräsentiert ein Benutzerkonto. Die Anmeldung erfolgt über die
// E-Mail-Adresse; der Benutzername dient nur der Anzeige.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	Email     string `json:"email" gorm:"uniqueIndex;size:254;not null"`
	Username  string `json:"username" gorm:"uniqueIndex;size:150;not null"`
	FirstName string `json:"first_name" gorm:"size:150;not null"`
	LastName  string `json:"last_name" gorm:"size:150;not null"`

	// Bcrypt-Hash, niemals im JSON sichtbar.
	PasswordHash string `json:"-" gorm:"not null"`

	Avatar string `json:"avatar,omitempty"`

	IsStaff     bool `json:"-" gorm:"default:false"`
	IsActive    bool `json:"-" gorm:"default:true"`
	IsSuperuser bool `json:"-" gorm:"default:false"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (User) TableName() string {
	return "users"
}
