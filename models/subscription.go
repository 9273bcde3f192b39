package models

import "time"

// Subscription modelliert eine gerichtete Kante: Benutzer folgt Autor.
// Selbst-Abos werden in der Service-Schicht abgewiesen.
type Subscription struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CreatedDate time.Time `json:"created_date" gorm:"autoCreateTime"`

	UserID   uint `json:"user_id" gorm:"index:idx_subscription_user_author,unique;not null"`
	AuthorID uint `json:"author_id" gorm:"index:idx_subscription_user_author,unique;not null"`
	User     User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Author   User `json:"-" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Subscription) TableName() string {
	return "subscriptions"
}
