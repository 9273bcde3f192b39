package models

import "time"

// Favorite markiert ein Rezept als Favorit eines Benutzers.
// Pro Benutzer und Rezept existiert höchstens ein Eintrag.
type Favorite struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AddedDate time.Time `json:"added_date" gorm:"autoCreateTime"`

	UserID   uint   `json:"user_id" gorm:"index:idx_favorite_user_recipe,unique;not null"`
	RecipeID uint   `json:"recipe_id" gorm:"index:idx_favorite_user_recipe,unique;not null"`
	User     User   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Recipe   Recipe `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Favorite) TableName() string {
	return "favorites"
}

// ShoppingCartItem legt ein Rezept in den Einkaufskorb eines Benutzers.
type ShoppingCartItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AddedDate time.Time `json:"added_date" gorm:"autoCreateTime"`

	UserID   uint   `json:"user_id" gorm:"index:idx_cart_user_recipe,unique;not null"`
	RecipeID uint   `json:"recipe_id" gorm:"index:idx_cart_user_recipe,unique;not null"`
	User     User   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Recipe   Recipe `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ShoppingCartItem) TableName() string {
	return "shopping_cart_items"
}
