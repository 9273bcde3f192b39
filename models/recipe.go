package models

import "time"

// Recipe repräsentiert ein veröffentlichtes Rezept.
type Recipe struct {
	ID      uint      `json:"id" gorm:"primaryKey"`
	PubDate time.Time `json:"pub_date" gorm:"index;autoCreateTime"`

	AuthorID uint `json:"-" gorm:"index;not null"`
	Author   User `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	Name        string `json:"name" gorm:"index;size:200;not null"`
	Image       string `json:"image" gorm:"not null"`
	Text        string `json:"text" gorm:"type:text;not null"`
	CookingTime int    `json:"cooking_time" gorm:"not null"` // Minuten, >= 1

	Ingredients []RecipeIngredient `json:"-" gorm:"foreignKey:RecipeID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Recipe) TableName() string {
	return "recipes"
}

// RecipeIngredient verknüpft Recipe und Ingredient und trägt die Menge.
type RecipeIngredient struct {
	ID uint `json:"id" gorm:"primaryKey"`

	RecipeID     uint       `json:"recipe_id" gorm:"index:idx_recipe_ingredient,unique;not null"`
	IngredientID uint       `json:"ingredient_id" gorm:"index:idx_recipe_ingredient,unique;not null"`
	Ingredient   Ingredient `json:"-"`

	Amount int `json:"amount" gorm:"not null"` // >= 1
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (RecipeIngredient) TableName() string {
	return "recipe_ingredients"
}
