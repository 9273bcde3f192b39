package models

// Feldgrenzen und Minimalwerte des Datenmodells.
const (
	UserEmailMaxLength     = 254
	UserUsernameMaxLength  = 150
	UserFirstNameMaxLength = 150
	UserLastNameMaxLength  = 150

	RecipeNameMaxLength = 200
	MinCookingTime      = 1
	MinIngredientAmount = 1

	IngredientNameMaxLength = 200
	IngredientUnitMaxLength = 50
)
