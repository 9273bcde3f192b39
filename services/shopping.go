package services

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ShoppingListEntry ist eine über alle Korb-Rezepte summierte Zutat.
type ShoppingListEntry struct {
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	TotalAmount     int    `json:"total_amount"`
}

// AggregateShoppingList summiert die Zutatenmengen aller Rezepte im
// Einkaufskorb des Benutzers, sortiert nach Zutatenname.
func AggregateShoppingList(db *gorm.DB, userID uint) ([]ShoppingListEntry, error) {
	var entries []ShoppingListEntry
	err := db.
		Table("recipe_ingredients").
		Select("ingredients.name AS name, ingredients.measurement_unit AS measurement_unit, SUM(recipe_ingredients.amount) AS total_amount").
		Joins("JOIN ingredients ON ingredients.id = recipe_ingredients.ingredient_id").
		Joins("JOIN shopping_cart_items ON shopping_cart_items.recipe_id = recipe_ingredients.recipe_id").
		Where("shopping_cart_items.user_id = ?", userID).
		Group("ingredients.name, ingredients.measurement_unit").
		Order("ingredients.name").
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RenderShoppingList erzeugt den Textinhalt der herunterladbaren Einkaufsliste.
func RenderShoppingList(entries []ShoppingListEntry) string {
	var b strings.Builder
	b.WriteString("Shopping list:\n")
	if len(entries) == 0 {
		b.WriteString("Your list is empty.")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- %s (%s) — %d", e.Name, e.MeasurementUnit, e.TotalAmount)
	}
	return b.String()
}
