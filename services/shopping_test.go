package services

import (
	"strings"
	"testing"

	"gorm.io/gorm"

	"foodgram/models"
)

// seedCart legt zwei Rezepte mit überlappenden Zutaten an und packt sie in
// den Einkaufskorb des Benutzers.
func seedCart(t *testing.T, db *gorm.DB) uint {
	t.Helper()

	user := models.User{Email: "cook@example.com", Username: "cook", IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	flour := models.Ingredient{Name: "flour", MeasurementUnit: "g"}
	sugar := models.Ingredient{Name: "sugar", MeasurementUnit: "g"}
	milk := models.Ingredient{Name: "milk", MeasurementUnit: "ml"}
	for _, ing := range []*models.Ingredient{&flour, &sugar, &milk} {
		if err := db.Create(ing).Error; err != nil {
			t.Fatalf("failed to create ingredient: %v", err)
		}
	}

	pancakes := models.Recipe{AuthorID: user.ID, Name: "Pancakes", Image: "x", Text: "mix", CookingTime: 20}
	cake := models.Recipe{AuthorID: user.ID, Name: "Cake", Image: "x", Text: "bake", CookingTime: 60}
	for _, r := range []*models.Recipe{&pancakes, &cake} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("failed to create recipe: %v", err)
		}
	}

	rows := []models.RecipeIngredient{
		{RecipeID: pancakes.ID, IngredientID: flour.ID, Amount: 200},
		{RecipeID: pancakes.ID, IngredientID: milk.ID, Amount: 300},
		{RecipeID: cake.ID, IngredientID: flour.ID, Amount: 500},
		{RecipeID: cake.ID, IngredientID: sugar.ID, Amount: 150},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("failed to create recipe ingredients: %v", err)
	}

	items := []models.ShoppingCartItem{
		{UserID: user.ID, RecipeID: pancakes.ID},
		{UserID: user.ID, RecipeID: cake.ID},
	}
	if err := db.Create(&items).Error; err != nil {
		t.Fatalf("failed to fill shopping cart: %v", err)
	}
	return user.ID
}

func TestAggregateShoppingList(t *testing.T) {
	db := newTestDB(t)
	userID := seedCart(t, db)

	entries, err := AggregateShoppingList(db, userID)
	if err != nil {
		t.Fatalf("AggregateShoppingList failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Sortierung nach Zutatenname, Mengen über beide Rezepte summiert.
	want := []ShoppingListEntry{
		{Name: "flour", MeasurementUnit: "g", TotalAmount: 700},
		{Name: "milk", MeasurementUnit: "ml", TotalAmount: 300},
		{Name: "sugar", MeasurementUnit: "g", TotalAmount: 150},
	}
	for i, w := range want {
		if entries[i] != w {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], w)
		}
	}
}

func TestAggregateShoppingListEmpty(t *testing.T) {
	db := newTestDB(t)
	entries, err := AggregateShoppingList(db, 42)
	if err != nil {
		t.Fatalf("AggregateShoppingList failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries for empty cart, want 0", len(entries))
	}
}

func TestRenderShoppingList(t *testing.T) {
	text := RenderShoppingList([]ShoppingListEntry{
		{Name: "flour", MeasurementUnit: "g", TotalAmount: 700},
		{Name: "milk", MeasurementUnit: "ml", TotalAmount: 300},
	})
	if !strings.HasPrefix(text, "Shopping list:") {
		t.Errorf("missing header in %q", text)
	}
	if !strings.Contains(text, "flour (g)") || !strings.Contains(text, "700") {
		t.Errorf("missing aggregated entry in %q", text)
	}

	empty := RenderShoppingList(nil)
	if !strings.Contains(empty, "Your list is empty.") {
		t.Errorf("missing empty marker in %q", empty)
	}
}
