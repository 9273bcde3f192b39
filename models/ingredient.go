package models

// Ingredient repräsentiert eine Zutat mit ihrer Maßeinheit.
// Die Kombination aus Name und Einheit ist eindeutig.
type Ingredient struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	Name            string `json:"name" gorm:"index;index:idx_ingredient_name_unit,unique;size:200;not null"`
	MeasurementUnit string `json:"measurement_unit" gorm:"index:idx_ingredient_name_unit,unique;size:50;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Ingredient) TableName() string {
	return "ingredients"
}
