package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"foodgram/models"
)

// LoadStats fasst das Ergebnis eines Fixture-Imports zusammen.
type LoadStats struct {
	Created int
	Skipped int
}

// ingredientRow ist ein Eintrag aus einer JSON-Fixture-Datei.
type ingredientRow struct {
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
}

// LoadIngredientsFromFile liest Zutaten aus einer JSON- oder CSV-Datei und
// legt sie in der Datenbank an. Bereits vorhandene Paare aus Name und
// Einheit werden übersprungen. Mit clearTable wird die Tabelle vorher geleert.
func LoadIngredientsFromFile(db *gorm.DB, logger *zap.Logger, path string, clearTable bool) (*LoadStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open fixture file: %w", err)
	}
	defer file.Close()

	var rows []ingredientRow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rows, err = parseIngredientsJSON(file)
	case ".csv":
		rows, err = parseIngredientsCSV(file)
	default:
		return nil, fmt.Errorf("unsupported fixture type %q, use .json or .csv", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Parsed ingredient fixture", zap.String("file", path), zap.Int("rows", len(rows)))

	stats := &LoadStats{}
	err = db.Transaction(func(tx *gorm.DB) error {
		if clearTable {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Ingredient{}).Error; err != nil {
				return err
			}
			logger.Warn("Ingredient table cleared before import")
		}
		for _, row := range rows {
			name := strings.TrimSpace(row.Name)
			unit := strings.TrimSpace(row.MeasurementUnit)
			if name == "" || unit == "" ||
				utf8.RuneCountInString(name) > models.IngredientNameMaxLength ||
				utf8.RuneCountInString(unit) > models.IngredientUnitMaxLength {
				stats.Skipped++
				continue
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Ingredient{Name: name, MeasurementUnit: unit})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				stats.Skipped++
			} else {
				stats.Created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func parseIngredientsJSON(r io.Reader) ([]ingredientRow, error) {
	var rows []ingredientRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("invalid JSON fixture: %w", err)
	}
	return rows, nil
}

func parseIngredientsCSV(r io.Reader) ([]ingredientRow, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV fixture: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV fixture")
	}

	// Kopfzeile ist optional; Fixtures aus dem Produktionsdatensatz
	// kommen teils ohne Header ("абрикосовое варенье,г").
	start := 0
	nameIdx, unitIdx := 0, 1
	header := records[0]
	isHeader := false
	for _, col := range header {
		if col == "name" || col == "measurement_unit" {
			isHeader = true
		}
	}
	if isHeader && len(header) >= 2 {
		start = 1
		for i, col := range header {
			switch col {
			case "name":
				nameIdx = i
			case "measurement_unit":
				unitIdx = i
			}
		}
	}

	var rows []ingredientRow
	for _, record := range records[start:] {
		if len(record) <= nameIdx || len(record) <= unitIdx {
			continue
		}
		rows = append(rows, ingredientRow{
			Name:            record[nameIdx],
			MeasurementUnit: record[unitIdx],
		})
	}
	return rows, nil
}
