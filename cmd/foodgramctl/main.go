// foodgramctl bündelt die Verwaltungskommandos des Foodgram-Backends:
// Schema-Migration, Zutaten-Import aus Fixtures und das Anlegen eines
// Superusers. Die Datenbankverbindung kommt aus denselben POSTGRES_*
// Variablen wie beim Server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"foodgram/config"
	"foodgram/models"
	"foodgram/services"
)

var (
	logging *zap.Logger

	clearIngredients bool

	superuserUsername string
	superuserEmail    string
	superuserPassword string
)

// openDB lädt die Konfiguration und verbindet sich mit Postgres.
func openDB() (*gorm.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config load error: %w", err)
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "foodgramctl",
	Short: "Management commands for the Foodgram backend",
	Long: `foodgramctl runs administrative tasks against the Foodgram database:
schema migration, ingredient fixture imports and superuser creation.`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(
			&models.User{}, &models.AuthToken{}, &models.Ingredient{},
			&models.Recipe{}, &models.RecipeIngredient{},
			&models.Favorite{}, &models.ShoppingCartItem{}, &models.Subscription{},
		); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logging.Info("Migration finished.")
		return nil
	},
}

var loadIngredientsCmd = &cobra.Command{
	Use:   "load-ingredients <file>",
	Short: "Import ingredients from a JSON or CSV fixture",
	Long: `Reads an ingredient fixture (.json or .csv) and inserts the rows into
the ingredients table. Existing name/unit pairs are skipped, so the
command can be re-run safely. With --clear the table is emptied first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		stats, err := services.LoadIngredientsFromFile(db, logging, args[0], clearIngredients)
		if err != nil {
			return err
		}
		logging.Info("Ingredient import finished",
			zap.Int("created", stats.Created), zap.Int("skipped", stats.Skipped))
		return nil
	},
}

var createSuperuserCmd = &cobra.Command{
	Use:   "create-superuser",
	Short: "Create or update the superuser account",
	Long: `Creates the staff account used for administration. Credentials come
from the --username/--email/--password flags or, if omitted, from the
DJANGO_SUPERUSER_USERNAME, DJANGO_SUPERUSER_EMAIL and
DJANGO_SUPERUSER_PASSWORD environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDB()
		if err != nil {
			return err
		}
		username := superuserUsername
		email := superuserEmail
		password := superuserPassword
		if username == "" {
			username = cfg.SuperuserUsername
		}
		if email == "" {
			email = cfg.SuperuserEmail
		}
		if password == "" {
			password = cfg.SuperuserPassword
		}
		if username == "" || email == "" || password == "" {
			return fmt.Errorf("username, email and password are required")
		}

		accounts := services.NewAccountService(db, logging, 0)
		user, err := accounts.CreateSuperuser(username, email, password)
		if err != nil {
			return err
		}
		logging.Info("Superuser ready", zap.String("email", user.Email), zap.Uint("id", user.ID))
		return nil
	},
}

func init() {
	loadIngredientsCmd.Flags().BoolVar(&clearIngredients, "clear", false, "empty the ingredients table before importing")
	createSuperuserCmd.Flags().StringVar(&superuserUsername, "username", "", "superuser username")
	createSuperuserCmd.Flags().StringVar(&superuserEmail, "email", "", "superuser email")
	createSuperuserCmd.Flags().StringVar(&superuserPassword, "password", "", "superuser password")
	rootCmd.AddCommand(migrateCmd, loadIngredientsCmd, createSuperuserCmd)
}

func main() {
	var err error
	logging, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		logging.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}
