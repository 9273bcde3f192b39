package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	PostgresHost     string `envconfig:"POSTGRES_HOST" required:"true"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"POSTGRES_DB" required:"true"`

	HTTPPort  string `envconfig:"HTTP_PORT" default:"8000"`
	SecretKey string `envconfig:"SECRET_KEY" required:"true"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`

	// Superuser-Bootstrap (benannt wie die Django-Management-Variablen)
	SuperuserUsername string `envconfig:"DJANGO_SUPERUSER_USERNAME"`
	SuperuserEmail    string `envconfig:"DJANGO_SUPERUSER_EMAIL"`
	SuperuserPassword string `envconfig:"DJANGO_SUPERUSER_PASSWORD"`

	// API-Verhalten
	PageSize             int `envconfig:"PAGE_SIZE" default:"6"`
	SubscriptionsRecipes int `envconfig:"RECIPES_LIMIT_IN_SUBSCRIPTION" default:"3"`

	// Token-Lebensdauer in Stunden; 0 bedeutet unbegrenzt.
	TokenTTLHours int    `envconfig:"TOKEN_TTL_HOURS" default:"0"`
	CronSchedule  string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// Medien-Speicher: S3, wenn konfiguriert, sonst lokales Verzeichnis.
	MediaRoot     string `envconfig:"MEDIA_ROOT" default:"media"`
	MediaS3Key    string `envconfig:"MEDIA_S3_KEY"`
	MediaS3Secret string `envconfig:"MEDIA_S3_SECRET"`
	MediaS3URL    string `envconfig:"MEDIA_S3_URL"`
	MediaS3Region string `envconfig:"MEDIA_S3_REGION"`
	MediaS3Bucket string `envconfig:"MEDIA_S3_BUCKET"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}

// MediaS3Enabled meldet, ob alle S3-Parameter für den Medien-Upload gesetzt sind.
func (c *Config) MediaS3Enabled() bool {
	return c.MediaS3Key != "" && c.MediaS3Secret != "" && c.MediaS3URL != "" &&
		c.MediaS3Region != "" && c.MediaS3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
