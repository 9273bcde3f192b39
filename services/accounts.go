package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"foodgram/models"
)

// usernameRegex erlaubt Buchstaben (inkl. Unicode), Ziffern und @ . + - _
var usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}.@+_-]+$`)

// Fehler der Account-Schicht, von den Handlern auf HTTP-Status abgebildet.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// AccountService bündelt Registrierung, Authentifizierung und Token-Verwaltung.
type AccountService struct {
	DB     *gorm.DB
	Logger *zap.Logger

	// TokenTTL von 0 bedeutet: Tokens laufen nie ab.
	TokenTTL time.Duration
}

// NewAccountService erstellt eine neue Instanz des AccountService.
func NewAccountService(db *gorm.DB, logger *zap.Logger, tokenTTL time.Duration) *AccountService {
	return &AccountService{DB: db, Logger: logger, TokenTTL: tokenTTL}
}

// ValidateUsername prüft Länge und Zeichensatz eines Benutzernamens.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username must not be empty")
	}
	if utf8.RuneCountInString(username) > models.UserUsernameMaxLength {
		return fmt.Errorf("username must not exceed %d characters", models.UserUsernameMaxLength)
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username may only contain letters, digits and @ . + - _")
	}
	return nil
}

// HashPassword erzeugt einen Bcrypt-Hash für das Klartext-Passwort.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword vergleicht Klartext-Passwort und gespeicherten Hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register legt ein neues Benutzerkonto an.
func (s *AccountService) Register(email, username, firstName, lastName, password string) (*models.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.DB.Create(user).Error; err != nil {
		return nil, err
	}
	s.Logger.Info("User registered", zap.Uint("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Login prüft E-Mail und Passwort und gibt ein frisches Token zurück.
func (s *AccountService) Login(email, password string) (*models.AuthToken, error) {
	var user models.User
	if err := s.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.IssueToken(user.ID)
}

// IssueToken erzeugt ein neues 40-Zeichen-Hex-Token für den Benutzer.
func (s *AccountService) IssueToken(userID uint) (*models.AuthToken, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	token := &models.AuthToken{
		Key:    hex.EncodeToString(raw),
		UserID: userID,
	}
	if err := s.DB.Create(token).Error; err != nil {
		return nil, err
	}
	return token, nil
}

// Authenticate löst ein Token zum zugehörigen Benutzer auf.
func (s *AccountService) Authenticate(key string) (*models.User, error) {
	if len(key) != 40 {
		return nil, ErrInvalidToken
	}
	var token models.AuthToken
	if err := s.DB.Where("key = ?", key).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if s.TokenTTL > 0 && time.Since(token.CreatedAt) > s.TokenTTL {
		// Abgelaufene Tokens sofort entfernen, nicht erst per Cron.
		s.DB.Delete(&token)
		return nil, ErrInvalidToken
	}
	var user models.User
	if err := s.DB.First(&user, token.UserID).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// RevokeToken löscht das Token (Logout).
func (s *AccountService) RevokeToken(key string) error {
	return s.DB.Where("key = ?", key).Delete(&models.AuthToken{}).Error
}

// PruneExpiredTokens entfernt alle abgelaufenen Tokens und gibt deren Anzahl zurück.
func (s *AccountService) PruneExpiredTokens() (int64, error) {
	if s.TokenTTL <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.TokenTTL)
	res := s.DB.Where("created_at < ?", cutoff).Delete(&models.AuthToken{})
	return res.RowsAffected, res.Error
}

// SetPassword ändert das Passwort, sofern das aktuelle korrekt ist.
func (s *AccountService) SetPassword(user *models.User, current, newPassword string) error {
	if !CheckPassword(user.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.DB.Model(user).Update("password_hash", hash).Error
}

// CreateSuperuser legt einen Administrator an oder aktualisiert dessen Passwort,
// falls die E-Mail-Adresse bereits existiert.
func (s *AccountService) CreateSuperuser(username, email, password string) (*models.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.DB.Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Email:        email,
			Username:     username,
			PasswordHash: hash,
			IsActive:     true,
			IsStaff:      true,
			IsSuperuser:  true,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		s.Logger.Info("Superuser created", zap.String("email", email))
	case err != nil:
		return nil, err
	default:
		updates := map[string]any{
			"password_hash": hash,
			"is_staff":      true,
			"is_superuser":  true,
			"is_active":     true,
		}
		if err := s.DB.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.Logger.Info("Superuser updated", zap.String("email", email))
	}
	return &user, nil
}
