package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"foodgram/config"
	"foodgram/storage"
)

// ErrInvalidImage wird bei einem unbrauchbaren Base64-Daten-URI zurückgegeben.
var ErrInvalidImage = errors.New("invalid base64 image")

// MediaStore speichert hochgeladene Bilder (Avatare, Rezeptbilder).
// Ziel ist S3, wenn konfiguriert, sonst ein lokales Medienverzeichnis,
// das der Server unter /media/ ausliefert.
type MediaStore struct {
	Config   *config.Config
	S3Client *awss3.Client
	Logger   *zap.Logger
}

// NewMediaStore erstellt den MediaStore und legt bei lokalem Betrieb
// das Medienverzeichnis an.
func NewMediaStore(cfg *config.Config, logger *zap.Logger) (*MediaStore, error) {
	m := &MediaStore{Config: cfg, Logger: logger}
	if cfg.MediaS3Enabled() {
		client, err := storage.NewS3Client(cfg)
		if err != nil {
			return nil, err
		}
		m.S3Client = client
		logger.Info("Media storage backed by S3", zap.String("bucket", cfg.MediaS3Bucket))
		return m, nil
	}
	if err := os.MkdirAll(cfg.MediaRoot, 0o755); err != nil {
		return nil, err
	}
	logger.Info("Media storage backed by local directory", zap.String("root", cfg.MediaRoot))
	return m, nil
}

// DecodeDataURI zerlegt einen "data:image/...;base64,..."-URI in Rohdaten
// und Dateiendung.
func DecodeDataURI(dataURI string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURI, "data:image") {
		return nil, "", ErrInvalidImage
	}
	meta, payload, found := strings.Cut(dataURI, ";base64,")
	if !found || payload == "" {
		return nil, "", ErrInvalidImage
	}
	ext := strings.TrimPrefix(meta, "data:image/")
	if ext == "" || strings.ContainsAny(ext, "/\\.") {
		return nil, "", ErrInvalidImage
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrInvalidImage
	}
	return data, ext, nil
}

// SaveDataURI dekodiert den Daten-URI und legt die Datei unter
// <subdir>/<uuid>.<ext> ab. Zurück kommt die öffentliche URL.
func (m *MediaStore) SaveDataURI(dataURI, subdir string) (string, error) {
	data, ext, err := DecodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s.%s", subdir, uuid.NewString(), ext)

	if m.S3Client != nil {
		link, err := storage.UploadFile(m.S3Client, m.Config.MediaS3Bucket, key, data, m.Config)
		if err != nil {
			return "", err
		}
		return link, nil
	}

	path := filepath.Join(m.Config.MediaRoot, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return "/media/" + key, nil
}

// Remove löscht eine lokal gespeicherte Mediendatei. S3-Objekte bleiben
// stehen; dort regelt eine Bucket-Policy das Aufräumen.
func (m *MediaStore) Remove(url string) {
	rel, found := strings.CutPrefix(url, "/media/")
	if !found || m.S3Client != nil {
		return
	}
	path := filepath.Join(m.Config.MediaRoot, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.Logger.Warn("Failed to remove media file", zap.String("path", path), zap.Error(err))
	}
}
