package services

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"foodgram/config"
)

func testDataURI(payload []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
}

func TestDecodeDataURI(t *testing.T) {
	payload := []byte("not really a png")
	data, ext, err := DecodeDataURI(testDataURI(payload))
	if err != nil {
		t.Fatalf("DecodeDataURI failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("decoded payload does not match input")
	}
	if ext != "png" {
		t.Errorf("ext = %q, want png", ext)
	}

	bad := []string{
		"",
		"plain text",
		"data:text/plain;base64,aGFsbG8=",
		"data:image/png;base64,",
		"data:image/png;base64,%%%not-base64%%%",
		"data:image/../etc;base64,aGFsbG8=",
	}
	for _, uri := range bad {
		if _, _, err := DecodeDataURI(uri); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("DecodeDataURI(%q) err = %v, want ErrInvalidImage", uri, err)
		}
	}
}

func TestSaveDataURILocal(t *testing.T) {
	cfg := &config.Config{MediaRoot: t.TempDir()}
	store, err := NewMediaStore(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMediaStore failed: %v", err)
	}

	payload := []byte("avatar bytes")
	url, err := store.SaveDataURI(testDataURI(payload), "avatars")
	if err != nil {
		t.Fatalf("SaveDataURI failed: %v", err)
	}
	if !strings.HasPrefix(url, "/media/avatars/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("unexpected media URL %q", url)
	}

	rel := strings.TrimPrefix(url, "/media/")
	path := filepath.Join(cfg.MediaRoot, filepath.FromSlash(rel))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("stored file content does not match payload")
	}

	store.Remove(url)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Remove left the media file in place")
	}
	// Remove für unbekannte Pfade ist ein No-Op.
	store.Remove("/media/avatars/gone.png")
	store.Remove("https://bucket.example/media.png")
}

func TestSaveDataURIRejectsInvalid(t *testing.T) {
	cfg := &config.Config{MediaRoot: t.TempDir()}
	store, err := NewMediaStore(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMediaStore failed: %v", err)
	}
	if _, err := store.SaveDataURI("nonsense", "avatars"); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("SaveDataURI err = %v, want ErrInvalidImage", err)
	}
}
