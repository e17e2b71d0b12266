package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/celiboy93/supaimage/internal/config"
	"github.com/celiboy93/supaimage/internal/domain"
)

type mockObjectStorage struct {
	uploadFunc    func(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	deleteFunc    func(ctx context.Context, key string) error
	publicURLFunc func(key string) string
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, key, body, size, contentType)
	}
	return nil
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, key)
	}
	return nil
}

func (m *mockObjectStorage) PublicURL(key string) string {
	if m.publicURLFunc != nil {
		return m.publicURLFunc(key)
	}
	return "https://cdn.test/" + key
}

type mockHistoryStore struct {
	recordFunc func(ctx context.Context, publicURL, fileName string) (*domain.HistoryRecord, error)
	listFunc   func(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	deleteFunc func(ctx context.Context, id string) error
}

func (m *mockHistoryStore) RecordUpload(ctx context.Context, publicURL, fileName string) (*domain.HistoryRecord, error) {
	if m.recordFunc != nil {
		return m.recordFunc(ctx, publicURL, fileName)
	}
	return &domain.HistoryRecord{ID: "hist-id", PublicURL: publicURL, FileName: fileName}, nil
}

func (m *mockHistoryStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockHistoryStore) DeleteHistory(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func newTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			MaxUploadSize:     10 * 1024 * 1024,
			CompressThreshold: 71680,
			CompressMaxWidth:  1000,
			CompressQuality:   60,
			HistoryLimit:      50,
		},
		Proxy: config.ProxyConfig{
			MaxBytes: 1024 * 1024,
			Timeout:  5 * time.Second,
		},
	}
}

func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

var objectNameRe = regexp.MustCompile(`^img_\d+_[0-9a-z]{6}\.[a-z0-9]{1,4}$`)

func TestUpload_SmallFilePassthrough(t *testing.T) {
	var uploadedKey, uploadedType string
	var uploadedBytes []byte

	storage := &mockObjectStorage{
		uploadFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
			uploadedKey = key
			uploadedType = contentType
			data, _ := io.ReadAll(body)
			uploadedBytes = data
			return nil
		},
	}
	svc := NewUploadService(storage, &mockHistoryStore{}, newTestConfig(), zap.NewNop())

	src := []byte("tiny file body, well under the threshold")
	img, err := svc.Upload(context.Background(), src, "photo.png", "image/png")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !bytes.Equal(uploadedBytes, src) {
		t.Error("Expected bytes to pass through unchanged below the threshold")
	}
	if uploadedType != "image/png" {
		t.Errorf("Expected content type image/png, got %s", uploadedType)
	}
	if !objectNameRe.MatchString(uploadedKey) {
		t.Errorf("Unexpected object name format: %s", uploadedKey)
	}
	if img.PublicURL != "https://cdn.test/"+uploadedKey {
		t.Errorf("Unexpected public URL: %s", img.PublicURL)
	}
}

func TestUpload_LargeFileNormalized(t *testing.T) {
	var uploadedKey, uploadedType string
	var uploadedBytes []byte

	storage := &mockObjectStorage{
		uploadFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
			uploadedKey = key
			uploadedType = contentType
			data, _ := io.ReadAll(body)
			uploadedBytes = data
			return nil
		},
	}
	cfg := newTestConfig()
	cfg.App.CompressThreshold = 10
	cfg.App.CompressMaxWidth = 100
	svc := NewUploadService(storage, &mockHistoryStore{}, cfg, zap.NewNop())

	src := createTestJPEG(t, 200, 120)
	if _, err := svc.Upload(context.Background(), src, "big.png", "image/png"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if bytes.Equal(uploadedBytes, src) {
		t.Error("Expected bytes above the threshold to be re-encoded")
	}
	if uploadedType != "image/jpeg" {
		t.Errorf("Expected content type image/jpeg after re-encode, got %s", uploadedType)
	}

	resultCfg, _, err := image.DecodeConfig(bytes.NewReader(uploadedBytes))
	if err != nil {
		t.Fatalf("Failed to decode stored bytes: %v", err)
	}
	if resultCfg.Width != 100 || resultCfg.Height != 60 {
		t.Errorf("Expected 100x60 output, got %dx%d", resultCfg.Width, resultCfg.Height)
	}

	if uploadedKey[len(uploadedKey)-4:] != ".jpg" {
		t.Errorf("Expected .jpg object name after re-encode, got %s", uploadedKey)
	}
}

func TestUpload_UndecodableLargeFileStoredAsIs(t *testing.T) {
	var uploadedBytes []byte
	storage := &mockObjectStorage{
		uploadFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
			uploadedBytes, _ = io.ReadAll(body)
			return nil
		},
	}
	cfg := newTestConfig()
	cfg.App.CompressThreshold = 4
	svc := NewUploadService(storage, &mockHistoryStore{}, cfg, zap.NewNop())

	src := []byte("definitely not decodable as an image")
	if _, err := svc.Upload(context.Background(), src, "weird.bin", "application/octet-stream"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !bytes.Equal(uploadedBytes, src) {
		t.Error("Expected undecodable body to be stored unchanged")
	}
}

func TestUpload_HistoryFailureCleansUp(t *testing.T) {
	deleted := ""
	storage := &mockObjectStorage{
		deleteFunc: func(ctx context.Context, key string) error {
			deleted = key
			return nil
		},
	}
	history := &mockHistoryStore{
		recordFunc: func(ctx context.Context, publicURL, fileName string) (*domain.HistoryRecord, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewUploadService(storage, history, newTestConfig(), zap.NewNop())

	_, err := svc.Upload(context.Background(), []byte("body"), "a.jpg", "image/jpeg")
	if err == nil {
		t.Fatal("Expected an error when the history insert fails")
	}

	if deleted == "" {
		t.Error("Expected the stored object to be deleted after the history failure")
	}
}

func TestUpload_StorageError(t *testing.T) {
	storage := &mockObjectStorage{
		uploadFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
			return errors.New("bucket unreachable")
		},
	}
	recorded := false
	history := &mockHistoryStore{
		recordFunc: func(ctx context.Context, publicURL, fileName string) (*domain.HistoryRecord, error) {
			recorded = true
			return nil, nil
		},
	}
	svc := NewUploadService(storage, history, newTestConfig(), zap.NewNop())

	if _, err := svc.Upload(context.Background(), []byte("body"), "a.jpg", "image/jpeg"); err == nil {
		t.Fatal("Expected an error when the bucket write fails")
	}
	if recorded {
		t.Error("Expected no history record after a failed upload")
	}
}

func TestGenerateObjectName_Format(t *testing.T) {
	tests := []struct {
		filename string
		wantExt  string
	}{
		{"photo.jpg", ".jpg"},
		{"photo.PNG", ".png"},
		{"archive.webp", ".webp"},
		{"noextension", ".jpg"},
		{"фото.тест", ".jpg"},
		{"weird.extension", ".jpg"},
	}

	for _, tt := range tests {
		name, err := generateObjectName(tt.filename)
		if err != nil {
			t.Fatalf("generateObjectName(%q): %v", tt.filename, err)
		}
		if !objectNameRe.MatchString(name) {
			t.Errorf("generateObjectName(%q) = %q, bad format", tt.filename, name)
		}
		if got := name[len(name)-len(tt.wantExt):]; got != tt.wantExt {
			t.Errorf("generateObjectName(%q) = %q, want extension %s", tt.filename, name, tt.wantExt)
		}
	}
}

func TestGenerateObjectName_Unique(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		name, err := generateObjectName("a.jpg")
		if err != nil {
			t.Fatalf("generateObjectName: %v", err)
		}
		if seen[name] {
			t.Fatalf("Duplicate object name after %d calls: %s", i, name)
		}
		seen[name] = true
	}
}

func TestFetchRemote_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png bytes"))
	}))
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"127.0.0.1"}
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	data, contentType, err := svc.FetchRemote(context.Background(), srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(data) != "png bytes" {
		t.Errorf("Unexpected body: %q", data)
	}
	if contentType != "image/png" {
		t.Errorf("Expected image/png, got %s", contentType)
	}
}

func TestFetchRemote_EmptyAllowListDisablesProxy(t *testing.T) {
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, newTestConfig(), zap.NewNop())

	_, _, err := svc.FetchRemote(context.Background(), "https://example.com/a.png")
	if !errors.Is(err, domain.ErrHostNotAllowed) {
		t.Fatalf("Expected ErrHostNotAllowed, got %v", err)
	}
}

func TestFetchRemote_DisallowedHost(t *testing.T) {
	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"cdn.example.com"}
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	_, _, err := svc.FetchRemote(context.Background(), "https://evil.example.com/a.png")
	if !errors.Is(err, domain.ErrHostNotAllowed) {
		t.Fatalf("Expected ErrHostNotAllowed, got %v", err)
	}
}

func TestFetchRemote_RedirectToDisallowedHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://internal.example.com/secret.png", http.StatusFound)
	}))
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"127.0.0.1"}
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	_, _, err := svc.FetchRemote(context.Background(), srv.URL+"/img.png")
	if !errors.Is(err, domain.ErrHostNotAllowed) {
		t.Fatalf("Expected ErrHostNotAllowed, got %v", err)
	}
}

func TestFetchRemote_RedirectWithinAllowList(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/img.png", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png bytes"))
	})

	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"127.0.0.1"}
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	data, _, err := svc.FetchRemote(context.Background(), srv.URL+"/moved.png")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(data) != "png bytes" {
		t.Errorf("Unexpected body: %q", data)
	}
}

func TestFetchRemote_InvalidURL(t *testing.T) {
	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"example.com"}
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	for _, raw := range []string{"not a url at all", "ftp://example.com/a.png", ""} {
		if _, _, err := svc.FetchRemote(context.Background(), raw); !errors.Is(err, domain.ErrInvalidURL) {
			t.Errorf("FetchRemote(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestFetchRemote_NonImageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"127.0.0.1"}
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	if _, _, err := svc.FetchRemote(context.Background(), srv.URL); !errors.Is(err, domain.ErrNotAnImage) {
		t.Fatalf("Expected ErrNotAnImage, got %v", err)
	}
}

func TestFetchRemote_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Proxy.AllowedHosts = []string{"127.0.0.1"}
	cfg.Proxy.MaxBytes = 16
	svc := NewUploadService(&mockObjectStorage{}, &mockHistoryStore{}, cfg, zap.NewNop())

	if _, _, err := svc.FetchRemote(context.Background(), srv.URL); !errors.Is(err, domain.ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
}

func TestHistory_LimitClamped(t *testing.T) {
	var gotLimit int
	history := &mockHistoryStore{
		listFunc: func(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := NewUploadService(&mockObjectStorage{}, history, newTestConfig(), zap.NewNop())

	tests := []struct {
		requested int
		want      int
	}{
		{0, 50},
		{-1, 50},
		{1000, 50},
		{10, 10},
	}

	for _, tt := range tests {
		if _, err := svc.History(context.Background(), tt.requested); err != nil {
			t.Fatalf("History(%d): %v", tt.requested, err)
		}
		if gotLimit != tt.want {
			t.Errorf("History(%d): expected limit %d, got %d", tt.requested, tt.want, gotLimit)
		}
	}
}
