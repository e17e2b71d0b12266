package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celiboy93/supaimage/internal/config"
	"github.com/celiboy93/supaimage/internal/domain"
	"github.com/celiboy93/supaimage/internal/repository"
	"github.com/celiboy93/supaimage/pkg/utils"
)

type UploadService interface {
	Upload(ctx context.Context, fileBytes []byte, filename, contentType string) (*domain.UploadedImage, error)
	FetchRemote(ctx context.Context, rawURL string) ([]byte, string, error)
	History(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	DeleteHistory(ctx context.Context, id string) error
}

type uploadService struct {
	storage    repository.ObjectStorage
	history    repository.HistoryStore
	cfg        *config.Config
	log        *zap.Logger
	proc       *utils.ImageProcessor
	httpClient *http.Client
}

func NewUploadService(storage repository.ObjectStorage, history repository.HistoryStore, cfg *config.Config, log *zap.Logger) UploadService {
	s := &uploadService{
		storage: storage,
		history: history,
		cfg:     cfg,
		log:     log,
		proc:    utils.NewImageProcessor(log),
	}
	s.httpClient = &http.Client{
		Timeout: cfg.Proxy.Timeout,
		// Redirects must stay on the allow-list too, otherwise an allowed
		// host could bounce the fetch to an internal one.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return domain.ErrInvalidURL
			}
			if !s.hostAllowed(req.URL.Hostname()) {
				return domain.ErrHostNotAllowed
			}
			return nil
		},
	}
	return s
}

// Upload runs the full pipeline: size-gated normalization, name generation,
// bucket write, history record. The history insert is compensated: if it
// fails the stored object is deleted so no unrecorded URL survives.
func (s *uploadService) Upload(ctx context.Context, fileBytes []byte, filename, contentType string) (*domain.UploadedImage, error) {
	// Bodies at or below the threshold pass through byte-identical.
	if int64(len(fileBytes)) > s.cfg.App.CompressThreshold {
		normalized, err := s.normalize(fileBytes)
		if err != nil {
			s.log.Warn("Image normalization failed, storing original bytes",
				zap.String("filename", filename),
				zap.Error(err))
		} else {
			fileBytes = normalized
			contentType = "image/jpeg"
			filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
		}
	}

	name, err := generateObjectName(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate object name: %w", err)
	}

	if err := s.storage.Upload(ctx, name, bytes.NewReader(fileBytes), int64(len(fileBytes)), contentType); err != nil {
		return nil, fmt.Errorf("failed to store object: %w", err)
	}

	publicURL := s.storage.PublicURL(name)

	if _, err := s.history.RecordUpload(ctx, publicURL, name); err != nil {
		if cleanupErr := s.storage.Delete(ctx, name); cleanupErr != nil {
			s.log.Error("Failed to clean up object after history error",
				zap.String("name", name),
				zap.Error(cleanupErr))
		}
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	image := &domain.UploadedImage{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(fileBytes)),
		PublicURL:   publicURL,
		UploadedAt:  time.Now(),
	}

	s.log.Info("Image uploaded",
		zap.String("name", name),
		zap.String("url", publicURL),
		zap.Int64("size", image.Size))

	return image, nil
}

func (s *uploadService) normalize(fileBytes []byte) ([]byte, error) {
	if s.cfg.App.CompressMaxWidth > 0 {
		return s.proc.Normalize(fileBytes, s.cfg.App.CompressMaxWidth, s.cfg.App.CompressQuality)
	}
	return s.proc.Recompress(fileBytes, s.cfg.App.CompressQuality)
}

// FetchRemote pulls image bytes from a remote URL on behalf of the browser.
// The host must be on the configured allow-list; an empty list disables the
// relay entirely. Responses are size-capped and must carry an image type.
func (s *uploadService) FetchRemote(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", domain.ErrInvalidURL
	}

	if !s.hostAllowed(u.Hostname()) {
		return nil, "", domain.ErrHostNotAllowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build remote request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("remote fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("remote fetch failed: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", domain.ErrNotAnImage
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.Proxy.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read remote body: %w", err)
	}
	if int64(len(data)) > s.cfg.Proxy.MaxBytes {
		return nil, "", domain.ErrTooLarge
	}

	return data, contentType, nil
}

func (s *uploadService) hostAllowed(host string) bool {
	for _, allowed := range s.cfg.Proxy.AllowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

func (s *uploadService) History(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 || limit > s.cfg.App.HistoryLimit {
		limit = s.cfg.App.HistoryLimit
	}
	return s.history.ListHistory(ctx, limit)
}

func (s *uploadService) DeleteHistory(ctx context.Context, id string) error {
	return s.history.DeleteHistory(ctx, id)
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// generateObjectName builds img_<unixMillis>_<6 random base36 chars><ext>.
// The extension comes from the original filename when it is a short ASCII
// suffix, otherwise .jpg; original names never reach the bucket, which
// sidesteps non-ASCII filenames entirely.
func generateObjectName(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !validExtension(ext) {
		ext = ".jpg"
	}

	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i := range suffix {
		suffix[i] = base36Alphabet[int(suffix[i])%len(base36Alphabet)]
	}

	return fmt.Sprintf("img_%d_%s%s", time.Now().UnixMilli(), suffix, ext), nil
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 5 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
