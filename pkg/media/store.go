package media

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evocrm/internal/constants"
	"evocrm/internal/errors"
	"evocrm/internal/models"
	"evocrm/internal/security"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AttachmentSaver persists attachment metadata rows.
type AttachmentSaver interface {
	SaveAttachment(ctx context.Context, att *models.Attachment) (int64, error)
}

// Store writes media payloads to the cache directory and records them as
// attachment rows. Filenames derive from the content hash, so storing the
// same payload twice reuses the same file.
type Store struct {
	cacheDir      string
	publicBaseURL string
	limits        models.MediaSizeLimits
	saver         AttachmentSaver
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewStore creates a media store rooted at cacheDir, creating the directory
// if needed.
func NewStore(cfg models.MediaConfig, saver AttachmentSaver, logger *logrus.Logger) (*Store, error) {
	if cfg.CacheDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "media cache directory is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create media cache directory")
	}

	return &Store{
		cacheDir:      cfg.CacheDir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		limits:        cfg.MaxSizeMB,
		saver:         saver,
		httpClient: &http.Client{
			Timeout: time.Duration(constants.DefaultMediaDownloadSec) * time.Second,
		},
		logger: logger,
	}, nil
}

// StoreBase64 decodes a base64 payload, writes it under a content-hash
// filename and saves an attachment row. The returned id references that row.
func (s *Store) StoreBase64(ctx context.Context, payload, mimeType string) (int64, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeMediaDecode, "failed to decode base64 media payload")
	}
	if len(data) == 0 {
		return 0, errors.New(errors.ErrCodeMediaDecode, "media payload is empty")
	}

	if err := s.checkSize(mimeType, int64(len(data))); err != nil {
		return 0, err
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + constants.ExtensionForMimeType(mimeType)

	path, err := s.writeFile(name, data)
	if err != nil {
		return 0, err
	}

	return s.saveRow(ctx, path, name, mimeType, int64(len(data)))
}

// Download fetches a remote file (an avatar URL from the gateway) and stores
// it like StoreBase64 does. The MIME type comes from the response headers.
func (s *Store) Download(ctx context.Context, fileURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to build media download request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, errors.WrapRetryable(err, errors.ErrCodeMediaDownload, "media download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.New(errors.ErrCodeMediaDownload,
			fmt.Sprintf("media download returned status %d", resp.StatusCode))
	}

	maxBytes := s.maxBytesFor(resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return 0, errors.WrapRetryable(err, errors.ErrCodeMediaDownload, "failed to read media body")
	}
	if int64(len(data)) > maxBytes {
		return 0, errors.New(errors.ErrCodeMediaDownload,
			fmt.Sprintf("media exceeds size limit of %d bytes", maxBytes))
	}
	if len(data) == 0 {
		return 0, errors.New(errors.ErrCodeMediaDownload, "media download returned empty body")
	}

	mimeType := resp.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	if mimeType == "" {
		mimeType = constants.DefaultMimeType
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + constants.ExtensionForMimeType(mimeType)

	path, err := s.writeFile(name, data)
	if err != nil {
		return 0, err
	}

	return s.saveRow(ctx, path, name, mimeType, int64(len(data)))
}

func (s *Store) writeFile(name string, data []byte) (string, error) {
	if err := security.ValidateFilename(name); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "unsafe media filename")
	}

	path := filepath.Join(s.cacheDir, name)
	if _, err := os.Stat(path); err == nil {
		// Same content already cached, reuse the file.
		return path, nil
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to write media file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to finalize media file")
	}
	return path, nil
}

func (s *Store) saveRow(ctx context.Context, path, name, mimeType string, size int64) (int64, error) {
	att := &models.Attachment{
		FilePath:  path,
		FileURL:   s.publicURL(name),
		MimeType:  mimeType,
		SizeBytes: size,
	}

	id, err := s.saver.SaveAttachment(ctx, att)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"attachment_id": id,
		"mime_type":     mimeType,
		"size_bytes":    size,
	}).Debug("Stored media attachment")

	return id, nil
}

func (s *Store) publicURL(name string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/" + name
}

func (s *Store) checkSize(mimeType string, size int64) error {
	maxBytes := s.maxBytesFor(mimeType)
	if size > maxBytes {
		return errors.New(errors.ErrCodeMediaDecode,
			fmt.Sprintf("%s media of %d bytes exceeds limit of %d bytes", mimeType, size, maxBytes))
	}
	return nil
}

func (s *Store) maxBytesFor(mimeType string) int64 {
	var mb int
	switch constants.MediaClassForMimeType(mimeType) {
	case "image":
		mb = s.limits.Image
	case "video":
		mb = s.limits.Video
	case "audio":
		mb = s.limits.Audio
	default:
		mb = s.limits.Document
	}
	if mb <= 0 {
		mb = constants.DefaultMaxDocumentSizeMB
	}
	return int64(mb) * 1024 * 1024
}

// CleanupOldFiles removes cached media older than maxAge. Attachment rows
// are cleaned separately by the retention job.
func (s *Store) CleanupOldFiles(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to read media cache directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.cacheDir, entry.Name())); err != nil {
				s.logger.WithError(err).WithField("file", entry.Name()).Warn("Failed to remove cached media file")
			}
		}
	}
	return nil
}
