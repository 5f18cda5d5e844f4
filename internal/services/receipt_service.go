package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"trackitall/internal/cache"
	"trackitall/internal/core"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

const receiptURLKeyPrefix = "receipt_"

// ReceiptConfig bounds the signed URLs handed out for receipts.
type ReceiptConfig struct {
	URLValidity time.Duration
	CacheTTL    time.Duration // must stay below URLValidity
}

// Receipt identifies an uploaded receipt blob.
type Receipt struct {
	ID       string `json:"id"`
	BlobName string `json:"blobName"`
}

// ReceiptService stores receipt files and caches their signed read URLs.
type ReceiptService struct {
	blobs    BlobStore
	urls     cache.Cache[string]
	validity time.Duration
	cacheTTL time.Duration
	group    singleflight.Group
	metrics  *metrics.Collector
	logger   *applog.Logger

	// invalidations counts URL invalidations; a sign that raced one does
	// not cache its result.
	invalidations atomic.Uint64
}

func NewReceiptService(blobs BlobStore, urls cache.Cache[string], cfg ReceiptConfig, m *metrics.Collector, logger *applog.Logger) *ReceiptService {
	if cfg.URLValidity <= 0 {
		cfg.URLValidity = time.Hour
	}
	if cfg.CacheTTL <= 0 || cfg.CacheTTL >= cfg.URLValidity {
		// a cached URL must never outlive its signature
		cfg.CacheTTL = cfg.URLValidity - cfg.URLValidity/12
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ReceiptService{
		blobs:    blobs,
		urls:     urls,
		validity: cfg.URLValidity,
		cacheTTL: cfg.CacheTTL,
		metrics:  m,
		logger:   logger.WithComponent(applog.ComponentReceipt),
	}
}

func urlCacheKey(blobName string) string {
	return receiptURLKeyPrefix + blobName
}

func contentTypeFor(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return mime.TypeByExtension(strings.ToLower(ext))
}

// UploadReceipt stores r under a freshly generated blob name.
func (s *ReceiptService) UploadReceipt(ctx context.Context, r io.Reader, ext string) (Receipt, error) {
	id := core.NewID()
	name := core.ReceiptBlobName(id, ext)

	if err := s.blobs.Upload(ctx, name, r, contentTypeFor(ext)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to upload receipt", applog.FieldBlobName, name, applog.FieldError, err)
		return Receipt{}, blobErr(err)
	}
	s.logger.InfoContext(ctx, "Receipt uploaded", applog.FieldBlobName, name)
	return Receipt{ID: id, BlobName: name}, nil
}

// UpdateReceipt replaces existing with a new upload. Failing to delete the
// old blob is logged and does not block the upload.
func (s *ReceiptService) UpdateReceipt(ctx context.Context, existing string, r io.Reader, ext string) (Receipt, error) {
	if existing != "" {
		if _, err := s.blobs.DeleteIfExists(ctx, existing); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete previous receipt, leaving it orphaned",
				applog.FieldBlobName, existing, applog.FieldError, err)
		}
		s.invalidate(existing)
	}
	return s.UploadReceipt(ctx, r, ext)
}

func (s *ReceiptService) invalidate(blobName string) {
	key := urlCacheKey(blobName)
	s.invalidations.Add(1)
	s.group.Forget(key)
	s.urls.Delete(key)
}

// DeleteReceipt removes the blob if present and drops its cached URL.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, blobName string) error {
	existed, err := s.blobs.DeleteIfExists(ctx, blobName)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete receipt", applog.FieldBlobName, blobName, applog.FieldError, err)
		return blobErr(err)
	}
	s.invalidate(blobName)
	s.logger.InfoContext(ctx, "Receipt deleted", applog.FieldBlobName, blobName, "existed", existed)
	return nil
}

// GetReceiptURL returns a signed read URL, reusing a cached one while it is
// still inside its cache TTL. Concurrent misses for one blob sign once.
func (s *ReceiptService) GetReceiptURL(ctx context.Context, blobName string) (string, error) {
	key := urlCacheKey(blobName)
	if url, ok := s.urls.Get(key); ok {
		s.metrics.ReceiptURLCache(true)
		s.logger.DebugContext(ctx, "Receipt URL served from cache", applog.FieldBlobName, blobName, applog.FieldCacheHit, true)
		return url, nil
	}
	s.metrics.ReceiptURLCache(false)

	// Waiters share one sign, so it must not depend on the first caller's
	// cancellation.
	signCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		generation := s.invalidations.Load()
		exists, err := s.blobs.Exists(signCtx, blobName)
		if err != nil {
			return "", blobErr(err)
		}
		if !exists {
			return "", core.ErrNotFound
		}
		url, err := s.blobs.SignedReadURL(signCtx, blobName, s.validity)
		if err != nil {
			return "", blobErr(err)
		}
		if s.invalidations.Load() == generation {
			s.urls.Set(key, url, s.cacheTTL)
		}
		return url, nil
	})
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.ErrorContext(ctx, "Failed to sign receipt URL", applog.FieldBlobName, blobName, applog.FieldError, err)
		}
		return "", fmt.Errorf("receipt %s: %w", blobName, err)
	}
	return v.(string), nil
}
