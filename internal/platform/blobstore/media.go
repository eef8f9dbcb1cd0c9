package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// MediaConfig configures media downloads.
type MediaConfig struct {
	// BaseURL prefixes the id of a stored blob to form the observation value.
	BaseURL string
	Timeout time.Duration
	// MaxSize caps a download in bytes. It defaults to MaxFileSize.
	MaxSize int64
}

// MediaResolver downloads media referenced by an import cell, stores it and
// returns the stored media URL.
type MediaResolver struct {
	store   BlobStore
	http    *resty.Client
	baseURL string
	maxSize int64
	logger  zerolog.Logger
}

// NewMediaResolver creates a resolver storing downloads in store. Failed
// downloads are retried on 429 and 5xx responses.
func NewMediaResolver(store BlobStore, cfg MediaConfig, logger zerolog.Logger) *MediaResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize <= 0 || cfg.MaxSize > MaxFileSize {
		cfg.MaxSize = MaxFileSize
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetResponseBodyLimit(int(cfg.MaxSize)).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504))
		})
	return &MediaResolver{
		store:   store,
		http:    client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxSize: cfg.MaxSize,
		logger:  logger.With().Str("component", "media").Logger(),
	}
}

// ResolveForUpload returns oldValue unchanged when the cell still holds the
// stored URL, and otherwise downloads token and stores a fresh copy.
func (m *MediaResolver) ResolveForUpload(ctx context.Context, token string, oldValue any) (any, error) {
	token = strings.TrimSpace(token)
	if old, ok := oldValue.(string); ok && old != "" && old == token {
		return old, nil
	}
	u, err := url.Parse(token)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("Invalid media url '%s'", token)
	}

	resp, err := m.http.R().SetContext(ctx).Get(token)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("Unable to fetch %s: larger than %d bytes", token, m.maxSize)
	}
	if err != nil {
		return nil, fmt.Errorf("Unable to fetch %s: %v", token, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Unable to fetch %s: status %d", token, resp.StatusCode())
	}

	meta := BlobMetadata{
		FileName:    fileName(u),
		ContentType: contentType(resp),
		SourceURL:   token,
	}
	stored, err := m.store.Upload(ctx, meta, bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("Unable to store %s: %v", token, err)
	}
	m.logger.Debug().Str("source", token).Str("blob", stored.ID).Int64("size", stored.Size).Msg("media stored")
	return m.baseURL + "/media/" + stored.ID, nil
}

func fileName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "media"
	}
	return name
}

func contentType(resp *resty.Response) string {
	ct := resp.Header().Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return "application/octet-stream"
}
