// Package cover computes BlurHash placeholders for album covers.
package cover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// maxCoverSize limits download size to prevent memory exhaustion.
	maxCoverSize = 5 * 1024 * 1024

	defaultTimeout = 5 * time.Second

	// BlurHash is a low-resolution placeholder; a 64px thumbnail hashes the same.
	blurHashSize = 64
)

// ErrEmptyURL is returned when there is no cover to fetch.
var ErrEmptyURL = errors.New("cover: empty URL")

// Options configures a Hasher.
type Options struct {
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
}

// Hasher downloads covers and encodes them as BlurHash strings.
type Hasher struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	logger     *slog.Logger
}

// NewHasher creates a Hasher. Zero options take defaults.
func NewHasher(opts Options, logger *slog.Logger) *Hasher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = maxCoverSize
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hasher{
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		maxBytes:   opts.MaxBytes,
		logger:     logger,
	}
}

// BlurHash fetches the image at url and returns its 4x3 BlurHash.
func (h *Hasher) BlurHash(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", ErrEmptyURL
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}
	if int64(len(data)) > h.maxBytes {
		return "", fmt.Errorf("cover exceeds %d bytes", h.maxBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	hash, err := Encode(img)
	if err != nil {
		return "", err
	}

	h.logger.Debug("computed cover blurhash",
		"url", url,
		"format", format,
		"size", len(data),
	)
	return hash, nil
}

// Encode returns the BlurHash of img using 4x3 components.
func Encode(img image.Image) (string, error) {
	hash, err := blurhash.Encode(4, 3, thumbnail(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// thumbnail scales img to fit within blurHashSize, keeping aspect ratio.
func thumbnail(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()

	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	var dstWidth, dstHeight int
	if srcWidth > srcHeight {
		dstWidth = blurHashSize
		dstHeight = max(srcHeight*blurHashSize/srcWidth, 1)
	} else {
		dstHeight = blurHashSize
		dstWidth = max(srcWidth*blurHashSize/srcHeight, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
