package cover

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: 80, B: uint8(y * 255 / h), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHasher_BlurHash(t *testing.T) {
	data := testPNG(t, 300, 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	h := NewHasher(Options{}, nil)
	hash, err := h.BlurHash(context.Background(), server.URL+"/cover.png")
	require.NoError(t, err)
	// 4x3 components encode to 28 characters.
	assert.Len(t, hash, 28)

	again, err := h.BlurHash(context.Background(), server.URL+"/cover.png")
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestHasher_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/garbage":
			_, _ = w.Write([]byte("not an image"))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer server.Close()

	h := NewHasher(Options{Timeout: 50 * time.Millisecond}, nil)

	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"not found", server.URL + "/missing"},
		{"undecodable", server.URL + "/garbage"},
		{"timeout", server.URL + "/slow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.BlurHash(context.Background(), tt.url)
			assert.Error(t, err)
			assert.Empty(t, hash)
		})
	}
}

func TestHasher_RejectsOversizedCover(t *testing.T) {
	data := testPNG(t, 100, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer server.Close()

	h := NewHasher(Options{MaxBytes: 64}, nil)
	_, err := h.BlurHash(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestThumbnail_KeepsAspectRatio(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{640, 640, 64, 64},
		{640, 320, 64, 32},
		{100, 1000, 6, 64},
		{32, 16, 32, 16},
		{5000, 10, 64, 1},
	}
	for _, tt := range tests {
		got := thumbnail(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))).Bounds()
		assert.Equal(t, tt.wantW, got.Dx(), "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, got.Dy(), "%dx%d", tt.w, tt.h)
	}
}
