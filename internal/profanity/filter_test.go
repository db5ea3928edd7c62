package profanity

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Check(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "clean text", text: "You gave me hope during a hard year", want: []string{}},
		{name: "whole word match", text: "you are a pig", want: []string{"pig"}},
		{name: "case insensitive", text: "What an UGLY day", want: []string{"ugly"}},
		{name: "punctuation boundary", text: "damn, that stage!", want: []string{"damn"}},
		{name: "substring does not match", text: "pigment and hoedown and scrapbook", want: []string{}},
		{name: "multiple in list order", text: "drunk pig", want: []string{"drunk", "pig"}},
		{name: "duplicates reported once", text: "pig pig PIG", want: []string{"pig"}},
		{name: "empty", text: "", want: []string{}},
	}

	f := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.text)
			assert.Equal(t, tt.want, got.Matches)
			assert.Equal(t, len(tt.want) > 0, got.HasMatch)
		})
	}
}

func TestFilter_CheckIsIdempotent(t *testing.T) {
	f := New()
	first := f.Check("such a pig")
	second := f.Check("such a pig")
	assert.Equal(t, first, second)
}

func TestNew_ExtraWords(t *testing.T) {
	f := New("  Grumpy ", "", "pig")
	assert.True(t, f.Contains("so grumpy"))
	assert.Equal(t, len(defaultBlockList)+1, f.Len())
}

func TestWatcher_StaticWithoutPath(t *testing.T) {
	w, err := NewWatcher("", slog.Default())
	require.NoError(t, err)
	defer w.Close()

	w.Start(context.Background())
	assert.Same(t, Default, w.Filter())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# extra words\nbanana\n"), 0o644))

	w, err := NewWatcher(path, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	assert.True(t, w.Check("a banana").HasMatch)
	assert.False(t, w.Check("a kiwi").HasMatch)

	require.NoError(t, os.WriteFile(path, []byte("kiwi\n"), 0o644))

	assert.Eventually(t, func() bool {
		return w.Check("a kiwi").HasMatch
	}, 5*time.Second, 20*time.Millisecond)
	assert.False(t, w.Check("a banana").HasMatch)
}
