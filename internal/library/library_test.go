// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kschult4/Halloween-2025/internal/config"
	"github.com/kschult4/Halloween-2025/internal/decode"
	"github.com/kschult4/Halloween-2025/internal/frame"
)

// writeClips populates <root>/<category> with empty .mp4 files.
func writeClips(t *testing.T, root, category string, names ...string) {
	t.Helper()
	dir := filepath.Join(root, category)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".mp4"), nil, 0o600))
	}
}

func okProber(ctx context.Context, path string) (decode.Metadata, error) {
	return decode.Metadata{Width: 640, Height: 360, FPS: 30}, nil
}

func newTestLibrary(t *testing.T, strategy config.FallbackStrategy, opts ...Option) (*Library, string) {
	t.Helper()
	root := t.TempDir()
	writeClips(t, root, "active", "active_01", "active_02", "zombie")
	writeClips(t, root, "ambient", "ambient_fog", "ambient_moon")

	lib := New(strategy, append([]Option{WithProber(okProber)}, opts...)...)
	_, err := lib.Reload(context.Background(), root)
	require.NoError(t, err)
	return lib, root
}

func TestResolveExact(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackFirst)

	a, err := lib.Resolve("zombie", CategoryActive)
	require.NoError(t, err)
	assert.Equal(t, "zombie", a.ID)
	assert.Equal(t, CategoryActive, a.Category)
}

func TestResolveCategoryPrefixAlias(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackFirst)

	// "01" aliases to "active_01", the sender's historical shorthand.
	a, err := lib.Resolve("01", CategoryActive)
	require.NoError(t, err)
	assert.Equal(t, "active_01", a.ID)

	a, err = lib.Resolve("fog", CategoryAmbient)
	require.NoError(t, err)
	assert.Equal(t, "ambient_fog", a.ID)
}

func TestResolveUnknown(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackFirst)

	_, err := lib.Resolve("witch", CategoryActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveNeverCrossesCategory(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackFirst)

	_, err := lib.Resolve("ambient_fog", CategoryActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackFirstIsLexical(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackFirst)

	for i := 0; i < 3; i++ {
		a, err := lib.Fallback(CategoryActive)
		require.NoError(t, err)
		assert.Equal(t, "active_01", a.ID)
	}
}

func TestFallbackRoundRobinRotates(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackRoundRobin)

	var got []string
	for i := 0; i < 4; i++ {
		a, err := lib.Fallback(CategoryActive)
		require.NoError(t, err)
		got = append(got, a.ID)
	}
	assert.Equal(t, []string{"active_01", "active_02", "zombie", "active_01"}, got)
}

func TestFallbackRandomUsesInjectedSource(t *testing.T) {
	lib, _ := newTestLibrary(t, config.FallbackRandom, WithRand(func(n int) int { return n - 1 }))

	a, err := lib.Fallback(CategoryActive)
	require.NoError(t, err)
	assert.Equal(t, "zombie", a.ID)
}

func TestFallbackEmptyCategory(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "ambient", "ambient_fog")

	lib := New(config.FallbackFirst, WithProber(okProber))
	_, err := lib.Reload(context.Background(), root)
	require.NoError(t, err)

	_, err = lib.Fallback(CategoryActive)
	assert.ErrorIs(t, err, ErrEmptyCategory)
}

func TestReloadNoAmbientKeepsPreviousSnapshot(t *testing.T) {
	lib, root := newTestLibrary(t, config.FallbackFirst)
	require.Equal(t, 2, lib.Count(CategoryAmbient))

	// Wipe the ambient folder and reload.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "ambient")))
	_, err := lib.Reload(context.Background(), root)
	assert.ErrorIs(t, err, ErrNoAmbient)

	// The previous generation still serves.
	assert.Equal(t, 2, lib.Count(CategoryAmbient))
	a, err := lib.Fallback(CategoryAmbient)
	require.NoError(t, err)
	assert.Equal(t, "ambient_fog", a.ID)
}

func TestReloadRejectsNonDecodableFiles(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "active", "good", "corrupt")
	writeClips(t, root, "ambient", "ambient_ok")

	prober := func(ctx context.Context, path string) (decode.Metadata, error) {
		if filepath.Base(path) == "corrupt.mp4" {
			return decode.Metadata{}, errors.New("moov atom not found")
		}
		return decode.Metadata{Width: 640, Height: 360, FPS: 30}, nil
	}

	lib := New(config.FallbackFirst, WithProber(prober))
	counts, err := lib.Reload(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, counts[CategoryActive])
	_, err = lib.Resolve("corrupt", CategoryActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReloadIgnoresForeignExtensions(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "ambient", "ambient_ok")
	dir := filepath.Join(root, "active")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumbs.db"), []byte("x"), 0o600))

	lib := New(config.FallbackFirst, WithProber(okProber))
	counts, err := lib.Reload(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[CategoryActive])
}

func TestMissingCategoryFolderIsEmpty(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "ambient", "ambient_ok")

	lib := New(config.FallbackFirst, WithProber(okProber))
	counts, err := lib.Reload(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[CategoryActive])
	assert.Equal(t, 1, counts[CategoryAmbient])
}

func TestReloadCachesPosterFrames(t *testing.T) {
	grabbed := make(map[string]int)
	grab := func(ctx context.Context, path string, md decode.Metadata) (*frame.Frame, error) {
		if strings.Contains(path, "ambient_moon") {
			return nil, errors.New("decoder refused")
		}
		grabbed[filepath.Base(path)]++
		return frame.New(md.Width, md.Height), nil
	}
	lib, _ := newTestLibrary(t, config.FallbackFirst, WithFrameGrabber(grab))

	a, err := lib.Resolve("ambient_fog", CategoryAmbient)
	require.NoError(t, err)
	require.NotNil(t, a.FirstFrame)
	assert.Equal(t, 640, a.FirstFrame.Width)
	assert.Equal(t, 1, grabbed["ambient_fog.mp4"])

	// A failed grab rejects only the poster, not the asset.
	a, err = lib.Resolve("ambient_moon", CategoryAmbient)
	require.NoError(t, err)
	assert.Nil(t, a.FirstFrame)
}
