package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestImageCacheLoadsAsynchronously(t *testing.T) {
	cache := NewImageCache(nil)
	loaded := make(chan string, 1)
	cache.OnLoaded(func(ref string) { loaded <- ref })

	ref := solidDataURL(t, 4, 4)
	_, ok := cache.Lookup(ref)
	assert.False(t, ok, "first lookup only starts the load")

	select {
	case got := <-loaded:
		assert.Equal(t, ref, got)
	case <-time.After(5 * time.Second):
		t.Fatal("image never loaded")
	}

	buf, ok := cache.Lookup(ref)
	require.True(t, ok)
	assert.NotNil(t, buf)
}

func TestImageCacheNeverRetriesFailures(t *testing.T) {
	var calls atomic.Int32
	cache := NewImageCache(FetcherFunc(func(ctx context.Context, ref string) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("gone")
	}))

	_, err := cache.Load(context.Background(), "blob://images/missing")
	require.Error(t, err)
	assert.True(t, cache.Failed("blob://images/missing"))

	for i := 0; i < 3; i++ {
		_, ok := cache.Lookup("blob://images/missing")
		assert.False(t, ok)
	}
	_, err = cache.Load(context.Background(), "blob://images/missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchemeFetcher(t *testing.T) {
	fetch := SchemeFetcher{
		"blob": FetcherFunc(func(ctx context.Context, ref string) ([]byte, error) {
			return []byte(ref), nil
		}),
	}

	data, err := fetch.Get(context.Background(), "blob://bucket/key")
	require.NoError(t, err)
	assert.Equal(t, "blob://bucket/key", string(data))

	data, err = fetch.Get(context.Background(), "data:text/plain;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	_, err = fetch.Get(context.Background(), "ftp://host/file.png")
	assert.ErrorIs(t, err, ErrUnsupportedRef)

	_, err = fetch.Get(context.Background(), "data:text/plain,hi")
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}
