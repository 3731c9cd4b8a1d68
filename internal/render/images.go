package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const maxImageBytes = 20 << 20

var ErrUnsupportedRef = errors.New("unsupported image reference")

// Fetcher returns the encoded bytes behind an image reference.
type Fetcher interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

func (f FetcherFunc) Get(ctx context.Context, ref string) ([]byte, error) { return f(ctx, ref) }

// SchemeFetcher dispatches on the reference scheme. data: URLs are always
// handled in-process.
type SchemeFetcher map[string]Fetcher

func (m SchemeFetcher) Get(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		return DecodeDataURL(ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRef, err)
	}
	f, ok := m[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedRef, u.Scheme)
	}
	return f.Get(ctx, ref)
}

// DecodeDataURL returns the payload of a data: URL. Only base64 payloads are
// accepted.
func DecodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data url is not base64", ErrUnsupportedRef)
	}
	return base64.StdEncoding.DecodeString(payload)
}

// HTTPFetcher loads http(s) references.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Get(ctx context.Context, ref string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

type loadState int

const (
	stateLoading loadState = iota
	stateReady
	stateFailed
)

type cacheEntry struct {
	state loadState
	img   *gg.ImageBuf
	err   error
	done  chan struct{}
}

// ImageCache decodes image references in the background. A reference is
// fetched at most once: failures are remembered and never retried.
type ImageCache struct {
	fetch    Fetcher
	timeout  time.Duration
	log      zerolog.Logger
	onLoaded func(ref string)

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type CacheOption func(*ImageCache)

func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *ImageCache) { c.timeout = d }
}

func WithCacheLogger(log zerolog.Logger) CacheOption {
	return func(c *ImageCache) { c.log = log }
}

func NewImageCache(fetch Fetcher, opts ...CacheOption) *ImageCache {
	if fetch == nil {
		fetch = SchemeFetcher{}
	}
	c := &ImageCache{
		fetch:   fetch,
		timeout: 30 * time.Second,
		log:     zerolog.Nop(),
		entries: make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnLoaded registers the callback run after a background load finishes,
// successfully or not. It runs on the loader goroutine.
func (c *ImageCache) OnLoaded(fn func(ref string)) {
	c.mu.Lock()
	c.onLoaded = fn
	c.mu.Unlock()
}

// Lookup returns the decoded image when it is ready. Otherwise it starts a
// load if none was attempted yet and reports false.
func (c *ImageCache) Lookup(ref string) (*gg.ImageBuf, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[ref]
	if !ok {
		c.startLocked(ref)
		return nil, false
	}
	if entry.state != stateReady {
		return nil, false
	}
	return entry.img, true
}

// Load waits for ref to be decoded.
func (c *ImageCache) Load(ctx context.Context, ref string) (*gg.ImageBuf, error) {
	c.mu.Lock()
	entry, ok := c.entries[ref]
	if !ok {
		entry = c.startLocked(ref)
	}
	c.mu.Unlock()

	select {
	case <-entry.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if entry.state == stateFailed {
		return nil, entry.err
	}
	return entry.img, nil
}

// Failed reports whether ref is known to be unloadable.
func (c *ImageCache) Failed(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[ref]
	return ok && entry.state == stateFailed
}

func (c *ImageCache) startLocked(ref string) *cacheEntry {
	entry := &cacheEntry{state: stateLoading, done: make(chan struct{})}
	c.entries[ref] = entry
	go c.load(ref, entry)
	return entry
}

func (c *ImageCache) load(ref string, entry *cacheEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	img, err := c.decode(ctx, ref)

	c.mu.Lock()
	if err != nil {
		entry.state, entry.err = stateFailed, err
	} else {
		entry.state, entry.img = stateReady, img
	}
	close(entry.done)
	onLoaded := c.onLoaded
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("ref", shortRef(ref)).Msg("image load failed")
	}
	if onLoaded != nil {
		onLoaded(ref)
	}
}

func (c *ImageCache) decode(ctx context.Context, ref string) (*gg.ImageBuf, error) {
	data, err := c.fetch.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return gg.ImageBufFromImage(src), nil
}

func shortRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
