// Package media fetches and caches avatar images referenced by profile
// metadata, so the frontend loads pictures through one origin instead of
// dozens of relay-supplied hosts.
package media

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/internal/httpclient"
)

const (
	// MaxImageBytes caps one avatar download. Anything larger is a
	// misbehaving or hostile host.
	MaxImageBytes = 2 << 20

	fetchTimeout = 10 * time.Second
)

// Image is one cached avatar: raw bytes plus the upstream content type.
type Image struct {
	Data        []byte
	ContentType string
}

// Avatars is the image fetch-and-cache service. URLs come out of
// relay-supplied profile events, so every fetch goes through the SSRF-safe
// client.
type Avatars struct {
	client *httpclient.SaferClient
	images *cache.Cache[Image]
	logger *zap.SugaredLogger
}

// New creates the avatar service over the given image cache.
func New(images *cache.Cache[Image], logger *zap.SugaredLogger) *Avatars {
	return &Avatars{
		client: httpclient.NewSaferClient(fetchTimeout),
		images: images,
		logger: logger.Named("media"),
	}
}

// Get returns the avatar at url, from cache when present. Rejected URLs,
// oversized bodies and non-image responses all come back as errors; callers
// degrade to the frontend's placeholder.
func (a *Avatars) Get(ctx context.Context, url string) (Image, error) {
	if img, ok := a.images.Get(url); ok {
		return img, nil
	}

	if _, err := a.client.ValidateURL(url); err != nil {
		return Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, errors.Wrap(err, "invalid avatar URL")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return Image{}, errors.Wrapf(err, "failed to fetch avatar %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, errors.Newf("avatar host returned %d for %s", resp.StatusCode, url)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, errors.Newf("avatar at %s is %q, not an image", url, contentType)
	}

	// Read one byte past the cap to distinguish at-cap from over-cap.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return Image{}, errors.Wrapf(err, "failed to read avatar %s", url)
	}
	if len(data) > MaxImageBytes {
		return Image{}, errors.Newf("avatar at %s exceeds %d bytes", url, MaxImageBytes)
	}

	img := Image{Data: data, ContentType: contentType}
	a.images.Set(url, img)
	a.logger.Debugw("Avatar cached", "url", url, "bytes", len(data))
	return img, nil
}

// SetClient swaps the HTTP client. Tests use it with httpclient.WrapClient
// to reach httptest servers on loopback.
func (a *Avatars) SetClient(client *httpclient.SaferClient) {
	a.client = client
}
