package media

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/internal/httpclient"
)

func newTestAvatars() *Avatars {
	images := cache.New[Image]("images_test", 30*time.Minute, 150)
	a := New(images, zap.NewNop().Sugar())
	a.SetClient(httpclient.WrapClient(&http.Client{Timeout: 5 * time.Second}))
	return a
}

func TestGetFetchesAndCaches(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer ts.Close()

	avatars := newTestAvatars()
	img, err := avatars.Get(context.Background(), ts.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, []byte("png-bytes"), img.Data)

	_, err = avatars.Get(context.Background(), ts.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second request is a cache hit")
}

func TestGetRejectsNonImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>"))
	}))
	defer ts.Close()

	avatars := newTestAvatars()
	_, err := avatars.Get(context.Background(), ts.URL+"/a")
	assert.ErrorContains(t, err, "not an image")
}

func TestGetRejectsOversizedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(bytes.Repeat([]byte("x"), MaxImageBytes+1))
	}))
	defer ts.Close()

	avatars := newTestAvatars()
	_, err := avatars.Get(context.Background(), ts.URL+"/big.jpg")
	assert.ErrorContains(t, err, "exceeds")
}

func TestGetRejectsUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	avatars := newTestAvatars()
	_, err := avatars.Get(context.Background(), ts.URL+"/missing.png")
	assert.ErrorContains(t, err, "404")
}

func TestGetBlocksPrivateTargets(t *testing.T) {
	images := cache.New[Image]("images_test_ssrf", 30*time.Minute, 150)
	avatars := New(images, zap.NewNop().Sugar())

	_, err := avatars.Get(context.Background(), "http://169.254.169.254/latest/meta-data")
	assert.Error(t, err, "metadata endpoint must be unreachable")
}
