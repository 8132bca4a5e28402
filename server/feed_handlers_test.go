package server

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/media"
	"github.com/zapabug/madtrips-sub000/nostr"
)

const testPubKey = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"

func TestHandleProfile(t *testing.T) {
	env := newTestEnv(t)
	env.feed.profile = nostr.ProfileRecord{
		PubKey:  testPubKey,
		Name:    "alice",
		Picture: "https://m.example/a.png",
	}

	resp, body := env.get(t, "/api/profile?id="+testPubKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"alice"`, string(body["name"]))
	assert.Contains(t, string(body["npub"]), "npub1")
}

func TestHandleProfileErrors(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/api/profile")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.feed.err = errors.Wrap(errors.ErrNotFound, "no profile")
	resp, _ = env.get(t, "/api/profile?id="+testPubKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.feed.err = errors.Wrap(errors.ErrInvalidIdentity, "bad id")
	resp, _ = env.get(t, "/api/profile?id=garbage")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleNotes(t *testing.T) {
	env := newTestEnv(t)
	env.feed.notes = []nostr.ContentRecord{
		{ID: "01", PubKey: testPubKey, Kind: nostr.KindTextNote, Content: "off to Madeira"},
	}

	resp, body := env.get(t, "/api/notes?author="+testPubKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body["notes"]), "off to Madeira")

	resp, _ = env.get(t, "/api/notes")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleNotesEmptyList(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/notes?author="+testPubKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body["notes"]))
}

func TestHandleAvatar(t *testing.T) {
	env := newTestEnv(t)
	env.avatars.img = media.Image{Data: []byte("png-bytes"), ContentType: "image/png"}

	resp, err := http.Get(env.ts.URL + "/api/avatar?url=https://m.example/a.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestHandleAvatarFailure(t *testing.T) {
	env := newTestEnv(t)
	env.avatars.err = errors.New("blocked")

	resp, _ := env.get(t, "/api/avatar?url=http://169.254.169.254/x")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = env.get(t, "/api/avatar")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
