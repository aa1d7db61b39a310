package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thumbCID = "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku"

// putRecord is the putRecord body as the PDS sees it.
type putRecord struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Rkey       string `json:"rkey"`
	Record     struct {
		Type            string `json:"$type"`
		Status          string `json:"status"`
		CreatedAt       string `json:"createdAt"`
		DurationMinutes int    `json:"durationMinutes"`
		Embed           struct {
			Type     string `json:"$type"`
			External struct {
				URI   string `json:"uri"`
				Title string `json:"title"`
				Thumb *struct {
					Type string `json:"$type"`
					Ref  struct {
						Link string `json:"$link"`
					} `json:"ref"`
					MimeType string `json:"mimeType"`
				} `json:"thumb"`
			} `json:"external"`
		} `json:"embed"`
	} `json:"record"`
}

// fakePDS records XRPC calls and answers like a personal data server.
type fakePDS struct {
	mu       sync.Mutex
	calls    []string
	auth     map[string]string
	put      putRecord
	uploaded []byte
	password string
}

func newFakePDS(t *testing.T) (*fakePDS, *httptest.Server) {
	t.Helper()
	f := &fakePDS{auth: map[string]string{}, password: "app-password"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != f.password {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"did": "did:plc:streamer", "handle": in["identifier"], "accessJwt": "access", "refreshJwt": "refresh",
		})
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.uploadBlob", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploaded = data
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"`+thumbCID+`"},"mimeType":"image/png","size":8}}`)
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.putRecord", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&f.put)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"uri":"at://did:plc:streamer/app.bsky.actor.status/self","cid":"bafyrei"}`)
	})
	mux.HandleFunc("POST /xrpc/com.atproto.server.deleteSession", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePDS) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	method := filepath.Base(r.URL.Path)
	f.calls = append(f.calls, method)
	f.auth[method] = r.Header.Get("Authorization")
}

func (f *fakePDS) Auth(method string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[method]
}

func (f *fakePDS) Upload() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploaded
}

func (f *fakePDS) Put() putRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put
}

func (f *fakePDS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var creds = Credentials{Identifier: "streamer.bsky.social", Password: "app-password"}

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
}

func TestValidUsername(t *testing.T) {
	tests := map[string]bool{
		"abcd":                       true,
		"user_name_01":               true,
		"abc":                        false,
		"has space":                  false,
		"dash-name":                  false,
		"exactly25characters_aaaaa":  true,
		"exactly26characters_aaaaaa": false,
		"":                           false,
	}
	for name, want := range tests {
		assert.Equal(t, want, ValidUsername(name), name)
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("BSKY_USER_NAME", "streamer.bsky.social")
	t.Setenv("BSKY_PASSWORD", "secret")
	assert.True(t, CredentialsFromEnv().Complete())

	t.Setenv("BSKY_PASSWORD", "")
	assert.False(t, CredentialsFromEnv().Complete())
}

func TestLoginAndClose(t *testing.T) {
	pds, srv := newFakePDS(t)
	c := New(srv.URL)

	require.NoError(t, c.Login(context.Background(), creds))
	s := c.Session()
	require.NotNil(t, s)
	assert.Equal(t, "did:plc:streamer", s.DID)

	require.NoError(t, c.Close(context.Background()))
	assert.Nil(t, c.Session())
	require.NoError(t, c.Close(context.Background()), "second close is a no-op")

	assert.Equal(t, []string{"com.atproto.server.createSession", "com.atproto.server.deleteSession"}, pds.Calls())
	assert.Equal(t, "Bearer refresh", pds.Auth("com.atproto.server.deleteSession"))
}

func TestLoginFailure(t *testing.T) {
	_, srv := newFakePDS(t)
	c := New(srv.URL)

	err := c.Login(context.Background(), Credentials{Identifier: "streamer", Password: "wrong"})
	var xrpcErr *xrpc.Error
	require.ErrorAs(t, err, &xrpcErr)
	assert.Equal(t, http.StatusUnauthorized, xrpcErr.StatusCode)
	assert.Nil(t, c.Session())

	assert.ErrorIs(t, c.Login(context.Background(), Credentials{}), ErrMissingCredentials)
}

func TestCallsNeedSession(t *testing.T) {
	c := New("http://127.0.0.1:1")

	_, err := c.UploadBlob(context.Background(), strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = c.UpdateLiveStatus(context.Background(), LiveStatus{TwitchUser: "streamer"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestAnnounceWritesStatusRecord(t *testing.T) {
	pds, srv := newFakePDS(t)
	thumb := filepath.Join(t.TempDir(), "thumb.png")
	png := []byte("\x89PNG\r\n\x1a\n")
	require.NoError(t, os.WriteFile(thumb, png, 0o600))

	c := New(srv.URL, WithClock(fixedClock))
	ref, err := Announce(context.Background(), c, creds, Announcement{
		TwitchUser:      "emoji_streamer",
		Title:           "Live now",
		Description:     "Reacting live",
		DurationMinutes: 90,
		ThumbPath:       thumb,
	})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "at://did:plc:streamer/app.bsky.actor.status/self", ref.URI)

	assert.Equal(t, []string{
		"com.atproto.server.createSession",
		"com.atproto.repo.uploadBlob",
		"com.atproto.repo.putRecord",
		"com.atproto.server.deleteSession",
	}, pds.Calls())
	assert.Equal(t, "Bearer access", pds.Auth("com.atproto.repo.putRecord"))
	assert.Equal(t, png, pds.Upload())

	put := pds.Put()
	assert.Equal(t, "did:plc:streamer", put.Repo)
	assert.Equal(t, "app.bsky.actor.status", put.Collection)
	assert.Equal(t, "self", put.Rkey)
	assert.Equal(t, "app.bsky.actor.status", put.Record.Type)
	assert.Equal(t, "app.bsky.actor.status#live", put.Record.Status)
	assert.Equal(t, "2025-03-14T15:09:26.535Z", put.Record.CreatedAt)
	assert.Equal(t, 90, put.Record.DurationMinutes)
	assert.Equal(t, "app.bsky.embed.external", put.Record.Embed.Type)
	assert.Equal(t, "https://www.twitch.tv/emoji_streamer", put.Record.Embed.External.URI)
	assert.Equal(t, "Live now", put.Record.Embed.External.Title)
	require.NotNil(t, put.Record.Embed.External.Thumb)
	assert.Equal(t, "blob", put.Record.Embed.External.Thumb.Type)
	assert.Equal(t, thumbCID, put.Record.Embed.External.Thumb.Ref.Link)
	assert.Equal(t, "image/png", put.Record.Embed.External.Thumb.MimeType)
}

func TestAnnounceSkipsWithoutCredentials(t *testing.T) {
	pds, srv := newFakePDS(t)

	ref, err := Announce(context.Background(), New(srv.URL), Credentials{Identifier: "streamer"}, Announcement{TwitchUser: "emoji_streamer"})
	require.NoError(t, err)
	assert.Nil(t, ref)
	assert.Empty(t, pds.Calls())
}

func TestAnnounceRejectsInvalidUsername(t *testing.T) {
	pds, srv := newFakePDS(t)

	_, err := Announce(context.Background(), New(srv.URL), creds, Announcement{TwitchUser: "no"})
	assert.ErrorIs(t, err, ErrInvalidUsername)
	assert.Empty(t, pds.Calls())
}

func TestAnnounceLogsOutAfterFailure(t *testing.T) {
	pds, srv := newFakePDS(t)

	_, err := Announce(context.Background(), New(srv.URL), creds, Announcement{
		TwitchUser: "emoji_streamer",
		ThumbPath:  filepath.Join(t.TempDir(), "missing.png"),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"com.atproto.server.createSession", "com.atproto.server.deleteSession"}, pds.Calls())
}

func TestAnnounceRejectsNonImageThumbnail(t *testing.T) {
	pds, srv := newFakePDS(t)
	thumb := filepath.Join(t.TempDir(), "thumb.txt")
	require.NoError(t, os.WriteFile(thumb, []byte("not an image"), 0o600))

	_, err := Announce(context.Background(), New(srv.URL), creds, Announcement{TwitchUser: "emoji_streamer", ThumbPath: thumb})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
	assert.Equal(t, []string{"com.atproto.server.createSession", "com.atproto.server.deleteSession"}, pds.Calls())
}
