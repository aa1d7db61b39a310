// Package status announces a live stream on Bluesky by writing an
// app.bsky.actor.status record through the AT protocol XRPC API.
//
// A Client is an explicit handle: New, Login, any number of calls, Close.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

// DefaultHost is the PDS used when none is configured.
const DefaultHost = "https://bsky.social"

const (
	statusCollection = "app.bsky.actor.status"
	statusLive       = "app.bsky.actor.status#live"
	statusRecordKey  = "self"
	embedExternal    = "app.bsky.embed.external"
)

var (
	// ErrNotLoggedIn is returned by calls that need a session.
	ErrNotLoggedIn = errors.New("status: not logged in")
	// ErrMissingCredentials is returned by Login without identifier or password.
	ErrMissingCredentials = errors.New("status: BSKY_USER_NAME or BSKY_PASSWORD is not set")
)

// Credentials log a client in.
type Credentials struct {
	Identifier string
	Password   string
}

// CredentialsFromEnv reads BSKY_USER_NAME and BSKY_PASSWORD.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Identifier: os.Getenv("BSKY_USER_NAME"),
		Password:   os.Getenv("BSKY_PASSWORD"),
	}
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Identifier) != "" && c.Password != ""
}

// Session is an authenticated AT protocol session.
type Session struct {
	DID        string
	Handle     string
	AccessJwt  string
	RefreshJwt string
}

// Blob references uploaded content.
type Blob = lexutil.LexBlob

// RecordRef identifies a written record.
type RecordRef struct {
	URI string
	CID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.xrpc.Client = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client talks to one PDS.
type Client struct {
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	xrpc *xrpc.Client
}

// New builds a client for host. An empty host selects DefaultHost.
func New(host string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		logger: slog.Default(),
		now:    time.Now,
		xrpc: &xrpc.Client{
			Client: &http.Client{Timeout: 30 * time.Second},
			Host:   strings.TrimRight(host, "/"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login creates a session.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if !creds.Complete() {
		return ErrMissingCredentials
	}

	out, err := comatproto.ServerCreateSession(ctx, c.unauthenticated(), &comatproto.ServerCreateSession_Input{
		Identifier: creds.Identifier,
		Password:   creds.Password,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	c.xrpc.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	c.mu.Unlock()
	c.logger.Info("logged in to bluesky", slog.String("handle", out.Handle), slog.String("did", out.Did))
	return nil
}

// Session returns the current session, nil before Login.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	auth := c.xrpc.Auth
	if auth == nil {
		return nil
	}
	return &Session{DID: auth.Did, Handle: auth.Handle, AccessJwt: auth.AccessJwt, RefreshJwt: auth.RefreshJwt}
}

// UploadBlob uploads r. The PDS detects the MIME type.
func (c *Client) UploadBlob(ctx context.Context, r io.Reader) (*Blob, error) {
	xc, ok := c.authenticated()
	if !ok {
		return nil, ErrNotLoggedIn
	}
	out, err := comatproto.RepoUploadBlob(ctx, xc, r)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	return out.Blob, nil
}

// LiveStatus describes a live stream.
type LiveStatus struct {
	TwitchUser      string
	Title           string
	Description     string
	DurationMinutes int
	Thumb           *Blob
}

// UpdateLiveStatus writes the live status record of the logged-in account.
func (c *Client) UpdateLiveStatus(ctx context.Context, live LiveStatus) (*RecordRef, error) {
	if !ValidUsername(live.TwitchUser) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, live.TwitchUser)
	}
	xc, ok := c.authenticated()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	record := &appbsky.ActorStatus{
		CreatedAt: c.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Status:    statusLive,
		Embed: &appbsky.ActorStatus_Embed{
			EmbedExternal: &appbsky.EmbedExternal{
				LexiconTypeID: embedExternal,
				External: &appbsky.EmbedExternal_External{
					Uri:         "https://www.twitch.tv/" + live.TwitchUser,
					Title:       live.Title,
					Description: live.Description,
					Thumb:       live.Thumb,
				},
			},
		},
	}
	if live.DurationMinutes > 0 {
		d := int64(live.DurationMinutes)
		record.DurationMinutes = &d
	}

	out, err := comatproto.RepoPutRecord(ctx, xc, &comatproto.RepoPutRecord_Input{
		Repo:       xc.Auth.Did,
		Collection: statusCollection,
		Rkey:       statusRecordKey,
		Record:     &lexutil.LexiconTypeDecoder{Val: record},
	})
	if err != nil {
		return nil, fmt.Errorf("put status record: %w", err)
	}

	c.logger.Info("live status updated", slog.String("uri", out.Uri), slog.String("twitch_user", live.TwitchUser))
	return &RecordRef{URI: out.Uri, CID: out.Cid}, nil
}

// Close ends the session. Calling it without a session is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	auth := c.xrpc.Auth
	c.xrpc.Auth = nil
	c.mu.Unlock()
	if auth == nil {
		return nil
	}

	// deleteSession is authorised with the refresh token.
	xc := c.unauthenticated()
	xc.Auth = &xrpc.AuthInfo{AccessJwt: auth.RefreshJwt, RefreshJwt: auth.RefreshJwt, Handle: auth.Handle, Did: auth.Did}
	if err := comatproto.ServerDeleteSession(ctx, xc); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// unauthenticated returns a copy of the XRPC client without credentials.
func (c *Client) unauthenticated() *xrpc.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &xrpc.Client{Client: c.xrpc.Client, Host: c.xrpc.Host}
}

// authenticated returns a snapshot of the logged-in XRPC client.
func (c *Client) authenticated() (*xrpc.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xrpc.Auth == nil {
		return nil, false
	}
	auth := *c.xrpc.Auth
	return &xrpc.Client{Client: c.xrpc.Client, Host: c.xrpc.Host, Auth: &auth}, true
}
