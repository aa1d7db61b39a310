package status

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
)

// ErrInvalidUsername is returned for a Twitch username outside [a-zA-Z0-9_]{4,25}.
var ErrInvalidUsername = errors.New("status: username does not meet the constraints")

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{4,25}$`)

// ValidUsername reports whether s is a valid Twitch username.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// Announcement is a live stream to announce.
type Announcement struct {
	TwitchUser      string
	Title           string
	Description     string
	DurationMinutes int
	// ThumbPath is an optional thumbnail image.
	ThumbPath string
}

// Announce logs in, uploads the thumbnail, writes the live status and logs out.
// Missing credentials skip the update with a warning and return a nil ref.
func Announce(ctx context.Context, c *Client, creds Credentials, a Announcement) (*RecordRef, error) {
	if !ValidUsername(a.TwitchUser) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, a.TwitchUser)
	}
	if !creds.Complete() {
		c.logger.Warn("bluesky username and password are not set, continuing without updating status")
		return nil, nil
	}

	if err := c.Login(ctx, creds); err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Close(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("bluesky logout failed", slog.String("error", err.Error()))
		}
	}()

	live := LiveStatus{
		TwitchUser:      a.TwitchUser,
		Title:           a.Title,
		Description:     a.Description,
		DurationMinutes: a.DurationMinutes,
	}
	if a.ThumbPath != "" {
		blob, err := uploadFile(ctx, c, a.ThumbPath)
		if err != nil {
			return nil, err
		}
		live.Thumb = blob
	}
	return c.UpdateLiveStatus(ctx, live)
}

func uploadFile(ctx context.Context, c *Client, path string) (*Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	if mime := http.DetectContentType(data); !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("thumbnail %s is %s, not an image", path, mime)
	}
	blob, err := c.UploadBlob(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload thumbnail: %w", err)
	}
	return blob, nil
}
