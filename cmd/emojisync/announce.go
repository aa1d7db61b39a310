package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvr-ai/emojisync/config"
	"github.com/nvr-ai/emojisync/status"
	"github.com/spf13/cobra"
)

func announceCmd(a *app) *cobra.Command {
	var (
		twitchUser  string
		title       string
		description string
		duration    int
		thumbnail   string
	)

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Set the Bluesky live status for a Twitch stream",
		Long: `Logs in to Bluesky with BSKY_USER_NAME and BSKY_PASSWORD, uploads the
optional thumbnail and writes an app.bsky.actor.status record pointing at the
Twitch channel. Without credentials the update is skipped with a warning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("twitch-user") {
				a.cfg.Status.TwitchUser = twitchUser
			}
			if flags.Changed("title") {
				a.cfg.Status.Title = title
			}
			if flags.Changed("description") {
				a.cfg.Status.Description = description
			}
			if flags.Changed("duration") {
				a.cfg.Status.DurationMinutes = duration
			}
			if flags.Changed("thumbnail") {
				a.cfg.Status.Thumbnail = thumbnail
			}

			ref, err := announce(cmd.Context(), a.cfg.Status, a.logger)
			if err != nil {
				return err
			}
			if ref == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "⚠️  Live status not updated (no credentials)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Live status set: %s\n", ref.URI)
			return nil
		},
	}

	cmd.Flags().StringVar(&twitchUser, "twitch-user", "", "Twitch username to link")
	cmd.Flags().StringVar(&title, "title", "", "Stream title")
	cmd.Flags().StringVar(&description, "description", "", "Stream description")
	cmd.Flags().IntVar(&duration, "duration", 0, "Live status duration in minutes")
	cmd.Flags().StringVar(&thumbnail, "thumbnail", "", "Thumbnail image path")
	return cmd
}

func announce(ctx context.Context, cfg config.StatusConfig, logger *slog.Logger) (*status.RecordRef, error) {
	client := status.New(cfg.Host, status.WithLogger(logger))
	return status.Announce(ctx, client, status.CredentialsFromEnv(), announcement(cfg))
}
