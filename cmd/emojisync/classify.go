package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/nvr-ai/emojisync/classifier"
	"github.com/nvr-ai/emojisync/emotion"
	"github.com/nvr-ai/emojisync/util"
	"github.com/spf13/cobra"
)

func classifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image|dir>...",
		Short: "Print emotion scores for still images",
		Long: `Classifies each image and prints the resolved label with all scores.
Directories are expanded to the .jpg, .jpeg, .png and .bmp files inside them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			glyphs, err := a.cfg.GlyphTable()
			if err != nil {
				return err
			}
			paths, err := util.ExpandImagePaths(args)
			if err != nil {
				return err
			}

			clf, err := classifier.New(classifierConfig(a.cfg.Classifier), a.logger)
			if err != nil {
				return err
			}
			defer clf.Close()

			for _, path := range paths {
				scores, err := clf.ClassifyFile(cmd.Context(), path)
				if errors.Is(err, emotion.ErrNoFace) {
					scores = emotion.NoFace()
				} else if err != nil {
					return err
				}
				printScores(cmd.OutOrStdout(), path, scores, glyphs)
			}
			return nil
		},
	}
}

func printScores(w io.Writer, name string, scores emotion.Scores, glyphs emotion.Glyphs) {
	label := emotion.Resolve(scores)
	fmt.Fprintf(w, "%s: %s %s\n", name, glyphs.Lookup(label), label)
	if scores.IsNoFace() {
		fmt.Fprintln(w, "  no face detected")
		return
	}
	for _, e := range emotion.All() {
		fmt.Fprintf(w, "  %-10s %.4f\n", e, scores[e])
	}
}
