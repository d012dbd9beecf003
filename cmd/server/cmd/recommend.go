package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planzy/server/internal/embedding"
)

var recommendLimit int

var recommendCmd = &cobra.Command{
	Use:   "recommend <query>",
	Short: "Rank events by semantic similarity to a free-text query",
	Long: `Embeds the query text, runs a nearest-neighbour search over the event
vectors and prints the matches. Past events and events without a
resolved venue are filtered out.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, repo, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		provider, err := buildEmbeddingClient(cfg)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		similarity := embedding.NewSimilarity(repo.Similarity(), repo.Events(), provider, logger)
		matches, err := similarity.FindSimilar(ctx, query, recommendLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(matches) == 0 {
			fmt.Fprintln(out, "No matching events.")
			return nil
		}
		for i, ev := range matches {
			venue := ev.Location
			if ev.Venue != nil {
				venue = ev.Venue.NameGoogle
				if venue == "" {
					venue = ev.Venue.NameScraped
				}
				if ev.Venue.City != "" {
					venue += ", " + ev.Venue.City
				}
			}
			fmt.Fprintf(out, "%2d. %s\n    %s | %s\n    %s\n",
				i+1, ev.Name, ev.StartDate.Format("2006-01-02 15:04"), venue, ev.URL)
		}
		return nil
	},
}

func init() {
	recommendCmd.Flags().IntVar(&recommendLimit, "limit", embedding.DefaultSearchLimit, "maximum events to return")
}
