package cli

import (
	"fmt"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/ingest/fetch"
	"github.com/civicpulse/poll-indexer/internal/ingest/ratelimit"
	"github.com/civicpulse/poll-indexer/internal/ingest/runner"
	"github.com/civicpulse/poll-indexer/internal/ingest/source"
	"github.com/civicpulse/poll-indexer/internal/ingest/source/civicapi"
	"github.com/civicpulse/poll-indexer/internal/ingest/source/votehub"
	"github.com/civicpulse/poll-indexer/internal/store/postgres"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass over every configured source",
	Long: `Fetches the latest polls from each external source, normalizes them into
the canonical schema and upserts them. Sources run independently: a failure
in one does not stop the others, but the command exits non-zero if any
source's run failed.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer db.Close()

	adapters := []source.Adapter{
		votehub.New(
			cfg.Sources.VoteHubBaseURL,
			cfg.Sources.IngestDays,
			fetch.NewClient(model.SourceVoteHub.String(), logger),
			ratelimit.NewLimiter(cfg.Sources.MaxPerMinute, model.SourceVoteHub.String()),
			logger,
		),
		civicapi.New(
			cfg.Sources.CivicAPILatestURL,
			fetch.NewClient(model.SourceCivicAPI.String(), logger),
			ratelimit.NewLimiter(cfg.Sources.MaxPerMinute, model.SourceCivicAPI.String()),
			logger,
		),
	}

	r := runner.New(postgres.NewPollRepo(db), postgres.NewRunRepo(db), logger)
	return r.RunAll(cmd.Context(), adapters)
}
