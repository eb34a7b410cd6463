package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/newsflow/internal/model"
)

// indexCmd runs the indexing stage
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run the indexing stage",
	Long: `Consume analysis outbox events, embed each result and write it to the search
index. Results that are not newer than the indexed document are skipped. Failed
results go to the indexing DLQ and are replayed up to kafka.indexing.max_retries times.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a := newApp(cfg)
		stage, store, err := a.buildIndexingStage()
		if err != nil {
			return err
		}
		if err := store.EnsureIndex(ctx, cfg.OpenSearch.EmbeddingDimension); err != nil {
			return err
		}
		return runStage[model.AnalysisResult](ctx, a, stage, cfg.Kafka.Indexing)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
