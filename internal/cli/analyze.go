package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/newsflow/internal/model"
)

// analyzeCmd runs the analysis stage
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the analysis stage",
	Long: `Consume article create events, analyze each article (refine, incident types,
urgency, keywords, topic, locations) and store the result together with an outbox
row for the indexing stage. Failed articles go to the analysis DLQ and are replayed
up to kafka.analysis.max_retries times.

Example:
  newsflow analyze
  NEWSFLOW_LLM_PROVIDER=ollama NEWSFLOW_LLM_MODEL=llama3.1 newsflow analyze`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a := newApp(cfg)
		pool, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stage, err := a.buildAnalysisStage(pool)
		if err != nil {
			return err
		}
		return runStage[model.Article](ctx, a, stage, cfg.Kafka.Analysis)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
