package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/newsflow/internal/search"
	"github.com/ppiankov/newsflow/internal/storage"
)

var skipIndex bool

// migrateCmd creates the database tables and the search index
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create database tables and the search index",
	Args:  cobra.NoArgs,
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

		if err := storage.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Println("Database schema is up to date")

		if skipIndex {
			return nil
		}
		client, err := search.NewClient(cfg.OpenSearch)
		if err != nil {
			return err
		}
		store := search.NewOpenSearchIndexer(client, cfg.OpenSearch.Index, a.logger)
		if err := store.EnsureIndex(ctx, cfg.OpenSearch.EmbeddingDimension); err != nil {
			return err
		}
		fmt.Printf("Search index %q is ready\n", cfg.OpenSearch.Index)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&skipIndex, "skip-index", false, "only migrate the database")
	rootCmd.AddCommand(migrateCmd)
}
