package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quietpage/quietpage/internal/index"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			roles, err := index.Open(cfg.SearchPath())
			if err != nil {
				return fmt.Errorf("open search index (is the server running?): %w", err)
			}
			defer func() { _ = roles.Close() }()

			searcher := index.NewSearcher(roles, limit)
			hits, err := searcher.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			if len(hits) == 0 {
				cmd.Println("No results.")
				return nil
			}
			for i, hit := range hits {
				cmd.Printf("%2d. %s\n    %s\n", i+1, hit.Title, hit.URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	return cmd
}
