package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

var searchFlags struct {
	author    string
	tags      []string
	articleID string
	limit     int
	offset    int
	all       bool
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search articles and comments",
	Long: `Queries the search index. Results reflect changes once they have been
propagated; run "annotext sync status" to see pending work.`,
}

var searchArticlesCmd = &cobra.Command{
	Use:   "articles [query]",
	Short: "Search article titles, text, descriptions and authors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSearch(domain.SearchKindArticles),
}

var searchCommentsCmd = &cobra.Command{
	Use:   "comments [query]",
	Short: "Search comment content and authors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSearch(domain.SearchKindComments),
}

func init() {
	for _, c := range []*cobra.Command{searchArticlesCmd, searchCommentsCmd} {
		c.Flags().StringVar(&searchFlags.author, "author", "", "only results by this author")
		c.Flags().IntVarP(&searchFlags.limit, "limit", "n", 10, "maximum number of results")
		c.Flags().IntVar(&searchFlags.offset, "offset", 0, "results to skip")
		c.Flags().BoolVar(&searchFlags.all, "all", false, "stream every result, ignoring --limit and --offset")
	}
	searchArticlesCmd.Flags().StringSliceVar(&searchFlags.tags, "tags", nil, "only articles carrying every tag")
	searchCommentsCmd.Flags().StringVar(&searchFlags.articleID, "article", "", "only comments on this article")

	searchCmd.AddCommand(searchArticlesCmd, searchCommentsCmd)
	rootCmd.AddCommand(searchCmd)
}

func runSearch(kind domain.SearchKind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if searchService == nil {
			return notConfigured("search")
		}

		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		scope := domain.SearchScope{
			Kind:      kind,
			Author:    searchFlags.author,
			Tags:      searchFlags.tags,
			ArticleID: searchFlags.articleID,
		}

		var hits []domain.SearchHit
		if searchFlags.all {
			for hit, err := range searchService.Stream(cmd.Context(), query, scope) {
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				hits = append(hits, hit)
			}
		} else {
			opts := domain.SearchOptions{Limit: searchFlags.limit, Offset: searchFlags.offset}
			var err error
			if kind == domain.SearchKindArticles {
				hits, err = searchService.SearchArticles(cmd.Context(), query, scope, opts)
			} else {
				hits, err = searchService.SearchComments(cmd.Context(), query, scope, opts)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
		}

		if jsonOutput {
			if hits == nil {
				hits = []domain.SearchHit{}
			}
			return printJSON(cmd, hits)
		}
		return outputSearchTable(cmd, hits)
	}
}

func outputSearchTable(cmd *cobra.Command, hits []domain.SearchHit) error {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, h := range hits {
		label := h.Title
		if h.Kind == domain.SearchKindComments || label == "" {
			label = fmt.Sprintf("%s on %s", h.ID, h.ArticleID)
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, label, h.Score)
		if h.Author != "" {
			cmd.Printf("      By %s, %s\n", h.Author, formatDay(h.Date))
		}
		if h.Snippet != "" {
			cmd.Printf("      %s\n", h.Snippet)
		}
		cmd.Println()
	}
	return nil
}
