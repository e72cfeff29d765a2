package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

var articleCmd = &cobra.Command{
	Use:   "article",
	Short: "Manage articles",
	Long:  `Create, read, edit and delete articles. Editing the text re-anchors every comment.`,
}

var articleFlags struct {
	title       string
	author      string
	description string
	date        string
	tags        []string
	text        string
	file        string
	format      string
	fromRow     int
	numRows     int
	limit       int
	offset      int
}

var articleCreateCmd = &cobra.Command{
	Use:   "create <article-id>",
	Short: "Create an article from text",
	Long: `Creates an article. The text is split into rows after each line break
and can be given inline with --text or read from --file ("-" for stdin).`,
	Args: cobra.ExactArgs(1),
	RunE: runArticleCreate,
}

var articleGetCmd = &cobra.Command{
	Use:   "get <article-id>",
	Short: "Show an article and its rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runArticleGet,
}

var articleRowsCmd = &cobra.Command{
	Use:   "rows <article-id>",
	Short: "Show a range of rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runArticleRows,
}

var articleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles",
	Args:  cobra.NoArgs,
	RunE:  runArticleList,
}

var articleAuthorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "List article authors",
	Args:  cobra.NoArgs,
	RunE:  runArticleAuthors,
}

var articleUpdateCmd = &cobra.Command{
	Use:   "update <article-id>",
	Short: "Edit an article's metadata or text",
	Long: `Updates metadata and, with --text or --file, replaces the text.
Comments are moved with the text they annotate. Comments whose text was
removed are reported as orphaned and kept with their old anchor.`,
	Args: cobra.ExactArgs(1),
	RunE: runArticleUpdate,
}

var articleDeleteCmd = &cobra.Command{
	Use:   "delete <article-id>",
	Short: "Delete an article and its comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runArticleDelete,
}

func init() {
	for _, c := range []*cobra.Command{articleCreateCmd, articleUpdateCmd} {
		c.Flags().StringVar(&articleFlags.title, "title", "", "article title")
		c.Flags().StringVar(&articleFlags.author, "author", "", "article author")
		c.Flags().StringVar(&articleFlags.description, "description", "", "short description")
		c.Flags().StringVar(&articleFlags.date, "date", "", "publication date (YYYY-MM-DD)")
		c.Flags().StringSliceVar(&articleFlags.tags, "tags", nil, "comma separated tags")
		c.Flags().StringVar(&articleFlags.text, "text", "", "article text")
		c.Flags().StringVarP(&articleFlags.file, "file", "f", "", "read the text from a file, - for stdin")
		c.Flags().StringVar(&articleFlags.format, "format", "", "source format: html, markdown or text (default: by file extension)")
	}

	articleRowsCmd.Flags().IntVar(&articleFlags.fromRow, "from", 0, "first row number")
	articleRowsCmd.Flags().IntVarP(&articleFlags.numRows, "count", "n", 0, "number of rows (0 = all)")

	articleListCmd.Flags().StringVar(&articleFlags.author, "author", "", "only articles by this author")
	articleListCmd.Flags().IntVarP(&articleFlags.limit, "limit", "n", 0, "maximum number of articles (0 = all)")
	articleListCmd.Flags().IntVar(&articleFlags.offset, "offset", 0, "articles to skip")

	articleCmd.AddCommand(articleCreateCmd, articleGetCmd, articleRowsCmd, articleListCmd,
		articleAuthorsCmd, articleUpdateCmd, articleDeleteCmd)
	rootCmd.AddCommand(articleCmd)
}

func runArticleCreate(cmd *cobra.Command, args []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	text, err := readText(cmd, articleFlags.text, articleFlags.file, articleFlags.format)
	if err != nil {
		return err
	}
	title := articleFlags.title
	if title == "" {
		title = text.title
	}
	date, err := parseDateFlag(articleFlags.date)
	if err != nil {
		return err
	}

	article, err := articleService.Create(cmd.Context(), driving.CreateArticleRequest{
		ArticleID:   args[0],
		Title:       title,
		Tags:        articleFlags.tags,
		Date:        date,
		Author:      articleFlags.author,
		Description: articleFlags.description,
		Text:        text.text,
	})
	if err != nil {
		return fmt.Errorf("create failed: %w", err)
	}
	propagate(cmd)

	if jsonOutput {
		return printJSON(cmd, article)
	}
	cmd.Printf("Created article %s (%d rows, %d characters)\n",
		article.ArticleID, len(article.Segmentation.Starts), article.Segmentation.Length)
	return nil
}

func runArticleGet(cmd *cobra.Command, args []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	view, err := articleService.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, view)
	}

	a := view.Article
	cmd.Printf("%s\n", a.Title)
	cmd.Printf("  ID:     %s\n", a.ArticleID)
	cmd.Printf("  Author: %s\n", a.Author)
	cmd.Printf("  Date:   %s\n", formatDay(a.Date))
	if len(a.Tags) > 0 {
		cmd.Printf("  Tags:   %s\n", strings.Join(a.Tags, ", "))
	}
	if a.Description != "" {
		cmd.Printf("  %s\n", a.Description)
	}
	cmd.Println()
	printRows(cmd, view.Rows)
	return nil
}

func runArticleRows(cmd *cobra.Command, args []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	rows, err := articleService.GetRows(cmd.Context(), args[0], articleFlags.fromRow, articleFlags.numRows)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, rows)
	}
	printRows(cmd, rows)
	return nil
}

func printRows(cmd *cobra.Command, rows []domain.Row) {
	for _, r := range rows {
		cmd.Printf("%4d  %s\n", r.RowNumberToDisplay, strings.TrimRight(r.Content, "\r\n"))
	}
}

func runArticleList(cmd *cobra.Command, _ []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	articles, err := articleService.List(cmd.Context(), domain.ListOptions{
		Author: articleFlags.author,
		Limit:  articleFlags.limit,
		Offset: articleFlags.offset,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, articles)
	}
	if len(articles) == 0 {
		cmd.Println("No articles.")
		return nil
	}
	for i := range articles {
		a := &articles[i]
		cmd.Printf("  %-20s %s  %s (%s)\n", a.ArticleID, formatDay(a.Date), a.Title, a.Author)
	}
	return nil
}

func runArticleAuthors(cmd *cobra.Command, _ []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	authors, err := articleService.Authors(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, authors)
	}
	for _, a := range authors {
		cmd.Println(a)
	}
	return nil
}

func runArticleUpdate(cmd *cobra.Command, args []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	req := driving.UpdateArticleRequest{ArticleID: args[0]}
	flags := cmd.Flags()
	if flags.Changed("title") {
		req.Title = &articleFlags.title
	}
	if flags.Changed("author") {
		req.Author = &articleFlags.author
	}
	if flags.Changed("description") {
		req.Description = &articleFlags.description
	}
	if flags.Changed("tags") {
		req.Tags = articleFlags.tags
	}
	if flags.Changed("date") {
		date, err := parseDateFlag(articleFlags.date)
		if err != nil {
			return err
		}
		req.Date = &date
	}
	text, err := readText(cmd, articleFlags.text, articleFlags.file, articleFlags.format)
	if err != nil {
		return err
	}
	if text.set {
		req.Text = &text.text
	}

	res, err := articleService.Update(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	propagate(cmd)

	if jsonOutput {
		return printJSON(cmd, res)
	}
	cmd.Printf("Updated article %s: %d comments kept, %d moved, %d orphaned\n",
		res.Article.ArticleID, res.Kept, res.Moved, len(res.Orphaned))
	for _, o := range res.Orphaned {
		cmd.Printf("  orphaned %s: %s\n", o.Comment.CommentID, o.Reason)
	}
	return nil
}

func runArticleDelete(cmd *cobra.Command, args []string) error {
	if articleService == nil {
		return notConfigured("article")
	}

	if err := articleService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	propagate(cmd)
	cmd.Printf("Deleted article %s\n", args[0])
	return nil
}
