package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage comments",
	Long:  `Add, read, edit, re-anchor and delete comments anchored to article text.`,
}

var commentFlags struct {
	id      string
	row     int
	start   int
	end     int
	global  bool
	content string
	html    string
	author  string
	date    string
}

var commentAddCmd = &cobra.Command{
	Use:   "add <article-id>",
	Short: "Anchor a comment to a range of text",
	Long: `Adds a comment to the characters [start, end) of a row. With --global,
start and end are offsets into the whole article text and must fall in a
single row.`,
	Args: cobra.ExactArgs(1),
	RunE: runCommentAdd,
}

var commentListCmd = &cobra.Command{
	Use:   "list <article-id>",
	Short: "List an article's comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentList,
}

var commentGetCmd = &cobra.Command{
	Use:   "get <comment-id>",
	Short: "Show a comment and the text it annotates",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentGet,
}

var commentEditCmd = &cobra.Command{
	Use:   "edit <comment-id>",
	Short: "Replace a comment's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentEdit,
}

var commentAnchorCmd = &cobra.Command{
	Use:   "anchor <comment-id>",
	Short: "Move a comment to a new range",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentAnchor,
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <comment-id>",
	Short: "Delete a comment",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentDelete,
}

func init() {
	for _, c := range []*cobra.Command{commentAddCmd, commentAnchorCmd} {
		c.Flags().IntVar(&commentFlags.row, "row", 0, "row number")
		c.Flags().IntVar(&commentFlags.start, "start", 0, "first character")
		c.Flags().IntVar(&commentFlags.end, "end", 0, "character after the last")
	}
	for _, c := range []*cobra.Command{commentAddCmd, commentEditCmd} {
		c.Flags().StringVarP(&commentFlags.content, "content", "m", "", "comment text")
		c.Flags().StringVar(&commentFlags.html, "html", "", "comment HTML")
	}
	commentAddCmd.Flags().StringVar(&commentFlags.id, "id", "", "comment id (generated when empty)")
	commentAddCmd.Flags().BoolVar(&commentFlags.global, "global", false, "start and end are article offsets")
	commentAddCmd.Flags().StringVar(&commentFlags.author, "author", "", "comment author")
	commentAddCmd.Flags().StringVar(&commentFlags.date, "date", "", "comment date (YYYY-MM-DD)")

	commentCmd.AddCommand(commentAddCmd, commentListCmd, commentGetCmd, commentEditCmd,
		commentAnchorCmd, commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}

func runCommentAdd(cmd *cobra.Command, args []string) error {
	if commentService == nil {
		return notConfigured("comment")
	}

	date, err := parseDateFlag(commentFlags.date)
	if err != nil {
		return err
	}
	req := driving.CreateCommentRequest{
		CommentID: commentFlags.id,
		ArticleID: args[0],
		Row:       commentFlags.row,
		Start:     commentFlags.start,
		End:       commentFlags.end,
		Content:   commentFlags.content,
		HTML:      commentFlags.html,
		Author:    commentFlags.author,
		Date:      date,
	}

	create := commentService.Create
	if commentFlags.global {
		create = commentService.CreateAt
	}
	comment, err := create(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}
	propagate(cmd)

	if jsonOutput {
		return printJSON(cmd, comment)
	}
	cmd.Printf("Added comment %s at row %d [%d, %d)\n",
		comment.CommentID, comment.Anchor.Row, comment.Anchor.Start, comment.Anchor.End)
	return nil
}

func runCommentList(cmd *cobra.Command, args []string) error {
	if commentService == nil {
		return notConfigured("comment")
	}

	comments, err := commentService.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, comments)
	}
	if len(comments) == 0 {
		cmd.Println("No comments.")
		return nil
	}
	for i := range comments {
		printComment(cmd, &comments[i])
	}
	return nil
}

func printComment(cmd *cobra.Command, c *domain.Comment) {
	flag := ""
	if c.Orphaned {
		flag = " (orphaned)"
	}
	cmd.Printf("  %s  row %d [%d, %d)  %s%s\n", c.CommentID, c.Anchor.Row, c.Anchor.Start, c.Anchor.End, c.Author, flag)
	cmd.Printf("      %s\n", c.Content)
}

func runCommentGet(cmd *cobra.Command, args []string) error {
	if commentService == nil {
		return notConfigured("comment")
	}

	resolved, err := commentService.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, resolved)
	}
	printComment(cmd, resolved.Comment)
	cmd.Printf("      on %q at [%d, %d)\n", resolved.Text, resolved.GlobalStart, resolved.GlobalEnd)
	return nil
}

func runCommentEdit(cmd *cobra.Command, args []string) error {
	if commentService == nil {
		return notConfigured("comment")
	}

	comment, err := commentService.Edit(cmd.Context(), args[0], commentFlags.content, commentFlags.html)
	if err != nil {
		return fmt.Errorf("edit failed: %w", err)
	}
	propagate(cmd)

	if jsonOutput {
		return printJSON(cmd, comment)
	}
	cmd.Printf("Updated comment %s\n", comment.CommentID)
	return nil
}

func runCommentAnchor(cmd *cobra.Command, args []string) error {
	if commentService == nil {
		return notConfigured("comment")
	}

	anchor := domain.Anchor{Row: commentFlags.row, Start: commentFlags.start, End: commentFlags.end}
	comment, err := commentService.Reanchor(cmd.Context(), args[0], anchor)
	if err != nil {
		return fmt.Errorf("anchor failed: %w", err)
	}
	propagate(cmd)

	if jsonOutput {
		return printJSON(cmd, comment)
	}
	cmd.Printf("Moved comment %s to row %d [%d, %d)\n",
		comment.CommentID, comment.Anchor.Row, comment.Anchor.Start, comment.Anchor.End)
	return nil
}

func runCommentDelete(cmd *cobra.Command, args []string) error {
	if commentService == nil {
		return notConfigured("comment")
	}

	if err := commentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	propagate(cmd)
	cmd.Printf("Deleted comment %s\n", args[0])
	return nil
}
