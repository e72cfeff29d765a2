package httpapi

import (
	"fmt"
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

// dateLayouts are accepted for dates in request bodies.
var dateLayouts = []string{time.RFC3339, time.DateOnly}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q is not RFC 3339 or YYYY-MM-DD", domain.ErrValidation, s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ==================== Requests ====================

type createArticleRequest struct {
	ArticleID      string   `json:"article_id" binding:"required"`
	Title          string   `json:"title"`
	Tags           []string `json:"tags"`
	Date           string   `json:"date"`
	Author         string   `json:"author"`
	Description    string   `json:"description"`
	Text           string   `json:"text"`
	Rows           []string `json:"rows"`
	ContentIndexes []int    `json:"content_indexes"`
	DisplayNumbers []int    `json:"display_numbers"`
}

func (r createArticleRequest) toDomain() (driving.CreateArticleRequest, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return driving.CreateArticleRequest{}, err
	}
	return driving.CreateArticleRequest{
		ArticleID:      r.ArticleID,
		Title:          r.Title,
		Tags:           r.Tags,
		Date:           date,
		Author:         r.Author,
		Description:    r.Description,
		Text:           r.Text,
		Rows:           r.Rows,
		ContentIndexes: r.ContentIndexes,
		DisplayNumbers: r.DisplayNumbers,
	}, nil
}

type editJSON struct {
	Offset   int `json:"offset" binding:"min=0"`
	Deleted  int `json:"deleted" binding:"min=0"`
	Inserted int `json:"inserted" binding:"min=0"`
}

type updateArticleRequest struct {
	Title       *string    `json:"title"`
	Tags        []string   `json:"tags"`
	Date        *string    `json:"date"`
	Author      *string    `json:"author"`
	Description *string    `json:"description"`
	Text        *string    `json:"text"`
	Rows        []string   `json:"rows"`
	Edits       []editJSON `json:"edits" binding:"dive"`
}

func (r updateArticleRequest) toDomain(articleID string) (driving.UpdateArticleRequest, error) {
	req := driving.UpdateArticleRequest{
		ArticleID:   articleID,
		Title:       r.Title,
		Tags:        r.Tags,
		Author:      r.Author,
		Description: r.Description,
		Text:        r.Text,
		Rows:        r.Rows,
	}
	if r.Date != nil {
		date, err := parseDate(*r.Date)
		if err != nil {
			return req, err
		}
		req.Date = &date
	}
	for _, e := range r.Edits {
		req.Edits = append(req.Edits, domain.Edit{Offset: e.Offset, Deleted: e.Deleted, Inserted: e.Inserted})
	}
	return req, nil
}

type createCommentRequest struct {
	CommentID string `json:"comment_id"`
	ArticleID string `json:"article_id" binding:"required"`
	Row       int    `json:"row"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Content   string `json:"content"`
	HTML      string `json:"html"`
	Author    string `json:"author"`
	Date      string `json:"date"`

	// Global makes Start and End offsets into the whole article text.
	Global bool `json:"global"`
}

func (r createCommentRequest) toDomain() (driving.CreateCommentRequest, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return driving.CreateCommentRequest{}, err
	}
	return driving.CreateCommentRequest{
		CommentID: r.CommentID,
		ArticleID: r.ArticleID,
		Row:       r.Row,
		Start:     r.Start,
		End:       r.End,
		Content:   r.Content,
		HTML:      r.HTML,
		Author:    r.Author,
		Date:      date,
	}, nil
}

type editCommentRequest struct {
	Content string `json:"content"`
	HTML    string `json:"html"`
}

type anchorJSON struct {
	Row   int `json:"row"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// ==================== Responses ====================

type articleJSON struct {
	ArticleID      string   `json:"article_id"`
	Title          string   `json:"title"`
	Tags           []string `json:"tags"`
	Date           string   `json:"date,omitempty"`
	Author         string   `json:"author"`
	Description    string   `json:"description"`
	Length         int      `json:"length"`
	ContentIndexes []int    `json:"content_indexes"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

func toArticleJSON(a *domain.Article) articleJSON {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	starts := a.Segmentation.Starts
	if starts == nil {
		starts = []int{}
	}
	return articleJSON{
		ArticleID:      a.ArticleID,
		Title:          a.Title,
		Tags:           tags,
		Date:           formatDate(a.Date),
		Author:         a.Author,
		Description:    a.Description,
		Length:         a.Segmentation.Length,
		ContentIndexes: starts,
		CreatedAt:      formatDate(a.CreatedAt),
		UpdatedAt:      formatDate(a.UpdatedAt),
	}
}

type rowJSON struct {
	RowNumberInArticle int    `json:"row_number_in_article"`
	RowNumberToDisplay int    `json:"row_number_to_display"`
	Content            string `json:"content"`
}

func toRowsJSON(rows []domain.Row) []rowJSON {
	out := make([]rowJSON, len(rows))
	for i, r := range rows {
		out[i] = rowJSON{
			RowNumberInArticle: r.RowNumberInArticle,
			RowNumberToDisplay: r.RowNumberToDisplay,
			Content:            r.Content,
		}
	}
	return out
}

type commentJSON struct {
	CommentID string     `json:"comment_id"`
	ArticleID string     `json:"article_id"`
	Anchor    anchorJSON `json:"anchor"`
	Content   string     `json:"content"`
	HTML      string     `json:"html"`
	Author    string     `json:"author"`
	Date      string     `json:"date,omitempty"`
	Orphaned  bool       `json:"orphaned"`
}

func toCommentJSON(c *domain.Comment) commentJSON {
	return commentJSON{
		CommentID: c.CommentID,
		ArticleID: c.ArticleID,
		Anchor:    anchorJSON{Row: c.Anchor.Row, Start: c.Anchor.Start, End: c.Anchor.End},
		Content:   c.Content,
		HTML:      c.HTML,
		Author:    c.Author,
		Date:      formatDate(c.Date),
		Orphaned:  c.Orphaned,
	}
}

func toCommentsJSON(comments []domain.Comment) []commentJSON {
	out := make([]commentJSON, len(comments))
	for i := range comments {
		out[i] = toCommentJSON(&comments[i])
	}
	return out
}

type hitJSON struct {
	Kind      string  `json:"kind"`
	ID        string  `json:"id"`
	ArticleID string  `json:"article_id"`
	Title     string  `json:"title,omitempty"`
	Author    string  `json:"author"`
	Date      string  `json:"date,omitempty"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

func toHitsJSON(hits []domain.SearchHit) []hitJSON {
	out := make([]hitJSON, len(hits))
	for i, h := range hits {
		out[i] = hitJSON{
			Kind:      string(h.Kind),
			ID:        h.ID,
			ArticleID: h.ArticleID,
			Title:     h.Title,
			Author:    h.Author,
			Date:      formatDate(h.Date),
			Score:     h.Score,
			Snippet:   h.Snippet,
		}
	}
	return out
}

type taskJSON struct {
	ID            int64  `json:"id"`
	Entity        string `json:"entity"`
	EntityID      string `json:"entity_id"`
	Op            string `json:"op"`
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"last_error,omitempty"`
	NextAttemptAt string `json:"next_attempt_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toTasksJSON(tasks []domain.PropagationTask) []taskJSON {
	out := make([]taskJSON, len(tasks))
	for i, t := range tasks {
		out[i] = taskJSON{
			ID:            t.ID,
			Entity:        string(t.Entity),
			EntityID:      t.EntityID,
			Op:            string(t.Op),
			State:         string(t.State),
			Attempts:      t.Attempts,
			LastError:     t.LastError,
			NextAttemptAt: formatDate(t.NextAttemptAt),
			CreatedAt:     formatDate(t.CreatedAt),
		}
	}
	return out
}

type indexStateJSON struct {
	Status      string `json:"status"`
	Generation  int64  `json:"generation"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Articles    int    `json:"articles"`
	Comments    int    `json:"comments"`
	LastError   string `json:"last_error,omitempty"`
}

func toIndexStateJSON(s domain.IndexState) indexStateJSON {
	return indexStateJSON{
		Status:      string(s.Status),
		Generation:  s.Generation,
		StartedAt:   formatDate(s.StartedAt),
		CompletedAt: formatDate(s.CompletedAt),
		Articles:    s.Articles,
		Comments:    s.Comments,
		LastError:   s.LastError,
	}
}

type syncStatusJSON struct {
	Running         bool           `json:"running"`
	Reindexing      bool           `json:"reindexing"`
	Counts          map[string]int `json:"counts"`
	Index           indexStateJSON `json:"index"`
	LastPropagation string         `json:"last_propagation,omitempty"`
}

func toSyncStatusJSON(s *domain.SyncStatus) syncStatusJSON {
	counts := make(map[string]int, len(s.Counts))
	for state, n := range s.Counts {
		counts[string(state)] = n
	}
	return syncStatusJSON{
		Running:         s.Running,
		Reindexing:      s.Reindexing,
		Counts:          counts,
		Index:           toIndexStateJSON(s.Index),
		LastPropagation: formatDate(s.LastPropagation),
	}
}
