package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// Ensure Store implements the row store interfaces.
var (
	_ driven.ArticleStore    = (*Store)(nil)
	_ driven.CommentStore    = (*Store)(nil)
	_ driven.OutboxStore     = (*Store)(nil)
	_ driven.IndexStateStore = (*Store)(nil)
)

// Store is an in-memory row store with an outbox.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	nextTask int64
	articles map[string]domain.Article
	rows     map[string][]domain.Row
	comments map[string]domain.Comment
	tasks    []domain.PropagationTask
	index    domain.IndexState
	now      func() time.Time
}

// NewStore creates a new in-memory row store.
func NewStore() *Store {
	return &Store{
		articles: make(map[string]domain.Article),
		rows:     make(map[string][]domain.Row),
		comments: make(map[string]domain.Comment),
		index:    domain.IndexState{Status: domain.IndexEmpty},
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// enqueue appends an applied task. Callers hold the write lock.
func (s *Store) enqueue(now time.Time, entity domain.EntityKind, id string, op domain.TaskOp) {
	s.nextTask++
	s.tasks = append(s.tasks, domain.PropagationTask{
		ID:            s.nextTask,
		Entity:        entity,
		EntityID:      id,
		Op:            op,
		State:         domain.TaskAppliedToStore,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// ==================== Articles ====================

// CreateArticle stores an article with its rows.
func (s *Store) CreateArticle(_ context.Context, article *domain.Article, rows []domain.Row) (int64, error) {
	seg, err := checkRows(rows)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[article.ArticleID]; ok {
		return 0, fmt.Errorf("article %s: %w", article.ArticleID, domain.ErrAlreadyExists)
	}

	now := s.now().UTC()
	s.nextID++
	article.ID = s.nextID
	article.Segmentation = seg
	article.CreatedAt = now
	article.UpdatedAt = now
	s.articles[article.ArticleID] = cloneArticle(*article)
	s.rows[article.ArticleID] = storedRows(rows, seg)
	s.enqueue(now, domain.EntityArticle, article.ArticleID, domain.OpUpsert)
	return article.ID, nil
}

// UpdateArticle rewrites an article under the write lock, so the state
// change sees is the state that gets replaced.
func (s *Store) UpdateArticle(_ context.Context, articleID string, change driven.ArticleChange) (*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.articles[articleID]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
	}
	current := cloneArticle(old)
	stored := s.commentsOf(articleID)

	rewrite, err := change(&current, cloneRows(s.rows[articleID]), append([]domain.Comment(nil), stored...))
	if err != nil {
		return nil, err
	}
	seg, err := checkRewrite(articleID, rewrite, stored)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	article := cloneArticle(*rewrite.Article)
	article.ID = old.ID
	article.ArticleID = articleID
	article.CreatedAt = old.CreatedAt
	article.UpdatedAt = now
	article.Segmentation = seg
	s.articles[articleID] = article
	s.rows[articleID] = storedRows(rewrite.Rows, seg)

	for _, c := range rewrite.Comments {
		sc, ok := s.comments[c.CommentID]
		if !ok {
			continue
		}
		sc.Anchor = c.Anchor
		sc.Orphaned = c.Orphaned
		s.comments[c.CommentID] = sc
		s.enqueue(now, domain.EntityComment, c.CommentID, domain.OpUpsert)
	}
	s.enqueue(now, domain.EntityArticle, articleID, domain.OpUpsert)

	out := cloneArticle(article)
	return &out, nil
}

// checkRewrite validates the new rows and every comment anchor against
// them: rewritten comments as given, the rest as stored.
func checkRewrite(articleID string, rw *driven.ArticleRewrite, stored []domain.Comment) (domain.Segmentation, error) {
	if rw == nil || rw.Article == nil {
		return domain.Segmentation{}, fmt.Errorf("%w: empty rewrite of article %s", domain.ErrValidation, articleID)
	}
	seg, err := checkRows(rw.Rows)
	if err != nil {
		return seg, err
	}
	rewritten := make(map[string]bool, len(rw.Comments))
	for _, c := range rw.Comments {
		if c.ArticleID != articleID {
			return seg, fmt.Errorf("%w: comment %s belongs to article %s", domain.ErrValidation, c.CommentID, c.ArticleID)
		}
		rewritten[c.CommentID] = true
		if !c.Orphaned {
			if err := anchoring.CheckAnchor(seg, c.Anchor); err != nil {
				return seg, fmt.Errorf("comment %s: %w", c.CommentID, err)
			}
		}
	}
	for _, c := range stored {
		if rewritten[c.CommentID] || c.Orphaned {
			continue
		}
		if err := anchoring.CheckAnchor(seg, c.Anchor); err != nil {
			return seg, fmt.Errorf("%w: comment %s no longer fits the rows: %w", domain.ErrInvariantViolation, c.CommentID, err)
		}
	}
	return seg, nil
}

// GetArticle retrieves an article by external id.
func (s *Store) GetArticle(_ context.Context, articleID string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[articleID]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
	}
	a = cloneArticle(a)
	return &a, nil
}

// GetRows returns rows of an article ordered by row number.
func (s *Store) GetRows(_ context.Context, articleID string, fromRow, numRows int) ([]domain.Row, error) {
	if fromRow < 0 || numRows < 0 {
		return nil, fmt.Errorf("%w: from %d, count %d", domain.ErrInvalidRow, fromRow, numRows)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.articles[articleID]; !ok {
		return nil, fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
	}
	rows := s.rows[articleID]
	if fromRow >= len(rows) {
		return nil, nil
	}
	end := len(rows)
	if numRows > 0 && fromRow+numRows < end {
		end = fromRow + numRows
	}
	return cloneRows(rows[fromRow:end]), nil
}

// ListArticles returns articles ordered by date descending, then article id.
func (s *Store) ListArticles(_ context.Context, opts domain.ListOptions) ([]domain.Article, error) {
	s.mu.RLock()
	all := make([]domain.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if opts.Author == "" || a.Author == opts.Author {
			all = append(all, cloneArticle(a))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].ArticleID < all[j].ArticleID
	})
	return page(all, opts.Offset, opts.Limit), nil
}

// ListAuthors returns distinct non-empty authors.
func (s *Store) ListAuthors(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var authors []string
	for _, a := range s.articles {
		if a.Author != "" && !seen[a.Author] {
			seen[a.Author] = true
			authors = append(authors, a.Author)
		}
	}
	sort.Strings(authors)
	return authors, nil
}

// DeleteArticle removes an article, its rows and comments.
func (s *Store) DeleteArticle(_ context.Context, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[articleID]; !ok {
		return nil
	}

	now := s.now().UTC()
	var ids []string
	for id, c := range s.comments {
		if c.ArticleID == articleID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(s.comments, id)
		s.enqueue(now, domain.EntityComment, id, domain.OpDelete)
	}
	delete(s.articles, articleID)
	delete(s.rows, articleID)
	s.enqueue(now, domain.EntityArticle, articleID, domain.OpDelete)
	return nil
}

// WalkArticles calls fn for every article in id order.
func (s *Store) WalkArticles(ctx context.Context, fn func(*domain.Article, []domain.Row) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.articles))
	for id := range s.articles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		a, err := s.GetArticle(ctx, id)
		if err != nil {
			continue // deleted while walking
		}
		rows, err := s.GetRows(ctx, id, 0, 0)
		if err != nil {
			continue
		}
		if err := fn(a, rows); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Comments ====================

// CreateComment validates the anchor against the current rows and stores the comment.
func (s *Store) CreateComment(_ context.Context, comment *domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAnchor(comment.ArticleID, comment.Anchor); err != nil {
		return err
	}
	if _, ok := s.comments[comment.CommentID]; ok {
		return fmt.Errorf("comment %s: %w", comment.CommentID, domain.ErrAlreadyExists)
	}

	now := s.now().UTC()
	if comment.Date.IsZero() {
		comment.Date = now
	}
	s.comments[comment.CommentID] = *comment
	s.enqueue(now, domain.EntityComment, comment.CommentID, domain.OpUpsert)
	return nil
}

// GetComment retrieves a comment by id.
func (s *Store) GetComment(_ context.Context, commentID string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[commentID]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", commentID, domain.ErrCommentNotFound)
	}
	return &c, nil
}

// ListComments returns an article's comments ordered by date, then id.
func (s *Store) ListComments(_ context.Context, articleID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commentsOf(articleID), nil
}

// commentsOf returns an article's comments ordered by date, then id.
// Callers hold the lock.
func (s *Store) commentsOf(articleID string) []domain.Comment {
	var out []domain.Comment
	for _, c := range s.comments {
		if c.ArticleID == articleID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CommentID < out[j].CommentID
	})
	return out
}

// UpdateCommentContent replaces the raw and rendered text of a comment.
func (s *Store) UpdateCommentContent(_ context.Context, commentID, content, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, domain.ErrCommentNotFound)
	}
	c.Content = content
	c.HTML = html
	s.comments[commentID] = c
	s.enqueue(s.now().UTC(), domain.EntityComment, commentID, domain.OpUpsert)
	return nil
}

// ReanchorComment moves a comment to a new anchor and clears its orphan flag.
func (s *Store) ReanchorComment(_ context.Context, commentID string, anchor domain.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, domain.ErrCommentNotFound)
	}
	if err := s.checkAnchor(c.ArticleID, anchor); err != nil {
		return err
	}
	c.Anchor = anchor
	c.Orphaned = false
	s.comments[commentID] = c
	s.enqueue(s.now().UTC(), domain.EntityComment, commentID, domain.OpUpsert)
	return nil
}

// DeleteComment removes a comment. Unknown ids are a no-op.
func (s *Store) DeleteComment(_ context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[commentID]; !ok {
		return nil
	}
	delete(s.comments, commentID)
	s.enqueue(s.now().UTC(), domain.EntityComment, commentID, domain.OpDelete)
	return nil
}

// WalkComments calls fn for every comment in id order.
func (s *Store) WalkComments(ctx context.Context, fn func(*domain.Comment) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.comments))
	for id := range s.comments {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		c, err := s.GetComment(ctx, id)
		if err != nil {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// checkAnchor validates an anchor. Callers hold the lock.
func (s *Store) checkAnchor(articleID string, a domain.Anchor) error {
	if a.Start > a.End || a.Start < 0 {
		return fmt.Errorf("%w: [%d, %d]", domain.ErrInvalidRange, a.Start, a.End)
	}
	if _, ok := s.articles[articleID]; !ok {
		return fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
	}
	rows := s.rows[articleID]
	if a.Row < 0 || a.Row >= len(rows) {
		return fmt.Errorf("article %s row %d: %w", articleID, a.Row, domain.ErrRowNotFound)
	}
	if n := anchoring.RuneLen(rows[a.Row].Content); a.End > n {
		return fmt.Errorf("%w: [%d, %d] in row %d of length %d", domain.ErrInvalidRange, a.Start, a.End, a.Row, n)
	}
	return nil
}

// ==================== Outbox ====================

// Due returns applied tasks whose next attempt is due, oldest first.
func (s *Store) Due(_ context.Context, now time.Time, limit int) ([]domain.PropagationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PropagationTask
	for _, t := range s.tasks {
		if t.State == domain.TaskAppliedToStore && !t.NextAttemptAt.After(now) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MarkPropagated records that the index accepted the task.
func (s *Store) MarkPropagated(_ context.Context, id int64) error {
	return s.updateTask(id, func(t *domain.PropagationTask) {
		t.State = domain.TaskPropagated
		t.LastError = ""
	})
}

// MarkRetry records a failed attempt and schedules the next one.
func (s *Store) MarkRetry(_ context.Context, id int64, attempts int, next time.Time, lastErr string) error {
	return s.updateTask(id, func(t *domain.PropagationTask) {
		t.Attempts = attempts
		t.NextAttemptAt = next
		t.LastError = lastErr
	})
}

// MarkFailed moves the task to the dead letter state.
func (s *Store) MarkFailed(_ context.Context, id int64, attempts int, lastErr string) error {
	return s.updateTask(id, func(t *domain.PropagationTask) {
		t.State = domain.TaskPropagationFailed
		t.Attempts = attempts
		t.LastError = lastErr
	})
}

// ListByState returns tasks in a state, oldest first.
func (s *Store) ListByState(_ context.Context, state domain.TaskState, limit int) ([]domain.PropagationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PropagationTask
	for _, t := range s.tasks {
		if t.State == state {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Requeue moves tasks in state back to applied_to_store, due immediately.
func (s *Store) Requeue(_ context.Context, state domain.TaskState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	n := 0
	for i := range s.tasks {
		if s.tasks[i].State == state {
			s.tasks[i].State = domain.TaskAppliedToStore
			s.tasks[i].Attempts = 0
			s.tasks[i].NextAttemptAt = now
			s.tasks[i].UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// Counts returns the number of tasks per state.
func (s *Store) Counts(_ context.Context) (map[domain.TaskState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.TaskState]int)
	for _, t := range s.tasks {
		counts[t.State]++
	}
	return counts, nil
}

// PurgePropagated deletes propagated tasks last updated before the given time.
func (s *Store) PurgePropagated(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tasks[:0]
	n := 0
	for _, t := range s.tasks {
		if t.State == domain.TaskPropagated && t.UpdatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	return n, nil
}

func (s *Store) updateTask(id int64, fn func(*domain.PropagationTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			fn(&s.tasks[i])
			s.tasks[i].UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return fmt.Errorf("propagation task %d: %w", id, domain.ErrNotFound)
}

// ==================== Index State ====================

// GetIndexState returns the stored index state.
func (s *Store) GetIndexState(_ context.Context) (domain.IndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index, nil
}

// SaveIndexState replaces the stored index state.
func (s *Store) SaveIndexState(_ context.Context, state domain.IndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = state
	return nil
}

// ==================== Helper Functions ====================

func checkRows(rows []domain.Row) (domain.Segmentation, error) {
	contents := make([]string, len(rows))
	for i, r := range rows {
		if r.RowNumberInArticle != i {
			return domain.Segmentation{}, fmt.Errorf("%w: row %d has number %d",
				domain.ErrInvalidSegmentation, i, r.RowNumberInArticle)
		}
		contents[i] = r.Content
	}
	for _, r := range rows {
		if err := anchoring.Validate(contents, r.ContentIndexes); err != nil {
			return domain.Segmentation{}, err
		}
	}
	return anchoring.Segment(contents), nil
}

func cloneArticle(a domain.Article) domain.Article {
	a.Tags = append([]string(nil), a.Tags...)
	a.Segmentation.Starts = append([]int(nil), a.Segmentation.Starts...)
	return a
}

// storedRows copies rows and stamps each with the article's segmentation.
func storedRows(rows []domain.Row, seg domain.Segmentation) []domain.Row {
	out := cloneRows(rows)
	for i := range out {
		out[i].ContentIndexes = append([]int(nil), seg.Starts...)
	}
	return out
}

func cloneRows(rows []domain.Row) []domain.Row {
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		r.ContentIndexes = append([]int(nil), r.ContentIndexes...)
		out[i] = r
	}
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
