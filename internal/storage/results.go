package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ppiankov/newsflow/internal/analysis"
	"github.com/ppiankov/newsflow/internal/model"
)

// ResultRepository stores analysis results. Save writes the outbox row in the same
// transaction so the indexing stage sees exactly the committed results.
type ResultRepository struct {
	db  DB
	now func() time.Time
}

var _ analysis.ResultRepository = (*ResultRepository)(nil)

// NewResultRepository creates a repository on db
func NewResultRepository(db DB) *ResultRepository {
	return &ResultRepository{db: db, now: time.Now}
}

// ExistsByArticleID reports whether a result is stored for the article
func (r *ResultRepository) ExistsByArticleID(ctx context.Context, articleID string) (bool, error) {
	query, args, err := psql.Select("1").
		From(resultTable).
		Where(sq.Eq{"article_id": articleID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.db.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query result %s: %w", articleID, err)
	}
	return true, nil
}

// DeleteByArticleID removes the stored result of the article, if any
func (r *ResultRepository) DeleteByArticleID(ctx context.Context, articleID string) error {
	if _, err := exec(ctx, r.db, psql.Delete(resultTable).Where(sq.Eq{"article_id": articleID})); err != nil {
		return fmt.Errorf("delete result %s: %w", articleID, err)
	}
	return nil
}

// FindModifiedAt returns the article modification time the stored result was built
// from. ok is false when no result is stored.
func (r *ResultRepository) FindModifiedAt(ctx context.Context, articleID string) (modifiedAt time.Time, ok bool, err error) {
	query, args, err := psql.Select("modified_at").
		From(resultTable).
		Where(sq.Eq{"article_id": articleID}).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build query: %w", err)
	}

	err = r.db.QueryRow(ctx, query, args...).Scan(&modifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query modified_at %s: %w", articleID, err)
	}
	return modifiedAt, true, nil
}

// Save inserts the result and its outbox row in one transaction. A concurrent insert
// for the same article fails on the article_id unique constraint.
func (r *ResultRepository) Save(ctx context.Context, result model.AnalysisResult) (err error) {
	insertResult, err := resultInsert(result)
	if err != nil {
		return err
	}
	insertOutbox, err := outboxInsert(uuid.New(), result, r.now().UTC())
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = exec(ctx, tx, insertResult); err != nil {
		return fmt.Errorf("insert result %s: %w", result.ArticleID, err)
	}
	if _, err = exec(ctx, tx, insertOutbox); err != nil {
		return fmt.Errorf("insert outbox %s: %w", result.ArticleID, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", result.ArticleID, err)
	}
	return nil
}

func resultInsert(result model.AnalysisResult) (sq.InsertBuilder, error) {
	incidentTypes, err := jsonColumn(result.IncidentTypes)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	urgency, err := json.Marshal(result.Urgency)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("encode urgency: %w", err)
	}
	keywords, err := jsonColumn(result.Keywords)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	locations, err := jsonColumn(result.Locations)
	if err != nil {
		return sq.InsertBuilder{}, err
	}

	refined := result.RefinedArticle
	return psql.Insert(resultTable).
		Columns(
			"article_id", "origin_id", "source_id", "modified_at", "analyzed_at",
			"refined_title", "refined_content", "summary", "written_at",
			"incident_types", "urgency", "keywords", "topic", "locations",
		).
		Values(
			result.ArticleID, result.OriginID, result.SourceID, result.ModifiedAt, result.AnalyzedAt,
			refined.Title, refined.Content, refined.Summary, refined.WrittenAt,
			incidentTypes, urgency, keywords, result.Topic, locations,
		), nil
}

func outboxInsert(id uuid.UUID, result model.AnalysisResult, createdAt time.Time) (sq.InsertBuilder, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("encode outbox payload: %w", err)
	}
	return psql.Insert(outboxTable).
		Columns("id", "article_id", "payload", "created_at").
		Values(id.String(), result.ArticleID, string(payload), createdAt), nil
}

// jsonColumn encodes a list column, storing nil as an empty array
func jsonColumn[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", items, err)
	}
	return data, nil
}
