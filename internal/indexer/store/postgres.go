package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
)

// TableName is the single table backing the Postgres store.
const TableName = "unified_search_index"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	source_id            TEXT PRIMARY KEY,
	content_type         TEXT NOT NULL,
	title                TEXT NOT NULL,
	body                 TEXT NOT NULL DEFAULT '',
	excerpt              TEXT NOT NULL DEFAULT '',
	sku                  TEXT NOT NULL DEFAULT '',
	categories           TEXT NOT NULL DEFAULT '',
	tags                 TEXT NOT NULL DEFAULT '',
	price                DOUBLE PRECISION,
	in_stock             BOOLEAN,
	relevance_base_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	indexed_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_` + TableName + `_content_type ON ` + TableName + ` (content_type);
`

const recordColumns = `source_id, content_type, title, body, excerpt, sku, categories, tags,
	price, in_stock, relevance_base_score, indexed_at`

// Postgres stores records in a single table and renders Predicates as
// ILIKE conditions.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "pg-store"),
	}
}

// EnsureSchema creates the index table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return apperrors.Storage("ensure schema", err)
	}
	p.logger.Info("index schema ready", "table", TableName)
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, rec *domain.IndexRecord) error {
	if rec == nil || rec.SourceID == "" {
		return apperrors.Storage("upsert", apperrors.Validation("record without source id"))
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO `+TableName+` (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source_id) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			excerpt = EXCLUDED.excerpt,
			sku = EXCLUDED.sku,
			categories = EXCLUDED.categories,
			tags = EXCLUDED.tags,
			price = EXCLUDED.price,
			in_stock = EXCLUDED.in_stock,
			relevance_base_score = EXCLUDED.relevance_base_score,
			indexed_at = EXCLUDED.indexed_at`,
		rec.SourceID, string(rec.ContentType), rec.Title, rec.Body, rec.Excerpt, rec.SKU,
		rec.Categories, rec.Tags, nullFloat(rec.Price), nullBool(rec.InStock),
		rec.RelevanceBaseScore, rec.IndexedAt,
	)
	if err != nil {
		return apperrors.Storage("upsert "+rec.SourceID, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, sourceID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM `+TableName+` WHERE source_id = $1`, sourceID); err != nil {
		return apperrors.Storage("delete "+sourceID, err)
	}
	return nil
}

func (p *Postgres) Truncate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE TABLE `+TableName); err != nil {
		return apperrors.Storage("truncate", err)
	}
	return nil
}

func (p *Postgres) Scan(ctx context.Context, contentType *domain.ContentType) ([]string, error) {
	query := `SELECT source_id FROM ` + TableName
	var args []any
	if contentType != nil {
		query += ` WHERE content_type = $1`
		args = append(args, string(*contentType))
	}
	query += ` ORDER BY source_id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Storage("scan", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Storage("scan row", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("scan rows", err)
	}
	return ids, nil
}

func (p *Postgres) QueryCandidates(ctx context.Context, pred Predicate) ([]domain.IndexRecord, error) {
	if pred.Empty() {
		return nil, nil
	}
	where, args, err := buildWhere(pred)
	if err != nil {
		return nil, apperrors.Storage("query candidates", err)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM `+TableName+` WHERE `+where, args...)
	if err != nil {
		return nil, apperrors.Storage("query candidates", err)
	}
	defer rows.Close()

	var out []domain.IndexRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.Storage("query candidates row", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("query candidates rows", err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+TableName).Scan(&n); err != nil {
		return 0, apperrors.Storage("count", err)
	}
	return n, nil
}

// buildWhere renders pred as
//
//	content_type = ANY($1) AND ((f1 ILIKE $2 OR f2 ILIKE $2) OR (f1 ILIKE $3 OR ...))
//
// with one bind parameter per word.
func buildWhere(pred Predicate) (string, []any, error) {
	types := make([]string, len(pred.ContentTypes))
	for i, ct := range pred.ContentTypes {
		types[i] = string(ct)
	}
	for _, f := range pred.Fields {
		if !f.valid() {
			return "", nil, fmt.Errorf("unknown field %q", f)
		}
	}

	args := []any{pq.Array(types)}
	clauses := make([]string, 0, len(pred.Words))
	for _, word := range pred.Words {
		if word == "" {
			continue
		}
		args = append(args, "%"+escapeLike(word)+"%")
		param := fmt.Sprintf("$%d", len(args))
		conds := make([]string, len(pred.Fields))
		for i, f := range pred.Fields {
			conds[i] = fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, string(f), param)
		}
		clauses = append(clauses, "("+strings.Join(conds, " OR ")+")")
	}
	if len(clauses) == 0 {
		return "FALSE", nil, nil
	}
	return "content_type = ANY($1) AND (" + strings.Join(clauses, " OR ") + ")", args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE wildcards so words match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.IndexRecord, error) {
	var (
		rec     domain.IndexRecord
		ct      string
		price   sql.NullFloat64
		inStock sql.NullBool
	)
	err := row.Scan(&rec.SourceID, &ct, &rec.Title, &rec.Body, &rec.Excerpt, &rec.SKU,
		&rec.Categories, &rec.Tags, &price, &inStock, &rec.RelevanceBaseScore, &rec.IndexedAt)
	if err != nil {
		return domain.IndexRecord{}, err
	}
	rec.ContentType = domain.ContentType(ct)
	if price.Valid {
		v := price.Float64
		rec.Price = &v
	}
	if inStock.Valid {
		v := inStock.Bool
		rec.InStock = &v
	}
	return rec, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
