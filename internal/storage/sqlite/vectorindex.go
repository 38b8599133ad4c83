package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// VectorDimension is the fixed embedding dimension the index accepts and
// returns. Vectors of any other length are rejected by Upsert.
const VectorDimension = 384

const timeLayout = time.RFC3339Nano

// VectorIndex implements storage.VectorIndex over an embedded SQLite table,
// serialising each vector as a little-endian float32 blob. There is no
// approximate-nearest-neighbour index; Search is brute force over the
// filtered candidate set, which is adequate for the single-node, rolling-
// window scale this system targets (see spec.md §4.2).
type VectorIndex struct {
	db *sql.DB
}

// NewVectorIndex opens (or creates) a SQLite-backed vector index at dsn.
// Like the MetaStore, it serialises writers to a single connection and
// enables WAL mode so readers are never blocked by a writer.
func NewVectorIndex(dsn string) (*VectorIndex, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: failed to create schema: %w", err)
	}

	return &VectorIndex{db: db}, nil
}

// NewVectorIndexFromDB wraps an already-open connection, for callers (such
// as cmd/amonhen-pipeline, passing MetaStore.DB()) that share one SQLite
// file between the two substrates.
func NewVectorIndexFromDB(db *sql.DB) *VectorIndex {
	return &VectorIndex{db: db}
}

func (v *VectorIndex) Upsert(ctx context.Context, id string, vector []float32, payload storage.VectorPayload) error {
	if len(vector) != VectorDimension {
		return fmt.Errorf("%w: vector has dimension %d, want %d", storage.ErrInvalidInput, len(vector), VectorDimension)
	}

	blob := serializeVector(vector)
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO vectors (id, vector_blob, dimension, source_family, source_name, published_at, title, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector_blob = excluded.vector_blob,
			dimension = excluded.dimension,
			source_family = excluded.source_family,
			source_name = excluded.source_name,
			published_at = excluded.published_at,
			title = excluded.title,
			summary = excluded.summary
	`, id, blob, VectorDimension, string(payload.SourceFamily), payload.SourceName,
		payload.PublishedAt.UTC().Format(timeLayout), payload.Title, payload.Summary)
	if err != nil {
		return fmt.Errorf("vectorindex: upsert failed: %w", err)
	}
	return nil
}

func (v *VectorIndex) Search(ctx context.Context, query []float32, limit int, family *types.SourceFamily, since *time.Time) ([]storage.SearchResult, error) {
	rows, payloads, err := v.scanCandidates(ctx, family, since)
	if err != nil {
		return nil, err
	}

	results := make([]storage.SearchResult, 0, len(rows))
	for id, vec := range rows {
		results = append(results, storage.SearchResult{
			ID:      id,
			Score:   cosineSimilarity(query, vec),
			Payload: payloads[id],
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (v *VectorIndex) ScrollAll(ctx context.Context, since *time.Time) ([]string, [][]float32, error) {
	rows, _, err := v.scanCandidates(ctx, nil, since)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(rows))
	vectors := make([][]float32, 0, len(rows))
	for id, vec := range rows {
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	return ids, vectors, nil
}

func (v *VectorIndex) GetByIDs(ctx context.Context, ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, vector_blob, dimension FROM vectors WHERE id IN (%s)", joinPlaceholders(placeholders))

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get by ids failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			return nil, fmt.Errorf("vectorindex: scan failed: %w", err)
		}
		vec, err := deserializeVector(blob, dim)
		if err != nil {
			return nil, err
		}
		out[id] = vec
	}
	return out, rows.Err()
}

func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM vectors WHERE id IN (%s)", joinPlaceholders(placeholders))
	if _, err := v.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("vectorindex: delete failed: %w", err)
	}
	return nil
}

func (v *VectorIndex) CollectionInfo(ctx context.Context) (storage.CollectionInfo, error) {
	var count int
	if err := v.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&count); err != nil {
		return storage.CollectionInfo{}, fmt.Errorf("vectorindex: count failed: %w", err)
	}
	return storage.CollectionInfo{Name: "amonhen_items", PointsCount: count}, nil
}

func (v *VectorIndex) Close() error {
	return v.db.Close()
}

// scanCandidates loads every vector (and its payload) matching the optional
// family/since filters. It always reads the full matching set rather than
// paginating at the SQL layer; ScrollAll's pagination contract (spec.md
// §4.2) is about *correctness under a backend that must page internally*,
// which this single-file substrate satisfies trivially.
func (v *VectorIndex) scanCandidates(ctx context.Context, family *types.SourceFamily, since *time.Time) (map[string][]float32, map[string]storage.VectorPayload, error) {
	query := "SELECT id, vector_blob, dimension, source_family, source_name, published_at, title, summary FROM vectors WHERE 1=1"
	var args []any
	if family != nil {
		query += " AND source_family = ?"
		args = append(args, string(*family))
	}
	if since != nil {
		query += " AND published_at >= ?"
		args = append(args, since.UTC().Format(timeLayout))
	}

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("vectorindex: scan failed: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string][]float32)
	payloads := make(map[string]storage.VectorPayload)
	for rows.Next() {
		var id, sourceFamily, sourceName, publishedAt, title, summary string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim, &sourceFamily, &sourceName, &publishedAt, &title, &summary); err != nil {
			return nil, nil, fmt.Errorf("vectorindex: row scan failed: %w", err)
		}
		vec, err := deserializeVector(blob, dim)
		if err != nil {
			return nil, nil, err
		}
		published, _ := time.Parse(timeLayout, publishedAt)
		vectors[id] = vec
		payloads[id] = storage.VectorPayload{
			SourceFamily: types.SourceFamily(sourceFamily),
			SourceName:   sourceName,
			PublishedAt:  published,
			Title:        title,
			Summary:      summary,
		}
	}
	return vectors, payloads, rows.Err()
}

// serializeVector encodes a float32 vector as a little-endian binary blob.
func serializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeVector decodes a little-endian binary blob back into a float32
// vector, validating the buffer size against dimension.
func deserializeVector(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 || len(buf) != dimension*4 {
		return nil, fmt.Errorf("vectorindex: buffer size mismatch: expected %d bytes for dimension %d, got %d", dimension*4, dimension, len(buf))
	}
	vector := make([]float32, dimension)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector, nil
}

// cosineSimilarity computes dot(a,b) / (||a|| ||b|| + eps).
func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		ad, bd := float64(a[i]), float64(b[i])
		dot += ad * bd
		magA += ad * ad
		magB += bd * bd
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA)*math.Sqrt(magB) + 1e-10)
}

func joinPlaceholders(p []string) string {
	out := p[0]
	for _, s := range p[1:] {
		out += "," + s
	}
	return out
}
