package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// MetaStore implements storage.MetaStore using SQLite.
type MetaStore struct {
	db *sql.DB
}

// DB exposes the underlying connection so a VectorIndex can be opened
// against the same SQLite file (see sqlite.NewVectorIndexFromDB).
func (s *MetaStore) DB() *sql.DB {
	return s.db
}

// NewMetaStore creates a new SQLite metadata store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a
// crashed process), it verifies no other process holds them and retries
// once after removing the stale -shm/-wal files.
func NewMetaStore(dsn string) (*MetaStore, error) {
	store, err := openMetaStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openMetaStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func openMetaStore(dsn string) (*MetaStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MetaStore{db: db}, nil
}

// --- Items ---

func (s *MetaStore) InsertItem(ctx context.Context, item *types.EnrichedItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: item id is required", storage.ErrInvalidInput)
	}

	entitiesJSON, err := json.Marshal(item.Entities)
	if err != nil {
		return fmt.Errorf("sqlite: marshal entities: %w", err)
	}
	claimsJSON, err := json.Marshal(item.Claims)
	if err != nil {
		return fmt.Errorf("sqlite: marshal claims: %w", err)
	}
	tagsJSON, err := json.Marshal(item.TopicTags)
	if err != nil {
		return fmt.Errorf("sqlite: marshal topic tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, source_family, source_name, source_url, title,
			published_at, ingested_at, language,
			summary, entities_json, claims_json, framing,
			sentiment, topic_tags_json,
			embedding_id, embedding_model,
			cluster_id, cluster_label,
			enrichment_model, enrichment_cost_usd
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.SourceFamily), item.SourceName, item.SourceURL, item.Title,
		item.PublishedAt.UTC().Format(timeLayout), item.IngestedAt.UTC().Format(timeLayout), item.Language,
		item.Summary, string(entitiesJSON), string(claimsJSON), item.Framing,
		item.Sentiment, string(tagsJSON),
		item.EmbeddingID, item.EmbeddingModel,
		item.ClusterID, item.ClusterLabel,
		item.EnrichmentModel, item.EnrichmentCostUSD,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: items.source_url") {
			return storage.ErrDuplicateURL
		}
		return fmt.Errorf("sqlite: insert item failed: %w", err)
	}
	return nil
}

func (s *MetaStore) GetItem(ctx context.Context, id string) (*types.EnrichedItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT * FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get item failed: %w", err)
	}
	return item, nil
}

func (s *MetaStore) GetItems(ctx context.Context, since *time.Time, limit int, family *types.SourceFamily) ([]*types.EnrichedItem, error) {
	query := "SELECT * FROM items WHERE archived = 0"
	var args []any
	if since != nil {
		query += " AND published_at >= ?"
		args = append(args, since.UTC().Format(timeLayout))
	}
	if family != nil {
		query += " AND source_family = ?"
		args = append(args, string(*family))
	}
	query += " ORDER BY published_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get items failed: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *MetaStore) GetItemsByCluster(ctx context.Context, clusterID string) ([]*types.EnrichedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT * FROM items WHERE cluster_id = ? AND archived = 0 ORDER BY published_at DESC", clusterID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get items by cluster failed: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *MetaStore) ItemURLExists(ctx context.Context, url string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM items WHERE source_url = ?", url).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: item url exists failed: %w", err)
	}
	return true, nil
}

func (s *MetaStore) UpdateItemCluster(ctx context.Context, itemID, clusterID, clusterLabel string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE items SET cluster_id = ?, cluster_label = ? WHERE id = ?", clusterID, clusterLabel, itemID)
	if err != nil {
		return fmt.Errorf("sqlite: update item cluster failed: %w", err)
	}
	return nil
}

func (s *MetaStore) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE items SET archived = 1 WHERE published_at < ? AND archived = 0", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: archive older than failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: archive older than rows affected: %w", err)
	}
	return int(n), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (*types.EnrichedItem, error) {
	var item types.EnrichedItem
	var entitiesJSON, claimsJSON, tagsJSON string
	var publishedAt, ingestedAt string
	var clusterID, clusterLabel sql.NullString

	err := row.Scan(
		&item.ID, &item.SourceFamily, &item.SourceName, &item.SourceURL, &item.Title,
		&publishedAt, &ingestedAt, &item.Language,
		&item.Summary, &entitiesJSON, &claimsJSON, &item.Framing,
		&item.Sentiment, &tagsJSON,
		&item.EmbeddingID, &item.EmbeddingModel,
		&clusterID, &clusterLabel,
		&item.EnrichmentModel, &item.EnrichmentCostUSD, &item.Archived,
	)
	if err != nil {
		return nil, err
	}

	if item.PublishedAt, err = time.Parse(timeLayout, publishedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse published_at: %w", err)
	}
	if item.IngestedAt, err = time.Parse(timeLayout, ingestedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse ingested_at: %w", err)
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &item.Entities); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal entities: %w", err)
	}
	if err := json.Unmarshal([]byte(claimsJSON), &item.Claims); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal claims: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &item.TopicTags); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal topic tags: %w", err)
	}
	if clusterID.Valid {
		item.ClusterID = &clusterID.String
	}
	if clusterLabel.Valid {
		item.ClusterLabel = &clusterLabel.String
	}

	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*types.EnrichedItem, error) {
	var items []*types.EnrichedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan item failed: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Clusters ---

func (s *MetaStore) UpsertCluster(ctx context.Context, cluster *types.NarrativeCluster) error {
	if cluster == nil || cluster.ID == "" {
		return fmt.Errorf("%w: cluster id is required", storage.ErrInvalidInput)
	}

	centroidJSON, err := json.Marshal(cluster.Centroid)
	if err != nil {
		return fmt.Errorf("sqlite: marshal centroid: %w", err)
	}
	sourceDistJSON, err := json.Marshal(cluster.SourceDistribution)
	if err != nil {
		return fmt.Errorf("sqlite: marshal source distribution: %w", err)
	}
	sentimentDistJSON, err := json.Marshal(cluster.SentimentDistribution)
	if err != nil {
		return fmt.Errorf("sqlite: marshal sentiment distribution: %w", err)
	}
	entitiesJSON, err := json.Marshal(cluster.KeyEntities)
	if err != nil {
		return fmt.Errorf("sqlite: marshal key entities: %w", err)
	}
	claimsJSON, err := json.Marshal(cluster.KeyClaims)
	if err != nil {
		return fmt.Errorf("sqlite: marshal key claims: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clusters (
			id, label, summary, item_count,
			first_seen, last_updated,
			centroid_json, source_distribution_json,
			sentiment_distribution_json,
			key_entities_json, key_claims_json,
			status, parent_cluster_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			summary = excluded.summary,
			item_count = excluded.item_count,
			first_seen = excluded.first_seen,
			last_updated = excluded.last_updated,
			centroid_json = excluded.centroid_json,
			source_distribution_json = excluded.source_distribution_json,
			sentiment_distribution_json = excluded.sentiment_distribution_json,
			key_entities_json = excluded.key_entities_json,
			key_claims_json = excluded.key_claims_json,
			status = excluded.status,
			parent_cluster_id = excluded.parent_cluster_id
	`,
		cluster.ID, cluster.Label, cluster.Summary, cluster.ItemCount,
		cluster.FirstSeen.UTC().Format(timeLayout), cluster.LastUpdated.UTC().Format(timeLayout),
		string(centroidJSON), string(sourceDistJSON),
		string(sentimentDistJSON),
		string(entitiesJSON), string(claimsJSON),
		string(cluster.Status), cluster.ParentClusterID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert cluster failed: %w", err)
	}
	return nil
}

func (s *MetaStore) GetCluster(ctx context.Context, id string) (*types.NarrativeCluster, error) {
	row := s.db.QueryRowContext(ctx, "SELECT * FROM clusters WHERE id = ?", id)
	cluster, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get cluster failed: %w", err)
	}
	return cluster, nil
}

func (s *MetaStore) GetActiveClusters(ctx context.Context) ([]*types.NarrativeCluster, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT * FROM clusters WHERE status IN ('emerging', 'active') ORDER BY item_count DESC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: get active clusters failed: %w", err)
	}
	defer rows.Close()

	var clusters []*types.NarrativeCluster
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan cluster failed: %w", err)
		}
		clusters = append(clusters, cluster)
	}
	return clusters, rows.Err()
}

func (s *MetaStore) UpdateClusterStatus(ctx context.Context, id string, status types.ClusterStatus) error {
	_, err := s.db.ExecContext(ctx, "UPDATE clusters SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("sqlite: update cluster status failed: %w", err)
	}
	return nil
}

func scanCluster(row scannable) (*types.NarrativeCluster, error) {
	var cluster types.NarrativeCluster
	var firstSeen, lastUpdated string
	var centroidJSON, sourceDistJSON, sentimentDistJSON, entitiesJSON, claimsJSON string
	var status string
	var parentClusterID sql.NullString

	err := row.Scan(
		&cluster.ID, &cluster.Label, &cluster.Summary, &cluster.ItemCount,
		&firstSeen, &lastUpdated,
		&centroidJSON, &sourceDistJSON,
		&sentimentDistJSON,
		&entitiesJSON, &claimsJSON,
		&status, &parentClusterID,
	)
	if err != nil {
		return nil, err
	}

	if cluster.FirstSeen, err = time.Parse(timeLayout, firstSeen); err != nil {
		return nil, fmt.Errorf("sqlite: parse first_seen: %w", err)
	}
	if cluster.LastUpdated, err = time.Parse(timeLayout, lastUpdated); err != nil {
		return nil, fmt.Errorf("sqlite: parse last_updated: %w", err)
	}
	if err := json.Unmarshal([]byte(centroidJSON), &cluster.Centroid); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal centroid: %w", err)
	}
	if err := json.Unmarshal([]byte(sourceDistJSON), &cluster.SourceDistribution); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal source distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(sentimentDistJSON), &cluster.SentimentDistribution); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal sentiment distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &cluster.KeyEntities); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal key entities: %w", err)
	}
	if err := json.Unmarshal([]byte(claimsJSON), &cluster.KeyClaims); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal key claims: %w", err)
	}
	cluster.Status = types.ClusterStatus(status)
	if parentClusterID.Valid {
		cluster.ParentClusterID = &parentClusterID.String
	}

	return &cluster, nil
}

// --- Cluster membership ---

func (s *MetaStore) SetClusterMembership(ctx context.Context, itemID, clusterID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cluster_membership (item_id, cluster_id, assigned_at) VALUES (?, ?, ?)",
		itemID, clusterID, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: set cluster membership failed: %w", err)
	}
	return nil
}

func (s *MetaStore) ClearAllMemberships(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cluster_membership"); err != nil {
		return fmt.Errorf("sqlite: clear all memberships failed: %w", err)
	}
	return nil
}

// --- Digests ---

func (s *MetaStore) InsertDigest(ctx context.Context, digest *types.DailyDigest) error {
	if digest == nil || digest.ID == "" {
		return fmt.Errorf("%w: digest id is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO digests (id, generated_at, content, cluster_count, item_count, model) VALUES (?, ?, ?, ?, ?, ?)",
		digest.ID, digest.GeneratedAt.UTC().Format(timeLayout), digest.Content, digest.ClusterCount, digest.ItemCount, digest.Model)
	if err != nil {
		return fmt.Errorf("sqlite: insert digest failed: %w", err)
	}
	return nil
}

func (s *MetaStore) GetLatestDigest(ctx context.Context) (*types.DailyDigest, error) {
	row := s.db.QueryRowContext(ctx, "SELECT * FROM digests ORDER BY generated_at DESC LIMIT 1")
	var digest types.DailyDigest
	var generatedAt string
	err := row.Scan(&digest.ID, &generatedAt, &digest.Content, &digest.ClusterCount, &digest.ItemCount, &digest.Model)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest digest failed: %w", err)
	}
	if digest.GeneratedAt, err = time.Parse(timeLayout, generatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse generated_at: %w", err)
	}
	return &digest, nil
}

// --- Source health ---

func (s *MetaStore) UpsertSourceHealth(ctx context.Context, health *types.SourceHealth) error {
	if health == nil || health.SourceName == "" {
		return fmt.Errorf("%w: source name is required", storage.ErrInvalidInput)
	}

	var lastFetchAt, lastSuccessAt any
	if health.LastFetchAt != nil {
		lastFetchAt = health.LastFetchAt.UTC().Format(timeLayout)
	}
	if health.LastSuccessAt != nil {
		lastSuccessAt = health.LastSuccessAt.UTC().Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_status (
			source_name, source_family, last_fetch_at, last_success_at,
			items_fetched, error_count, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_name) DO UPDATE SET
			source_family = excluded.source_family,
			last_fetch_at = excluded.last_fetch_at,
			last_success_at = excluded.last_success_at,
			items_fetched = excluded.items_fetched,
			error_count = excluded.error_count,
			last_error = excluded.last_error
	`, health.SourceName, string(health.SourceFamily), lastFetchAt, lastSuccessAt,
		health.ItemsFetched, health.ErrorCount, health.LastError)
	if err != nil {
		return fmt.Errorf("sqlite: upsert source health failed: %w", err)
	}
	return nil
}

func (s *MetaStore) GetAllSourceHealth(ctx context.Context) ([]*types.SourceHealth, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM source_status ORDER BY source_name")
	if err != nil {
		return nil, fmt.Errorf("sqlite: get all source health failed: %w", err)
	}
	defer rows.Close()

	var healths []*types.SourceHealth
	for rows.Next() {
		var health types.SourceHealth
		var sourceFamily string
		var lastFetchAt, lastSuccessAt sql.NullString
		if err := rows.Scan(&health.SourceName, &sourceFamily, &lastFetchAt, &lastSuccessAt,
			&health.ItemsFetched, &health.ErrorCount, &health.LastError); err != nil {
			return nil, fmt.Errorf("sqlite: scan source health failed: %w", err)
		}
		health.SourceFamily = types.SourceFamily(sourceFamily)
		if lastFetchAt.Valid {
			t, err := time.Parse(timeLayout, lastFetchAt.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse last_fetch_at: %w", err)
			}
			health.LastFetchAt = &t
		}
		if lastSuccessAt.Valid {
			t, err := time.Parse(timeLayout, lastSuccessAt.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse last_success_at: %w", err)
			}
			health.LastSuccessAt = &t
		}
		healths = append(healths, &health)
	}
	return healths, rows.Err()
}

// --- Cost tracking ---

func (s *MetaStore) AppendCostLog(ctx context.Context, entry *types.CostLogEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: cost log entry is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cost_log (item_id, model, input_tokens, output_tokens, cost_usd, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ItemID, entry.Model, entry.InputTokens, entry.OutputTokens, entry.CostUSD, entry.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: append cost log failed: %w", err)
	}
	return nil
}

// DailyCostUSD sums cost_log entries within the UTC calendar day instant
// falls in, matching the original's midnight-to-midnight window rather than
// a trailing 24h window.
func (s *MetaStore) DailyCostUSD(ctx context.Context, instant time.Time) (float64, error) {
	instant = instant.UTC()
	dayStart := time.Date(instant.Year(), instant.Month(), instant.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := time.Date(instant.Year(), instant.Month(), instant.Day(), 23, 59, 59, 0, time.UTC)

	var total float64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(cost_usd), 0.0) FROM cost_log WHERE timestamp >= ? AND timestamp <= ?",
		dayStart.Format(timeLayout), dayEnd.Format(timeLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: daily cost failed: %w", err)
	}
	return total, nil
}

func (s *MetaStore) TotalCostUSD(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(cost_usd), 0.0) FROM cost_log").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: total cost failed: %w", err)
	}
	return total, nil
}

func (s *MetaStore) Close() error {
	return s.db.Close()
}

// --- WAL self-healing ---

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database
// path and no other process currently holds them open (via lsof). Returns
// false if lsof is unavailable (conservative: no deletion).
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
