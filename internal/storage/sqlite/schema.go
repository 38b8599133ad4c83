package sqlite

// Schema contains the SQL statements that create the MetaStore's tables and
// indices. Nested structures (entities, claims, centroids, distributions)
// are stored as serialised JSON strings in TEXT columns.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    source_family TEXT NOT NULL,
    source_name TEXT NOT NULL,
    source_url TEXT NOT NULL UNIQUE,
    title TEXT,
    published_at TEXT NOT NULL,
    ingested_at TEXT NOT NULL,
    language TEXT DEFAULT 'en',
    summary TEXT NOT NULL,
    entities_json TEXT NOT NULL,
    claims_json TEXT NOT NULL,
    framing TEXT NOT NULL,
    sentiment REAL NOT NULL,
    topic_tags_json TEXT NOT NULL,
    embedding_id TEXT NOT NULL,
    embedding_model TEXT NOT NULL,
    cluster_id TEXT,
    cluster_label TEXT,
    enrichment_model TEXT NOT NULL,
    enrichment_cost_usd REAL NOT NULL DEFAULT 0.0,
    archived INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
CREATE INDEX IF NOT EXISTS idx_items_source_family ON items(source_family);
CREATE INDEX IF NOT EXISTS idx_items_cluster_id ON items(cluster_id);

CREATE TABLE IF NOT EXISTS clusters (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    summary TEXT NOT NULL,
    item_count INTEGER NOT NULL DEFAULT 0,
    first_seen TEXT NOT NULL,
    last_updated TEXT NOT NULL,
    centroid_json TEXT NOT NULL,
    source_distribution_json TEXT NOT NULL,
    sentiment_distribution_json TEXT NOT NULL,
    key_entities_json TEXT NOT NULL,
    key_claims_json TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'emerging',
    parent_cluster_id TEXT
);

CREATE TABLE IF NOT EXISTS cluster_membership (
    item_id TEXT NOT NULL,
    cluster_id TEXT NOT NULL,
    assigned_at TEXT NOT NULL,
    PRIMARY KEY (item_id, cluster_id)
);

CREATE TABLE IF NOT EXISTS digests (
    id TEXT PRIMARY KEY,
    generated_at TEXT NOT NULL,
    content TEXT NOT NULL,
    cluster_count INTEGER NOT NULL DEFAULT 0,
    item_count INTEGER NOT NULL DEFAULT 0,
    model TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS source_status (
    source_name TEXT PRIMARY KEY,
    source_family TEXT NOT NULL,
    last_fetch_at TEXT,
    last_success_at TEXT,
    items_fetched INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT
);

CREATE TABLE IF NOT EXISTS cost_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id TEXT NOT NULL,
    model TEXT NOT NULL,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    cost_usd REAL NOT NULL,
    timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_log_timestamp ON cost_log(timestamp);

CREATE TABLE IF NOT EXISTS vectors (
    id TEXT PRIMARY KEY,
    vector_blob BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    source_family TEXT NOT NULL,
    source_name TEXT NOT NULL,
    published_at TEXT NOT NULL,
    title TEXT,
    summary TEXT
);

CREATE INDEX IF NOT EXISTS idx_vectors_published_at ON vectors(published_at);
CREATE INDEX IF NOT EXISTS idx_vectors_source_family ON vectors(source_family);
`
