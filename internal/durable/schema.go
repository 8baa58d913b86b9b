package durable

const schemaSQL = `
CREATE TABLE IF NOT EXISTS episodes (
	id                  TEXT PRIMARY KEY,
	description         TEXT NOT NULL,
	task_type           TEXT NOT NULL,
	start_time          TEXT NOT NULL,
	end_time            TEXT,
	is_complete         INTEGER NOT NULL DEFAULT 0,
	outcome_kind        TEXT,
	context_blob        BLOB NOT NULL,
	steps_blob          BLOB NOT NULL,
	outcome_blob        BLOB,
	reward_blob         BLOB,
	reflection_blob     BLOB,
	salient_blob        BLOB,
	pattern_ids_blob    BLOB,
	applied_ids_blob    BLOB,
	heuristic_ids_blob  BLOB,
	metadata_blob       BLOB,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_start_time ON episodes(start_time);
CREATE INDEX IF NOT EXISTS idx_episodes_task_type ON episodes(task_type);
CREATE INDEX IF NOT EXISTS idx_episodes_is_complete ON episodes(is_complete);

CREATE TABLE IF NOT EXISTS episode_tags (
	episode_id TEXT NOT NULL,
	tag        TEXT NOT NULL,
	PRIMARY KEY (episode_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_episode_tags_tag ON episode_tags(tag);

CREATE TABLE IF NOT EXISTS tag_metadata (
	tag          TEXT PRIMARY KEY,
	episode_count INTEGER NOT NULL DEFAULT 0,
	last_used    TEXT
);

CREATE TABLE IF NOT EXISTS patterns (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	structural_key   TEXT NOT NULL,
	success_rate     REAL NOT NULL,
	payload_blob     BLOB NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_kind_key ON patterns(kind, structural_key);

CREATE TABLE IF NOT EXISTS heuristics (
	id          TEXT PRIMARY KEY,
	condition   TEXT NOT NULL,
	action      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	payload_blob BLOB NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	priority   INTEGER NOT NULL,
	payload_blob BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_triple ON relationships(from_id, to_id, type);

CREATE TABLE IF NOT EXISTS embeddings (
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	vector_blob BLOB NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS monitoring_events (
	agent_id   TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	payload_blob BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitoring_agent ON monitoring_events(agent_id);
`
