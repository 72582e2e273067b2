package eventstore

const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL DEFAULT 'chat',
	title TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_seq INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS participants (
	conversation_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	joined_at TEXT NOT NULL,
	pinned_at TEXT,
	archived_at TEXT,
	mute_until TEXT,
	last_read_seq INTEGER NOT NULL DEFAULT 0,
	last_read_at TEXT,
	PRIMARY KEY (conversation_id, user_id)
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (conversation_id, seq)
);

CREATE TABLE IF NOT EXISTS conv_messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	seq_created INTEGER NOT NULL,
	author TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	reply_to TEXT,
	edited_at TEXT,
	deleted_at TEXT,
	payload TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conv_messages_conv_seq ON conv_messages(conversation_id, seq_created);
`

// ftsSchema needs a driver built with the sqlite_fts5 tag. The store works
// without it; search then returns nothing.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS conv_messages_fts USING fts5(
	id UNINDEXED,
	conversation_id UNINDEXED,
	seq_created UNINDEXED,
	content_text,
	payload_text,
	tokenize = 'unicode61'
);
`
