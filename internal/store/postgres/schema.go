package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed store.GraphStore implementation.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store and applies the idempotent schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.applySchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    consent_global BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed BOOLEAN NOT NULL DEFAULT FALSE,
    is_useful SMALLINT NOT NULL DEFAULT 0,
    usefulness_reason TEXT NOT NULL DEFAULT '',
    global_sharing_blocked BOOLEAN NOT NULL DEFAULT FALSE,
    deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS conversations_user_updated_idx ON conversations(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS conversations_idle_idx ON conversations(processed, updated_at) WHERE NOT deleted;

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS topics (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS topic_relations (
    id UUID PRIMARY KEY,
    topic_a UUID NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    topic_b UUID NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    strength DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    relation_type TEXT NOT NULL DEFAULT 'related',
    UNIQUE(topic_a, topic_b)
);

CREATE TABLE IF NOT EXISTS conversation_topics (
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    topic_id UUID NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (conversation_id, topic_id)
);

CREATE TABLE IF NOT EXISTS insights (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    content TEXT NOT NULL,
    importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    vector_ref TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS insights_user_idx ON insights(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS insight_topics (
    insight_id UUID NOT NULL REFERENCES insights(id) ON DELETE CASCADE,
    topic_id UUID NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (insight_id, topic_id)
);

CREATE TABLE IF NOT EXISTS global_insights (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    topic_ids TEXT[] NOT NULL DEFAULT '{}',
    use_count INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS processing_log (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL,
    user_id TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_useful BOOLEAN NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    topics_json TEXT NOT NULL DEFAULT '[]',
    insight_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS processing_log_conversation_idx ON processing_log(conversation_id, ts DESC);
`

func (s *Store) applySchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	return err
}
