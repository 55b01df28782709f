package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id              UUID PRIMARY KEY,
	title           TEXT NOT NULL,
	price           NUMERIC NOT NULL CHECK (price >= 0),
	total_copies    INT NOT NULL CHECK (total_copies >= 0),
	borrowed_copies INT NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (borrowed_copies BETWEEN 0 AND total_copies)
);

CREATE TABLE IF NOT EXISTS borrowing_groups (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	leader_id   UUID NOT NULL,
	max_members INT NOT NULL DEFAULT 6 CHECK (max_members BETWEEN 3 AND 6),
	total_fines NUMERIC NOT NULL DEFAULT 0,
	disbanded   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id UUID NOT NULL REFERENCES borrowing_groups (id),
	user_id  UUID NOT NULL,
	position INT NOT NULL,
	PRIMARY KEY (group_id, user_id)
);

CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members (user_id);

CREATE TABLE IF NOT EXISTS fine_balances (
	user_id    UUID PRIMARY KEY,
	balance    NUMERIC NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS loans (
	id           UUID PRIMARY KEY,
	book_id      UUID NOT NULL,
	borrower_id  UUID NOT NULL,
	group_id     UUID,
	borrowed_at  TIMESTAMPTZ NOT NULL,
	due_at       TIMESTAMPTZ NOT NULL,
	returned_at  TIMESTAMPTZ,
	state        TEXT NOT NULL CHECK (state IN ('borrowed', 'overdue', 'returned', 'lost', 'damaged')),
	condition    TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	fine_amount  NUMERIC NOT NULL DEFAULT 0 CHECK (fine_amount >= 0),
	fine_reason  TEXT NOT NULL DEFAULT '',
	fine_paid    BOOLEAN NOT NULL DEFAULT FALSE,
	fine_paid_at TIMESTAMPTZ,
	fine_shares  JSONB NOT NULL DEFAULT '[]',
	holds_copy   BOOLEAN NOT NULL DEFAULT TRUE,
	version      INT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS loans_borrower_idx ON loans (borrower_id, state);
CREATE INDEX IF NOT EXISTS loans_group_idx ON loans (group_id, state);
CREATE INDEX IF NOT EXISTS loans_due_idx ON loans (due_at) WHERE state IN ('borrowed', 'overdue');

-- One active loan per individual borrower and per group.
CREATE UNIQUE INDEX IF NOT EXISTS loans_one_active_individual
	ON loans (borrower_id) WHERE group_id IS NULL AND state IN ('borrowed', 'overdue');
CREATE UNIQUE INDEX IF NOT EXISTS loans_one_active_group
	ON loans (group_id) WHERE group_id IS NOT NULL AND state IN ('borrowed', 'overdue');

CREATE TABLE IF NOT EXISTS loan_events (
	id         BIGSERIAL PRIMARY KEY,
	loan_id    UUID NOT NULL REFERENCES loans (id),
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL,
	version    INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (loan_id, version)
);
`

// Migrate creates the tables the store needs if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
