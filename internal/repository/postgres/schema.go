package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is idempotent. appointments_no_overlap is what makes booking safe
// under concurrency: two SCHEDULED rows of one doctor may not share any instant
// of [start_time, end_time).
const schema = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('PATIENT', 'DOCTOR', 'ADMIN')),
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS doctors (
	id                  UUID PRIMARY KEY REFERENCES accounts (id),
	specialty           TEXT NOT NULL,
	experience_years    INTEGER NOT NULL DEFAULT 0,
	credential_url      TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	verification_status TEXT NOT NULL CHECK (verification_status IN ('PENDING', 'VERIFIED', 'REJECTED')),
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_doctors_status_created ON doctors (verification_status, created_at);

CREATE TABLE IF NOT EXISTS appointments (
	id               UUID PRIMARY KEY,
	patient_id       UUID NOT NULL REFERENCES accounts (id),
	doctor_id        UUID NOT NULL REFERENCES doctors (id),
	start_time       TIMESTAMPTZ NOT NULL,
	end_time         TIMESTAMPTZ NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('SCHEDULED', 'COMPLETED', 'CANCELLED')),
	notes            TEXT NOT NULL DEFAULT '',
	video_session_id TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	CONSTRAINT appointments_interval_check CHECK (end_time > start_time),
	CONSTRAINT appointments_no_overlap EXCLUDE USING gist (
		doctor_id WITH =,
		tstzrange(start_time, end_time, '[)') WITH &&
	) WHERE (status = 'SCHEDULED')
);

CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id, start_time);
CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments (doctor_id, start_time);

CREATE TABLE IF NOT EXISTS outbox_events (
	id            UUID PRIMARY KEY,
	event_type    TEXT NOT NULL,
	payload       JSONB NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	processed_at  TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_events_status_created ON outbox_events (status, created_at);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
