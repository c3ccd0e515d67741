package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS scaling_operations (
	id              UUID PRIMARY KEY,
	vmid            INTEGER NOT NULL,
	action          TEXT NOT NULL,
	reason          TEXT NOT NULL,
	prev_cores      INTEGER NOT NULL,
	prev_memory_mb  INTEGER NOT NULL,
	new_cores       INTEGER NOT NULL,
	new_memory_mb   INTEGER NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ NOT NULL,
	success         BOOLEAN NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	dry_run         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_scaling_operations_vmid
	ON scaling_operations (vmid, started_at DESC);

CREATE INDEX IF NOT EXISTS idx_scaling_operations_started_at
	ON scaling_operations (started_at DESC);
`

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply database schema: %w", err)
	}
	return nil
}
