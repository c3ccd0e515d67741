package database

import (
	"context"
	"fmt"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// SaveOperation appends one completed operation record to the audit log.
func (d *DB) SaveOperation(ctx context.Context, record models.OperationRecord) error {
	const query = `
		INSERT INTO scaling_operations (
			id, vmid, action, reason,
			prev_cores, prev_memory_mb, new_cores, new_memory_mb,
			started_at, completed_at, success, error, dry_run
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := d.conn.ExecContext(ctx, query,
		record.ID, record.VMID, record.Action, record.Reason,
		record.Previous.Cores, record.Previous.MemoryMB,
		record.New.Cores, record.New.MemoryMB,
		record.StartedAt, record.CompletedAt,
		record.Success, record.Error, record.DryRun,
	)
	if err != nil {
		return fmt.Errorf("failed to save operation record: %w", err)
	}
	return nil
}

// RecentOperations returns the newest operation records, optionally
// filtered to one container (vmid > 0).
func (d *DB) RecentOperations(ctx context.Context, vmid, limit int) ([]models.OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, vmid, action, reason,
			prev_cores, prev_memory_mb, new_cores, new_memory_mb,
			started_at, completed_at, success, error, dry_run
		FROM scaling_operations`
	args := []interface{}{}
	if vmid > 0 {
		query += ` WHERE vmid = $1 ORDER BY started_at DESC LIMIT $2`
		args = append(args, vmid, limit)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation records: %w", err)
	}
	defer rows.Close()

	var records []models.OperationRecord
	for rows.Next() {
		var r models.OperationRecord
		if err := rows.Scan(
			&r.ID, &r.VMID, &r.Action, &r.Reason,
			&r.Previous.Cores, &r.Previous.MemoryMB,
			&r.New.Cores, &r.New.MemoryMB,
			&r.StartedAt, &r.CompletedAt,
			&r.Success, &r.Error, &r.DryRun,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
