package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tallyboard.io/internal/jobs"
)

var (
	_ jobs.TaskStore    = (*Store)(nil)
	_ jobs.InvoiceStore = (*Store)(nil)
	_ jobs.DeleteStore  = (*Store)(nil)
)

// entityTables is the only source of table names interpolated into SQL.
var entityTables = map[jobs.Entity]string{
	jobs.EntityInvoices:  "invoices",
	jobs.EntityExpenses:  "expenses",
	jobs.EntityVendors:   "vendors",
	jobs.EntityTasks:     "tasks",
	jobs.EntityCustomers: "customers",
}

func tableFor(e jobs.Entity) (string, error) {
	t, ok := entityTables[e]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity %q", jobs.ErrInvalidInput, e)
	}
	return t, nil
}

func (s *Store) MarkOverdueTasks(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update tasks
		set status = $1, updated_at = $2
		where deleted_at is null
		  and due_date < $2
		  and status in ($3, $4)
	`, jobs.TaskOverdue, now, jobs.TaskTodo, jobs.TaskInProgress)
	if err != nil {
		return 0, fmt.Errorf("pg: mark overdue: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) OrganizationsWithUnnumberedInvoices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct organization_id
		from invoices
		where number is null and deleted_at is null
		order by organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("pg: list organizations: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// OrganizationInvoices returns every invoice of the organization, numbered
// or not and including soft-deleted ones, so the sequence can continue after
// existing numbers.
func (s *Store) OrganizationInvoices(ctx context.Context, orgID string) ([]jobs.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, coalesce(number, ''), created_at, deleted_at is not null
		from invoices
		where organization_id = $1
		order by created_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("pg: list invoices: %w", err)
	}
	defer rows.Close()
	var out []jobs.Invoice
	for rows.Next() {
		var inv jobs.Invoice
		if err := rows.Scan(&inv.ID, &inv.OrganizationID, &inv.Number, &inv.CreatedAt, &inv.Deleted); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) AssignInvoiceNumbers(ctx context.Context, orgID string, assignments []jobs.NumberAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		update invoices set number = $3
		where organization_id = $1 and id = $2 and number is null
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, orgID, a.InvoiceID, a.Number); err != nil {
			return fmt.Errorf("pg: number invoice %s: %w", a.InvoiceID, mapWriteError(err, jobs.ErrInvalidInput))
		}
	}
	return tx.Commit()
}

func (s *Store) SoftDelete(ctx context.Context, entity jobs.Entity, orgID string, ids []string, at time.Time) (int64, error) {
	table, err := tableFor(entity)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`update %s set deleted_at = $2 where organization_id = $1 and deleted_at is null and id in (%s)`,
		table, placeholders(3, len(ids)))
	args := append([]any{orgID, at}, stringArgs(ids)...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pg: soft delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *Store) HardDelete(ctx context.Context, entity jobs.Entity, orgID string, ids []string) (int64, error) {
	table, err := tableFor(entity)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`delete from %s where organization_id = $1 and id in (%s)`,
		table, placeholders(2, len(ids)))
	args := append([]any{orgID}, stringArgs(ids)...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return 0, fmt.Errorf("%w: %w: %s", ErrConflict, jobs.ErrConflict, table)
		}
		return 0, fmt.Errorf("pg: delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// placeholders returns "$start, $start+1, ..." for n values.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
