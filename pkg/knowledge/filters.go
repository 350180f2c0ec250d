package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/storage"
)

// FilterRegistry manages (category, name) filter tags and their assignments
// to knowledge entries. Filters are unique per organization on the
// (category, name) pair.
type FilterRegistry struct {
	db     *sql.DB
	schema storage.Schema
}

// NewFilterRegistry creates a filter registry.
func NewFilterRegistry(db *sql.DB, schema storage.Schema) *FilterRegistry {
	return &FilterRegistry{db: db, schema: schema}
}

// Upsert creates the filter if it does not exist and returns its id either
// way. Concurrent upserts of the same pair converge on one row.
func (f *FilterRegistry) Upsert(ctx context.Context, orgID int64, category, name string) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, category, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, category, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, f.schema.KnowledgeFilters)

	var id int64
	if err := f.db.QueryRowContext(ctx, query, orgID, category, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert filter: %w", err)
	}
	return id, nil
}

// Get retrieves a filter by id within an organization.
func (f *FilterRegistry) Get(ctx context.Context, orgID, filterID int64) (*Filter, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, category, name, created_at
		FROM %s
		WHERE id = $1 AND organization_id = $2
	`, f.schema.KnowledgeFilters)

	filter := &Filter{}
	err := f.db.QueryRowContext(ctx, query, filterID, orgID).Scan(
		&filter.ID, &filter.OrganizationID, &filter.Category, &filter.Name, &filter.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter: %w", err)
	}
	return filter, nil
}

// Rename changes a filter's name within its category.
func (f *FilterRegistry) Rename(ctx context.Context, orgID int64, category, oldName, newName string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET name = $1
		WHERE organization_id = $2 AND category = $3 AND name = $4
	`, f.schema.KnowledgeFilters)

	result, err := f.db.ExecContext(ctx, query, newName, orgID, category, oldName)
	if err != nil {
		return fmt.Errorf("failed to rename filter: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// Recategorize moves every filter in oldCategory to newCategory. The rows
// are moved one by one inside a single transaction, so a conflict on any
// row rolls the whole move back.
func (f *FilterRegistry) Recategorize(ctx context.Context, orgID int64, oldCategory, newCategory string) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE organization_id = $1 AND category = $2
		ORDER BY id
	`, f.schema.KnowledgeFilters)

	rows, err := tx.QueryContext(ctx, query, orgID, oldCategory)
	if err != nil {
		return fmt.Errorf("failed to list filters for recategorize: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan filter id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to list filters for recategorize: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return access.ErrNotFound
	}

	update := fmt.Sprintf(`UPDATE %s SET category = $1 WHERE id = $2`, f.schema.KnowledgeFilters)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, update, newCategory, id); err != nil {
			return fmt.Errorf("failed to recategorize filter %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// ListByCategory returns the organization's filters grouped by category,
// names sorted within each category.
func (f *FilterRegistry) ListByCategory(ctx context.Context, orgID int64) (map[string][]string, error) {
	query := fmt.Sprintf(`
		SELECT category, name FROM %s
		WHERE organization_id = $1
		ORDER BY category ASC, name ASC
	`, f.schema.KnowledgeFilters)

	rows, err := f.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var category, name string
		if err := rows.Scan(&category, &name); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		result[category] = append(result[category], name)
	}
	return result, rows.Err()
}

// Delete removes a filter and (via cascade) its entry assignments.
func (f *FilterRegistry) Delete(ctx context.Context, orgID, filterID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND organization_id = $2`,
		f.schema.KnowledgeFilters)
	result, err := f.db.ExecContext(ctx, query, filterID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete filter: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// AssignToEntry tags an entry with a filter. Both must belong to the given
// organization; assigning an already-assigned filter is a no-op.
func (f *FilterRegistry) AssignToEntry(ctx context.Context, orgID, entryID, filterID int64) error {
	if err := f.requireSameOrg(ctx, orgID, entryID, filterID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (knowledge_entry_id, filter_id)
		VALUES ($1, $2)
		ON CONFLICT (knowledge_entry_id, filter_id) DO NOTHING
	`, f.schema.KnowledgeEntryFilter)
	if _, err := f.db.ExecContext(ctx, query, entryID, filterID); err != nil {
		return fmt.Errorf("failed to assign filter: %w", err)
	}
	return nil
}

// RemoveFromEntry removes a filter tag from an entry.
func (f *FilterRegistry) RemoveFromEntry(ctx context.Context, orgID, entryID, filterID int64) error {
	if err := f.requireSameOrg(ctx, orgID, entryID, filterID); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE knowledge_entry_id = $1 AND filter_id = $2`,
		f.schema.KnowledgeEntryFilter)
	result, err := f.db.ExecContext(ctx, query, entryID, filterID)
	if err != nil {
		return fmt.Errorf("failed to remove filter: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// ListForEntry lists the filters assigned to an entry.
func (f *FilterRegistry) ListForEntry(ctx context.Context, orgID, entryID int64) ([]*Filter, error) {
	query := fmt.Sprintf(`
		SELECT f.id, f.organization_id, f.category, f.name, f.created_at
		FROM %s f
		JOIN %s ef ON ef.filter_id = f.id
		WHERE ef.knowledge_entry_id = $1 AND f.organization_id = $2
		ORDER BY f.category ASC, f.name ASC
	`, f.schema.KnowledgeFilters, f.schema.KnowledgeEntryFilter)

	rows, err := f.db.QueryContext(ctx, query, entryID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry filters: %w", err)
	}
	defer rows.Close()

	var filters []*Filter
	for rows.Next() {
		filter := &Filter{}
		if err := rows.Scan(&filter.ID, &filter.OrganizationID, &filter.Category,
			&filter.Name, &filter.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		filters = append(filters, filter)
	}
	return filters, rows.Err()
}

// requireSameOrg verifies the entry and the filter both resolve inside the
// organization. Either missing reads as not found.
func (f *FilterRegistry) requireSameOrg(ctx context.Context, orgID, entryID, filterID int64) error {
	query := fmt.Sprintf(`
		SELECT
			EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2),
			EXISTS (SELECT 1 FROM %s WHERE id = $3 AND organization_id = $2)
	`, f.schema.KnowledgeEntries, f.schema.KnowledgeFilters)

	var entryOK, filterOK bool
	if err := f.db.QueryRowContext(ctx, query, entryID, orgID, filterID).Scan(&entryOK, &filterOK); err != nil {
		return fmt.Errorf("failed to check filter assignment scope: %w", err)
	}
	if !entryOK || !filterOK {
		return access.ErrNotFound
	}
	return nil
}
