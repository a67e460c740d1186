package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

const categoryColumns = `id, owner_id, name, kind, parent_id, icon, color, is_system,
	is_active, created_at, updated_at`

func scanCategory(row rowScanner) (*core.Category, error) {
	var c core.Category
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Kind, &c.ParentID, &c.Icon, &c.Color,
		&c.System, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &c, nil
}

func (r *Repository) ListCategories(ctx context.Context, ownerID string, kind core.CategoryKind) ([]core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE owner_id = ? AND is_active = 1`
	args := []any{ownerID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY kind, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, ownerID, id string) (*core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = ? AND owner_id = ?`
	return scanCategory(r.db.QueryRowContext(ctx, query, id, ownerID))
}

func (r *Repository) CreateCategory(ctx context.Context, c *core.Category) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = true
	c.CreatedAt = now
	c.UpdatedAt = now

	const query = `INSERT INTO categories (id, owner_id, name, kind, parent_id, icon, color,
		is_system, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.Name, c.Kind, c.ParentID, c.Icon, c.Color,
		c.System, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *Repository) UpdateCategory(ctx context.Context, ownerID, id string, u storage.CategoryUpdate) (*core.Category, error) {
	set := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if u.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Kind != nil {
		set = append(set, "kind = ?")
		args = append(args, *u.Kind)
	}
	if u.ParentID != nil {
		set = append(set, "parent_id = ?")
		args = append(args, *u.ParentID)
	}
	if u.Icon != nil {
		set = append(set, "icon = ?")
		args = append(args, *u.Icon)
	}
	if u.Color != nil {
		set = append(set, "color = ?")
		args = append(args, *u.Color)
	}

	query := "UPDATE categories SET " + strings.Join(set, ", ") + " WHERE id = ? AND owner_id = ?"
	args = append(args, id, ownerID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update category rows: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return r.GetCategory(ctx, ownerID, id)
}

func (r *Repository) DeactivateCategory(ctx context.Context, ownerID, id string) error {
	const query = `UPDATE categories SET is_active = 0, updated_at = ? WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("deactivate category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate category rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
