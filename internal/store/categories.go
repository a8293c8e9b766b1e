package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"capset/internal/models"
)

const categoryColumns = "id, name, required, created_at"

// NewCategoryID returns an unused category id.
func (t *Tx) NewCategoryID(ctx context.Context) (string, error) {
	return GenerateID(CategoryIDPrefix, func(id string) (bool, error) {
		return t.exists(ctx, "SELECT 1 FROM categories WHERE id = ? LIMIT 1", id)
	})
}

// InsertCategory inserts one category row.
func (t *Tx) InsertCategory(ctx context.Context, category *models.Category) error {
	if category == nil {
		return fmt.Errorf("category is required")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO categories (id, name, required, created_at) VALUES (?, ?, ?, ?)`,
		category.ID, category.Name, boolToInt(category.Required), formatTime(category.CreatedAt))
	return err
}

// GetCategory returns a category by id, or nil when absent.
func (t *Tx) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	return scanCategory(t.tx.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
}

// GetCategoryByName returns a category by exact name, or nil when absent.
func (t *Tx) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	return scanCategory(t.tx.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = ?`, name))
}

// UpdateCategory writes name and required flag for one category.
func (t *Tx) UpdateCategory(ctx context.Context, category models.Category) (bool, error) {
	return t.execAffected(ctx, "UPDATE categories SET name = ?, required = ? WHERE id = ?",
		category.Name, boolToInt(category.Required), category.ID)
}

// DeleteCategory deletes one category. Caption links cascade.
func (t *Tx) DeleteCategory(ctx context.Context, id string) (bool, error) {
	return t.execAffected(ctx, "DELETE FROM categories WHERE id = ?", id)
}

// ListCategories lists all categories ordered by name.
func (t *Tx) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *category)
	}
	return categories, rows.Err()
}

func scanCategory(scanner rowScanner) (*models.Category, error) {
	category := models.Category{}
	var required int
	var createdAt string
	if err := scanner.Scan(&category.ID, &category.Name, &required, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	category.Required = required != 0
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	category.CreatedAt = parsed
	return &category, nil
}
