package storage

import (
	"context"
	"fmt"

	"github.com/ledgersift/ledgersift/internal/model"
)

// GetCategories returns the full taxonomy, active entries included first by
// name for stable display.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, is_active, created_at
		 FROM categories ORDER BY is_active DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.IsActive, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// AddCategory inserts a new active taxonomy entry.
func (s *SQLiteStorage) AddCategory(ctx context.Context, name, description string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, description, is_active) VALUES (?, ?, 1)`,
		name, description)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %q already exists", name)
		}
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category id: %w", err)
	}

	return &model.Category{ID: int(id), Name: name, Description: description, IsActive: true}, nil
}
