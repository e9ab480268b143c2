package menu

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price, category, COALESCE(image, ''), created_at, updated_at
		FROM menu_items
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.Image, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu items: %w", err)
	}

	return items, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Item, error) {
	var item Item
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, category, COALESCE(image, ''), created_at, updated_at
		FROM menu_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.Image, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("query menu item: %w", err)
	}

	return item, nil
}

func (r *Repository) Create(ctx context.Context, item Item) (Item, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Item{}, fmt.Errorf("generate menu item id: %w", err)
	}

	now := time.Now().UTC()
	item.ID = id.String()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, description, price, category, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $7)
	`, item.ID, item.Name, item.Description, item.Price, item.Category, item.Image, now)
	if err != nil {
		return Item{}, fmt.Errorf("insert menu item: %w", err)
	}

	return item, nil
}

func (r *Repository) Update(ctx context.Context, item Item) (Item, error) {
	item.UpdatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		UPDATE menu_items
		SET name = $2, description = $3, price = $4, category = $5, image = NULLIF($6, ''), updated_at = $7
		WHERE id = $1
		RETURNING created_at
	`, item.ID, item.Name, item.Description, item.Price, item.Category, item.Image, item.UpdatedAt).
		Scan(&item.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("update menu item: %w", err)
	}

	return item, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
