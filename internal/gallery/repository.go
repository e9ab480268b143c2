package gallery

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

func (r *Repository) List(ctx context.Context) ([]Image, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, category, image, created_at, updated_at
		FROM gallery_items
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query gallery items: %w", err)
	}
	defer rows.Close()

	images := make([]Image, 0)
	for rows.Next() {
		var image Image
		if err := rows.Scan(&image.ID, &image.Title, &image.Description, &image.Category, &image.Image, &image.CreatedAt, &image.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan gallery item: %w", err)
		}
		images = append(images, image)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery items: %w", err)
	}

	return images, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Image, error) {
	var image Image
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, image, created_at, updated_at
		FROM gallery_items
		WHERE id = $1
	`, id).Scan(&image.ID, &image.Title, &image.Description, &image.Category, &image.Image, &image.CreatedAt, &image.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Image{}, err
		}
		return Image{}, fmt.Errorf("query gallery item: %w", err)
	}

	return image, nil
}

func (r *Repository) Create(ctx context.Context, image Image) (Image, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Image{}, fmt.Errorf("generate gallery item id: %w", err)
	}

	now := time.Now().UTC()
	image.ID = id.String()
	image.CreatedAt = now
	image.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO gallery_items (id, title, description, category, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, image.ID, image.Title, image.Description, image.Category, image.Image, now)
	if err != nil {
		return Image{}, fmt.Errorf("insert gallery item: %w", err)
	}

	return image, nil
}

func (r *Repository) Update(ctx context.Context, image Image) (Image, error) {
	image.UpdatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		UPDATE gallery_items
		SET title = $2, description = $3, category = $4, image = $5, updated_at = $6
		WHERE id = $1
		RETURNING created_at
	`, image.ID, image.Title, image.Description, image.Category, image.Image, image.UpdatedAt).
		Scan(&image.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Image{}, err
		}
		return Image{}, fmt.Errorf("update gallery item: %w", err)
	}

	return image, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM gallery_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete gallery item: %w", err)
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
