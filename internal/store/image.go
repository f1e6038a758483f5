package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

type ImageStore struct {
	db *sql.DB
}

func NewImageStore(db *sql.DB) *ImageStore {
	return &ImageStore{db: db}
}

func scanImage(scanner interface{ Scan(...any) error }) (*model.Image, error) {
	var img model.Image
	err := scanner.Scan(
		&img.ID, &img.OrganizationID, &img.Filename, &img.ObjectKey, &img.ContentType,
		&img.SizeBytes, &img.UsageCount, &img.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

const imageCols = `id, organization_id, filename, object_key, content_type, size_bytes, usage_count, created_at`

func (s *ImageStore) Create(organizationID int64, filename, objectKey, contentType string, size int64) (*model.Image, error) {
	result, err := s.db.Exec(
		`INSERT INTO images (organization_id, filename, object_key, content_type, size_bytes) VALUES (?, ?, ?, ?, ?)`,
		organizationID, filename, objectKey, contentType, size,
	)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(organizationID, id)
}

func (s *ImageStore) GetByID(organizationID, id int64) (*model.Image, error) {
	row := s.db.QueryRow(`SELECT `+imageCols+` FROM images WHERE id = ? AND organization_id = ?`, id, organizationID)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func (s *ImageStore) List(organizationID int64) ([]model.Image, error) {
	rows, err := s.db.Query(
		`SELECT `+imageCols+` FROM images WHERE organization_id = ? ORDER BY created_at DESC, id DESC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, *img)
	}
	return out, rows.Err()
}

// Delete removes an image row and returns its object key. While checklist
// items reference the image it returns ErrInUse, unless force is set, in
// which case the references are cleared first.
func (s *ImageStore) Delete(organizationID, id int64, force bool) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var key string
	var refs int
	err = tx.QueryRow(
		`SELECT object_key, (SELECT COUNT(*) FROM checklist_items WHERE image_id = images.id)
		 FROM images WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	).Scan(&key, &refs)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get image: %w", err)
	}
	if refs > 0 {
		if !force {
			return "", ErrInUse
		}
		if _, err := tx.Exec(`UPDATE checklist_items SET image_id = NULL WHERE image_id = ?`, id); err != nil {
			return "", fmt.Errorf("clear image references: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM images WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("delete image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return key, nil
}

// Reconcile recomputes every usage count of the organization from the
// checklist items that reference each image and returns the corrections made.
func (s *ImageStore) Reconcile(organizationID int64) ([]model.UsageCorrection, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT i.id, i.usage_count, (SELECT COUNT(*) FROM checklist_items ci WHERE ci.image_id = i.id)
		 FROM images i WHERE i.organization_id = ?`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("count image references: %w", err)
	}
	corrections := []model.UsageCorrection{}
	for rows.Next() {
		var c model.UsageCorrection
		if err := rows.Scan(&c.ImageID, &c.Previous, &c.Actual); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan image usage: %w", err)
		}
		if c.Previous != c.Actual {
			corrections = append(corrections, c)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range corrections {
		if _, err := tx.Exec(`UPDATE images SET usage_count = ? WHERE id = ?`, c.Actual, c.ImageID); err != nil {
			return nil, fmt.Errorf("fix usage count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return corrections, nil
}
