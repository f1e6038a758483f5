package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func scanDocument(scanner interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	var uploadedBy sql.NullInt64
	err := scanner.Scan(
		&d.ID, &d.OrganizationID, &d.Title, &d.Description, &d.Category, &d.Filename,
		&d.ObjectKey, &d.ContentType, &d.SizeBytes, &uploadedBy, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.UploadedBy = int64Ptr(uploadedBy)
	return &d, nil
}

const documentCols = `id, organization_id, title, description, category, filename, object_key,
	content_type, size_bytes, uploaded_by, created_at`

func (s *DocumentStore) Create(d *model.Document) (*model.Document, error) {
	result, err := s.db.Exec(
		`INSERT INTO documents (organization_id, title, description, category, filename, object_key,
		   content_type, size_bytes, uploaded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.OrganizationID, d.Title, d.Description, d.Category, d.Filename, d.ObjectKey,
		d.ContentType, d.SizeBytes, nullInt64(d.UploadedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(d.OrganizationID, id)
}

func (s *DocumentStore) GetByID(organizationID, id int64) (*model.Document, error) {
	row := s.db.QueryRow(`SELECT `+documentCols+` FROM documents WHERE id = ? AND organization_id = ?`, id, organizationID)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *DocumentStore) List(organizationID int64, category string) ([]model.Document, error) {
	query := `SELECT ` + documentCols + ` FROM documents WHERE organization_id = ?`
	args := []any{organizationID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *DocumentStore) Delete(organizationID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
