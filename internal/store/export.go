package store

import (
	"database/sql"
	"fmt"
)

// exportTables lists the organization-scoped tables included in an export,
// with the filter selecting the organization's rows.
var exportTables = []struct {
	name   string
	filter string
}{
	{"organizations", "id = ?"},
	{"organization_members", "organization_id = ?"},
	{"family_groups", "organization_id = ?"},
	{"host_members", "family_group_id IN (SELECT id FROM family_groups WHERE organization_id = ?)"},
	{"settings", "organization_id = ?"},
	{"rotation_orders", "organization_id = ?"},
	{"time_period_usage", "organization_id = ?"},
	{"selection_status", "organization_id = ?"},
	{"reservations", "organization_id = ?"},
	{"payments", "organization_id = ?"},
	{"recurring_bills", "organization_id = ?"},
	{"bill_payments", "bill_id IN (SELECT id FROM recurring_bills WHERE organization_id = ?)"},
	{"receipts", "organization_id = ?"},
	{"images", "organization_id = ?"},
	{"checklists", "organization_id = ?"},
	{"checklist_items", "checklist_id IN (SELECT id FROM checklists WHERE organization_id = ?)"},
	{"checkin_sessions", "organization_id = ?"},
	{"documents", "organization_id = ?"},
	{"shared_notes", "organization_id = ?"},
}

type ExportStore struct {
	db *sql.DB
}

func NewExportStore(db *sql.DB) *ExportStore {
	return &ExportStore{db: db}
}

// Organization returns every row belonging to the organization, keyed by
// table name. Each row maps column names to values.
func (s *ExportStore) Organization(organizationID int64) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(exportTables))
	for _, t := range exportTables {
		rows, err := s.db.Query(`SELECT * FROM `+t.name+` WHERE `+t.filter, organizationID)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t.name, err)
		}
		records, err := collectRecords(rows)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t.name, err)
		}
		out[t.name] = records
	}
	return out, nil
}

func collectRecords(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	records := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
