package tablestore

import (
	"context"
	"database/sql"
	"fmt"
)

// Record is one row of a subsystem table.
type Record struct {
	ID   int64   `json:"id"`
	Name *string `json:"name"`
}

// Session runs statements against one table over an open handle.
type Session struct {
	db    *sql.DB
	table string
}

// CreateTable creates the table unless it exists.
func (s *Session) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INT PRIMARY KEY AUTO_INCREMENT, name VARCHAR(255))", s.table))
	return err
}

// DropTable drops the table if it exists.
func (s *Session) DropTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table))
	return err
}

// Insert adds a row. name is always bound as a parameter.
func (s *Session) Insert(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (name) VALUES (?)", s.table), name)
	return err
}

// ReadAll returns every row in result order. An empty table yields an empty slice.
func (s *Session) ReadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id, name FROM %s", s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec  Record
			name sql.NullString
		)
		if err := rows.Scan(&rec.ID, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			rec.Name = &name.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
