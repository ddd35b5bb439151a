package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProgramByName resolves a program by exact, case-sensitive name.
// Returns sql.ErrNoRows when no program matches.
func (s *PostgresStore) GetProgramByName(ctx context.Context, name string) (Program, error) {
	var program Program
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM programs WHERE name=$1
	`, name).Scan(&program.ID, &program.Name, &program.CreatedAt)
	if err != nil {
		return Program{}, err
	}
	return program, nil
}

// GetInitiative resolves an initiative by name within one program.
func (s *PostgresStore) GetInitiative(ctx context.Context, programID int64, name string) (Initiative, error) {
	var item Initiative
	err := s.db.QueryRowContext(ctx, `
		SELECT id, program_id, name, description, image_url,
			mode_serve, mode_educate, mode_advocate, created_at, updated_at
		FROM initiatives
		WHERE program_id=$1 AND name=$2
	`, programID, name).Scan(
		&item.ID,
		&item.ProgramID,
		&item.Name,
		&item.Description,
		&item.ImageURL,
		&item.ModeServe,
		&item.ModeEducate,
		&item.ModeAdvocate,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Initiative{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListInitiatives(ctx context.Context, programID int64) ([]Initiative, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_id, name, description, image_url,
			mode_serve, mode_educate, mode_advocate, created_at, updated_at
		FROM initiatives
		WHERE program_id=$1
		ORDER BY created_at, id
	`, programID)
	if err != nil {
		return nil, fmt.Errorf("list initiatives: %w", err)
	}
	defer rows.Close()

	items := make([]Initiative, 0)
	for rows.Next() {
		var item Initiative
		if err := rows.Scan(
			&item.ID,
			&item.ProgramID,
			&item.Name,
			&item.Description,
			&item.ImageURL,
			&item.ModeServe,
			&item.ModeEducate,
			&item.ModeAdvocate,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan initiative: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate initiatives: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertInitiative(ctx context.Context, item Initiative) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO initiatives (program_id, name, description, image_url, mode_serve, mode_educate, mode_advocate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, item.ProgramID, item.Name, item.Description, item.ImageURL, item.ModeServe, item.ModeEducate, item.ModeAdvocate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert initiative: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateInitiative(ctx context.Context, item Initiative) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE initiatives
		SET description=$2, image_url=$3, mode_serve=$4, mode_educate=$5, mode_advocate=$6, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Description, item.ImageURL, item.ModeServe, item.ModeEducate, item.ModeAdvocate)
	if err != nil {
		return fmt.Errorf("update initiative: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteInitiative(ctx context.Context, initiativeID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM initiatives WHERE id=$1`, initiativeID)
	if err != nil {
		return fmt.Errorf("delete initiative: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMetrics(ctx context.Context, initiativeID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metrics WHERE initiative_id=$1`, initiativeID)
	if err != nil {
		return fmt.Errorf("delete metrics: %w", err)
	}
	return nil
}

// InsertMetrics bulk-inserts the replacement row set in one statement.
func (s *PostgresStore) InsertMetrics(ctx context.Context, items []Metric) error {
	if len(items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO metrics (initiative_id, label, value, ppp, date_recorded, notes, show_in_scoreboard)
		VALUES `)
	args := make([]any, 0, len(items)*7)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			item.InitiativeID,
			item.Label,
			item.Value,
			item.Category,
			item.DateRecorded,
			item.Notes,
			item.ShowInScoreboard,
		)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// ListMetrics returns every metric row for an initiative in insertion
// order, hidden rows included.
func (s *PostgresStore) ListMetrics(ctx context.Context, initiativeID int64) ([]Metric, error) {
	return s.listMetrics(ctx, initiativeID, false)
}

// ListScoreboardMetrics returns only rows flagged for the public
// scoreboard, in insertion order.
func (s *PostgresStore) ListScoreboardMetrics(ctx context.Context, initiativeID int64) ([]Metric, error) {
	return s.listMetrics(ctx, initiativeID, true)
}

func (s *PostgresStore) listMetrics(ctx context.Context, initiativeID int64, scoreboardOnly bool) ([]Metric, error) {
	query := `
		SELECT id, initiative_id, label, value, ppp, date_recorded, notes, show_in_scoreboard
		FROM metrics
		WHERE initiative_id=$1`
	if scoreboardOnly {
		query += ` AND show_in_scoreboard`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, initiativeID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	items := make([]Metric, 0)
	for rows.Next() {
		var item Metric
		if err := rows.Scan(
			&item.ID,
			&item.InitiativeID,
			&item.Label,
			&item.Value,
			&item.Category,
			&item.DateRecorded,
			&item.Notes,
			&item.ShowInScoreboard,
		); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertProgramPassword(ctx context.Context, programID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO program_passwords (program_id, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (program_id) DO UPDATE SET password_hash=EXCLUDED.password_hash, updated_at=NOW()
	`, programID, passwordHash)
	if err != nil {
		return fmt.Errorf("upsert program password: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProgramPasswordHash(ctx context.Context, programID int64) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash FROM program_passwords WHERE program_id=$1
	`, programID).Scan(&hash)
	if err != nil {
		return "", err
	}
	return hash, nil
}
