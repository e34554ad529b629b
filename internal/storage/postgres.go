package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/vigilant-eye/facewatch/internal/config"
	"github.com/vigilant-eye/facewatch/internal/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateNationalID = errors.New("national id already registered")
)

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

// NewPostgresStoreDSN connects with an explicit connection string.
func NewPostgresStoreDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Citizens ---

const citizenColumns = `id, name, national_id, address, picture_key, status, created_at, updated_at`

func scanCitizen(row pgx.Row, c *models.Citizen) error {
	return row.Scan(&c.ID, &c.Name, &c.NationalID, &c.Address, &c.PictureKey, &c.Status, &c.CreatedAt, &c.UpdatedAt)
}

// CreateCitizen inserts c, assigning its id and timestamps. New citizens are Free.
func (s *PostgresStore) CreateCitizen(ctx context.Context, c *models.Citizen) error {
	c.ID = uuid.New()
	if !c.Status.Known() {
		c.Status = models.CitizenStatusFree
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO citizens (id, name, national_id, address, picture_key, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		c.ID, c.Name, c.NationalID, c.Address, c.PictureKey, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateNationalID
		}
		return fmt.Errorf("create citizen: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCitizen(ctx context.Context, id uuid.UUID) (*models.Citizen, error) {
	c := &models.Citizen{}
	err := scanCitizen(s.pool.QueryRow(ctx,
		`SELECT `+citizenColumns+` FROM citizens WHERE id = $1`, id), c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get citizen: %w", err)
	}
	return c, nil
}

// ListCitizens returns the registry in registration order.
func (s *PostgresStore) ListCitizens(ctx context.Context) ([]models.Citizen, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+citizenColumns+` FROM citizens ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list citizens: %w", err)
	}
	defer rows.Close()

	var citizens []models.Citizen
	for rows.Next() {
		var c models.Citizen
		if err := scanCitizen(rows, &c); err != nil {
			return nil, fmt.Errorf("scan citizen: %w", err)
		}
		citizens = append(citizens, c)
	}
	return citizens, rows.Err()
}

func (s *PostgresStore) UpdateCitizenStatus(ctx context.Context, id uuid.UUID, status models.CitizenStatus) (*models.Citizen, error) {
	c := &models.Citizen{}
	err := scanCitizen(s.pool.QueryRow(ctx,
		`UPDATE citizens SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING `+citizenColumns,
		status, id), c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update citizen status: %w", err)
	}
	return c, nil
}

// --- Detections ---

// SaveDetection writes the event and its matches in one transaction. Ids and
// timestamps are assigned here; matches are linked to the event.
func (s *PostgresStore) SaveDetection(ctx context.Context, ev *models.DetectionEvent, matches []models.DetectionMatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin detection tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO detection_events (id, image_name, image_key, total_faces, known_faces, unknown_faces, processing_seconds, method, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at, updated_at`,
		ev.ID, ev.ImageName, ev.ImageKey, ev.TotalFaces, ev.KnownFaces, ev.UnknownFaces,
		ev.ProcessingSeconds, ev.Method, ev.UserID,
	).Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert detection event: %w", err)
	}

	for i := range matches {
		m := &matches[i]
		m.ID = uuid.New()
		m.EventID = ev.ID
		var vec *pgvector.Vector
		if len(m.Embedding) > 0 {
			v := pgvector.NewVector(m.Embedding)
			vec = &v
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO detection_matches (id, event_id, face_index, matched_person_id, confidence, is_match, face_top, face_right, face_bottom, face_left, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING created_at`,
			m.ID, m.EventID, i, m.MatchedPersonID, m.Confidence, m.IsMatch,
			m.Box.Top, m.Box.Right, m.Box.Bottom, m.Box.Left, vec,
		).Scan(&m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert detection match %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit detection: %w", err)
	}
	return nil
}

const eventColumns = `id, image_name, image_key, total_faces, known_faces, unknown_faces, processing_seconds, method, user_id, created_at, updated_at`

func scanEvent(row pgx.Row, ev *models.DetectionEvent) error {
	return row.Scan(&ev.ID, &ev.ImageName, &ev.ImageKey, &ev.TotalFaces, &ev.KnownFaces, &ev.UnknownFaces,
		&ev.ProcessingSeconds, &ev.Method, &ev.UserID, &ev.CreatedAt, &ev.UpdatedAt)
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]models.DetectionEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query detection events: %w", err)
	}
	defer rows.Close()

	var events []models.DetectionEvent
	for rows.Next() {
		var ev models.DetectionEvent
		if err := scanEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan detection event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListEvents returns a page of events, newest first, and the total count.
func (s *PostgresStore) ListEvents(ctx context.Context, limit, offset int) ([]models.DetectionEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM detection_events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detection events: %w", err)
	}

	events, err := s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM detection_events ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListEventsSince returns events created at or after since, newest first.
func (s *PostgresStore) ListEventsSince(ctx context.Context, since time.Time) ([]models.DetectionEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM detection_events WHERE created_at >= $1 ORDER BY created_at DESC, id`,
		since)
}

// GetEvent returns an event with its matches in face order.
func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.DetectionEvent, []models.DetectionMatch, error) {
	ev := &models.DetectionEvent{}
	err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM detection_events WHERE id = $1`, id), ev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get detection event: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, matched_person_id, confidence, is_match, face_top, face_right, face_bottom, face_left, created_at
		 FROM detection_matches WHERE event_id = $1 ORDER BY face_index`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list detection matches: %w", err)
	}
	defer rows.Close()

	var matches []models.DetectionMatch
	for rows.Next() {
		var m models.DetectionMatch
		if err := rows.Scan(&m.ID, &m.EventID, &m.MatchedPersonID, &m.Confidence, &m.IsMatch,
			&m.Box.Top, &m.Box.Right, &m.Box.Bottom, &m.Box.Left, &m.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan detection match: %w", err)
		}
		matches = append(matches, m)
	}
	return ev, matches, rows.Err()
}

// ListPersonMatchesSince returns positive matches with a resolved citizen
// created at or after since.
func (s *PostgresStore) ListPersonMatchesSince(ctx context.Context, since time.Time) ([]models.PersonMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.event_id, m.matched_person_id, c.name, c.national_id, c.status, m.confidence, m.created_at
		 FROM detection_matches m
		 JOIN citizens c ON c.id = m.matched_person_id
		 WHERE m.is_match AND m.created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("list person matches: %w", err)
	}
	defer rows.Close()

	var out []models.PersonMatch
	for rows.Next() {
		var pm models.PersonMatch
		if err := rows.Scan(&pm.EventID, &pm.PersonID, &pm.Name, &pm.NationalID, &pm.Status, &pm.Confidence, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person match: %w", err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}
