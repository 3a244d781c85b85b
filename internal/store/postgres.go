package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/city-forecast/internal/weather"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var forecastColumns = []string{"location_id", "forecast_time", "temperature", "wind_speed", "precipitation", "humidity"}

// PostgresStore implements weather.Store on PostgreSQL. Each operation runs in its own transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and pings the database.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db pool init: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, name string) (weather.User, error) {
	u := weather.User{ID: uuid.NewString(), Name: name}
	if _, err := s.pool.Exec(ctx, `INSERT INTO users (id, name) VALUES ($1, $2)`, u.ID, u.Name); err != nil {
		return weather.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateLocation(ctx context.Context, in weather.NewLocation) (weather.Location, error) {
	loc := weather.Location{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return weather.Location{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO locations (id, name, latitude, longitude) VALUES ($1, $2, $3, $4)`,
		loc.ID, loc.Name, loc.Latitude, loc.Longitude,
	)
	if err != nil {
		return weather.Location{}, fmt.Errorf("insert location: %w", err)
	}

	if in.UserID != "" {
		_, err = tx.Exec(ctx, `INSERT INTO user_locations (user_id, location_id) VALUES ($1, $2)`, in.UserID, loc.ID)
		if isPgCode(err, pgForeignKeyViolation) {
			return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrUserNotFound, in.UserID)
		}
		if err != nil {
			return weather.Location{}, fmt.Errorf("link location to user: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return weather.Location{}, fmt.Errorf("commit transaction: %w", err)
	}
	return loc, nil
}

// FindLocation returns the earliest registered location with the given name.
func (s *PostgresStore) FindLocation(ctx context.Context, name, userID string) (weather.Location, error) {
	query := `SELECT id, name, latitude, longitude FROM locations WHERE name = $1`
	args := []any{name}
	if userID != "" {
		query += ` AND id IN (SELECT location_id FROM user_locations WHERE user_id = $2)`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	var loc weather.Location
	err := s.pool.QueryRow(ctx, query, args...).Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
	}
	if err != nil {
		return weather.Location{}, fmt.Errorf("find location: %w", err)
	}
	return loc, nil
}

func (s *PostgresStore) GetLocation(ctx context.Context, id string) (weather.Location, error) {
	var loc weather.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, latitude, longitude FROM locations WHERE id = $1`, id,
	).Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, id)
	}
	if err != nil {
		return weather.Location{}, fmt.Errorf("get location: %w", err)
	}
	return loc, nil
}

// DeleteLocation removes a location; its slots and user links go with it by cascade.
func (s *PostgresStore) DeleteLocation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", weather.ErrLocationNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, userID string) ([]weather.Location, error) {
	query := `SELECT id, name, latitude, longitude FROM locations`
	var args []any
	if userID != "" {
		query += ` WHERE id IN (SELECT location_id FROM user_locations WHERE user_id = $1)`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	locations := []weather.Location{}
	for rows.Next() {
		var loc weather.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locations, nil
}

// BulkInsert copies all slots in one transaction; the primary key rejects duplicates.
func (s *PostgresStore) BulkInsert(ctx context.Context, locationID string, slots []weather.Slot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"forecasts"}, forecastColumns,
		pgx.CopyFromSlice(len(slots), func(i int) ([]any, error) {
			sl := slots[i]
			return []any{locationID, sl.Time, sl.Temperature, sl.WindSpeed, sl.Precipitation, sl.Humidity}, nil
		}),
	)
	switch {
	case isPgCode(err, pgUniqueViolation):
		return fmt.Errorf("%w: location %s", weather.ErrDuplicateSlot, locationID)
	case isPgCode(err, pgForeignKeyViolation):
		return fmt.Errorf("%w: %s", weather.ErrLocationNotFound, locationID)
	case err != nil:
		return fmt.Errorf("copy forecasts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// BulkUpdate overwrites matching rows in one transaction and returns how many matched.
func (s *PostgresStore) BulkUpdate(ctx context.Context, locationID string, slots []weather.Slot) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, sl := range slots {
		batch.Queue(`
			UPDATE forecasts
			SET temperature = $1, wind_speed = $2, precipitation = $3, humidity = $4
			WHERE location_id = $5 AND forecast_time = $6`,
			sl.Temperature, sl.WindSpeed, sl.Precipitation, sl.Humidity, locationID, sl.Time,
		)
	}

	br := tx.SendBatch(ctx, batch)
	updated := 0
	for _, sl := range slots {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("update slot %s: %w", sl.Time, err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) GetSlot(ctx context.Context, locationID, slotKey string, fields []weather.Field) (weather.SlotValues, error) {
	if len(fields) == 0 {
		return nil, weather.ErrInvalidFields
	}
	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.Valid() {
			return nil, fmt.Errorf("%w: %s", weather.ErrInvalidFields, f)
		}
		columns = append(columns, string(f))
	}

	// Column names come from the Field whitelist above.
	query := fmt.Sprintf(
		`SELECT %s FROM forecasts WHERE location_id = $1 AND forecast_time = $2`,
		strings.Join(columns, ", "),
	)

	values := make([]*float64, len(fields))
	dest := make([]any, len(fields))
	for i := range values {
		dest[i] = &values[i]
	}

	err := s.pool.QueryRow(ctx, query, locationID, slotKey).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: location %s slot %s", weather.ErrSlotNotFound, locationID, slotKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}

	result := make(weather.SlotValues, len(fields))
	for i, f := range fields {
		result[f] = values[i]
	}
	return result, nil
}

// Stats counts tracked locations and stored slots.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM locations), (SELECT count(*) FROM forecasts)`,
	).Scan(&st.Locations, &st.Slots)
	if err != nil {
		return Stats{}, fmt.Errorf("count rows: %w", err)
	}
	return st, nil
}

// Teardown empties every table.
func (s *PostgresStore) Teardown(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE forecasts, user_locations, locations, users`); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
