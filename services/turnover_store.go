package services

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"

	"github.com/mattn/go-sqlite3"
)

// TurnoverStore handles all access to the shared SQLite store. It is used by
// both the ingestion pipeline and the reporting controllers, which resolve the
// store file through the same config mapping.
//
// Every statement opens and closes its own connection. That keeps each lock
// window as short as one statement and is why only busy/locked errors are
// worth retrying: contention is expected, everything else is a real failure.
//
// Note on concurrency: the read-prior-cumulative / write-new-cumulative pair
// in the pipeline is NOT serialized across concurrent runs. Two runs that
// process the same (ticker, venue) on the same day can both read the same
// prior value and write an inflated sum. Retry-on-busy prevents crashes, not
// lost updates.
type TurnoverStore struct {
	path       string
	maxRetries int
	retryDelay time.Duration
}

// NewTurnoverStore creates a store bound to the environment-selected file
func NewTurnoverStore(cfg *config.Config) *TurnoverStore {
	return &TurnoverStore{
		path:       cfg.StorePath(),
		maxRetries: cfg.StoreMaxRetries,
		retryDelay: cfg.StoreRetryDelay(),
	}
}

// Path returns the store file path
func (s *TurnoverStore) Path() string {
	return s.path
}

// Init creates the store directory and tables if they do not exist
func (s *TurnoverStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	turnoverTable := `
		CREATE TABLE IF NOT EXISTS register_turnover (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			date TEXT NOT NULL,
			venue TEXT NOT NULL,
			register_turnover REAL NOT NULL,
			cumulative_turnover REAL NOT NULL
		)
	`
	if _, err := s.execRetry(turnoverTable); err != nil {
		return fmt.Errorf("failed to create register_turnover table: %w", err)
	}

	turnoverIndex := `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_turnover_ticker_date_venue
		ON register_turnover (ticker, date, venue)
	`
	if _, err := s.execRetry(turnoverIndex); err != nil {
		return fmt.Errorf("failed to create register_turnover index: %w", err)
	}

	soiTable := `
		CREATE TABLE IF NOT EXISTS soi (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			date TEXT NOT NULL,
			venue TEXT NOT NULL,
			soi REAL NOT NULL
		)
	`
	if _, err := s.execRetry(soiTable); err != nil {
		return fmt.Errorf("failed to create soi table: %w", err)
	}

	return nil
}

// === Statement execution with busy retry ===

// isBusyErr reports whether err is SQLite lock contention
func isBusyErr(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// runWithRetry executes op up to maxRetries times, sleeping retryDelay between
// attempts while op keeps failing with lock contention. After the budget is
// exhausted it returns a *StoreBusyError. Any non-busy error aborts immediately.
func runWithRetry(maxRetries int, retryDelay time.Duration, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil || !isBusyErr(err) {
			return err
		}
		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}
	return &StoreBusyError{Attempts: maxRetries, Err: err}
}

// open opens a fresh connection for a single statement
func (s *TurnoverStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", s.path, err)
	}
	return db, nil
}

// execRetry runs one write statement on its own connection, retrying on busy
func (s *TurnoverStore) execRetry(query string, args ...interface{}) (sql.Result, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var result sql.Result
	err = runWithRetry(s.maxRetries, s.retryDelay, func() error {
		var execErr error
		result, execErr = db.Exec(query, args...)
		return execErr
	})
	return result, err
}

// queryRowRetry runs one single-row read on its own connection, retrying on
// busy. sql.ErrNoRows passes through to the caller untouched.
func (s *TurnoverStore) queryRowRetry(scan func(*sql.Row) error, query string, args ...interface{}) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return runWithRetry(s.maxRetries, s.retryDelay, func() error {
		return scan(db.QueryRow(query, args...))
	})
}

// queryRetry runs one multi-row read on its own connection, retrying on busy
func (s *TurnoverStore) queryRetry(scanAll func(*sql.Rows) error, query string, args ...interface{}) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return runWithRetry(s.maxRetries, s.retryDelay, func() error {
		rows, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if err := scanAll(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// === Turnover operations ===

// LatestCumulativeTurnover returns the most recent cumulative turnover for a
// (ticker, venue), ordered by date descending. found is false when the ticker
// has never been recorded on that venue.
func (s *TurnoverStore) LatestCumulativeTurnover(ticker string, venue models.Venue) (value float64, found bool, err error) {
	query := `
		SELECT cumulative_turnover FROM register_turnover
		WHERE ticker = ? AND venue = ?
		ORDER BY date DESC
		LIMIT 1
	`
	err = s.queryRowRetry(func(row *sql.Row) error {
		return row.Scan(&value)
	}, query, ticker, venue)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// findTurnoverID looks up the row id for a (ticker, venue) on a given date
func (s *TurnoverStore) findTurnoverID(ticker string, venue models.Venue, date string) (int64, bool, error) {
	var id int64
	query := `SELECT id FROM register_turnover WHERE ticker = ? AND venue = ? AND date = ?`
	err := s.queryRowRetry(func(row *sql.Row) error {
		return row.Scan(&id)
	}, query, ticker, venue, date)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// UpsertDailyTurnover writes a turnover record for rec.Date. If a record for
// (ticker, venue) already exists on that date the row is overwritten in place
// (date, register_turnover, cumulative_turnover), so a same-day rerun
// refreshes the record instead of duplicating it. Otherwise a new row is
// inserted.
func (s *TurnoverStore) UpsertDailyTurnover(rec *models.TurnoverRecord) error {
	id, exists, err := s.findTurnoverID(rec.Ticker, rec.Venue, rec.Date)
	if err != nil {
		return err
	}

	if exists {
		update := `
			UPDATE register_turnover
			SET date = ?, register_turnover = ?, cumulative_turnover = ?
			WHERE id = ?
		`
		if _, err := s.execRetry(update, rec.Date, rec.RegisterTurnover, rec.CumulativeTurnover, id); err != nil {
			return err
		}
		rec.ID = id
		return nil
	}

	insert := `
		INSERT INTO register_turnover (ticker, date, venue, register_turnover, cumulative_turnover)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.execRetry(insert, rec.Ticker, rec.Date, rec.Venue, rec.RegisterTurnover, rec.CumulativeTurnover)
	if err != nil {
		return err
	}
	if newID, err := result.LastInsertId(); err == nil {
		rec.ID = newID
	}
	return nil
}

// AddTicker seeds a zero-value tracking row for a manually added ticker
func (s *TurnoverStore) AddTicker(ticker, date string, venue models.Venue) (*models.TurnoverRecord, error) {
	rec := &models.TurnoverRecord{
		Ticker: ticker,
		Date:   date,
		Venue:  venue,
	}
	insert := `
		INSERT INTO register_turnover (ticker, date, venue, register_turnover, cumulative_turnover)
		VALUES (?, ?, ?, 0, 0)
	`
	result, err := s.execRetry(insert, ticker, date, venue)
	if err != nil {
		return nil, err
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return rec, nil
}

// ListTurnover returns turnover records, newest first, with optional
// venue and ticker filters
func (s *TurnoverStore) ListTurnover(venue models.Venue, ticker string) ([]models.TurnoverRecord, error) {
	query := `
		SELECT id, ticker, date, venue, register_turnover, cumulative_turnover
		FROM register_turnover WHERE 1=1
	`
	args := []interface{}{}
	if venue != "" {
		query += " AND venue = ?"
		args = append(args, venue)
	}
	if ticker != "" {
		query += " AND ticker = ?"
		args = append(args, ticker)
	}
	query += " ORDER BY date DESC, ticker ASC"

	var records []models.TurnoverRecord
	err := s.queryRetry(func(rows *sql.Rows) error {
		for rows.Next() {
			var r models.TurnoverRecord
			if err := rows.Scan(&r.ID, &r.Ticker, &r.Date, &r.Venue, &r.RegisterTurnover, &r.CumulativeTurnover); err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	}, query, args...)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// TurnoverSeries returns the full dated series for one (ticker, venue),
// oldest first, for time-series charting
func (s *TurnoverStore) TurnoverSeries(ticker string, venue models.Venue) ([]models.TurnoverRecord, error) {
	query := `
		SELECT id, ticker, date, venue, register_turnover, cumulative_turnover
		FROM register_turnover
		WHERE ticker = ? AND venue = ?
		ORDER BY date ASC
	`
	var records []models.TurnoverRecord
	err := s.queryRetry(func(rows *sql.Rows) error {
		for rows.Next() {
			var r models.TurnoverRecord
			if err := rows.Scan(&r.ID, &r.Ticker, &r.Date, &r.Venue, &r.RegisterTurnover, &r.CumulativeTurnover); err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	}, query, ticker, venue)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteTurnover removes a row by id. Deletion is user-initiated only; the
// pipeline never deletes.
func (s *TurnoverStore) DeleteTurnover(id int64) (bool, error) {
	result, err := s.execRetry("DELETE FROM register_turnover WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// === SOI operations ===

// InsertSOI appends one shares-on-issue snapshot. The table is an audit
// trail: rows are written alongside every turnover record and never read
// back by the pipeline.
func (s *TurnoverStore) InsertSOI(snap *models.SOISnapshot) error {
	insert := `INSERT INTO soi (ticker, date, venue, soi) VALUES (?, ?, ?, ?)`
	result, err := s.execRetry(insert, snap.Ticker, snap.Date, snap.Venue, snap.SOI)
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

// ListSOI returns SOI snapshots, newest first, with an optional venue filter
func (s *TurnoverStore) ListSOI(venue models.Venue) ([]models.SOISnapshot, error) {
	query := `SELECT id, ticker, date, venue, soi FROM soi WHERE 1=1`
	args := []interface{}{}
	if venue != "" {
		query += " AND venue = ?"
		args = append(args, venue)
	}
	query += " ORDER BY date DESC, ticker ASC"

	var snaps []models.SOISnapshot
	err := s.queryRetry(func(rows *sql.Rows) error {
		for rows.Next() {
			var snap models.SOISnapshot
			if err := rows.Scan(&snap.ID, &snap.Ticker, &snap.Date, &snap.Venue, &snap.SOI); err != nil {
				return err
			}
			snaps = append(snaps, snap)
		}
		return nil
	}, query, args...)
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// CountTurnover returns the number of turnover rows (used by health/status)
func (s *TurnoverStore) CountTurnover() (int64, error) {
	var count int64
	err := s.queryRowRetry(func(row *sql.Row) error {
		return row.Scan(&count)
	}, "SELECT COUNT(*) FROM register_turnover")
	return count, err
}
