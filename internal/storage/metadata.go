package storage

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// JobRecord is one row of the job ledger
type JobRecord struct {
	ID           string    `json:"id"`
	RecordID     string    `json:"record_id"`
	Phase        string    `json:"phase"`
	Status       string    `json:"status"`
	BackendJobID string    `json:"backend_job_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ErrJobNotFound is returned when the ledger has no such job
var ErrJobNotFound = errors.New("job not found")

// MetadataDB is the sqlite job ledger
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (creating if needed) the ledger at dbPath
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection serializes writers from the worker pool.
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		status TEXT NOT NULL,
		backend_job_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		output_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_record_id ON jobs(record_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create table")
	}

	return &MetadataDB{db: db}, nil
}

// CreateJob inserts a new job row
func (mdb *MetadataDB) CreateJob(id, recordID, phase, status string) error {
	now := time.Now().UTC()
	_, err := mdb.db.Exec(
		`INSERT INTO jobs (id, record_id, phase, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, recordID, phase, status, now, now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %s", id)
	}
	return nil
}

// UpdateStatus records a status change and its error text, if any
func (mdb *MetadataDB) UpdateStatus(id, status, errText string) error {
	return mdb.exec(id, `UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errText, time.Now().UTC(), id)
}

// SetBackendJobID records the remote job id assigned at submission
func (mdb *MetadataDB) SetBackendJobID(id, backendJobID string) error {
	return mdb.exec(id, `UPDATE jobs SET backend_job_id = ?, updated_at = ? WHERE id = ?`,
		backendJobID, time.Now().UTC(), id)
}

// SetOutputPath records where the job wrote its result
func (mdb *MetadataDB) SetOutputPath(id, path string) error {
	return mdb.exec(id, `UPDATE jobs SET output_path = ?, updated_at = ? WHERE id = ?`,
		path, time.Now().UTC(), id)
}

func (mdb *MetadataDB) exec(id, query string, args ...any) error {
	res, err := mdb.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(ErrJobNotFound, id)
	}
	return nil
}

const jobColumns = `id, record_id, phase, status, backend_job_id, error, output_path, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*JobRecord, error) {
	var j JobRecord
	err := row.Scan(&j.ID, &j.RecordID, &j.Phase, &j.Status, &j.BackendJobID, &j.Error, &j.OutputPath, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJob retrieves a job by id
func (mdb *MetadataDB) GetJob(id string) (*JobRecord, error) {
	row := mdb.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(ErrJobNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return j, nil
}

// ListJobs returns the most recent jobs, newest first
func (mdb *MetadataDB) ListJobs(limit int) ([]JobRecord, error) {
	return mdb.query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
}

// JobsForRecord returns every job of one record, oldest first
func (mdb *MetadataDB) JobsForRecord(recordID string) ([]JobRecord, error) {
	return mdb.query(`SELECT `+jobColumns+` FROM jobs WHERE record_id = ? ORDER BY created_at, id`, recordID)
}

func (mdb *MetadataDB) query(q string, args ...any) ([]JobRecord, error) {
	rows, err := mdb.db.Query(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	jobs := []JobRecord{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, errors.Wrap(rows.Err(), "failed to list jobs")
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
