package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
)

// RunStatus is the terminal state of a recorded run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one finished counter run.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Cluster      string    `json:"cluster"`
	Program      string    `json:"program"`
	Account      string    `json:"account,omitempty"`
	FeePayer     string    `json:"fee_payer,omitempty"`
	Signature    string    `json:"signature,omitempty"`
	ExplorerURL  string    `json:"explorer_url,omitempty"`
	Value        uint64    `json:"value"`
	Status       RunStatus `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    int64     `json:"started_at"`
	FinishedAt   int64     `json:"finished_at"`
}

// RunRepository persists run history.
type RunRepository interface {
	Save(ctx context.Context, record RunRecord) error
	ListLatest(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// Open builds the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.RunStoreConfig, dataDir string) (RunRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryRunRepository(dataDir)
	case "mysql":
		return NewSQLRunRepository(ctx, Config{DSN: cfg.DSN})
	case "none":
		return NopRunRepository{}, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported run store driver %q", cfg.Driver))
	}
}

// NopRunRepository discards every record.
type NopRunRepository struct{}

func (NopRunRepository) Save(context.Context, RunRecord) error                 { return nil }
func (NopRunRepository) ListLatest(context.Context, int) ([]RunRecord, error) { return nil, nil }
func (NopRunRepository) Close() error                                         { return nil }

const memoryHistoryLimit = 512

// MemoryRunRepository appends records to a JSON-lines file and keeps the
// latest ones in memory.
type MemoryRunRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []RunRecord
}

// NewMemoryRunRepository restores history from dataDir/runs.log.
func NewMemoryRunRepository(dataDir string) (*MemoryRunRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "create data directory")
	}
	repo := &MemoryRunRepository{dataFile: filepath.Join(dataDir, "runs.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save appends record to the history file.
func (m *MemoryRunRepository) Save(_ context.Context, record RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode run record")
	}

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "open run history")
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write run history")
	}

	m.records = append([]RunRecord{record}, m.records...)
	if len(m.records) > memoryHistoryLimit {
		m.records = m.records[:memoryHistoryLimit]
	}
	return nil
}

// ListLatest returns the newest records first.
func (m *MemoryRunRepository) ListLatest(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]RunRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close is a no-op; every Save closes its file handle.
func (m *MemoryRunRepository) Close() error { return nil }

func (m *MemoryRunRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "read run history")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []RunRecord
	for scanner.Scan() {
		var record RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]RunRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "parse run history")
	}

	if len(restored) > memoryHistoryLimit {
		restored = restored[:memoryHistoryLimit]
	}
	m.records = restored
	return nil
}

// SQLRunRepository stores runs in the counter_runs table.
type SQLRunRepository struct {
	db *sql.DB
}

// NewSQLRunRepository connects and migrates the schema.
func NewSQLRunRepository(ctx context.Context, cfg Config) (*SQLRunRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLRunRepository{db: db}, nil
}

const upsertRunSQL = `INSERT INTO counter_runs
    (run_id, cluster, program, account, fee_payer, signature, explorer_url, counter_value, status, error_code, error_message, started_at, finished_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE signature = VALUES(signature), explorer_url = VALUES(explorer_url), counter_value = VALUES(counter_value),
    status = VALUES(status), error_code = VALUES(error_code), error_message = VALUES(error_message), finished_at = VALUES(finished_at)`

const selectRunsSQL = `SELECT run_id, cluster, program, account, fee_payer, signature, explorer_url, counter_value, status, error_code, error_message, started_at, finished_at
    FROM counter_runs ORDER BY finished_at DESC, run_id DESC LIMIT ?`

// Save inserts record or updates the outcome of an existing run id.
func (s *SQLRunRepository) Save(ctx context.Context, record RunRecord) error {
	if _, err := s.db.ExecContext(ctx, upsertRunSQL,
		record.RunID,
		record.Cluster,
		record.Program,
		record.Account,
		record.FeePayer,
		record.Signature,
		record.ExplorerURL,
		record.Value,
		string(record.Status),
		record.ErrorCode,
		record.ErrorMessage,
		record.StartedAt,
		record.FinishedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "save run", xerrors.WithMetadata("run_id", record.RunID))
	}
	return nil
}

// ListLatest returns the most recently finished runs.
func (s *SQLRunRepository) ListLatest(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, selectRunsSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query runs")
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			record  RunRecord
			status  string
			message sql.NullString
		)
		if err := rows.Scan(&record.RunID, &record.Cluster, &record.Program, &record.Account, &record.FeePayer,
			&record.Signature, &record.ExplorerURL, &record.Value, &status, &record.ErrorCode, &message,
			&record.StartedAt, &record.FinishedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan run")
		}
		record.Status = RunStatus(status)
		record.ErrorMessage = message.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate runs")
	}
	return records, nil
}

// Close releases the connection pool.
func (s *SQLRunRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
