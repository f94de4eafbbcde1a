package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// SQLiteStore keeps the history in a single WAL-mode SQLite table.
type SQLiteStore struct {
	db       *sql.DB
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at path and runs the
// migration.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SQLiteStore{db: db, prepared: make(map[string]*sql.Stmt)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := store.initPreparedStatements(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("History database initialized", "path", path)
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			description_med TEXT NOT NULL,
			encounter_class TEXT NOT NULL,
			provider TEXT NOT NULL,
			organization TEXT NOT NULL,
			gender TEXT NOT NULL,
			ethnicity TEXT NOT NULL,
			marital TEXT NOT NULL,
			state TEXT NOT NULL,
			age INTEGER NOT NULL,
			dispenses REAL NOT NULL,
			base_cost REAL NOT NULL,
			total_cost REAL NOT NULL,
			patient_med TEXT NOT NULL,
			fraud BOOLEAN NOT NULL,
			risk_score INTEGER NOT NULL,
			medication_risk TEXT NOT NULL,
			used_model TEXT NOT NULL,
			shap_features TEXT NOT NULL, -- JSON object in model column order
			shap_values TEXT NOT NULL,   -- JSON array
			shap_base_value REAL NOT NULL,
			raw_score REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_patient ON predictions(patient_med)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) initPreparedStatements() error {
	statements := map[string]string{
		"insert_prediction": `INSERT INTO predictions (
			id, created_at, description_med, encounter_class, provider, organization,
			gender, ethnicity, marital, state, age, dispenses, base_cost, total_cost,
			patient_med, fraud, risk_score, medication_risk, used_model,
			shap_features, shap_values, shap_base_value, raw_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"list_predictions": `SELECT
			id, created_at, description_med, encounter_class, provider, organization,
			gender, ethnicity, marital, state, age, dispenses, base_cost, total_cost,
			patient_med, fraud, risk_score, medication_risk, used_model,
			shap_features, shap_values, shap_base_value, raw_score
			FROM predictions ORDER BY seq ASC`,
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		s.prepared[name] = stmt
		slog.Debug("Prepared statement initialized", "name", name)
	}
	return nil
}

func (s *SQLiteStore) statement(name string) (*sql.Stmt, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stmt, ok := s.prepared[name]
	if !ok {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	stmt, err := s.statement("insert_prediction")
	if err != nil {
		return err
	}
	features, err := json.Marshal(e.ShapFeatures)
	if err != nil {
		return fmt.Errorf("encode shap_features: %w", err)
	}
	values, err := json.Marshal(e.ShapValues)
	if err != nil {
		return fmt.Errorf("encode shap_values: %w", err)
	}

	r := e.ClaimRecord
	_, err = stmt.ExecContext(ctx,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano),
		r.DescriptionMed, r.EncounterClass, r.Provider, r.Organization,
		r.Gender, r.Ethnicity, r.Marital, r.State, r.Age, r.Dispenses, r.BaseCost, r.TotalCost,
		r.PatientMed, e.Fraud, e.RiskScore, e.MedicationRisk.String(), e.UsedModel,
		string(features), string(values), e.ShapBaseValue, e.RawScore,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	stmt, err := s.statement("list_predictions")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                       Entry
			created, tier           string
			features, shapValuesRaw string
		)
		r := &e.ClaimRecord
		if err := rows.Scan(
			&e.ID, &created, &r.DescriptionMed, &r.EncounterClass, &r.Provider, &r.Organization,
			&r.Gender, &r.Ethnicity, &r.Marital, &r.State, &r.Age, &r.Dispenses, &r.BaseCost, &r.TotalCost,
			&r.PatientMed, &e.Fraud, &e.RiskScore, &tier, &e.UsedModel,
			&features, &shapValuesRaw, &e.ShapBaseValue, &e.RawScore,
		); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}

		if e.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("prediction %s: created_at: %w", e.ID, err)
		}
		if e.MedicationRisk, err = scoring.ParseRiskTier(tier); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(features), &e.ShapFeatures); err != nil {
			return nil, fmt.Errorf("prediction %s: shap_features: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(shapValuesRaw), &e.ShapValues); err != nil {
			return nil, fmt.Errorf("prediction %s: shap_values: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the prepared statements and the database.
func (s *SQLiteStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name, stmt := range s.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	s.prepared = make(map[string]*sql.Stmt)
	return s.db.Close()
}
