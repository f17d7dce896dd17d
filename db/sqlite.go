package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"modelkit/ml"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSchemaDrift is returned when a model version is republished with
	// schema documents that differ from the ones recorded for it.
	ErrSchemaDrift = errors.New("schema changed without a version bump")
)

const schemaDDL = `
    CREATE TABLE IF NOT EXISTS models (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        qualified_name TEXT NOT NULL,
        name TEXT NOT NULL,
        description TEXT NOT NULL,
        major INTEGER NOT NULL,
        minor INTEGER NOT NULL,
        input_schema TEXT NOT NULL,
        output_schema TEXT NOT NULL,
        published_at DATETIME NOT NULL,
        UNIQUE(qualified_name, major, minor)
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL UNIQUE,
        model_name VARCHAR(50) NOT NULL,
        max_depth INTEGER NOT NULL,
        min_samples_split INTEGER NOT NULL,
        accuracy REAL NOT NULL,
        data_points INTEGER NOT NULL,
        artifact_path TEXT NOT NULL,
        trained_at DATETIME NOT NULL
    );
    `

// Store is the SQLite catalog of published models and training runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schemaDDL); err != nil {
		database.Close()
		return nil, fmt.Errorf("init database %s: %w", path, err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PublishedModel is a catalog entry: a descriptor and the JSON Schema
// documents exported for it at publication time.
type PublishedModel struct {
	QualifiedName string          `json:"qualified_name"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	MajorVersion  int             `json:"major_version"`
	MinorVersion  int             `json:"minor_version"`
	InputSchema   json.RawMessage `json:"input_schema"`
	OutputSchema  json.RawMessage `json:"output_schema"`
	PublishedAt   time.Time       `json:"published_at"`
}

func (p PublishedModel) Version() string {
	return fmt.Sprintf("%d.%d", p.MajorVersion, p.MinorVersion)
}

// PublishModel records m's descriptor and schema documents, with ids built
// from baseURI. Publishing an already recorded version is a no-op when the
// documents match, and fails with ErrSchemaDrift when they do not.
func (s *Store) PublishModel(ctx context.Context, m ml.Model, baseURI string) (*PublishedModel, error) {
	in, err := m.InputSchema().MarshalJSONSchema(ml.SchemaID(baseURI, m, ml.DirectionInput))
	if err != nil {
		return nil, fmt.Errorf("export input schema: %w", err)
	}
	out, err := m.OutputSchema().MarshalJSONSchema(ml.SchemaID(baseURI, m, ml.DirectionOutput))
	if err != nil {
		return nil, fmt.Errorf("export output schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := getModel(ctx, tx, m.QualifiedName(), m.MajorVersion(), m.MinorVersion())
	switch {
	case err == nil:
		if string(existing.InputSchema) != string(in) || string(existing.OutputSchema) != string(out) {
			return nil, fmt.Errorf("publish %s: %w", ml.DescriptorOf(m), ErrSchemaDrift)
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	published := &PublishedModel{
		QualifiedName: m.QualifiedName(),
		Name:          m.Name(),
		Description:   m.Description(),
		MajorVersion:  m.MajorVersion(),
		MinorVersion:  m.MinorVersion(),
		InputSchema:   in,
		OutputSchema:  out,
		PublishedAt:   time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO models (
            qualified_name, name, description, major, minor,
            input_schema, output_schema, published_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		published.QualifiedName,
		published.Name,
		published.Description,
		published.MajorVersion,
		published.MinorVersion,
		string(published.InputSchema),
		string(published.OutputSchema),
		published.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return published, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getModel(ctx context.Context, q queryer, qualifiedName string, major, minor int) (*PublishedModel, error) {
	row := q.QueryRowContext(ctx, `
        SELECT qualified_name, name, description, major, minor,
               input_schema, output_schema, published_at
        FROM models
        WHERE qualified_name = ? AND major = ? AND minor = ?`,
		qualifiedName, major, minor)
	p, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s@%d.%d: %w", qualifiedName, major, minor, ErrNotFound)
	}
	return p, err
}

// GetModel returns one published version of a model.
func (s *Store) GetModel(ctx context.Context, qualifiedName string, major, minor int) (*PublishedModel, error) {
	return getModel(ctx, s.db, qualifiedName, major, minor)
}

// ListModels returns every published version, ordered by qualified name and
// then by version.
func (s *Store) ListModels(ctx context.Context) ([]PublishedModel, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT qualified_name, name, description, major, minor,
               input_schema, output_schema, published_at
        FROM models
        ORDER BY qualified_name, major, minor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	models := make([]PublishedModel, 0)
	for rows.Next() {
		p, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, *p)
	}
	return models, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(row scanner) (*PublishedModel, error) {
	var p PublishedModel
	var in, out string
	err := row.Scan(&p.QualifiedName, &p.Name, &p.Description, &p.MajorVersion, &p.MinorVersion,
		&in, &out, &p.PublishedAt)
	if err != nil {
		return nil, err
	}
	p.InputSchema = json.RawMessage(in)
	p.OutputSchema = json.RawMessage(out)
	return &p, nil
}

type TrainingLog struct {
	RunID           string    `json:"run_id"`
	ModelName       string    `json:"model_name"`
	MaxDepth        int       `json:"max_depth"`
	MinSamplesSplit int       `json:"min_samples_split"`
	Accuracy        float64   `json:"accuracy"`
	DataPoints      int       `json:"data_points"`
	ArtifactPath    string    `json:"artifact_path"`
	TrainedAt       time.Time `json:"trained_at"`
}

// RecordTraining appends a training run. RunID and TrainedAt are filled in
// when empty.
func (s *Store) RecordTraining(ctx context.Context, log TrainingLog) (TrainingLog, error) {
	if log.ModelName == "" {
		return log, errors.New("model name required")
	}
	if log.RunID == "" {
		log.RunID = uuid.NewString()
	}
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            run_id, model_name, max_depth, min_samples_split,
            accuracy, data_points, artifact_path, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RunID,
		log.ModelName,
		log.MaxDepth,
		log.MinSamplesSplit,
		log.Accuracy,
		log.DataPoints,
		log.ArtifactPath,
		log.TrainedAt,
	)
	return log, err
}

// TrainingRuns returns the runs of a model, newest first. An empty model name
// returns the runs of every model.
func (s *Store) TrainingRuns(ctx context.Context, modelName string, limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, model_name, max_depth, min_samples_split,
               accuracy, data_points, artifact_path, trained_at
        FROM training_log
        WHERE ? = '' OR model_name = ?
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, modelName, modelName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.RunID, &log.ModelName, &log.MaxDepth, &log.MinSamplesSplit,
			&log.Accuracy, &log.DataPoints, &log.ArtifactPath, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
