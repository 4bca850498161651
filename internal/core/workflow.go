package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

const workflowColumns = `id, name, description, scope_type, team_id, is_enabled, version,
	definition, created_by, created_at, updated_at`

// WorkflowService owns workflow CRUD, the append-only version history,
// secrets, and export/import. Every definition write is validated and
// recorded as a new version; history rows are never mutated. The live
// row and its history row always land in the same transaction, so
// every version the counter reached has a history entry.
type WorkflowService struct {
	db        DB
	pool      TxBeginner
	secretKey *[32]byte
}

func NewWorkflowService(db DB, pool TxBeginner, secretKey *[32]byte) *WorkflowService {
	return &WorkflowService{db: db, pool: pool, secretKey: secretKey}
}

func (s *WorkflowService) Create(ctx context.Context, w *model.Workflow) error {
	if err := w.Definition.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if w.ScopeType == model.ScopeTeam && w.TeamID == nil {
		return fmt.Errorf("%w: team-scoped workflow requires a team", ErrValidation)
	}

	w.ID = platform.NewName("wf")
	w.Version = 1
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin workflow tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO workflows (`+workflowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.ID, w.Name, w.Description, w.ScopeType, w.TeamID, w.IsEnabled, w.Version,
		w.Definition, w.CreatedBy, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create workflow: %w", classify(err))
	}
	if err := s.appendVersion(ctx, tx, w.ID, 1, w.Definition, "initial version"); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit workflow create: %w", classify(err))
	}
	return nil
}

// Update replaces the live definition. The version counter is bumped
// with an optimistic guard on the previous version so two concurrent
// editors cannot both land as the same version, and the history row is
// appended in the same transaction.
func (s *WorkflowService) Update(ctx context.Context, w *model.Workflow, changeNote string) error {
	if err := w.Definition.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	next := w.Version + 1
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin workflow tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE workflows SET name = $1, description = $2, is_enabled = $3,
		   version = $4, definition = $5, updated_at = $6
		 WHERE id = $7 AND version = $8`,
		w.Name, w.Description, w.IsEnabled, next, w.Definition, time.Now(), w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s version %d: %w", w.ID, w.Version, ErrConflict)
	}
	if err := s.appendVersion(ctx, tx, w.ID, next, w.Definition, changeNote); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit workflow update: %w", classify(err))
	}
	w.Version = next
	return nil
}

// Rollback restores version toVersion's definition as a NEW version
// N+1. The history stays strictly append-only.
func (s *WorkflowService) Rollback(ctx context.Context, workflowID string, toVersion int) (*model.Workflow, error) {
	w, err := s.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	old, err := s.GetVersion(ctx, workflowID, toVersion)
	if err != nil {
		return nil, err
	}

	w.Definition = old.Definition
	note := fmt.Sprintf("rollback to version %d", toVersion)
	if err := s.Update(ctx, w, note); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *WorkflowService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET is_enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now(), id)
	if err != nil {
		return fmt.Errorf("toggle workflow: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete refuses while executions are in flight.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	var active int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM workflow_executions
		 WHERE workflow_id = $1 AND status IN ($2, $3)`,
		id, model.ExecutionPending, model.ExecutionRunning).Scan(&active)
	if err != nil {
		return fmt.Errorf("count active executions: %w", classify(err))
	}
	if active > 0 {
		return fmt.Errorf("workflow %s has %d active executions: %w", id, active, ErrConflict)
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *WorkflowService) GetByID(ctx context.Context, id string) (*model.Workflow, error) {
	return s.scan(s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
}

func (s *WorkflowService) scan(row pgx.Row) (*model.Workflow, error) {
	var w model.Workflow
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.ScopeType, &w.TeamID, &w.IsEnabled,
		&w.Version, &w.Definition, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", classify(err))
	}
	return &w, nil
}

// List returns all workflows, optionally narrowed to one team's (plus
// global ones). Disabled workflows are included.
func (s *WorkflowService) List(ctx context.Context, teamID string) ([]model.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at ASC`
	args := []any{}
	if teamID != "" {
		query = `SELECT ` + workflowColumns + ` FROM workflows
		 WHERE scope_type = $1 OR team_id = $2 ORDER BY created_at ASC`
		args = []any{model.ScopeGlobal, teamID}
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", classify(err))
	}
	defer rows.Close()

	var out []model.Workflow
	for rows.Next() {
		var w model.Workflow
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.ScopeType, &w.TeamID, &w.IsEnabled,
			&w.Version, &w.Definition, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListEnabled returns the candidate set for trigger matching: global
// workflows plus the team's own.
func (s *WorkflowService) ListEnabled(ctx context.Context, teamID string) ([]model.Workflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE is_enabled AND (scope_type = $1 OR team_id = $2)
		 ORDER BY created_at ASC`, model.ScopeGlobal, teamID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", classify(err))
	}
	defer rows.Close()

	var out []model.Workflow
	for rows.Next() {
		var w model.Workflow
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.ScopeType, &w.TeamID, &w.IsEnabled,
			&w.Version, &w.Definition, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *WorkflowService) appendVersion(ctx context.Context, q DB, workflowID string, version int, def flow.Definition, note string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO workflow_versions (id, workflow_id, version, definition, change_note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		platform.NewID(), workflowID, version, def, note, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("append workflow version: %w", classify(err))
	}
	return nil
}

func (s *WorkflowService) GetVersion(ctx context.Context, workflowID string, version int) (*model.WorkflowVersion, error) {
	var v model.WorkflowVersion
	err := s.db.QueryRow(ctx,
		`SELECT id, workflow_id, version, definition, change_note, created_at
		 FROM workflow_versions WHERE workflow_id = $1 AND version = $2`,
		workflowID, version,
	).Scan(&v.ID, &v.WorkflowID, &v.Version, &v.Definition, &v.ChangeNote, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load workflow version: %w", classify(err))
	}
	return &v, nil
}

func (s *WorkflowService) ListVersions(ctx context.Context, workflowID string) ([]model.WorkflowVersion, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, workflow_id, version, definition, change_note, created_at
		 FROM workflow_versions WHERE workflow_id = $1 ORDER BY version DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow versions: %w", classify(err))
	}
	defer rows.Close()

	var out []model.WorkflowVersion
	for rows.Next() {
		var v model.WorkflowVersion
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.Version, &v.Definition, &v.ChangeNote, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// WorkflowExport is the portable form of a workflow: definition and
// metadata only, never ids, team bindings, or secrets.
type WorkflowExport struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Definition  flow.Definition `json:"definition"`
	ExportedAt  time.Time       `json:"exported_at"`
}

func (s *WorkflowService) Export(ctx context.Context, id string) (*WorkflowExport, error) {
	w, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WorkflowExport{
		Name:        w.Name,
		Description: w.Description,
		Definition:  w.Definition,
		ExportedAt:  time.Now(),
	}, nil
}

// Import creates a fresh disabled workflow from an export. The caller
// assigns scope and team; secrets must be re-entered.
func (s *WorkflowService) Import(ctx context.Context, raw []byte, scopeType string, teamID, createdBy *string) (*model.Workflow, error) {
	var exp WorkflowExport
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, fmt.Errorf("%w: malformed export: %v", ErrValidation, err)
	}
	w := &model.Workflow{
		Name:        exp.Name,
		Description: exp.Description,
		ScopeType:   scopeType,
		TeamID:      teamID,
		IsEnabled:   false,
		Definition:  exp.Definition,
		CreatedBy:   createdBy,
	}
	if err := s.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// SetSecret stores a named secret sealed under the process key.
func (s *WorkflowService) SetSecret(ctx context.Context, workflowID, name, value string) error {
	sealed, err := flow.EncryptSecret(s.secretKey, value)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_secrets (workflow_id, name, ciphertext, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workflow_id, name) DO UPDATE SET ciphertext = EXCLUDED.ciphertext`,
		workflowID, name, sealed, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store secret: %w", classify(err))
	}
	return nil
}

// Secrets returns the decrypted secret map for template interpolation.
func (s *WorkflowService) Secrets(ctx context.Context, workflowID string) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, ciphertext FROM workflow_secrets WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", classify(err))
	}
	defer rows.Close()

	secrets := map[string]string{}
	for rows.Next() {
		var name string
		var sealed []byte
		if err := rows.Scan(&name, &sealed); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		plain, err := flow.DecryptSecret(s.secretKey, sealed)
		if err != nil {
			return nil, fmt.Errorf("unseal secret %s: %w", name, err)
		}
		secrets[name] = plain
	}
	return secrets, rows.Err()
}
