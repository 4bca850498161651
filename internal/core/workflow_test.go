package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
)

func testSecretKey() *[32]byte {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	return &key
}

func validDefinition() flow.Definition {
	return flow.Definition{
		Nodes: []flow.Node{
			{ID: "t", Type: flow.NodeTrigger, TriggerEvent: "incident.created"},
			{ID: "a", Type: flow.NodeAction, ActionType: flow.ActionWebhook},
		},
		Edges: []flow.Edge{{From: "t", To: "a"}},
	}
}

// ---------- Create ----------

func TestWorkflowService_Create_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	// Workflow insert plus version 1 append.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Times(2)

	w := &model.Workflow{
		Name:       "page the webhook",
		ScopeType:  model.ScopeGlobal,
		IsEnabled:  true,
		Definition: validDefinition(),
	}
	err := svc.Create(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Version)
	assert.NotEmpty(t, w.ID)
	db.AssertExpectations(t)
}

func TestWorkflowService_Create_RejectsInvalidDefinition(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	w := &model.Workflow{
		Name:      "broken",
		ScopeType: model.ScopeGlobal,
		Definition: flow.Definition{
			Nodes: []flow.Node{{ID: "a", Type: flow.NodeAction, ActionType: flow.ActionWebhook}},
		},
	}
	err := svc.Create(ctx, w)
	require.ErrorIs(t, err, ErrValidation)
	db.AssertNotCalled(t, "Exec")
}

func TestWorkflowService_Create_TeamScopeRequiresTeam(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	w := &model.Workflow{
		Name:       "orphan",
		ScopeType:  model.ScopeTeam,
		Definition: validDefinition(),
	}
	err := svc.Create(ctx, w)
	require.ErrorIs(t, err, ErrValidation)
	db.AssertNotCalled(t, "Exec")
}

// ---------- Update ----------

func TestWorkflowService_Update_BumpsVersion(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	w := &model.Workflow{ID: "wf-1", Version: 3, Definition: validDefinition()}
	err := svc.Update(ctx, w, "tweak webhook url")
	require.NoError(t, err)
	assert.Equal(t, 4, w.Version)
	db.AssertExpectations(t)
}

// The version bump and its history row commit together: when the
// history insert fails, the transaction never commits and the caller's
// version stays put.
func TestWorkflowService_Update_VersionAndHistoryAreAtomic(t *testing.T) {
	db := &mockDB{}
	pool := newMockPool(db)
	svc := NewWorkflowService(db, pool, testSecretKey())
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection lost")).Once()

	w := &model.Workflow{ID: "wf-1", Version: 3, Definition: validDefinition()}
	err := svc.Update(ctx, w, "tweak webhook url")
	require.Error(t, err)
	assert.Equal(t, 3, w.Version, "failed update must not advance the caller's version")
	assert.Zero(t, pool.tx.commits)
	assert.Equal(t, 1, pool.tx.rollbacks)
	db.AssertExpectations(t)
}

func TestWorkflowService_Update_ConcurrentEditorConflicts(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	// Another editor already landed version 4; the guard matches nothing.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	w := &model.Workflow{ID: "wf-1", Version: 3, Definition: validDefinition()}
	err := svc.Update(ctx, w, "stale edit")
	require.ErrorIs(t, err, ErrConflict)
	db.AssertExpectations(t)
}

// ---------- Rollback ----------

func TestWorkflowService_Rollback_CreatesNewVersion(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	def := validDefinition()
	now := time.Now()

	wfRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "wf-1"
		*(dest[1].(*string)) = "page the webhook"
		*(dest[2].(*string)) = ""
		*(dest[3].(*string)) = model.ScopeGlobal
		*(dest[5].(*bool)) = true
		*(dest[6].(*int)) = 5
		*(dest[7].(*flow.Definition)) = def
		*(dest[9].(*time.Time)) = now
		*(dest[10].(*time.Time)) = now
		return nil
	}}
	verRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "ver-2"
		*(dest[1].(*string)) = "wf-1"
		*(dest[2].(*int)) = 2
		*(dest[3].(*flow.Definition)) = def
		*(dest[4].(*string)) = "older definition"
		*(dest[5].(*time.Time)) = now
		return nil
	}}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(wfRow).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(verRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	w, err := svc.Rollback(ctx, "wf-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 6, w.Version, "rollback must append, never rewind")
	db.AssertExpectations(t)
}

// ---------- Delete ----------

func TestWorkflowService_Delete_BlockedByActiveExecutions(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	countRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 2
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(countRow).Once()

	err := svc.Delete(ctx, "wf-1")
	require.ErrorIs(t, err, ErrConflict)
	db.AssertNotCalled(t, "Exec")
}

func TestWorkflowService_Delete_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	countRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 0
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(countRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 1"), nil).Once()

	err := svc.Delete(ctx, "wf-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ---------- Export / Import ----------

func TestWorkflowService_Export_OmitsBindings(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	teamID := "team-1"
	now := time.Now()
	wfRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "wf-1"
		*(dest[1].(*string)) = "jira on page"
		*(dest[2].(*string)) = "files a ticket"
		*(dest[3].(*string)) = model.ScopeTeam
		*(dest[4].(**string)) = &teamID
		*(dest[5].(*bool)) = true
		*(dest[6].(*int)) = 2
		*(dest[7].(*flow.Definition)) = validDefinition()
		*(dest[9].(*time.Time)) = now
		*(dest[10].(*time.Time)) = now
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(wfRow).Once()

	exp, err := svc.Export(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "jira on page", exp.Name)
	assert.NotEmpty(t, exp.Definition.Nodes)
	db.AssertExpectations(t)
}

func TestWorkflowService_Import_Malformed(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	_, err := svc.Import(ctx, []byte("not json"), model.ScopeGlobal, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	db.AssertNotCalled(t, "Exec")
}
