package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"govline/internal/db"
	"govline/internal/domain"
	"govline/internal/migrate"
	"govline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}, context.Background()
}

func ts() string { return time.Now().UTC().Format(time.RFC3339) }

func seedRoutine(t *testing.T, r repo.Repo, ctx context.Context, rt domain.Routine) domain.Routine {
	t.Helper()
	if rt.AreaID == "" {
		rt.AreaID = "area-1"
		err := r.InsertArea(ctx, domain.Area{ID: "area-1", Name: "Security", CreatedAt: ts()})
		if err != nil {
			// area may already exist from a previous seed in the same test
			_, gerr := r.GetArea(ctx, "area-1")
			require.NoError(t, gerr)
		}
	}
	if rt.Priority == "" {
		rt.Priority = "medium"
	}
	if rt.CreatedAt == "" {
		rt.CreatedAt = ts()
	}
	tx, err := r.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertRoutine(ctx, tx, rt))
	require.NoError(t, tx.Commit())
	return rt
}

func TestRoutineRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	day := 15
	risk := 80
	seedRoutine(t, r, ctx, domain.Routine{
		ID: "rt-1", Title: "Access review", Frequency: "monthly",
		DayOfMonth: &day, RiskScore: &risk, IsActive: true,
		OwnerIDs:    []string{"owner-1"},
		ScopeIDs:    []string{},
		ApproverIDs: []string{"alice", "bob"},
	})

	got, err := r.GetRoutine(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "Access review", got.Title)
	require.NotNil(t, got.DayOfMonth)
	require.Equal(t, 15, *got.DayOfMonth)
	require.NotNil(t, got.RiskScore)
	require.Equal(t, 80, *got.RiskScore)
	// approver order survives the round trip
	require.Equal(t, []string{"alice", "bob"}, got.ApproverIDs)
	require.Equal(t, []string{"owner-1"}, got.OwnerIDs)

	_, err = r.GetRoutine(ctx, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListRoutinesFilters(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-1", Title: "A", Frequency: "weekly", IsActive: true, OwnerIDs: []string{"owner-1"}})
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-2", Title: "B", Frequency: "monthly", IsActive: false})

	active, err := r.ListRoutines(ctx, repo.RoutineFilters{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "rt-1", active[0].ID)

	monthly, err := r.ListRoutines(ctx, repo.RoutineFilters{Frequency: "monthly"})
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	require.Equal(t, "rt-2", monthly[0].ID)

	owned, err := r.ListRoutines(ctx, repo.RoutineFilters{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "rt-1", owned[0].ID)
}

func TestInsertCycleIfAbsent(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-1", Title: "A", Frequency: "weekly", IsActive: true})

	insert := func(id, due string) bool {
		tx, err := r.DB.Begin()
		require.NoError(t, err)
		defer tx.Rollback()
		created, err := r.InsertCycleIfAbsent(ctx, tx, domain.Cycle{
			ID: id, RoutineID: "rt-1", DueDate: due, Status: "pending", CreatedAt: ts(),
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		return created
	}

	require.True(t, insert("c-1", "2024-06-01"))
	// same routine and due date is a silent no-op
	require.False(t, insert("c-2", "2024-06-01"))
	require.True(t, insert("c-3", "2024-06-08"))

	cycles, err := r.ListCycles(ctx, repo.CycleFilters{RoutineID: "rt-1"})
	require.NoError(t, err)
	require.Len(t, cycles, 2)
}

func TestCycleStatusCheckRejectsLate(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-1", Title: "A", Frequency: "weekly", IsActive: true})

	tx, err := r.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	// "late" is a derived bucket, the schema refuses to store it
	_, err = r.InsertCycleIfAbsent(ctx, tx, domain.Cycle{
		ID: "c-1", RoutineID: "rt-1", DueDate: "2024-06-01", Status: "late", CreatedAt: ts(),
	})
	require.Error(t, err)
}

func TestListCyclesWindowAndSearch(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-1", Title: "Access review", Frequency: "weekly", IsActive: true})
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-2", Title: "Backup check", Frequency: "weekly", IsActive: true})

	seed := func(id, routineID, due string) {
		tx, err := r.DB.Begin()
		require.NoError(t, err)
		defer tx.Rollback()
		_, err = r.InsertCycleIfAbsent(ctx, tx, domain.Cycle{ID: id, RoutineID: routineID, DueDate: due, Status: "pending", CreatedAt: ts()})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}
	seed("c-1", "rt-1", "2024-06-01")
	seed("c-2", "rt-1", "2024-07-01")
	seed("c-3", "rt-2", "2024-06-15")

	june, err := r.ListCycles(ctx, repo.CycleFilters{From: "2024-06-01", To: "2024-06-30"})
	require.NoError(t, err)
	require.Len(t, june, 2)

	backups, err := r.ListCycles(ctx, repo.CycleFilters{Search: "backup"})
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Equal(t, "c-3", backups[0].ID)
}

func TestApprovalStepsReplaceAndUpdate(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoutine(t, r, ctx, domain.Routine{ID: "rt-1", Title: "A", Frequency: "weekly", IsActive: true})
	tx, err := r.DB.Begin()
	require.NoError(t, err)
	_, err = r.InsertCycleIfAbsent(ctx, tx, domain.Cycle{ID: "c-1", RoutineID: "rt-1", DueDate: "2024-06-01", Status: "pending", CreatedAt: ts()})
	require.NoError(t, err)
	require.NoError(t, r.ReplaceApprovalStepsTx(ctx, tx, "c-1", []domain.ApprovalStep{
		{CycleID: "c-1", Order: 1, UserID: "alice", Status: "pending"},
		{CycleID: "c-1", Order: 2, UserID: "bob", Status: "pending"},
	}))
	require.NoError(t, tx.Commit())

	steps, err := r.ListApprovalSteps(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, 1, steps[0].Order)
	require.Equal(t, "alice", steps[0].UserID)

	now := ts()
	tx, err = r.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, r.UpdateApprovalStepTx(ctx, tx, "c-1", 1, "approved", &now))
	require.NoError(t, tx.Commit())

	steps, err = r.ListApprovalSteps(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, "approved", steps[0].Status)
	require.NotNil(t, steps[0].CompletedAt)
	require.Equal(t, "pending", steps[1].Status)
}

func TestNotificationsMarkRead(t *testing.T) {
	r, ctx := newTestRepo(t)
	tx, err := r.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, r.InsertNotificationTx(ctx, tx, domain.Notification{
		ID: "n-1", UserID: "alice", Title: "Approval requested", Message: "x", Kind: "info", CreatedAt: ts(),
	}))
	require.NoError(t, tx.Commit())

	unread, err := r.ListNotifications(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	// another user cannot mark someone else's notification
	require.ErrorIs(t, r.MarkNotificationRead(ctx, "n-1", "bob"), repo.ErrNotFound)
	require.NoError(t, r.MarkNotificationRead(ctx, "n-1", "alice"))

	unread, err = r.ListNotifications(ctx, "alice", true)
	require.NoError(t, err)
	require.Empty(t, unread)
}

func TestAPIKeyLookup(t *testing.T) {
	r, ctx := newTestRepo(t)
	hash := repo.HashAPIKey("  secret-key \n")
	require.Equal(t, repo.HashAPIKey("secret-key"), hash)

	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k-1", ActorID: "svc-1", Name: "ci", KeyHash: hash}))

	key, err := r.GetAPIKeyByHash(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, "svc-1", key.ActorID)

	_, err = r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong"))
	require.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.DeleteAPIKey(ctx, "k-1"))
	_, err = r.GetAPIKeyByHash(ctx, hash)
	require.ErrorIs(t, err, repo.ErrNotFound)
}
