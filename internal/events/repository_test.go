package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/sqlgw/sqlgwtest"
)

// eventStore keeps inserted event rows so tests can observe compensating deletes.
type eventStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]sqlgw.Row
}

func (s *eventStore) install(rec *sqlgwtest.Recorder) *sqlgwtest.Recorder {
	s.rows = map[uuid.UUID]sqlgw.Row{}
	return rec.
		On(`DELETE FROM "org_acme"."events"`, func(_ string, p map[string]any) ([]sqlgw.Row, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.rows, p["p1"].(uuid.UUID))
			return nil, nil
		}).
		On(`INSERT INTO "org_acme"."events"`, func(_ string, p map[string]any) ([]sqlgw.Row, error) {
			// sorted columns: attendance_table, is_active, name, verification_table
			row := sqlgw.Row{
				"id": uuid.New(), "attendance_table": p["p1"], "is_active": p["p2"], "name": p["p3"],
				"verification_table": p["p4"], "created_at": time.Now(), "updated_at": time.Now(),
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			s.rows[row.UUID("id")] = row
			return []sqlgw.Row{row}, nil
		}).
		On(`FROM "org_acme"."events" WHERE "id"`, func(_ string, p map[string]any) ([]sqlgw.Row, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if row, ok := s.rows[p["p1"].(uuid.UUID)]; ok {
				return []sqlgw.Row{row}, nil
			}
			return nil, nil
		})
}

func newRepo(rec *sqlgwtest.Recorder) *Repository {
	return NewRepository(rec, schema.NewProvisioner(rec, nil), "org_acme", nil)
}

func TestCreateEvent(t *testing.T) {
	store := &eventStore{}
	rec := store.install(sqlgwtest.New())
	repo := newRepo(rec)

	res, err := repo.Create(t.Context(), CreateInput{Name: "Annual Meeting"})
	require.NoError(t, err)
	assert.Equal(t, "annual_meeting_attendance", res.Event.AttendanceTable)
	assert.Equal(t, "annual_meeting_verification", res.Event.VerificationTable)
	assert.True(t, res.Event.IsActive)
	assert.Empty(t, res.Warnings)
	assert.Less(t, rec.Index(`INSERT INTO "org_acme"."events"`), rec.Index(`"annual_meeting_attendance" (`))

	got, err := repo.GetByID(t.Context(), res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annual Meeting", got.Name)
}

func TestCreateEventDuplicateName(t *testing.T) {
	rec := sqlgwtest.New().Return(`WHERE "attendance_table" = @p1`, sqlgw.Row{"id": uuid.New()})
	repo := newRepo(rec)

	_, err := repo.Create(t.Context(), CreateInput{Name: "annual   meeting"})
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, 0, rec.Count("INSERT"))
	assert.Equal(t, "annual_meeting_attendance", rec.Calls()[0].Params["p1"])
}

func TestCreateEventCompensatesFailedProvisioning(t *testing.T) {
	store := &eventStore{}
	rec := store.install(sqlgwtest.New().Fail(`"gala_attendance" (`, errors.New("disk full")))
	repo := newRepo(rec)

	_, err := repo.Create(t.Context(), CreateInput{Name: "Gala"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProvision))

	store.mu.Lock()
	assert.Empty(t, store.rows)
	store.mu.Unlock()
	require.Equal(t, 1, rec.Count(`INSERT INTO "org_acme"."events"`))
	assert.Greater(t, rec.Index(`DELETE FROM "org_acme"."events"`), rec.Index(`"gala_attendance" (`))
}

func TestCreateEventIndexFailureIsWarning(t *testing.T) {
	store := &eventStore{}
	rec := store.install(sqlgwtest.New().Fail("CREATE INDEX", errors.New("boom")))
	repo := newRepo(rec)

	res, err := repo.Create(t.Context(), CreateInput{Name: "Gala"})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, 0, rec.Count("DELETE"))
}

func TestEndAndReactivateAreSingleUpdates(t *testing.T) {
	id := uuid.New()
	rec := sqlgwtest.New().Return(`UPDATE "org_acme"."events"`, sqlgw.Row{"id": id})
	repo := newRepo(rec)

	_, err := repo.EndEvent(t.Context(), id)
	require.NoError(t, err)
	_, err = repo.ReactivateEvent(t.Context(), id)
	require.NoError(t, err)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t,
		`UPDATE "org_acme"."events" SET "is_active" = @p1, "ended_at" = NOW(), "updated_at" = NOW() WHERE "id" = @p2 RETURNING "id", "name", "created_by", "is_active", "ended_at", "attendance_table", "verification_table", "created_at", "updated_at"`,
		calls[0].SQL)
	assert.Contains(t, calls[1].SQL, `SET "ended_at" = @p1, "is_active" = @p2, "updated_at" = NOW()`)
	assert.Nil(t, calls[1].Params["p1"])
	assert.Equal(t, true, calls[1].Params["p2"])
}

func TestRenameKeepsTables(t *testing.T) {
	rec := sqlgwtest.New().Return(`UPDATE "org_acme"."events"`, sqlgw.Row{"name": "New", "attendance_table": "old_attendance"})
	repo := newRepo(rec)

	ev, err := repo.Rename(t.Context(), uuid.New(), RenameInput{Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, "old_attendance", ev.AttendanceTable)
	assert.NotContains(t, rec.Calls()[0].SQL, `"attendance_table" =`)
}

func TestDeleteEventDropsThenDeletesRow(t *testing.T) {
	id := uuid.New()
	rec := sqlgwtest.New().
		Fail(`DROP TABLE IF EXISTS "org_acme"."gala_verification"`, errors.New("locked")).
		Return(`SELECT "id", "name"`, sqlgw.Row{
			"id": id, "attendance_table": "gala_attendance", "verification_table": "gala_verification",
		})
	repo := newRepo(rec)

	require.NoError(t, repo.Delete(t.Context(), id))
	assert.Greater(t, rec.Index(`DELETE FROM "org_acme"."events"`), rec.Index("DROP TABLE"))
}
