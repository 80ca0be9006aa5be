package attendance

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/sqlgw/sqlgwtest"
)

var galaTables = models.EventTables{Partition: "org_acme", Attendance: "gala_attendance", Verification: "gala_verification"}

// insertManyEcho returns one row per inserted tuple, skipping participant ids in taken.
func insertManyEcho(taken ...string) sqlgwtest.Handler {
	skip := map[string]bool{}
	for _, id := range taken {
		skip[id] = true
	}
	return func(_ string, p map[string]any) ([]sqlgw.Row, error) {
		var out []sqlgw.Row
		for i := 1; ; i += 3 {
			pid, ok := p[fmt.Sprintf("p%d", i)]
			if !ok {
				return out, nil
			}
			if skip[pid.(string)] {
				continue
			}
			out = append(out, sqlgw.Row{
				"id": uuid.New(), "participant_id": pid, "name": p[fmt.Sprintf("p%d", i+1)], "created_at": time.Now(),
			})
		}
	}
}

func TestBulkImportSeparatesDuplicatesAndInvalidRows(t *testing.T) {
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, insertManyEcho())
	repo := NewRepository(rec, galaTables, nil)

	res, err := repo.BulkImport(t.Context(), []AttendeeInput{
		{ParticipantID: "P1", Name: "Ada"},
		{ParticipantID: "P2", Name: "Grace", Email: "grace@navy.mil"},
		{ParticipantID: "P1", Name: "Ada again"},
		{ParticipantID: "", Name: "No Id"},
		{ParticipantID: "P3", Name: "Linus"},
	})
	require.NoError(t, err)

	imported := make([]string, 0, len(res.Imported))
	for _, a := range res.Imported {
		imported = append(imported, a.ParticipantID)
	}
	assert.Equal(t, []string{"P1", "P2", "P3"}, imported)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, 3, res.Duplicates[0].Row)
	assert.Equal(t, "P1", res.Duplicates[0].ParticipantID)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 4, res.Invalid[0].Row)
	assert.Contains(t, res.Invalid[0].Reason, "participantId")
	assert.Equal(t, 1, rec.Count("ON CONFLICT"))
}

func TestBulkImportReportsStoredDuplicates(t *testing.T) {
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, insertManyEcho("P2"))
	repo := NewRepository(rec, galaTables, nil)

	res, err := repo.BulkImport(t.Context(), []AttendeeInput{
		{ParticipantID: "P1", Name: "Ada"},
		{ParticipantID: "P2", Name: "Grace"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, "participant id already registered", res.Duplicates[0].Reason)
	assert.Empty(t, res.Invalid)
}

func TestBulkImportAllInvalidSkipsStorage(t *testing.T) {
	rec := sqlgwtest.New()
	repo := NewRepository(rec, galaTables, nil)

	res, err := repo.BulkImport(t.Context(), []AttendeeInput{{Name: "x"}, {ParticipantID: "P", Email: "nope"}})
	require.NoError(t, err)
	assert.Len(t, res.Invalid, 2)
	assert.Empty(t, rec.Calls())
}

func TestParseCSV(t *testing.T) {
	src := "Participant ID,Full Name,Email\n" +
		"P1,Ada Lovelace,ada@example.com\n" +
		"P2,Grace Hopper\n" +
		"\n" +
		"P3,\"Linus \"broken\" Torvalds\",l@example.com\n" +
		"P4,Ken,ken@example.com\n"
	rows, issues, err := ParseCSV(strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, AttendeeInput{ParticipantID: "P1", Name: "Ada Lovelace", Email: "ada@example.com", Row: 1}, rows[0])
	assert.Equal(t, "", rows[1].Email)
	assert.Equal(t, "P4", rows[2].ParticipantID)
	require.Len(t, issues, 1)
}

func TestParseCSVRequiresHeaderColumns(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("email\nx@y.z\n"))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	_, _, err = ParseCSV(strings.NewReader(""))
	require.ErrorAs(t, err, &ve)
}

func TestImportCSV(t *testing.T) {
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, insertManyEcho("P2"))
	repo := NewRepository(rec, galaTables, nil)

	res, err := repo.ImportCSV(t.Context(), strings.NewReader("id,name\nP1,Ada\nP2,Grace\nP3,\n"))
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)
	assert.Len(t, res.Duplicates, 1)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 3, res.Invalid[0].Row)
}

func TestCreateAttendeeConflict(t *testing.T) {
	rec := sqlgwtest.New().Fail("INSERT", &apperr.Error{Kind: apperr.KindConflict, Message: "duplicate"})
	repo := NewRepository(rec, galaTables, nil)

	_, err := repo.CreateAttendee(t.Context(), AttendeeInput{ParticipantID: "P1", Name: "Ada"})
	assert.True(t, apperr.IsConflict(err))
}

func TestLatestVerificationNone(t *testing.T) {
	repo := NewRepository(sqlgwtest.New(), galaTables, nil)
	v, err := repo.LatestVerification(t.Context(), "P1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestVerificationFromChangeFeedRow(t *testing.T) {
	row := sqlgw.Row{
		"id":             "6f1c1c52-7f1b-4d5c-9a57-0a8c9b7bb0a1",
		"participant_id": "P1",
		"name":           "Ada",
		"status":         "verified",
		"verified_at":    "2024-05-01T10:00:00.123456+00:00",
		"extra_column":   42.0,
	}
	v := VerificationFromRow(row)
	assert.Equal(t, models.StatusVerified, v.Status)
	assert.Equal(t, "P1", v.ParticipantID)
	assert.Equal(t, 2024, v.VerifiedAt.Year())
	assert.NotEqual(t, uuid.Nil, v.ID)
}

func TestExportRowsJoinsLatestStatus(t *testing.T) {
	now := time.Now()
	rec := sqlgwtest.New().
		Return(`FROM "org_acme"."gala_attendance"`,
			sqlgw.Row{"participant_id": "P1", "name": "Ada"},
			sqlgw.Row{"participant_id": "P2", "name": "Grace"}).
		Return(`FROM "org_acme"."gala_verification"`,
			sqlgw.Row{"participant_id": "P1", "status": "verified", "verified_at": now.Add(-time.Minute)},
			sqlgw.Row{"participant_id": "P1", "status": "duplicate", "verified_at": now})
	repo := NewRepository(rec, galaTables, nil)

	rows, err := repo.ExportRows(t.Context())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.StatusDuplicate, rows[0].LatestStatus)
	assert.Nil(t, rows[1].LastVerified)
}

func TestWriteCSV(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := []ExportRow{
		{
			AttendanceRecord: models.AttendanceRecord{ParticipantID: "P1", Name: "Ada, L.", CreatedAt: at},
			LatestStatus:     models.StatusVerified,
			LastVerified:     &models.VerificationRecord{VerifiedAt: at.Add(time.Hour)},
		},
		{AttendanceRecord: models.AttendanceRecord{ParticipantID: "P2", Name: "Bob", Email: "bob@x.io", CreatedAt: at}},
	}
	var buf strings.Builder
	require.NoError(t, WriteCSV(&buf, rows))
	assert.Equal(t, "participant_id,name,email,registered_at,status,last_verified_at\n"+
		"P1,\"Ada, L.\",,2026-05-01T10:00:00Z,verified,2026-05-01T11:00:00Z\n"+
		"P2,Bob,bob@x.io,2026-05-01T10:00:00Z,,\n", buf.String())
}

func TestListAttendeesSearchMatchesWildcardsLiterally(t *testing.T) {
	rec := sqlgwtest.New()
	repo := NewRepository(rec, galaTables, nil)

	_, err := repo.ListAttendees(t.Context(), AttendeeFilter{Search: " 50%_off "})
	require.NoError(t, err)
	require.NotEmpty(t, rec.Calls())
	for _, call := range rec.Calls() {
		assert.Contains(t, call.SQL, `"name" ILIKE @p1`)
		assert.Equal(t, `%50\%\_off%`, call.Params["p1"])
	}
}
