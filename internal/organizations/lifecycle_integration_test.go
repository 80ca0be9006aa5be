//go:build integration

package organizations_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/attendance"
	"github.com/aura-attendance/backend/internal/events"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/notifier"
	"github.com/aura-attendance/backend/internal/organizations"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/stats"
	"github.com/aura-attendance/backend/internal/verification"
	"github.com/aura-attendance/backend/pkg/database"
)

func setupPostgres(t *testing.T, ctx context.Context) (*sqlgw.Gateway, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "attendance",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/attendance?sslmode=disable", host, port.Port())
	pool, err := database.NewPostgresPool(ctx, dsn, 5, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, pool, zap.NewNop()))
	// A second run applies nothing.
	require.NoError(t, database.Migrate(ctx, pool, zap.NewNop()))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return sqlgw.NewGateway(pool, zap.NewNop()), cleanup
}

func TestIntegration_OrganizationLifecycle(t *testing.T) {
	ctx := context.Background()
	gw, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	prov := schema.NewProvisioner(gw, nil)
	orgs := organizations.NewRepository(gw, prov, nil)

	org, err := orgs.Create(ctx, organizations.CreateInput{Name: "Test Company", Email: "ops@test.co", Password: "longenough"})
	require.NoError(t, err)
	require.Equal(t, "org_test_company", org.PartitionID)

	_, err = orgs.Create(ctx, organizations.CreateInput{Name: "Other", Email: "ops@test.co", Password: "longenough"})
	require.Error(t, err)

	created, err := events.NewRepository(gw, prov, org.PartitionID, nil).Create(ctx, events.CreateInput{Name: "Annual Meeting"})
	require.NoError(t, err)
	ev := created.Event
	tables := ev.Tables(org.PartitionID)
	assert.Equal(t, "annual_meeting_attendance", tables.Attendance)

	store := attendance.NewRepository(gw, tables, nil)
	_, err = store.CreateAttendee(ctx, attendance.AttendeeInput{ParticipantID: "P1", Name: "Ada", Email: "ada@test.co"})
	require.NoError(t, err)
	_, err = store.CreateAttendee(ctx, attendance.AttendeeInput{ParticipantID: "P2", Name: "Grace"})
	require.NoError(t, err)

	agg := stats.NewAggregator(gw, nil)
	updates := make(chan models.VerificationRecord, 4)
	n := notifier.New(notifier.NewPostgresFeed(gw.Pool(), 8, nil), agg, nil)
	require.NoError(t, n.Subscribe(ctx, ev.ID.String(), tables.Partition, tables.Verification, notifier.Handlers{
		OnVerificationUpdate: func(v models.VerificationRecord) { updates <- v },
	}))
	defer n.UnsubscribeAll()

	engine := verification.NewEngine(nil)
	first, err := engine.Scan(ctx, store, ev, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, first.Status)
	second, err := engine.Scan(ctx, store, ev, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, second.Status)
	_, err = engine.Scan(ctx, store, ev, "nobody")
	require.Error(t, err)

	select {
	case v := <-updates:
		assert.Equal(t, "P1", v.ParticipantID)
	case <-time.After(5 * time.Second):
		t.Fatal("no verification update delivered")
	}

	s, err := agg.ForEvent(ctx, tables)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalAttendees)
	assert.Equal(t, 1, s.VerifiedCount)
	assert.Equal(t, 1, s.DuplicateCount)
	assert.Equal(t, 50.0, s.VerificationRate)

	report, err := prov.Reconcile(ctx, org.PartitionID)
	require.NoError(t, err)
	assert.Empty(t, report.RepairedEvents)

	require.NoError(t, orgs.Delete(ctx, org.ID))
	exists, err := prov.PartitionExists(ctx, org.PartitionID)
	require.NoError(t, err)
	assert.False(t, exists)
}
