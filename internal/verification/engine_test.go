package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
)

type memStore struct {
	mu        sync.Mutex
	attendees map[string]*models.AttendanceRecord
	log       []models.VerificationRecord
	lookupLag time.Duration
	appendErr error
	findErr   error
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{attendees: map[string]*models.AttendanceRecord{}}
	for _, id := range ids {
		s.attendees[id] = &models.AttendanceRecord{ID: uuid.New(), ParticipantID: id, Name: "Name " + id}
	}
	return s
}

func (s *memStore) Tables() models.EventTables {
	return models.EventTables{Partition: "org_acme", Attendance: "gala_attendance", Verification: "gala_verification"}
}

func (s *memStore) FindAttendee(_ context.Context, id string) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	a, ok := s.attendees[id]
	if !ok {
		return nil, apperr.NotFound("participant %s not found", id)
	}
	return a, nil
}

func (s *memStore) LatestVerification(_ context.Context, id string) (*models.VerificationRecord, error) {
	time.Sleep(s.lookupLag)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].ParticipantID == id {
			v := s.log[i]
			return &v, nil
		}
	}
	return nil, nil
}

func (s *memStore) CountVerifications(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.log {
		if v.ParticipantID == id {
			n++
		}
	}
	return n, nil
}

func (s *memStore) AppendVerification(_ context.Context, a *models.AttendanceRecord, status models.VerificationStatus, note string) (*models.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	v := models.VerificationRecord{
		ID: uuid.New(), Name: a.Name, ParticipantID: a.ParticipantID, Status: status, VerifiedAt: time.Now(), Note: note,
	}
	s.log = append(s.log, v)
	return &v, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []models.VerificationRecord
}

func (p *recordingPublisher) Publish(_ context.Context, _ models.EventTables, rec models.VerificationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

var activeEvent = &models.Event{Name: "Gala", IsActive: true}

func TestScanFirstVerifiedThenDuplicate(t *testing.T) {
	store := newMemStore("P1")
	pub := &recordingPublisher{}
	e := NewEngine(nil, WithPublisher(pub))

	first, err := e.Scan(t.Context(), store, activeEvent, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, first.Status)
	assert.Equal(t, "Name P1", first.Attendee.Name)

	second, err := e.Scan(t.Context(), store, activeEvent, " P1 ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, second.Status)
	assert.Equal(t, 2, store.count())
	assert.Len(t, pub.recs, 2)
}

func TestScanUnknownParticipantWritesNothing(t *testing.T) {
	store := newMemStore("P1")
	e := NewEngine(nil)

	_, err := e.Scan(t.Context(), store, activeEvent, "P404")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, 0, store.count())
}

func TestScanEndedEventRejected(t *testing.T) {
	store := newMemStore("P1")
	ended := time.Now()
	e := NewEngine(nil)

	_, err := e.Scan(t.Context(), store, &models.Event{Name: "Gala", EndedAt: &ended}, "P1")
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, 0, store.count())
}

func TestScanEmptyParticipant(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Scan(t.Context(), newMemStore(), activeEvent, "  ")
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestScanStorageFailure(t *testing.T) {
	store := newMemStore("P1")
	store.appendErr = apperr.Transient(errors.New("conn reset"), "execution gateway")
	e := NewEngine(nil)

	_, err := e.Scan(t.Context(), store, activeEvent, "P1")
	assert.True(t, apperr.Is(err, apperr.KindTransient))
}

func TestScanMissingTablesIsNotUnknownParticipant(t *testing.T) {
	store := newMemStore("P1")
	store.findErr = apperr.StorageMissing(errors.New(`relation "org_acme.gala_attendance" does not exist`), "storage is not provisioned")
	e := NewEngine(nil)

	_, err := e.Scan(t.Context(), store, activeEvent, "P1")
	require.Error(t, err)
	assert.False(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsStorageMissing(err))
	assert.Equal(t, 0, store.count())

	state, err := e.CurrentState(t.Context(), store, "P1")
	assert.Nil(t, state)
	assert.True(t, apperr.IsStorageMissing(err))
}

func TestConcurrentScansYieldOneVerified(t *testing.T) {
	store := newMemStore("P1")
	store.lookupLag = 2 * time.Millisecond
	e := NewEngine(nil)

	const n = 20
	statuses := make(chan models.VerificationStatus, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Scan(context.Background(), store, activeEvent, "P1")
			if assert.NoError(t, err) {
				statuses <- res.Status
			}
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[models.VerificationStatus]int{}
	for s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[models.StatusVerified])
	assert.Equal(t, n-1, counts[models.StatusDuplicate])
}

func TestMarkInvalidAndCurrentState(t *testing.T) {
	store := newMemStore("P1", "P2")
	e := NewEngine(nil)

	st, err := e.CurrentState(t.Context(), store, "P9")
	require.NoError(t, err)
	assert.Equal(t, models.StateUnknown, st.State)

	st, err = e.CurrentState(t.Context(), store, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, st.State)

	rec, err := e.MarkInvalid(t.Context(), store, "P1", "ticket reused")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInvalid, rec.Status)
	assert.Equal(t, "ticket reused", rec.Note)

	st, err = e.CurrentState(t.Context(), store, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmed, st.State)
	assert.Equal(t, 1, st.Verifications)
	assert.Equal(t, models.StatusInvalid, st.Latest.Status)

	_, err = e.MarkInvalid(t.Context(), store, "P404", "")
	assert.True(t, apperr.IsNotFound(err))
}
