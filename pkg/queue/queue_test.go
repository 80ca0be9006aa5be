package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobRoundTripsPayload(t *testing.T) {
	want := ExportPayload{OrganizationID: uuid.New(), Partition: "org_acme", EventID: uuid.New()}
	job, err := NewJob(JobTypeAttendanceExport, want)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 0, job.Attempt)

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))

	var got ExportPayload
	require.NoError(t, decoded.Decode(&got))
	assert.Equal(t, want, got)
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	job := &Job{Type: JobTypePartitionReconcile, Payload: json.RawMessage(`"not an object"`)}
	var p ReconcilePayload
	assert.Error(t, job.Decode(&p))
}
