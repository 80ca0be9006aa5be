package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

var exportHeader = []string{"participant_id", "name", "email", "registered_at", "status", "last_verified_at"}

// WriteCSV writes rows as a report with a header line. Attendees never
// scanned have an empty status and timestamp.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		last := ""
		if r.LastVerified != nil {
			last = r.LastVerified.VerifiedAt.UTC().Format(time.RFC3339)
		}
		rec := []string{
			r.ParticipantID,
			r.Name,
			r.Email,
			r.CreatedAt.UTC().Format(time.RFC3339),
			string(r.LatestStatus),
			last,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", r.ParticipantID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
