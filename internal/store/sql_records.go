package store

import (
	"context"

	"classattend/internal/model"
)

const recordColumns = `session_id, student_id, status, recorded_at, loc_lat, loc_lon, face_match_score,
	approved_manually, approved_by, original_request_id, location_unverified`

func scanRecord(row scanner) (model.AttendanceRecord, error) {
	var r model.AttendanceRecord
	err := row.Scan(&r.SessionID, &r.StudentID, &r.Status, &r.Timestamp, &r.Location.Lat, &r.Location.Lon,
		&r.FaceMatchScore, &r.ApprovedManually, &r.ApprovedBy, &r.OriginalRequestID, &r.LocationUnverified)
	r.Timestamp = r.Timestamp.UTC()
	return r, err
}

// UpsertRecord writes the record for (session, student); a later write replaces the earlier one.
func (s *SQL) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) error {
	return s.upsertRecord(ctx, s.db, rec)
}

func (s *SQL) upsertRecord(ctx context.Context, q querier, rec model.AttendanceRecord) error {
	_, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = excluded.status,
			recorded_at = excluded.recorded_at,
			loc_lat = excluded.loc_lat,
			loc_lon = excluded.loc_lon,
			face_match_score = excluded.face_match_score,
			approved_manually = excluded.approved_manually,
			approved_by = excluded.approved_by,
			original_request_id = excluded.original_request_id,
			location_unverified = excluded.location_unverified
	`), rec.SessionID, rec.StudentID, string(rec.Status), rec.Timestamp.UTC(), rec.Location.Lat, rec.Location.Lon,
		rec.FaceMatchScore, rec.ApprovedManually, rec.ApprovedBy, rec.OriginalRequestID, rec.LocationUnverified)
	return classify(err)
}

// ListRecords returns every record of a session ordered by timestamp.
func (s *SQL) ListRecords(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1
		ORDER BY recorded_at
	`), sessionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []model.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// ListRecordsBySessions returns records grouped by session id.
func (s *SQL) ListRecordsBySessions(ctx context.Context, sessionIDs []string) (map[string][]model.AttendanceRecord, error) {
	out := make(map[string][]model.AttendanceRecord, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id IN (`+placeholders(1, len(sessionIDs))+`)
		ORDER BY recorded_at
	`), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, classify(err)
		}
		out[r.SessionID] = append(out[r.SessionID], r)
	}
	return out, classify(rows.Err())
}
