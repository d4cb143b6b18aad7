package model

import (
	"time"

	"classattend/internal/geo"
)

// Session is one instructor-initiated, time and location bounded attendance window.
type Session struct {
	ID              string       `json:"id"`
	InstructorID    string       `json:"instructorId"`
	ClassID         string       `json:"classId"`
	ClassName       string       `json:"className"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         time.Time    `json:"endTime"`
	DurationMinutes int          `json:"duration"`
	Geofence        geo.Geofence `json:"geofence"`
	SessionCode     string       `json:"sessionCode"`
	Active          bool         `json:"active"`
}

// IsOpen reports whether the session accepts check-ins at now: not ended and not past endTime.
func (s Session) IsOpen(now time.Time) bool {
	return s.Active && !now.After(s.EndTime)
}

// RecordStatus is the outcome stored in the ledger. No record means absent.
type RecordStatus string

const (
	StatusPresent RecordStatus = "present"
	StatusAbsent  RecordStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s RecordStatus) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// AttendanceRecord is the ledger entry for one student in one session.
type AttendanceRecord struct {
	SessionID          string       `json:"sessionId"`
	StudentID          string       `json:"studentId"`
	Status             RecordStatus `json:"status"`
	Timestamp          time.Time    `json:"timestamp"`
	Location           geo.Point    `json:"location"`
	FaceMatchScore     *float64     `json:"faceMatchScore,omitempty"`
	ApprovedManually   bool         `json:"approvedManually"`
	ApprovedBy         string       `json:"approvedBy,omitempty"`
	OriginalRequestID  string       `json:"originalRequestId,omitempty"`
	LocationUnverified bool         `json:"locationUnverified,omitempty"`
}

// RequestType classifies why an automatic check-in failed.
type RequestType string

const (
	TypeFaceMatchFailed RequestType = "face_match_failed"
	TypeLocationIssue   RequestType = "location_issue"
	TypeTechnicalError  RequestType = "technical_error"
	TypeOther           RequestType = "other"
)

// RequestTypes lists every request type in display order.
var RequestTypes = []RequestType{TypeFaceMatchFailed, TypeLocationIssue, TypeTechnicalError, TypeOther}

// Valid returns true when the type is a supported value.
func (t RequestType) Valid() bool {
	switch t {
	case TypeFaceMatchFailed, TypeLocationIssue, TypeTechnicalError, TypeOther:
		return true
	default:
		return false
	}
}

// RequestStatus is the review state of an exception request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Valid returns true when the status is a supported value.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// Evidence is an attachment supporting an exception request.
type Evidence struct {
	Type     string `json:"type" validate:"oneof=image screenshot document"`
	URL      string `json:"url" validate:"required,url"`
	Filename string `json:"filename,omitempty"`
}

// Attempt snapshots a failed automatic check-in.
type Attempt struct {
	Timestamp      time.Time `json:"timestamp"`
	Location       geo.Point `json:"location"`
	FaceMatchScore *float64  `json:"faceMatchScore,omitempty"`
	Error          string    `json:"error"`
	DistanceMeters *float64  `json:"distanceMeters,omitempty"`
}

// AttendanceRequest is a student's appeal against a failed automatic check-in.
type AttendanceRequest struct {
	ID              string        `json:"id"`
	StudentID       string        `json:"studentId"`
	StudentName     string        `json:"studentName"`
	StudentEmail    string        `json:"studentEmail"`
	SessionID       string        `json:"sessionId"`
	SessionName     string        `json:"sessionName"`
	ClassName       string        `json:"className"`
	InstructorID    string        `json:"facultyId"`
	RequestType     RequestType   `json:"requestType"`
	Status          RequestStatus `json:"status"`
	Description     string        `json:"description"`
	Evidence        []Evidence    `json:"evidence,omitempty"`
	Location        *geo.Point    `json:"location,omitempty"`
	SubmittedAt     time.Time     `json:"submittedAt"`
	ReviewedAt      *time.Time    `json:"reviewedAt,omitempty"`
	ReviewedBy      string        `json:"reviewedBy,omitempty"`
	ReviewComments  string        `json:"reviewComments,omitempty"`
	OriginalAttempt *Attempt      `json:"originalAttendanceAttempt,omitempty"`
}

// SessionRecords pairs a session with its ledger entries for aggregation.
type SessionRecords struct {
	Session Session
	Records []AttendanceRecord
}

// PresentCount returns the number of present records.
func (s SessionRecords) PresentCount() int {
	n := 0
	for _, r := range s.Records {
		if r.Status == StatusPresent {
			n++
		}
	}
	return n
}
