package request_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
	"classattend/internal/model"
	"classattend/internal/request"
)

func fixtureRequests() []model.AttendanceRequest {
	return []model.AttendanceRequest{
		{ID: "1", StudentName: "Ada Lovelace", StudentEmail: "ada@uni.edu", SessionName: "Physics (PHY0001)", ClassName: "Physics",
			RequestType: model.TypeLocationIssue, Status: model.RequestPending, Description: "GPS drift",
			SubmittedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "2", StudentName: "Alan Turing", StudentEmail: "alan@uni.edu", SessionName: "Maths (MAT0002)", ClassName: "Maths",
			RequestType: model.TypeFaceMatchFailed, Status: model.RequestApproved, Description: "low light",
			SubmittedAt: time.Date(2024, 3, 2, 23, 30, 0, 0, time.UTC)},
		{ID: "3", StudentName: "Grace Hopper", StudentEmail: "grace@uni.edu", SessionName: "Physics (PHY0003)", ClassName: "Physics",
			RequestType: model.TypeFaceMatchFailed, Status: model.RequestRejected, Description: "Camera broken",
			SubmittedAt: time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)},
	}
}

func ids(rs []model.AttendanceRequest) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestApply(t *testing.T) {
	reqs := fixtureRequests()
	cases := []struct {
		name   string
		filter request.Filter
		want   []string
	}{
		{"no filters", request.Filter{}, []string{"1", "2", "3"}},
		{"status", request.Filter{Status: model.RequestPending}, []string{"1"}},
		{"type", request.Filter{Type: model.TypeFaceMatchFailed}, []string{"2", "3"}},
		{"class", request.Filter{ClassName: "Physics"}, []string{"1", "3"}},
		{"dateTo is inclusive to end of day", request.Filter{DateTo: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}, []string{"1", "2"}},
		{"dateFrom", request.Filter{DateFrom: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}, []string{"2", "3"}},
		{"search name case-insensitive", request.Filter{Search: "GRACE"}, []string{"3"}},
		{"search email", request.Filter{Search: "alan@"}, []string{"2"}},
		{"search session name", request.Filter{Search: "phy0001"}, []string{"1"}},
		{"search description", request.Filter{Search: "camera"}, []string{"3"}},
		{"combined with AND", request.Filter{Type: model.TypeFaceMatchFailed, ClassName: "Physics"}, []string{"3"}},
		{"no match", request.Filter{Search: "nobody"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ids(request.Apply(reqs, tc.filter)))
		})
	}
}

func TestFilterValidate(t *testing.T) {
	require.NoError(t, request.Filter{}.Validate())
	require.ErrorIs(t, request.Filter{Status: "open"}.Validate(), apperr.ErrInvalidInput)
	require.ErrorIs(t, request.Filter{Type: "late"}.Validate(), apperr.ErrInvalidInput)
	require.ErrorIs(t, request.Filter{
		DateFrom: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}.Validate(), apperr.ErrInvalidInput)
	require.NoError(t, request.Filter{
		DateFrom: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}.Validate())
}

func TestComputeStats(t *testing.T) {
	s := request.ComputeStats(fixtureRequests())
	require.Equal(t, 3, s.Total)
	require.Equal(t, 1, s.Pending)
	require.Equal(t, 1, s.Approved)
	require.Equal(t, 1, s.Rejected)
	require.Equal(t, 2, s.ByType[model.TypeFaceMatchFailed])
	require.Equal(t, 1, s.ByType[model.TypeLocationIssue])
	require.Equal(t, 0, s.ByType[model.TypeOther])

	empty := request.ComputeStats(nil)
	require.Equal(t, 0, empty.Total)
	require.Len(t, empty.ByType, len(model.RequestTypes))
}
