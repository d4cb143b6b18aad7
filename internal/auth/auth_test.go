package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"classattend/internal/auth"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "attendance-engine"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := auth.Issue(auth.Subject{ID: "inst-1", Role: auth.RoleInstructor, Name: "Dr. Rao"}, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	require.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := auth.Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	require.Equal(t, "inst-1", claims.Subject)
	require.Equal(t, auth.RoleInstructor, claims.Role)
	require.Equal(t, "Dr. Rao", claims.Name)

	_, err = auth.Parse(pair.AccessToken, "other-key", testIssuer)
	require.Error(t, err)
	_, err = auth.Parse(pair.AccessToken, testKey, "someone-else")
	require.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	pair, err := auth.Issue(auth.Subject{ID: "stu-1", Role: auth.RoleStudent}, testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = auth.Parse(pair.AccessToken, testKey, testIssuer)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", auth.Authenticate(testKey, testIssuer), auth.RequireRole(auth.RoleInstructor), func(c *gin.Context) {
		id, ok := auth.IdentityFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.ID)
	})

	token := func(role string) string {
		pair, err := auth.Issue(auth.Subject{ID: "u-1", Role: role}, testIssuer, testKey, time.Minute, time.Hour)
		require.NoError(t, err)
		return pair.AccessToken
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + token(auth.RoleStudent), http.StatusForbidden},
		{"instructor", "Bearer " + token(auth.RoleInstructor), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
		})
	}
}
