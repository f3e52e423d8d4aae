package httphelper

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var errLocked = errors.New("database is locked")

func TestNewAPIErrorTitles(t *testing.T) {
	for _, tc := range []struct {
		name  string
		err   error
		title string
		kind  string
	}{
		{name: "busy store", err: errors.Join(errLocked, ErrServiceBusy), title: ErrServiceBusy.Error(), kind: "urn:encounters:problem:store-busy"},
		{name: "missing encounter", err: ErrNotFound, title: "encounter not found", kind: "urn:encounters:problem:not-found"},
		{name: "full queue", err: errors.Join(errLocked, ErrQueueFull), title: ErrQueueFull.Error(), kind: "urn:encounters:problem:queue-full"},
		{name: "bad path", err: errors.Join(errLocked, ErrParamParse), title: ErrParamParse.Error(), kind: "urn:encounters:problem:invalid-path"},
		{name: "unknown cause", err: errors.Join(errLocked, errors.New("page_size too large")), title: "page_size too large", kind: problemBlank},
		{name: "bare cause", err: errLocked, title: errLocked.Error(), kind: problemBlank},
	} {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := NewAPIError(http.StatusTeapot, tc.err)
			require.Equal(t, tc.title, apiErr.Title)
			require.Equal(t, tc.kind, apiErr.Type)
			require.Equal(t, http.StatusTeapot, apiErr.Status)
			require.ErrorIs(t, apiErr, tc.err)
		})
	}
}

func TestErrorHandlerWritesProblem(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(errorHandler())
	router.GET("/api/encounters/:encounter_id", func(ctx *gin.Context) {
		SetError(ctx, NewAPIErrorf(http.StatusServiceUnavailable, errors.Join(errLocked, ErrServiceBusy), "retry %s", "later"))
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/api/encounters/7", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	require.Equal(t, "application/problem+json", recorder.Header().Get("Content-Type"))

	var problem APIError
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&problem))
	require.Equal(t, "urn:encounters:problem:store-busy", problem.Type)
	require.Equal(t, ErrServiceBusy.Error(), problem.Title)
	require.Equal(t, "retry later", problem.Detail)
	require.Equal(t, "/api/encounters/7", problem.Instance)
	require.NotContains(t, recorder.Body.String(), errLocked.Error())
}
