package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/stretchr/testify/require"
)

// GetGOK performs a GET, encoding params into the query string, and decodes the 200 response.
func GetGOK[T any](t *testing.T, router http.Handler, path string, params ...any) T {
	t.Helper()

	var body any
	if len(params) > 0 {
		body = params[0]
	}

	var value T
	endpointWithReceiver(t, router, http.MethodGet, path, body, http.StatusOK, &value)

	return value
}

func PostGOK[T any](t *testing.T, router http.Handler, path string, body any) T {
	t.Helper()

	var value T
	endpointWithReceiver(t, router, http.MethodPost, path, body, http.StatusOK, &value)

	return value
}

func PostGCreated[T any](t *testing.T, router http.Handler, path string, body any) T {
	t.Helper()

	var value T
	endpointWithReceiver(t, router, http.MethodPost, path, body, http.StatusCreated, &value)

	return value
}

func PostGAccepted[T any](t *testing.T, router http.Handler, path string, body any) T {
	t.Helper()

	var value T
	endpointWithReceiver(t, router, http.MethodPost, path, body, http.StatusAccepted, &value)

	return value
}

func GetNotFound(t *testing.T, router http.Handler, path string) {
	t.Helper()

	endpoint(t, router, http.MethodGet, path, nil, http.StatusNotFound)
}

func GetBadRequest(t *testing.T, router http.Handler, path string, params any) {
	t.Helper()

	endpoint(t, router, http.MethodGet, path, params, http.StatusBadRequest)
}

func PostOK(t *testing.T, router http.Handler, path string, body any) {
	t.Helper()

	endpoint(t, router, http.MethodPost, path, body, http.StatusOK)
}

func PostNotFound(t *testing.T, router http.Handler, path string, body any) {
	t.Helper()

	endpoint(t, router, http.MethodPost, path, body, http.StatusNotFound)
}

func PostBadRequest(t *testing.T, router http.Handler, path string, body any) {
	t.Helper()

	endpoint(t, router, http.MethodPost, path, body, http.StatusBadRequest)
}

func DeleteOK(t *testing.T, router http.Handler, path string) {
	t.Helper()

	endpoint(t, router, http.MethodDelete, path, nil, http.StatusOK)
}

func endpointWithReceiver(t *testing.T, router http.Handler, method string,
	path string, body any, expectedStatus int, receiver any,
) {
	t.Helper()

	resp := endpoint(t, router, method, path, body, expectedStatus)
	if err := json.NewDecoder(resp.Body).Decode(receiver); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func endpoint(t *testing.T, router http.Handler, method string, path string, body any, expectedStatus int) *httptest.ResponseRecorder {
	t.Helper()

	reqCtx, cancel := context.WithTimeout(t.Context(), time.Second*10)
	defer cancel()

	recorder := httptest.NewRecorder()

	var bodyReader io.Reader

	if body != nil && method == http.MethodGet {
		values, err := query.Values(body)
		if err != nil {
			t.Fatalf("failed to encode values: %v", err)
		}

		path += "?" + values.Encode()
	} else if body != nil {
		bodyJSON, errJSON := json.Marshal(body)
		if errJSON != nil {
			t.Fatalf("Failed to encode request: %v", errJSON)
		}

		bodyReader = bytes.NewReader(bodyJSON)
	}

	request, errRequest := http.NewRequestWithContext(reqCtx, method, path, bodyReader)
	if errRequest != nil {
		t.Fatalf("Failed to make request: %v", errRequest)
	}

	if bodyReader != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	router.ServeHTTP(recorder, request)

	require.Equal(t, expectedStatus, recorder.Code, "Received invalid response code. method: %s path: %s body: %s",
		method, path, recorder.Body.String())

	return recorder
}
