package httpapi_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/httpapi"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/testsupport"
)

const (
	defaultID = "newstyle:2023-01-11"
	legacyID  = "legacy:2019-03-12"
	testKey   = "super-secret-key"
)

func newTestAPI(t *testing.T, opts httpapi.Options) (*httpapi.API, *store.MemoryStore) {
	t.Helper()
	repo := store.NewMemoryStore()
	svc := grouper.NewService(repo, nil, &config.GroupingConfig{DefaultConfigID: defaultID, AllowCustomTitle: true})
	return httpapi.NewAPI(svc, opts), repo
}

func keyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func do(api *httpapi.API, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	api.Router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&out))
	return out
}

// =============================================================================
// Grouping
// =============================================================================

func TestAPI_GroupEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "Should group a message event",
			path:       "/api/v1/projects/1/events/grouping",
			body:       `{"event_id":"abc","platform":"python","message":"connection refused"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Should group a checksum event",
			path:       "/api/v1/projects/1/events/grouping",
			body:       `{"checksum":"0123456789abcdef0123456789abcdef"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Should reject a malformed payload",
			path:       "/api/v1/projects/1/events/grouping",
			body:       `{"message":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_JSON",
		},
		{
			name:       "Should reject a non numeric project id",
			path:       "/api/v1/projects/abc/events/grouping",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_PROJECT_ID",
		},
		{
			name:       "Should reject a zero project id",
			path:       "/api/v1/projects/0/events/grouping",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_PROJECT_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			api, _ := newTestAPI(t, httpapi.Options{SkipAuth: true})

			// Act
			rr := do(api, http.MethodPost, tt.path, tt.body, nil)

			// Assert
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode[httpapi.ErrorResponse](t, rr).Code)
				return
			}
			resp := decode[httpapi.GroupingResponse](t, rr)
			assert.Equal(t, int64(1), resp.ProjectID)
			assert.Equal(t, defaultID, resp.Config.ID)
			assert.NotEmpty(t, resp.Hashes)
			assert.NotEmpty(t, resp.Variants)
		})
	}
}

func TestAPI_GroupEvent_ProjectOptions(t *testing.T) {
	t.Parallel()

	t.Run("Should apply fingerprinting rules and return the custom title", func(t *testing.T) {
		t.Parallel()

		// Arrange
		api, _ := newTestAPI(t, httpapi.Options{SkipAuth: true})
		put := do(api, http.MethodPut, "/api/v1/projects/9/options/sentry:fingerprinting_rules",
			`{"value":"message:\"*refused*\" -> network title=\"Network down\""}`, nil)
		require.Equal(t, http.StatusOK, put.Code, put.Body.String())

		// Act
		rr := do(api, http.MethodPost, "/api/v1/projects/9/events/grouping", `{"message":"connection refused"}`, nil)

		// Assert
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[httpapi.GroupingResponse](t, rr)
		assert.Equal(t, []string{"network"}, resp.Fingerprint)
		assert.Equal(t, "Network down", resp.Title)
		assert.Contains(t, resp.Variants, "custom_fingerprint")
	})

	t.Run("Should return 404 for an unknown stored config", func(t *testing.T) {
		t.Parallel()

		// Arrange
		api, repo := newTestAPI(t, httpapi.Options{SkipAuth: true})
		require.NoError(t, repo.SetProjectOption(context.Background(), 3, "sentry:grouping_config", "gone:1999-01-01"))

		// Act
		rr := do(api, http.MethodPost, "/api/v1/projects/3/events/grouping", `{"message":"x"}`, nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "ERR_CONFIG_NOT_FOUND", decode[httpapi.ErrorResponse](t, rr).Code)
	})
}

func TestAPI_GroupEvent_PayloadLimit(t *testing.T) {
	t.Parallel()

	// Arrange
	api, _ := newTestAPI(t, httpapi.Options{SkipAuth: true, MaxBodyBytes: 32})
	body := `{"message":"` + strings.Repeat("x", 64) + `"}`

	// Act
	rr := do(api, http.MethodPost, "/api/v1/projects/1/events/grouping", body, nil)

	// Assert
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

// =============================================================================
// Configurations and options
// =============================================================================

func TestAPI_Configurations(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, httpapi.Options{SkipAuth: true})

	rr := do(api, http.MethodGet, "/api/v1/grouping-configs", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[httpapi.ConfigurationsResponse](t, rr)
	ids := make([]string, 0, len(resp.Data))
	for _, c := range resp.Data {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, defaultID)
	assert.Contains(t, ids, legacyID)
}

func TestAPI_ProjectConfigAndOptions(t *testing.T) {
	t.Parallel()

	// Arrange
	api, _ := newTestAPI(t, httpapi.Options{SkipAuth: true})

	// Act & Assert: default before any option
	rr := do(api, http.MethodGet, "/api/v1/projects/5/grouping-config", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, defaultID, decode[map[string]string](t, rr)["id"])

	// Invalid values never reach the store
	rr = do(api, http.MethodPut, "/api/v1/projects/5/options/sentry:grouping_config", `{"value":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(api, http.MethodPut, "/api/v1/projects/5/options/sentry:grouping_config", `{"value":"`+legacyID+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(api, http.MethodGet, "/api/v1/projects/5/grouping-config", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, legacyID, decode[map[string]string](t, rr)["id"])

	rr = do(api, http.MethodGet, "/api/v1/projects/5/options/", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	opts := decode[httpapi.OptionsResponse](t, rr)
	assert.Equal(t, map[string]string{"sentry:grouping_config": legacyID}, opts.Options)
	assert.NotNil(t, opts.UpdatedAt)

	rr = do(api, http.MethodDelete, "/api/v1/projects/5/options/sentry:grouping_config", "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(api, http.MethodDelete, "/api/v1/projects/5/options/sentry:grouping_config", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(api, http.MethodDelete, "/api/v1/projects/5/options/sentry:unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// Authentication
// =============================================================================

func TestAPI_Authentication(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		key        string
		wantStatus int
	}{
		{"Should accept a valid key", "/api/v1/grouping-configs", testKey, http.StatusOK},
		{"Should reject a missing key", "/api/v1/grouping-configs", "", http.StatusUnauthorized},
		{"Should reject a wrong key", "/api/v1/grouping-configs", "wrong", http.StatusUnauthorized},
		{"Should not protect the health check", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			api, _ := newTestAPI(t, httpapi.Options{APIKeyHash: keyHash(testKey)})
			header := http.Header{}
			if tt.key != "" {
				header.Set(httpapi.APIKeyHeader, tt.key)
			}

			// Act
			rr := do(api, http.MethodGet, tt.path, "", header)

			// Assert
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestNewAPI_Panics(t *testing.T) {
	t.Parallel()

	svc := grouper.NewService(store.NewMemoryStore(), nil, &config.GroupingConfig{DefaultConfigID: defaultID})

	assert.Panics(t, func() { httpapi.NewAPI(nil, httpapi.Options{SkipAuth: true}) })
	assert.Panics(t, func() { httpapi.NewAPI(svc, httpapi.Options{}) })
	assert.NotPanics(t, func() { httpapi.NewAPI(svc, httpapi.Options{SkipAuth: true}) })
}

// =============================================================================
// Metrics
// =============================================================================

// Not parallel: asserts on the global metrics registry.
func TestAPI_Metrics(t *testing.T) {
	api, _ := newTestAPI(t, httpapi.Options{SkipAuth: true})

	testsupport.AssertMetricDelta(t, "grouper_http_requests_total",
		map[string]string{"method": "GET", "path": "/api/v1/grouping-configs", "code": "200"}, 1, func() {
			do(api, http.MethodGet, "/api/v1/grouping-configs", "", nil)
		})

	testsupport.AssertMetricDelta(t, "grouper_http_requests_total",
		map[string]string{"method": "POST", "path": "/api/v1/projects/{projectID}/events/grouping", "code": "400"}, 1, func() {
			do(api, http.MethodPost, "/api/v1/projects/1/events/grouping", "not json", nil)
		})

	testsupport.AssertHistogramRecorded(t, "grouper_http_handling_seconds",
		map[string]string{"method": "GET", "path": "/api/v1/grouping-configs"})
}
