package grpcapi_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/grpcapi"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/testsupport"
)

const (
	defaultID = "newstyle:2023-01-11"
	legacyID  = "legacy:2019-03-12"
)

// setupServer starts the Grouping service on an in-memory listener.
func setupServer(t *testing.T) (*grpcapi.Client, *store.MemoryStore) {
	t.Helper()

	repo := store.NewMemoryStore()
	svc := grouper.NewService(repo, nil, &config.GroupingConfig{DefaultConfigID: defaultID, AllowCustomTitle: true})

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcapi.RequestLoggerInterceptor(logger.Discard()),
		grpcapi.ObservabilityInterceptor(),
	))
	grpcapi.NewAPI(svc).Register(s)
	go func() { _ = s.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		s.Stop()
	})
	return grpcapi.NewClient(conn), repo
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

// =============================================================================
// GetVariants
// =============================================================================

func TestAPI_GetVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		request  map[string]any
		wantCode codes.Code
	}{
		{
			name: "Should group a message event",
			request: map[string]any{
				"project_id": 1,
				"event":      map[string]any{"platform": "python", "message": "connection refused"},
			},
			wantCode: codes.OK,
		},
		{
			name:     "Should reject a missing project id",
			request:  map[string]any{"event": map[string]any{"message": "x"}},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "Should reject a fractional project id",
			request:  map[string]any{"project_id": 1.5, "event": map[string]any{"message": "x"}},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "Should reject a project id beyond int64",
			request:  map[string]any{"project_id": float64(1 << 63), "event": map[string]any{"message": "x"}},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "Should reject a string project id",
			request:  map[string]any{"project_id": "1", "event": map[string]any{"message": "x"}},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "Should reject a missing event",
			request:  map[string]any{"project_id": 1},
			wantCode: codes.InvalidArgument,
		},
		{
			name: "Should reject an event with mistyped fields",
			request: map[string]any{
				"project_id": 1,
				"event":      map[string]any{"message": 12},
			},
			wantCode: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			client, _ := setupServer(t)

			// Act
			resp, err := client.GetVariants(context.Background(), mustStruct(t, tt.request))

			// Assert
			require.Equal(t, tt.wantCode, status.Code(err), "error: %v", err)
			if tt.wantCode != codes.OK {
				return
			}
			fields := resp.GetFields()
			assert.Equal(t, defaultID, fields["grouping_config"].GetStructValue().GetFields()["id"].GetStringValue())
			assert.NotEmpty(t, fields["hashes"].GetListValue().GetValues())
			assert.NotEmpty(t, fields["variants"].GetStructValue().GetFields())
		})
	}
}

func TestAPI_GetVariants_UnknownConfig(t *testing.T) {
	t.Parallel()

	// Arrange
	client, repo := setupServer(t)
	require.NoError(t, repo.SetProjectOption(context.Background(), 2, "sentry:grouping_config", "gone:1999-01-01"))

	// Act
	_, err := client.GetVariants(context.Background(), mustStruct(t, map[string]any{
		"project_id": 2,
		"event":      map[string]any{"message": "x"},
	}))

	// Assert
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestAPI_GetVariants_RequestID(t *testing.T) {
	t.Parallel()

	client, _ := setupServer(t)
	req := mustStruct(t, map[string]any{"project_id": 1, "event": map[string]any{"message": "x"}})

	t.Run("Should echo the caller request id", func(t *testing.T) {
		var header metadata.MD
		ctx := metadata.AppendToOutgoingContext(context.Background(), grpcapi.RequestIDKey, "req-123")

		_, err := client.GetVariants(ctx, req, grpc.Header(&header))

		require.NoError(t, err)
		assert.Equal(t, []string{"req-123"}, header.Get(grpcapi.RequestIDKey))
	})

	t.Run("Should generate a request id when missing", func(t *testing.T) {
		var header metadata.MD

		_, err := client.GetVariants(context.Background(), req, grpc.Header(&header))

		require.NoError(t, err)
		require.Len(t, header.Get(grpcapi.RequestIDKey), 1)
		assert.Len(t, header.Get(grpcapi.RequestIDKey)[0], 36)
	})
}

// =============================================================================
// GetProjectConfig
// =============================================================================

func TestAPI_GetProjectConfig(t *testing.T) {
	t.Parallel()

	// Arrange
	client, repo := setupServer(t)
	require.NoError(t, repo.SetProjectOption(context.Background(), 4, "sentry:grouping_config", legacyID))

	// Act
	resp, err := client.GetProjectConfig(context.Background(), mustStruct(t, map[string]any{"project_id": 4}))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, legacyID, resp.GetFields()["id"].GetStringValue())
	assert.NotEmpty(t, resp.GetFields()["enhancements"].GetStringValue())
}

func TestNewAPI_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { grpcapi.NewAPI(nil) })
}

// =============================================================================
// Metrics
// =============================================================================

// Not parallel: asserts on the global metrics registry.
func TestAPI_Metrics(t *testing.T) {
	client, _ := setupServer(t)
	labels := map[string]string{"method": "/grouper.v1.Grouping/GetVariants", "code": "InvalidArgument"}

	testsupport.AssertMetricDelta(t, "grouper_grpc_requests_total", labels, 1, func() {
		_, err := client.GetVariants(context.Background(), mustStruct(t, map[string]any{}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
	testsupport.AssertHistogramRecorded(t, "grouper_grpc_handling_seconds", labels)
}
