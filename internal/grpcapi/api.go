package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/logger"
	"github.com/rafaeljc/grouper/internal/store"
)

// GroupingService is the use-case surface the RPC handlers need.
type GroupingService interface {
	GroupEvent(ctx context.Context, projectID int64, ev *event.Event) (*grouper.Result, error)
	ProjectConfig(ctx context.Context, projectID int64) (groupingconfig.GroupingConfig, error)
}

// API implements GroupingServer on top of the grouping service.
type API struct {
	grouping GroupingService
}

var _ GroupingServer = (*API)(nil)

// NewAPI creates a new gRPC API instance.
func NewAPI(svc GroupingService) *API {
	if svc == nil {
		panic("grpcapi: grouping service cannot be nil")
	}
	return &API{grouping: svc}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(s *grpc.Server) {
	RegisterGroupingServer(s, a)
}

// GetVariants groups the event in the request.
//
// It returns:
//   - INVALID_ARGUMENT if project_id or event is missing or malformed.
//   - NOT_FOUND if the project references an unknown grouping config.
//   - INTERNAL for storage or cache failures.
func (a *API) GetVariants(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, err := projectIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ctx = logger.WithProject(ctx, projectID)

	evValue := req.GetFields()["event"].GetStructValue()
	if evValue == nil {
		return nil, status.Error(codes.InvalidArgument, "event is required")
	}
	payload, err := protojson.Marshal(evValue)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "event is not serializable")
	}
	ev, err := event.Parse(payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx = logger.WithEvent(ctx, ev.EventID)
	logger.FromContext(ctx).Debug("grouping event")

	result, err := a.grouping.GroupEvent(ctx, projectID, ev)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	resp := map[string]any{
		"project_id":      result.ProjectID,
		"grouping_config": result.Config,
		"hashes":          nonNil(result.Hashes),
		"variants":        grouping.AsDicts(result.Variants),
		"title":           result.Event.Title,
		"fingerprint":     nonNil(result.Event.Fingerprint),
	}
	if result.SecondaryConfig != nil {
		resp["secondary_grouping_config"] = result.SecondaryConfig
		resp["secondary_hashes"] = nonNil(result.SecondaryHashes)
	}
	return toStruct(resp)
}

// GetProjectConfig returns the primary grouping config of a project.
func (a *API) GetProjectConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, err := projectIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	cfg, err := a.grouping.ProjectConfig(ctx, projectID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return toStruct(cfg)
}

// projectIDField reads a positive integral project_id. Struct numbers are doubles.
func projectIDField(req *structpb.Struct) (int64, error) {
	v, ok := req.GetFields()["project_id"]
	if !ok {
		return 0, errors.New("project_id is required")
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, errors.New("project_id must be a number")
	}
	if n.NumberValue <= 0 || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue >= math.MaxInt64 {
		return 0, fmt.Errorf("project_id must be a positive integer, got %v", n.NumberValue)
	}
	return int64(n.NumberValue), nil
}

// toStruct goes through JSON so nested typed values (slices, structs) become Struct values.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, grouping.ErrConfigurationNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, grouping.ErrMalformedConfig), errors.Is(err, store.ErrInvalidProjectID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		logger.FromContext(ctx).Error("grouping failed", slog.String("error", err.Error()))
		return status.Error(codes.Internal, "failed to group event")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
