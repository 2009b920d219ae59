package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
)

// RegisterGRPCServerHandler serves handler over gRPC. Every call is logged
// to events with its request id; a nil events discards them.
func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler Contract, logger logging.Logger, events logcollection.StructuredLogger) {
	if events == nil {
		events = logcollection.NewNopLogger()
	}
	RegisterFleetStatusServer(grpcServerRegistrar, &grpcServerHandler{
		handler:    handler,
		logger:     logger,
		events:     events,
		requestIDs: &requestIDs{prefix: "srv"},
	})
}

type grpcServerHandler struct {
	handler    Contract
	logger     logging.Logger
	events     logcollection.StructuredLogger
	requestIDs *requestIDs
}

func (h *grpcServerHandler) begin(ctx context.Context) context.Context {
	return logcollection.ContextWithRequestID(ctx, incomingRequestID(ctx, h.requestIDs))
}

func (h *grpcServerHandler) served(ctx context.Context, method string, err error, fields ...logcollection.LogField) {
	fields = append(fields, logcollection.String("method", method))
	level := logcollection.DebugLevel
	if err != nil {
		fields = append(fields, logcollection.Error(err))
		level = logcollection.WarnLevel
	}
	h.events.LogWithContext(ctx, level, "status request served", fields...)
}

func (h *grpcServerHandler) Status(ctx context.Context, request *StatusRequest) (*StatusResponse, error) {
	ctx = h.begin(ctx)
	response, err := h.handler.Status(ctx)
	h.served(ctx, "Status", err)
	if err != nil {
		h.logger.Errorf("Status server handler: %v", err)
		return nil, toStatusError(err)
	}
	return response, nil
}

func (h *grpcServerHandler) GetUnit(ctx context.Context, request *GetUnitRequest) (*GetUnitResponse, error) {
	ctx = h.begin(ctx)
	unit, err := h.handler.GetUnit(ctx, request.UnitID)
	h.served(ctx, "GetUnit", err, logcollection.Unit(request.UnitID))
	if err != nil {
		h.logger.Debugf("GetUnit server handler, unit_id: %s, error: %v", request.UnitID, err)
		return nil, toStatusError(err)
	}
	return &GetUnitResponse{Unit: *unit}, nil
}

func (h *grpcServerHandler) ListUnits(ctx context.Context, request *ListUnitsRequest) (*ListUnitsResponse, error) {
	ctx = h.begin(ctx)
	units, err := h.handler.ListUnits(ctx)
	h.served(ctx, "ListUnits", err, logcollection.Int("units", len(units)))
	if err != nil {
		h.logger.Errorf("ListUnits server handler: %v", err)
		return nil, toStatusError(err)
	}
	return &ListUnitsResponse{Units: units}, nil
}

func toStatusError(err error) error {
	switch {
	case errors.IsNotFoundError(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.IsCancelledError(err):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
