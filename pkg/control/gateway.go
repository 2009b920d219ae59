package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) Contract {
	return &grpcClientGateway{
		grpcClient: NewFleetStatusClient(grpcClientConnection),
		logger:     logger,
		requestIDs: &requestIDs{prefix: "req"},
	}
}

type grpcClientGateway struct {
	grpcClient FleetStatusClient
	logger     logging.Logger
	requestIDs *requestIDs
}

func (gw *grpcClientGateway) outgoing(ctx context.Context) context.Context {
	return outgoingWithRequestID(ctx, gw.requestIDs.newID())
}

func (gw *grpcClientGateway) Status(ctx context.Context) (*StatusResponse, error) {
	response, err := gw.grpcClient.Status(gw.outgoing(ctx), &StatusRequest{})
	if err != nil {
		gw.logger.Errorf("Status client gateway: %v", err)
		return nil, fromStatusError(err)
	}
	gw.logger.Debugf("Status client gateway done")
	return response, nil
}

func (gw *grpcClientGateway) GetUnit(ctx context.Context, unitID string) (*UnitInfo, error) {
	response, err := gw.grpcClient.GetUnit(gw.outgoing(ctx), &GetUnitRequest{UnitID: unitID})
	if err != nil {
		gw.logger.Debugf("GetUnit client gateway, unit_id: %s, error: %v", unitID, err)
		return nil, fromStatusError(err)
	}
	gw.logger.Debugf("GetUnit client gateway done, unit_id: %s", unitID)
	return &response.Unit, nil
}

func (gw *grpcClientGateway) ListUnits(ctx context.Context) ([]UnitInfo, error) {
	response, err := gw.grpcClient.ListUnits(gw.outgoing(ctx), &ListUnitsRequest{})
	if err != nil {
		gw.logger.Errorf("ListUnits client gateway: %v", err)
		return nil, fromStatusError(err)
	}
	gw.logger.Debugf("ListUnits client gateway done, units: %d", len(response.Units))
	return response.Units, nil
}

func fromStatusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errors.NewNetworkError("status call failed", err)
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.NewNotFoundError(st.Message(), nil)
	case codes.InvalidArgument:
		return errors.NewValidationError(st.Message(), nil)
	case codes.Canceled:
		return errors.NewCancelledError(st.Message(), err)
	case codes.DeadlineExceeded:
		return errors.NewTimeoutError(st.Message(), err)
	default:
		return errors.NewNetworkError("status call failed", err)
	}
}
