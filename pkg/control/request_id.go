package control

import (
	"context"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc/metadata"
)

// RequestIDHeader carries the caller's request id in gRPC metadata.
const RequestIDHeader = "x-request-id"

type requestIDs struct {
	prefix string
	next   atomic.Uint64
}

func (r *requestIDs) newID() string {
	return fmt.Sprintf("%s-%d", r.prefix, r.next.Add(1))
}

func outgoingWithRequestID(ctx context.Context, requestID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
}

// incomingRequestID returns the caller's request id, or a fresh one when the
// caller sent none.
func incomingRequestID(ctx context.Context, fallback *requestIDs) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDHeader); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return fallback.newID()
}
