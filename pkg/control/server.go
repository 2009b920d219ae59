package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
)

type ServerOptions struct {
	Port int
}

type Server interface {
	GRPC() grpc.ServiceRegistrar
	Addr() string
	Start()
	Shutdown(ctx context.Context)
}

// NewServer listens on 127.0.0.1:port; port 0 picks a free port.
func NewServer(options ServerOptions, logger logging.Logger) (Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", options.Port))
	if err != nil {
		return nil, errors.NewNetworkError(fmt.Sprintf("failed to listen at port %d", options.Port), err)
	}
	return NewServerWithListener(listener, logger), nil
}

// NewServerWithListener serves on an existing listener.
func NewServerWithListener(listener net.Listener, logger logging.Logger) Server {
	logger.Infof("Listening at %s", listener.Addr().String())

	grpcServer := grpc.NewServer(
		grpc.WriteBufferSize(1*1024*1024),
		grpc.InitialWindowSize(1*1024*1024),
		grpc.InitialConnWindowSize(1*1024*1024),
	)

	return &server{
		grpcServer: grpcServer,
		listener:   listener,
		logger:     logger,
	}
}

type server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     logging.Logger
}

func (s *server) GRPC() grpc.ServiceRegistrar {
	return s.grpcServer
}

func (s *server) Addr() string {
	return s.listener.Addr().String()
}

func (s *server) Start() {
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			s.logger.Errorf("Status gRPC server Serve failed: %v", err)
		}
	}()
}

// Shutdown stops gracefully, forcing the stop when ctx expires.
func (s *server) Shutdown(ctx context.Context) {
	s.logger.Infof("Stopping gRPC server...")

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Infof("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Infof("Shutdown timed out, forcing gRPC server to stop")
		s.grpcServer.Stop()
	}
}

// Dial connects to a status server at 127.0.0.1:port.
func Dial(port int, logger logging.Logger) (*grpc.ClientConn, error) {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	logger.Debugf("Dialing status server at %s", address)

	conn, err := grpc.Dial(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithReadBufferSize(1*1024*1024),
		grpc.WithInitialWindowSize(1*1024*1024),
		grpc.WithInitialConnWindowSize(1*1024*1024),
	)
	if err != nil {
		return nil, errors.NewNetworkError("failed to dial status server", err).WithContext("address", address)
	}
	return conn, nil
}
