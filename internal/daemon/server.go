package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/profile"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server is the daemon's gRPC endpoint on the profile socket.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer listens on the profile socket (mode 0600) and registers the
// session, room and health services.
func NewServer(
	p Params,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	roomSvc *api.RoomService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// The profile lock is held, so a socket file here is left over.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		health:     health.NewServer(),
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
		grpc.ChainStreamInterceptor(s.streamInterceptor),
	)
	api.RegisterSessionServer(s.grpcServer, sessionSvc)
	api.RegisterRoomServer(s.grpcServer, roomSvc)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	for _, name := range []string{"", api.SessionServiceName, api.RoomServiceName} {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return s, nil
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop marks the daemon as not serving and drains in-flight calls until ctx
// ends, then removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, closing connections")
		s.grpcServer.Stop()
	}
	_ = os.Remove(s.socketPath)
}

func (s *Server) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rpc panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
			err = status.Error(codes.Internal, "internal error")
		}
		s.logCall(info.FullMethod, start, err)
	}()
	return handler(ctx, req)
}

func (s *Server) streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
			err = status.Error(codes.Internal, "internal error")
		}
		s.logCall(info.FullMethod, start, err)
	}()
	return handler(srv, ss)
}

// logCall logs failures the client could not have caused at warn and
// everything else at debug.
func (s *Server) logCall(method string, start time.Time, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.Stringer("code", code),
		zap.Duration("took", time.Since(start)),
	}
	switch code {
	case codes.Internal, codes.Unknown, codes.DataLoss:
		s.logger.Warn("rpc failed", append(fields, zap.Error(err))...)
	default:
		s.logger.Debug("rpc", fields...)
	}
}
