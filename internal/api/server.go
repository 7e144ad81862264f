package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/vietddude/lnbridge/internal/metrics"
)

// Server serves gRPC and the JSON gateway on one port. gRPC runs over
// cleartext HTTP/2, everything else is routed to the gateway.
type Server struct {
	grpc   *grpc.Server
	http   *http.Server
	cancel context.CancelFunc
	log    *slog.Logger
}

// NewServer creates the API server listening on addr.
func NewServer(addr string, svc *Service, corsOrigins []string) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryMetrics),
		grpc.ChainStreamInterceptor(streamMetrics),
	)
	gs.RegisterService(ServiceDesc(), svc)

	gateway := Gateway(svc, corsOrigins)
	mixed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
			gs.ServeHTTP(w, r)
			return
		}
		gateway.ServeHTTP(w, r)
	})

	base, cancel := context.WithCancel(context.Background())
	return &Server{
		grpc: gs,
		http: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(mixed, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		cancel: cancel,
		log:    svc.log,
	}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("API server listening", "addr", lis.Addr().String())
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop ends open event streams and waits for in-flight calls.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	err := s.http.Shutdown(ctx)
	s.grpc.Stop()
	return err
}

func unaryMetrics(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	metrics.APIRequests.WithLabelValues(path.Base(info.FullMethod), status.Code(err).String()).Inc()
	return resp, err
}

func streamMetrics(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	err := handler(srv, ss)
	metrics.APIRequests.WithLabelValues(path.Base(info.FullMethod), status.Code(err).String()).Inc()
	return err
}
