package status

import (
	"context"
	"net"

	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/utils"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service name reported by the health service.
const ServiceName = "espilot"

// Publishes the driver state through the standard gRPC health service.
// The service is SERVING while the payload is running.
type HealthService struct {
	server *health.Server
}

func NewHealthService() *HealthService {
	server := health.NewServer()
	server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthService{server: server}
}

// Suitable as a state observer.
func (h *HealthService) ObserveState(state eventservice.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == eventservice.StateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(ServiceName, status)
}

func (h *HealthService) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, h.server)
}

// Serves the health service on uri, e.g. tcp://:9090 or
// unix:///run/espilot.sock, until ctx is cancelled.
func ServeGrpc(ctx context.Context, service *HealthService, uri string, opts utils.GRPCOptions) error {
	network, address, err := utils.ParseGrpcUrl(uri)
	if err != nil {
		return err
	}

	socket, err := net.Listen(network, address)
	if err != nil {
		return err
	}

	if unix, ok := socket.(*net.UnixListener); ok {
		unix.SetUnlinkOnClose(true)
	}

	log.Info("Listening on", network, socket.Addr())

	server := grpc.NewServer(opts.ToServerOptions()...)
	service.Register(server)

	go func() {
		<-ctx.Done()
		service.server.Shutdown()
		server.GracefulStop()
	}()

	return server.Serve(socket)
}
