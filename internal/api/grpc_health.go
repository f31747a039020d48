package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name of the order server.
const ServiceName = "canteen.Orders"

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor keeps the gRPC health status in step with store
// reachability and answers the HTTP health route.
type HealthMonitor struct {
	store    Pinger
	server   *health.Server
	interval time.Duration
}

func NewHealthMonitor(store Pinger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthMonitor{store: store, server: health.NewServer(), interval: interval}
}

// Register adds the health service to a gRPC server.
func (h *HealthMonitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check pings the store once and publishes the result.
func (h *HealthMonitor) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := h.store.Ping(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return err
}

// Run re-checks every interval until ctx ends, then reports shutdown.
func (h *HealthMonitor) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	last := h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-t.C:
			err := h.Check(ctx)
			if (err == nil) != (last == nil) {
				if err != nil {
					log.WithError(err).Warn("order store unreachable")
				} else {
					log.Info("order store reachable again")
				}
			}
			last = err
		}
	}
}

// Serve handles GET /api/v1/health.
func (h *HealthMonitor) Serve(c *gin.Context) {
	if err := h.Check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "service": "canteen", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "canteen"})
}
