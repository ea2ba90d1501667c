package httpapi

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

type toggleReadiness struct{ down atomic.Bool }

func (r *toggleReadiness) Check(context.Context) error {
	if r.down.Load() {
		return errors.New("database unreachable")
	}
	return nil
}

func startHealthServer(t *testing.T, h *GRPCHealth) healthpb.HealthClient {
	t.Helper()
	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	h.Register(server)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestGRPCHealthFollowsReadiness(t *testing.T) {
	ready := &toggleReadiness{}
	h := NewGRPCHealth(ready)
	client := startHealthServer(t, h)

	if got := checkStatus(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before the first probe, got %v", got)
	}

	h.Probe(context.Background())
	for _, svc := range []string{"", serviceName} {
		if got := checkStatus(t, client, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("service %q: expected SERVING, got %v", svc, got)
		}
	}

	ready.down.Store(true)
	h.Probe(context.Background())
	if got := checkStatus(t, client, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after failed probe, got %v", got)
	}
}

func TestGRPCHealthRunStopsOnCancel(t *testing.T) {
	h := NewGRPCHealth(ReadyProbe{})
	client := startHealthServer(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	if got := checkStatus(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
