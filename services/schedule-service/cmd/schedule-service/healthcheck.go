package main

import (
	"context"
	"fmt"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
)

// healthcheck probes the local gRPC health service; used as the container
// HEALTHCHECK so images need no curl.
func healthcheck() error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	conn, err := grpcx.Dial("127.0.0.1:"+port, grpcx.DialOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}
