package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/codescan-io/lintbridge/internal/constants"
)

// HealthServices lists the components reported on the health socket.
var HealthServices = []string{"", constants.HealthServiceControl, constants.HealthServiceNotifications}

// Health queries the gRPC health socket and returns the serving status of
// each service in HealthServices.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	cc, err := grpc.NewClient("unix://"+c.healthSocket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("health dial: %w", err)
	}
	defer cc.Close()

	hc := healthpb.NewHealthClient(cc)
	out := make(map[string]string, len(HealthServices))
	for _, service := range HealthServices {
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: service}, grpc.WaitForReady(false))
		if err != nil {
			return nil, fmt.Errorf("health check %q: %w", service, err)
		}
		out[service] = resp.GetStatus().String()
	}
	return out, nil
}
