package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/spooky-finn/go-marketdata-checker/usecase"
)

func startServer(t *testing.T, symbols ...string) (*Server, grpc_health_v1.HealthClient) {
	t.Helper()

	srv := NewServer(symbols, nil)
	lis := bufconn.Listen(1 << 16)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, grpc_health_v1.NewHealthClient(conn)
}

func status(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestServer_StatusFollowsChecks(t *testing.T) {
	srv, client := startServer(t, "X", "Y")

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, client, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName("X")))

	srv.OnSuccess(&usecase.CheckResult{Symbol: "X", Outcome: usecase.CheckSuccess})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, client, ServiceName("X")))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName("Y")))

	srv.OnInconclusive(&usecase.CheckResult{Symbol: "X", Outcome: usecase.CheckInconclusive})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, client, ServiceName("X")))

	srv.OnFailure(&usecase.CheckResult{Symbol: "X", Outcome: usecase.CheckFailure})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName("X")))
}

func TestServer_UnknownSymbolIgnored(t *testing.T) {
	srv, client := startServer(t, "X")

	srv.OnSuccess(&usecase.CheckResult{Symbol: "Z"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName("Z")})
	assert.Error(t, err)
}

func TestServer_IsSupportedSymbol(t *testing.T) {
	s := NewServer([]string{"X"}, nil)
	assert.True(t, s.IsSupportedSymbol("X"))
	assert.False(t, s.IsSupportedSymbol("x"))
}
