package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	fail atomic.Bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.fail.Load() {
		return errors.New("store unreachable")
	}
	return nil
}

func status(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Checker().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestProbeMirrorsPing(t *testing.T) {
	s := NewServer()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ""))

	p := &fakePinger{}
	assert.True(t, s.probe(context.Background(), p, time.Second))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, Service))

	p.fail.Store(true)
	assert.False(t, s.probe(context.Background(), p, time.Second))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, Service))
}

func TestStartProbeRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewServer()
	s.StartProbe(ctx, &fakePinger{}, time.Hour, time.Second)

	assert.Eventually(t, func() bool {
		resp, err := s.Checker().Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeOverGRPC(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer()
	s.SetServing(true)
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: Service})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("health server did not stop")
	}
}
