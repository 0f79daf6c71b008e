package simclient

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region config
// RetryConfig controls backoff on the idempotent calls (Reset, Snapshot).
// AttemptTimeout bounds every single RPC, retried or not; zero disables it.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns three attempts starting at 100ms, doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, Multiplier: 2}
}

// #endregion config

// #region client-struct
// SimClient wraps the gRPC connection to the simulator service.
type SimClient struct {
	conn    *grpc.ClientConn
	client  SimulatorServiceClient
	retry   retry.Retry[*structpb.Struct]
	timeout time.Duration
	log     *zap.Logger
}

// #endregion client-struct

// #region constructor
// NewSimClient connects to the simulator gRPC server.
func NewSimClient(addr string, rc RetryConfig, log *zap.Logger, opts ...grpc.DialOption) (*SimClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewSimClientWithService(NewSimulatorServiceClient(conn), rc, log)
	c.conn = conn
	return c, nil
}

// NewSimClientWithService creates a SimClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewSimClientWithService(svc SimulatorServiceClient, rc RetryConfig, log *zap.Logger) *SimClient {
	if log == nil {
		log = zap.NewNop()
	}
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	return &SimClient{
		client:  svc,
		log:     log,
		timeout: rc.AttemptTimeout,
		retry: retry.New[*structpb.Struct](retry.Config{
			MaxAttempts:   rc.MaxAttempts,
			InitialDelay:  rc.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    rc.Multiplier,
		}),
	}
}

// Close shuts down the gRPC connection.
func (c *SimClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *SimClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// #endregion constructor

// #region reset
// Reset starts a new simulated episode. Retried on failure.
func (c *SimClient) Reset(ctx context.Context) error {
	attempt := 0
	_, err := c.retry.Do(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		attempt++
		ctx, cancel := c.callCtx(ctx)
		defer cancel()
		resp, err := c.client.Reset(ctx, &structpb.Struct{})
		if err != nil {
			c.log.Warn("reset rpc failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("reset rpc: %w", err)
	}
	return nil
}

// #endregion reset

// #region step
// Step applies one action. Not retried: a step that reached the simulator must not be
// applied twice.
func (c *SimClient) Step(ctx context.Context, action []float64) error {
	req, err := EncodeAction(action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	if _, err := c.client.Step(ctx, req); err != nil {
		return fmt.Errorf("step rpc: %w", err)
	}
	return nil
}

// #endregion step

// #region snapshot
// Snapshot fetches the sites, bodies and contacts named by q. Retried on failure.
func (c *SimClient) Snapshot(ctx context.Context, q sim.Query) (*sim.Snapshot, error) {
	req, err := EncodeQuery(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	attempt := 0
	resp, err := c.retry.Do(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		attempt++
		ctx, cancel := c.callCtx(ctx)
		defer cancel()
		resp, err := c.client.Snapshot(ctx, req)
		if err != nil {
			c.log.Warn("snapshot rpc failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot rpc: %w", err)
	}
	snap, err := DecodeSnapshot(resp)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if missing := snap.Missing(q.Names); len(missing) > 0 {
		c.log.Debug("snapshot missing names", zap.Strings("names", missing))
	}
	return snap, nil
}

// #endregion snapshot
