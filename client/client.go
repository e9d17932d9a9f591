// Package client talks to a running memtier daemon over gRPC.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aschepis/backscratcher/memtier/server"
)

const (
	// DefaultSocketPath is the default Unix socket path for the daemon.
	DefaultSocketPath = "/tmp/memtier.sock"
)

// Client is the main client for interacting with the memtier daemon.
type Client struct {
	conn     *grpc.ClientConn
	callerID string

	Health healthpb.HealthClient
}

// Connect connects to the memtier daemon.
// The address can be:
//   - A Unix socket path (e.g., "/tmp/memtier.sock")
//   - A TCP address (e.g., "localhost:50052")
//
// If the address starts with "unix://", it will be treated as a Unix socket.
// Otherwise, if it contains ":" it will be treated as TCP, else Unix socket.
// callerID is sent with every memory call; the daemon authorizes as it.
func Connect(address, callerID string, opts ...grpc.DialOption) (*Client, error) {
	var target string

	switch {
	case strings.HasPrefix(address, "unix://"), strings.HasPrefix(address, "passthrough:"):
		target = address
	case strings.Contains(address, ":") && !strings.HasPrefix(address, "/"):
		target = address
	default:
		target = "unix://" + address
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w", address, err)
	}

	return &Client{
		conn:     conn,
		callerID: callerID,
		Health:   healthpb.NewHealthClient(conn),
	}, nil
}

// Call invokes a memory tool on the daemon and returns its decoded result.
// args may hold any JSON-encodable values.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	in, err := toStruct(args)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if c.callerID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, server.CallerMetadataKey, c.callerID)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.FullMethod(tool), in, out); err != nil {
		return nil, err
	}
	return out.AsMap()["result"], nil
}

func toStruct(args map[string]any) (*structpb.Struct, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	if plain == nil {
		plain = map[string]any{}
	}
	return structpb.NewStruct(plain)
}

// Status returns the serving status of service; "" is the whole daemon.
func (c *Client) Status(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
