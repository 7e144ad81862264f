package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the node service over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target (host:port). The connection is
// established lazily on the first call.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Call invokes a unary method with a JSON-like request.
func (c *Client) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// TriggerEvent asks the server to synthesize a payment-received event. An
// empty hash lets the server pick a random one.
func (c *Client) TriggerEvent(ctx context.Context, paymentHash string) (map[string]any, error) {
	req := map[string]any{}
	if paymentHash != "" {
		req["payment_hash"] = paymentHash
	}
	return c.Call(ctx, MethodTriggerEvent, req)
}

// Subscribe opens an event stream. recv is called for every event until it
// returns an error or the stream ends.
func (c *Client) Subscribe(ctx context.Context, name string, kinds []string, recv func(map[string]any) error) error {
	kindList := make([]any, len(kinds))
	for i, k := range kinds {
		kindList[i] = k
	}
	in, err := structpb.NewStruct(map[string]any{"name": name, "kinds": kindList})
	if err != nil {
		return err
	}

	desc := &grpc.StreamDesc{StreamName: MethodSubscribeEvents, ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, FullMethod(MethodSubscribeEvents))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		if err := recv(msg.AsMap()); err != nil {
			return err
		}
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
