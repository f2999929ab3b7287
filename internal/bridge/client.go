package bridge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin wrapper over a *grpc.ClientConn dialed against a
// keepkeyd bridge, generalizing the teacher's APIClient
// (internal/client/api.go) from a plain HTTP/JSON client to a gRPC one
// using the package's json codec.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a bridge server at target (e.g. "localhost:8761").
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	dialOpts = append(dialOpts, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// ListDevices returns every canonical id the daemon tracks.
func (c *Client) ListDevices(ctx context.Context) (*DeviceListResponse, error) {
	out := new(DeviceListResponse)
	if err := c.invoke(ctx, "ListDevices", &DeviceListRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFeatures fetches the current features snapshot for canonicalID.
func (c *Client) GetFeatures(ctx context.Context, canonicalID string) (*GetFeaturesResponse, error) {
	out := new(GetFeaturesResponse)
	if err := c.invoke(ctx, "GetFeatures", &GetFeaturesRequest{CanonicalID: canonicalID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAddress requests an address for the given path on canonicalID.
func (c *Client) GetAddress(ctx context.Context, req *GetAddressRequest) (*GetAddressResponse, error) {
	out := new(GetAddressResponse)
	if err := c.invoke(ctx, "GetAddress", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionReply forwards a user's answer to an outstanding prompt.
func (c *Client) SessionReply(ctx context.Context, req *SessionReplyRequest) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "SessionReply", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeEvents opens the server-streaming event feed and returns a
// channel of decoded events; the channel closes when the stream ends
// or ctx is cancelled.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan WireEvent, error) {
	desc := &grpc.StreamDesc{StreamName: "SubscribeEvents", ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, "/"+ServiceName+"/SubscribeEvents")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&EventSubscribeRequest{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := make(chan WireEvent, 32)
	go func() {
		defer close(out)
		for {
			var ev WireEvent
			if err := stream.RecvMsg(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
