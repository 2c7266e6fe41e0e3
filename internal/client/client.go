// Package client owns the gRPC connection to a Firehose endpoint and adapts
// it to the transport interfaces consumed by internal/firehose.
package client

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/manifest-network/firehose-client/internal/firehose"
	"github.com/manifest-network/firehose-client/internal/pbfirehose"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

const defaultMaxRecvMsgSize = 64 * 1024 * 1024 // firehose payloads can be large

// Config holds connection settings for a Firehose endpoint.
type Config struct {
	// Address is the host:port of the endpoint.
	Address string

	// Insecure disables TLS (plaintext connection).
	Insecure bool

	// APIKey, when set, is sent as x-api-key metadata on every call.
	APIKey string

	// MaxRecvMsgSize caps the size of a received message. Zero means the
	// package default.
	MaxRecvMsgSize int
}

// GRPCClient wraps a gRPC connection to a Firehose endpoint. It implements
// firehose.StreamClient and firehose.FetchClient.
type GRPCClient struct {
	Conn *grpc.ClientConn

	apiKey string
}

// NewGRPCClient connects to the configured endpoint. The connection is lazy;
// failures surface on the first call.
func NewGRPCClient(cfg Config) (*GRPCClient, error) {
	creds := credentials.NewTLS(&tls.Config{})
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}

	maxRecv := cfg.MaxRecvMsgSize
	if maxRecv == 0 {
		maxRecv = defaultMaxRecvMsgSize
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecv)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating gRPC client for %s", cfg.Address)
	}

	return &GRPCClient{Conn: conn, apiKey: cfg.APIKey}, nil
}

// Close terminates the underlying connection.
func (c *GRPCClient) Close() error {
	return c.Conn.Close()
}

func (c *GRPCClient) callContext(ctx context.Context) context.Context {
	if c.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-api-key", c.apiKey)
}

var blocksStreamDesc = &grpc.StreamDesc{
	StreamName:    "Blocks",
	ServerStreams: true,
}

// Blocks opens a streaming call on sf.firehose.v2.Stream.
func (c *GRPCClient) Blocks(ctx context.Context, req *firehose.Request) (firehose.BlockStream, error) {
	cs, err := c.Conn.NewStream(c.callContext(ctx), blocksStreamDesc, pbfirehose.StreamBlocksMethod)
	if err != nil {
		return nil, errors.WithMessage(err, "opening Blocks stream")
	}
	if err := cs.SendMsg(pbfirehose.RequestToMessage(req)); err != nil {
		return nil, errors.WithMessage(err, "sending stream request")
	}
	if err := cs.CloseSend(); err != nil {
		return nil, errors.WithMessage(err, "closing send side of stream")
	}
	return &blockStream{cs: cs}, nil
}

// Block performs a point lookup on sf.firehose.v2.Fetch.
func (c *GRPCClient) Block(ctx context.Context, req *firehose.SingleBlockRequest) (*firehose.SingleBlockResponse, error) {
	out := pbfirehose.NewSingleBlockResponseMessage()
	err := c.Conn.Invoke(c.callContext(ctx), pbfirehose.FetchBlockMethod, pbfirehose.SingleBlockRequestToMessage(req), out)
	if err != nil {
		return nil, errors.WithMessage(err, "fetching block")
	}
	return pbfirehose.SingleBlockResponseFromMessage(out)
}

type blockStream struct {
	cs grpc.ClientStream
}

// Recv returns the next decoded response. Transport errors, including io.EOF
// at the end of a bounded stream, pass through unchanged so the caller can
// distinguish them from decode failures.
func (s *blockStream) Recv() (*firehose.Response, error) {
	out := pbfirehose.NewResponseMessage()
	if err := s.cs.RecvMsg(out); err != nil {
		return nil, err
	}
	return pbfirehose.ResponseFromMessage(out)
}
