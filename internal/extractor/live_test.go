package extractor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/manifest-network/firehose-client/internal/config"
	"github.com/manifest-network/firehose-client/internal/firehose"
	"github.com/manifest-network/firehose-client/internal/metrics"
	"github.com/manifest-network/firehose-client/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink is an in-memory output handler recording canonical state, the
// persisted cursor, and the order of operations.
type memSink struct {
	mu      sync.Mutex
	blocks  map[uint64]models.Block
	final   uint64
	cursor  string
	history []string
}

func newMemSink() *memSink {
	return &memSink{blocks: make(map[uint64]models.Block)}
}

func (s *memSink) WriteBlock(_ context.Context, b *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Num] = *b
	s.history = append(s.history, "write")
	return nil
}

func (s *memSink) RetractBlock(_ context.Context, num uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, num)
	s.history = append(s.history, "retract")
	return nil
}

func (s *memSink) MarkFinal(_ context.Context, num uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if num > s.final {
		s.final = num
	}
	s.history = append(s.history, "final")
	return nil
}

func (s *memSink) LoadCursor(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

func (s *memSink) SaveCursor(_ context.Context, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	return nil
}

func (s *memSink) GetLatestBlockNum(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max uint64
	for num := range s.blocks {
		if num > max {
			max = num
		}
	}
	return max, nil
}

func (s *memSink) GetMissingBlockNums(context.Context) ([]uint64, error) { return nil, nil }
func (s *memSink) Close() error                                         { return nil }

type scriptedStream struct {
	resps []*firehose.Response
	final error
	pos   int
}

func (s *scriptedStream) Recv() (*firehose.Response, error) {
	if s.pos < len(s.resps) {
		r := s.resps[s.pos]
		s.pos++
		return r, nil
	}
	return nil, s.final
}

type scriptedStreamClient struct {
	sessions []*scriptedStream
	requests []firehose.Request
}

func (c *scriptedStreamClient) Blocks(_ context.Context, req *firehose.Request) (firehose.BlockStream, error) {
	c.requests = append(c.requests, *req)
	if len(c.sessions) == 0 {
		return nil, errors.New("no more scripted sessions")
	}
	s := c.sessions[0]
	c.sessions = c.sessions[1:]
	return s, nil
}

func streamResp(step firehose.ForkStep, num uint64, cursor, payload string) *firehose.Response {
	return &firehose.Response{
		Step:     step,
		Payload:  []byte(payload),
		Cursor:   cursor,
		Metadata: &firehose.BlockMetadata{Num: num, Hash: payload},
	}
}

func liveConfig() config.ExtractConfig {
	return config.ExtractConfig{
		Address:        "example:443",
		OutputFile:     "unused",
		StartBlock:     5,
		MaxConcurrency: 1,
		MaxRetries:     2,
	}
}

func TestExtractLiveBlocksForkHandling(t *testing.T) {
	client := &scriptedStreamClient{
		sessions: []*scriptedStream{
			{
				resps: []*firehose.Response{
					streamResp(firehose.StepNew, 5, "c1", "0x5"),
					streamResp(firehose.StepNew, 6, "c2", "0x6"),
					streamResp(firehose.StepUndo, 6, "c3", "0x6"),
					streamResp(firehose.StepNew, 6, "c4", "0x6p"),
					streamResp(firehose.StepFinal, 5, "c5", "0x5"),
				},
				final: io.EOF,
			},
		},
	}
	sink := newMemSink()

	err := ExtractLiveBlocks(context.Background(), client, sink, liveConfig())
	require.NoError(t, err)

	require.Len(t, sink.blocks, 2)
	assert.Equal(t, "0x5", sink.blocks[5].Hash)
	assert.Equal(t, "0x6p", sink.blocks[6].Hash, "canonical view holds the replacement, not the undone block")
	assert.Equal(t, uint64(5), sink.final)
	assert.Equal(t, "c5", sink.cursor, "cursor persisted after the last processed response")
	assert.Equal(t, []string{"write", "write", "retract", "write", "final"}, sink.history)
}

func TestExtractLiveBlocksResumesFromSinkCursor(t *testing.T) {
	client := &scriptedStreamClient{
		sessions: []*scriptedStream{
			{
				resps: []*firehose.Response{streamResp(firehose.StepNew, 9, "c9", "0x9")},
				final: io.EOF,
			},
		},
	}
	sink := newMemSink()
	sink.cursor = "persisted"

	err := ExtractLiveBlocks(context.Background(), client, sink, liveConfig())
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "persisted", client.requests[0].Cursor)
	assert.Equal(t, uint64(5), client.requests[0].StartBlockNum, "start block kept at its configured value")
}

func TestExtractLiveBlocksSkipsUndecodableResponses(t *testing.T) {
	bad := &firehose.Response{
		Step:    firehose.StepNew,
		Payload: []byte("no metadata"),
		Cursor:  "cbad",
	}
	client := &scriptedStreamClient{
		sessions: []*scriptedStream{
			{
				resps: []*firehose.Response{
					streamResp(firehose.StepNew, 5, "c1", "0x5"),
					bad,
					streamResp(firehose.StepNew, 6, "c2", "0x6"),
				},
				final: io.EOF,
			},
		},
	}
	sink := newMemSink()

	err := ExtractLiveBlocks(context.Background(), client, sink, liveConfig())
	require.NoError(t, err)

	assert.Len(t, sink.blocks, 2, "healthy blocks around the bad message still land")
	assert.Equal(t, "c2", sink.cursor)
}

func TestExtractLiveBlocksCountsReconnects(t *testing.T) {
	before := testutil.ToFloat64(metrics.StreamReconnects)

	client := &scriptedStreamClient{
		sessions: []*scriptedStream{
			{
				resps: []*firehose.Response{streamResp(firehose.StepNew, 5, "c1", "0x5")},
				final: errors.New("connection reset"),
			},
			{
				resps: []*firehose.Response{streamResp(firehose.StepNew, 6, "c2", "0x6")},
				final: io.EOF,
			},
		},
	}
	sink := newMemSink()

	err := ExtractLiveBlocks(context.Background(), client, sink, liveConfig())
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	assert.Equal(t, "c1", client.requests[1].Cursor)
	assert.Len(t, sink.blocks, 2)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StreamReconnects))
}

func TestExtractLiveBlocksSurfacesTransportFailure(t *testing.T) {
	boom := errors.New("permission denied")
	client := &scriptedStreamClient{
		sessions: []*scriptedStream{{final: boom}, {final: boom}, {final: boom}},
	}
	sink := newMemSink()

	err := ExtractLiveBlocks(context.Background(), client, sink, liveConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
