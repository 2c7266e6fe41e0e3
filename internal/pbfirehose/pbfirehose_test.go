package pbfirehose

import (
	"testing"
	"time"

	"github.com/manifest-network/firehose-client/internal/firehose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func TestRequestWireRoundTrip(t *testing.T) {
	req := &firehose.Request{
		StartBlockNum:   100,
		StopBlockNum:    200,
		Cursor:          "resume-token",
		FinalBlocksOnly: true,
		Transforms:      [][]byte{[]byte("trim-calls")},
	}

	raw, err := proto.Marshal(RequestToMessage(req))
	require.NoError(t, err)

	decoded := NewRequestMessage()
	require.NoError(t, proto.Unmarshal(raw, decoded))

	fields := decoded.Descriptor().Fields()
	assert.Equal(t, int64(100), decoded.Get(fields.ByName("start_block_num")).Int())
	assert.Equal(t, uint64(200), decoded.Get(fields.ByName("stop_block_num")).Uint())
	assert.Equal(t, "resume-token", decoded.Get(fields.ByName("cursor")).String())
	assert.True(t, decoded.Get(fields.ByName("final_blocks_only")).Bool())

	transforms := decoded.Get(fields.ByName("transforms")).List()
	require.Equal(t, 1, transforms.Len())
	assert.Equal(t, []byte("trim-calls"), transforms.Get(0).Bytes())
}

// TestWireFieldLayout pins the descriptor to the published sf.firehose.v2
// layout. The round-trip tests in this file marshal and unmarshal with the
// same descriptor, so they stay green even if a field number drifts; this
// test is what fails when one does.
func TestWireFieldLayout(t *testing.T) {
	type field struct {
		num  int32
		kind protoreflect.Kind
	}

	cases := []struct {
		name   string
		desc   protoreflect.MessageDescriptor
		fields map[protoreflect.Name]field
	}{
		{
			name: "Request",
			desc: requestDesc,
			fields: map[protoreflect.Name]field{
				"start_block_num":   {1, protoreflect.Int64Kind},
				"cursor":            {2, protoreflect.StringKind},
				"stop_block_num":    {3, protoreflect.Uint64Kind},
				"final_blocks_only": {4, protoreflect.BoolKind},
				"transforms":        {10, protoreflect.BytesKind},
			},
		},
		{
			name: "Response",
			desc: responseDesc,
			fields: map[protoreflect.Name]field{
				"block":    {1, protoreflect.BytesKind},
				"step":     {6, protoreflect.EnumKind},
				"cursor":   {10, protoreflect.StringKind},
				"metadata": {12, protoreflect.MessageKind},
			},
		},
		{
			name: "SingleBlockRequest",
			desc: singleBlockRequestDesc,
			fields: map[protoreflect.Name]field{
				"block_number":          {3, protoreflect.MessageKind},
				"block_hash_and_number": {4, protoreflect.MessageKind},
				"cursor":                {5, protoreflect.MessageKind},
				"transforms":            {6, protoreflect.BytesKind},
			},
		},
		{
			name: "SingleBlockResponse",
			desc: singleBlockResponseDesc,
			fields: map[protoreflect.Name]field{
				"block":    {1, protoreflect.BytesKind},
				"metadata": {2, protoreflect.MessageKind},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, len(tc.fields), tc.desc.Fields().Len())
			for name, want := range tc.fields {
				f := tc.desc.Fields().ByName(name)
				require.NotNil(t, f, "field %s missing", name)
				assert.Equal(t, want.num, int32(f.Number()), "field %s number", name)
				assert.Equal(t, want.kind, f.Kind(), "field %s kind", name)
			}
		})
	}
}

func TestSingleBlockRequestReferenceVariants(t *testing.T) {
	oneof := singleBlockRequestDesc.Oneofs().ByName("reference")
	require.NotNil(t, oneof)

	cases := []struct {
		name      string
		req       firehose.SingleBlockRequest
		wantField protoreflect.Name
		check     func(t *testing.T, nested protoreflect.Message)
	}{
		{
			name:      "block number",
			req:       firehose.SingleBlockRequestByBlockNumber(12345),
			wantField: "block_number",
			check: func(t *testing.T, nested protoreflect.Message) {
				assert.Equal(t, uint64(12345), nested.Get(nested.Descriptor().Fields().ByName("num")).Uint())
			},
		},
		{
			name:      "hash and number",
			req:       firehose.SingleBlockRequestByBlockHashAndNumber("0xabc", 12345),
			wantField: "block_hash_and_number",
			check: func(t *testing.T, nested protoreflect.Message) {
				fields := nested.Descriptor().Fields()
				assert.Equal(t, "0xabc", nested.Get(fields.ByName("hash")).String())
				assert.Equal(t, uint64(12345), nested.Get(fields.ByName("num")).Uint())
			},
		},
		{
			name:      "cursor",
			req:       firehose.SingleBlockRequestByCursor("token"),
			wantField: "cursor",
			check: func(t *testing.T, nested protoreflect.Message) {
				assert.Equal(t, "token", nested.Get(nested.Descriptor().Fields().ByName("cursor")).String())
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := SingleBlockRequestToMessage(&tc.req)

			active := m.WhichOneof(oneof)
			require.NotNil(t, active, "exactly one reference variant must be set")
			assert.Equal(t, tc.wantField, active.Name())
			tc.check(t, m.Get(active).Message())
		})
	}
}

func TestSingleBlockRequestNilReference(t *testing.T) {
	m := SingleBlockRequestToMessage(&firehose.SingleBlockRequest{})
	assert.Nil(t, m.WhichOneof(singleBlockRequestDesc.Oneofs().ByName("reference")))
}

func TestResponseFromMessage(t *testing.T) {
	blockTime := time.Date(2024, 7, 1, 12, 30, 0, 500, time.UTC)

	m := NewResponseMessage()
	fields := m.Descriptor().Fields()
	m.Set(fields.ByName("block"), protoreflect.ValueOfBytes([]byte("payload")))
	m.Set(fields.ByName("step"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(firehose.StepNew)))
	m.Set(fields.ByName("cursor"), protoreflect.ValueOfString("c1"))
	m.Set(fields.ByName("metadata"), protoreflect.ValueOfMessage(MetadataToMessage(&firehose.BlockMetadata{
		Num:  42,
		Hash: "0xdead",
		Time: blockTime,
	})))

	resp, err := ResponseFromMessage(m)
	require.NoError(t, err)

	assert.Equal(t, firehose.StepNew, resp.Step)
	assert.Equal(t, []byte("payload"), resp.Payload)
	assert.Equal(t, "c1", resp.Cursor)
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, uint64(42), resp.Metadata.Num)
	assert.Equal(t, "0xdead", resp.Metadata.Hash)
	assert.True(t, blockTime.Equal(resp.Metadata.Time))
}

func TestResponseFromMessageUnknownStep(t *testing.T) {
	m := NewResponseMessage()
	m.Set(m.Descriptor().Fields().ByName("step"), protoreflect.ValueOfEnum(99))

	_, err := ResponseFromMessage(m)
	assert.ErrorContains(t, err, "unknown fork step 99")
}

func TestResponseFromMessageOmitsAbsentMetadata(t *testing.T) {
	m := NewResponseMessage()
	m.Set(m.Descriptor().Fields().ByName("cursor"), protoreflect.ValueOfString("c2"))

	resp, err := ResponseFromMessage(m)
	require.NoError(t, err)
	assert.Nil(t, resp.Metadata)
	assert.Equal(t, firehose.StepUnset, resp.Step)
}

func TestSingleBlockResponseFromMessage(t *testing.T) {
	m := NewSingleBlockResponseMessage()
	fields := m.Descriptor().Fields()
	m.Set(fields.ByName("block"), protoreflect.ValueOfBytes([]byte("payload")))
	m.Set(fields.ByName("metadata"), protoreflect.ValueOfMessage(MetadataToMessage(&firehose.BlockMetadata{Num: 7})))

	resp, err := SingleBlockResponseFromMessage(m)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), resp.Payload)
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, uint64(7), resp.Metadata.Num)
	assert.True(t, resp.Metadata.Time.IsZero())
}
