// Package pbfirehose defines the sf.firehose.v2 wire shapes as dynamic
// protobuf messages and converts them to and from the typed request/response
// model in internal/firehose. The descriptors are built in code, so the
// package works without generated stubs.
package pbfirehose

import (
	"fmt"
	"time"

	"github.com/manifest-network/firehose-client/internal/firehose"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	_ "google.golang.org/protobuf/types/known/timestamppb" // registers google/protobuf/timestamp.proto
)

// Full gRPC method names of the Firehose v2 services.
const (
	StreamBlocksMethod = "/sf.firehose.v2.Stream/Blocks"
	FetchBlockMethod   = "/sf.firehose.v2.Fetch/Block"
)

var (
	requestDesc             protoreflect.MessageDescriptor
	responseDesc            protoreflect.MessageDescriptor
	metadataDesc            protoreflect.MessageDescriptor
	singleBlockRequestDesc  protoreflect.MessageDescriptor
	singleBlockResponseDesc protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("pbfirehose: building file descriptor: %v", err))
	}
	requestDesc = fd.Messages().ByName("Request")
	responseDesc = fd.Messages().ByName("Response")
	metadataDesc = fd.Messages().ByName("BlockMetadata")
	singleBlockRequestDesc = fd.Messages().ByName("SingleBlockRequest")
	singleBlockResponseDesc = fd.Messages().ByName("SingleBlockResponse")
}

// fileDescriptorProto declares the sf.firehose.v2 messages. Field numbers are
// part of the wire contract and must not change.
func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	u64 := descriptorpb.FieldDescriptorProto_TYPE_UINT64.Enum()
	i64 := descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum()
	bts := descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()
	bl := descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum()
	msg := descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	enum := descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()

	forkStep := &descriptorpb.EnumDescriptorProto{
		Name: proto.String("ForkStep"),
		Value: []*descriptorpb.EnumValueDescriptorProto{
			{Name: proto.String("STEP_UNSET"), Number: proto.Int32(0)},
			{Name: proto.String("STEP_NEW"), Number: proto.Int32(1)},
			{Name: proto.String("STEP_UNDO"), Number: proto.Int32(2)},
			{Name: proto.String("STEP_FINAL"), Number: proto.Int32(3)},
		},
	}

	request := &descriptorpb.DescriptorProto{
		Name: proto.String("Request"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("start_block_num"), Number: proto.Int32(1), Type: i64},
			{Name: proto.String("cursor"), Number: proto.Int32(2), Type: str},
			{Name: proto.String("stop_block_num"), Number: proto.Int32(3), Type: u64},
			{Name: proto.String("final_blocks_only"), Number: proto.Int32(4), Type: bl},
			{Name: proto.String("transforms"), Number: proto.Int32(10), Type: bts, Label: repeated},
		},
	}

	metadata := &descriptorpb.DescriptorProto{
		Name: proto.String("BlockMetadata"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("num"), Number: proto.Int32(1), Type: u64},
			{Name: proto.String("hash"), Number: proto.Int32(2), Type: str},
			{Name: proto.String("time"), Number: proto.Int32(3), Type: msg, TypeName: proto.String(".google.protobuf.Timestamp")},
		},
	}

	response := &descriptorpb.DescriptorProto{
		Name: proto.String("Response"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("block"), Number: proto.Int32(1), Type: bts},
			{Name: proto.String("step"), Number: proto.Int32(6), Type: enum, TypeName: proto.String(".sf.firehose.v2.ForkStep")},
			{Name: proto.String("cursor"), Number: proto.Int32(10), Type: str},
			{Name: proto.String("metadata"), Number: proto.Int32(12), Type: msg, TypeName: proto.String(".sf.firehose.v2.BlockMetadata")},
		},
	}

	oneofRef := proto.Int32(0)
	singleBlockRequest := &descriptorpb.DescriptorProto{
		Name: proto.String("SingleBlockRequest"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("block_number"), Number: proto.Int32(3), Type: msg, TypeName: proto.String(".sf.firehose.v2.SingleBlockRequest.BlockNumber"), OneofIndex: oneofRef},
			{Name: proto.String("block_hash_and_number"), Number: proto.Int32(4), Type: msg, TypeName: proto.String(".sf.firehose.v2.SingleBlockRequest.BlockHashAndNumber"), OneofIndex: oneofRef},
			{Name: proto.String("cursor"), Number: proto.Int32(5), Type: msg, TypeName: proto.String(".sf.firehose.v2.SingleBlockRequest.Cursor"), OneofIndex: oneofRef},
			{Name: proto.String("transforms"), Number: proto.Int32(6), Type: bts, Label: repeated},
		},
		OneofDecl: []*descriptorpb.OneofDescriptorProto{
			{Name: proto.String("reference")},
		},
		NestedType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("BlockNumber"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("num"), Number: proto.Int32(1), Type: u64},
				},
			},
			{
				Name: proto.String("BlockHashAndNumber"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("num"), Number: proto.Int32(1), Type: u64},
					{Name: proto.String("hash"), Number: proto.Int32(2), Type: str},
				},
			},
			{
				Name: proto.String("Cursor"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("cursor"), Number: proto.Int32(1), Type: str},
				},
			},
		},
	}

	singleBlockResponse := &descriptorpb.DescriptorProto{
		Name: proto.String("SingleBlockResponse"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: proto.String("block"), Number: proto.Int32(1), Type: bts},
			{Name: proto.String("metadata"), Number: proto.Int32(2), Type: msg, TypeName: proto.String(".sf.firehose.v2.BlockMetadata")},
		},
	}

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("sf/firehose/v2/firehose.proto"),
		Package:    proto.String("sf.firehose.v2"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/timestamp.proto"},
		EnumType:   []*descriptorpb.EnumDescriptorProto{forkStep},
		MessageType: []*descriptorpb.DescriptorProto{
			request, metadata, response, singleBlockRequest, singleBlockResponse,
		},
	}
}

// NewRequestMessage returns an empty sf.firehose.v2.Request message.
func NewRequestMessage() *dynamicpb.Message {
	return dynamicpb.NewMessage(requestDesc)
}

// NewResponseMessage returns an empty sf.firehose.v2.Response message,
// suitable as a gRPC RecvMsg target.
func NewResponseMessage() *dynamicpb.Message {
	return dynamicpb.NewMessage(responseDesc)
}

// NewSingleBlockResponseMessage returns an empty SingleBlockResponse message.
func NewSingleBlockResponseMessage() *dynamicpb.Message {
	return dynamicpb.NewMessage(singleBlockResponseDesc)
}

// RequestToMessage converts a streaming request to its wire message.
func RequestToMessage(req *firehose.Request) *dynamicpb.Message {
	m := dynamicpb.NewMessage(requestDesc)
	fields := requestDesc.Fields()
	if req.StartBlockNum != 0 {
		// The wire field is signed; negative values mean head-relative starts,
		// which this client does not use.
		m.Set(fields.ByName("start_block_num"), protoreflect.ValueOfInt64(int64(req.StartBlockNum)))
	}
	if req.StopBlockNum != 0 {
		m.Set(fields.ByName("stop_block_num"), protoreflect.ValueOfUint64(req.StopBlockNum))
	}
	if req.Cursor != "" {
		m.Set(fields.ByName("cursor"), protoreflect.ValueOfString(req.Cursor))
	}
	if req.FinalBlocksOnly {
		m.Set(fields.ByName("final_blocks_only"), protoreflect.ValueOfBool(true))
	}
	if len(req.Transforms) > 0 {
		list := m.Mutable(fields.ByName("transforms")).List()
		for _, tr := range req.Transforms {
			list.Append(protoreflect.ValueOfBytes(tr))
		}
	}
	return m
}

// SingleBlockRequestToMessage converts a point-lookup request to its wire
// message. A nil reference produces a message with no reference set; the
// server rejects it, matching the local no-validation policy.
func SingleBlockRequestToMessage(req *firehose.SingleBlockRequest) *dynamicpb.Message {
	m := dynamicpb.NewMessage(singleBlockRequestDesc)
	fields := singleBlockRequestDesc.Fields()

	switch ref := req.Reference.(type) {
	case firehose.BlockNumberRef:
		field := fields.ByName("block_number")
		nested := dynamicpb.NewMessage(field.Message())
		nested.Set(field.Message().Fields().ByName("num"), protoreflect.ValueOfUint64(ref.Num))
		m.Set(field, protoreflect.ValueOfMessage(nested))
	case firehose.BlockHashAndNumberRef:
		field := fields.ByName("block_hash_and_number")
		nested := dynamicpb.NewMessage(field.Message())
		nested.Set(field.Message().Fields().ByName("num"), protoreflect.ValueOfUint64(ref.Num))
		nested.Set(field.Message().Fields().ByName("hash"), protoreflect.ValueOfString(ref.Hash))
		m.Set(field, protoreflect.ValueOfMessage(nested))
	case firehose.CursorRef:
		field := fields.ByName("cursor")
		nested := dynamicpb.NewMessage(field.Message())
		nested.Set(field.Message().Fields().ByName("cursor"), protoreflect.ValueOfString(ref.Cursor))
		m.Set(field, protoreflect.ValueOfMessage(nested))
	case nil:
	}

	if len(req.Transforms) > 0 {
		list := m.Mutable(fields.ByName("transforms")).List()
		for _, tr := range req.Transforms {
			list.Append(protoreflect.ValueOfBytes(tr))
		}
	}
	return m
}

// ResponseFromMessage converts a received wire message into the typed
// response model. Unknown fork steps and malformed metadata are decode
// inconsistencies and produce an error.
func ResponseFromMessage(m *dynamicpb.Message) (*firehose.Response, error) {
	fields := responseDesc.Fields()

	step := firehose.ForkStep(m.Get(fields.ByName("step")).Enum())
	if step < firehose.StepUnset || step > firehose.StepFinal {
		return nil, fmt.Errorf("unknown fork step %d", step)
	}

	resp := &firehose.Response{
		Step:    step,
		Payload: m.Get(fields.ByName("block")).Bytes(),
		Cursor:  m.Get(fields.ByName("cursor")).String(),
	}

	metaField := fields.ByName("metadata")
	if m.Has(metaField) {
		meta, err := metadataFromMessage(m.Get(metaField).Message())
		if err != nil {
			return nil, err
		}
		resp.Metadata = meta
	}
	return resp, nil
}

// SingleBlockResponseFromMessage converts a fetch result wire message.
func SingleBlockResponseFromMessage(m *dynamicpb.Message) (*firehose.SingleBlockResponse, error) {
	fields := singleBlockResponseDesc.Fields()

	resp := &firehose.SingleBlockResponse{
		Payload: m.Get(fields.ByName("block")).Bytes(),
	}

	metaField := fields.ByName("metadata")
	if m.Has(metaField) {
		meta, err := metadataFromMessage(m.Get(metaField).Message())
		if err != nil {
			return nil, err
		}
		resp.Metadata = meta
	}
	return resp, nil
}

// MetadataToMessage converts block metadata to its wire message. Used by the
// test server and kept alongside the decode path for symmetry.
func MetadataToMessage(meta *firehose.BlockMetadata) *dynamicpb.Message {
	m := dynamicpb.NewMessage(metadataDesc)
	fields := metadataDesc.Fields()
	if meta.Num != 0 {
		m.Set(fields.ByName("num"), protoreflect.ValueOfUint64(meta.Num))
	}
	if meta.Hash != "" {
		m.Set(fields.ByName("hash"), protoreflect.ValueOfString(meta.Hash))
	}
	if !meta.Time.IsZero() {
		timeField := fields.ByName("time")
		ts := dynamicpb.NewMessage(timeField.Message())
		tsFields := timeField.Message().Fields()
		ts.Set(tsFields.ByName("seconds"), protoreflect.ValueOfInt64(meta.Time.Unix()))
		ts.Set(tsFields.ByName("nanos"), protoreflect.ValueOfInt32(int32(meta.Time.Nanosecond())))
		m.Set(timeField, protoreflect.ValueOfMessage(ts))
	}
	return m
}

func metadataFromMessage(m protoreflect.Message) (*firehose.BlockMetadata, error) {
	fields := m.Descriptor().Fields()

	meta := &firehose.BlockMetadata{
		Num:  m.Get(fields.ByName("num")).Uint(),
		Hash: m.Get(fields.ByName("hash")).String(),
	}

	timeField := fields.ByName("time")
	if timeField == nil {
		return nil, fmt.Errorf("metadata message %s has no time field", m.Descriptor().FullName())
	}
	if m.Has(timeField) {
		ts := m.Get(timeField).Message()
		tsFields := ts.Descriptor().Fields()
		seconds := ts.Get(tsFields.ByName("seconds")).Int()
		nanos := ts.Get(tsFields.ByName("nanos")).Int()
		meta.Time = time.Unix(seconds, nanos).UTC()
	}
	return meta, nil
}
