// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/sessiontree/lib/codec"
)

// Record is a typed input to [Builder.BuildLeaf]. It is implemented
// only by [MessageRecord] and [OperationRecord].
type Record interface {
	leafKind() Kind
	encodeContent() ([]byte, error)
}

// MessageRecord is one message of a session, as produced by a
// transcript parser. Payload is an arbitrary CBOR-encodable value; it
// is stored in the leaf's content but never interpreted.
type MessageRecord struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Payload   any       `json:"payload,omitempty"`
}

// OperationRecord is one tool invocation extracted from a session.
type OperationRecord struct {
	ToolCallID string    `json:"tool_call_id"`
	ToolName   string    `json:"tool_name"`
	MessageID  string    `json:"message_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// messageContent and operationContent are the encoded leaf content.
// Timestamps are Unix nanoseconds so the encoding is lossless.
type messageContent struct {
	ID        string `cbor:"id"`
	ParentID  string `cbor:"parent_id,omitempty"`
	SessionID string `cbor:"session_id,omitempty"`
	Timestamp int64  `cbor:"timestamp"`
	Role      string `cbor:"role"`
	Payload   any    `cbor:"payload,omitempty"`
}

type operationContent struct {
	ToolCallID string `cbor:"tool_call_id"`
	ToolName   string `cbor:"tool_name"`
	MessageID  string `cbor:"message_id,omitempty"`
	Timestamp  int64  `cbor:"timestamp"`
	Payload    any    `cbor:"payload,omitempty"`
}

func (record MessageRecord) leafKind() Kind {
	return MessageKind(record.ID, record.Timestamp, record.Role)
}

func (record MessageRecord) encodeContent() ([]byte, error) {
	return codec.Marshal(messageContent{
		ID:        record.ID,
		ParentID:  record.ParentID,
		SessionID: record.SessionID,
		Timestamp: unixNanos(record.Timestamp),
		Role:      record.Role,
		Payload:   record.Payload,
	})
}

func (record OperationRecord) leafKind() Kind {
	return OperationKind(record.ToolCallID, record.ToolName, record.Timestamp)
}

func (record OperationRecord) encodeContent() ([]byte, error) {
	return codec.Marshal(operationContent{
		ToolCallID: record.ToolCallID,
		ToolName:   record.ToolName,
		MessageID:  record.MessageID,
		Timestamp:  unixNanos(record.Timestamp),
		Payload:    record.Payload,
	})
}

// DecodeMessageContent recovers the record a message leaf was built
// from. The leaf must have been built with content included.
func DecodeMessageContent(node *Node) (MessageRecord, error) {
	if node.kind.Tag != KindMessage {
		return MessageRecord{}, fmt.Errorf("%w: node %s is a %s node, not a message", ErrInvalidKind, node.hash.Short(), node.kind.Tag)
	}
	if node.content == nil {
		return MessageRecord{}, fmt.Errorf("message node %s has no content", node.hash.Short())
	}
	var content messageContent
	if err := codec.Unmarshal(node.content, &content); err != nil {
		return MessageRecord{}, fmt.Errorf("decoding message content of %s: %w", node.hash.Short(), err)
	}
	return MessageRecord{
		ID:        content.ID,
		ParentID:  content.ParentID,
		SessionID: content.SessionID,
		Timestamp: fromUnixNanos(content.Timestamp),
		Role:      content.Role,
		Payload:   content.Payload,
	}, nil
}

// DecodeOperationContent recovers the record an operation leaf was
// built from.
func DecodeOperationContent(node *Node) (OperationRecord, error) {
	if node.kind.Tag != KindOperation {
		return OperationRecord{}, fmt.Errorf("%w: node %s is a %s node, not an operation", ErrInvalidKind, node.hash.Short(), node.kind.Tag)
	}
	if node.content == nil {
		return OperationRecord{}, fmt.Errorf("operation node %s has no content", node.hash.Short())
	}
	var content operationContent
	if err := codec.Unmarshal(node.content, &content); err != nil {
		return OperationRecord{}, fmt.Errorf("decoding operation content of %s: %w", node.hash.Short(), err)
	}
	return OperationRecord{
		ToolCallID: content.ToolCallID,
		ToolName:   content.ToolName,
		MessageID:  content.MessageID,
		Timestamp:  fromUnixNanos(content.Timestamp),
		Payload:    content.Payload,
	}, nil
}
