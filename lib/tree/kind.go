// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"fmt"
	"time"
)

// KindTag identifies the variant of a [Kind]. Values are encoded into
// node hashes; changing them changes every digest.
type KindTag uint8

const (
	KindRoot KindTag = iota + 1
	KindProject
	KindSession
	KindMessage
	KindOperation
)

// String returns the lowercase name of the tag.
func (tag KindTag) String() string {
	switch tag {
	case KindRoot:
		return "root"
	case KindProject:
		return "project"
	case KindSession:
		return "session"
	case KindMessage:
		return "message"
	case KindOperation:
		return "operation"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// IsLeaf reports whether nodes of this kind never have children.
func (tag KindTag) IsLeaf() bool {
	return tag == KindMessage || tag == KindOperation
}

// accepts reports whether a node tagged tag may aggregate a child
// tagged child.
func (tag KindTag) accepts(child KindTag) bool {
	switch tag {
	case KindRoot:
		return child == KindProject
	case KindProject:
		return child == KindSession
	case KindSession:
		return child == KindMessage || child == KindOperation
	default:
		return false
	}
}

// Kind is the typed payload of a node: a tag plus exactly the payload
// struct that matches it. Root carries no payload. Use the
// constructors ([RootKind], [ProjectKind], ...) rather than building
// the struct by hand; [NewNode] rejects a Kind whose populated payload
// disagrees with its tag.
//
// Times are Unix nanoseconds so the canonical encoding is lossless.
type Kind struct {
	Tag       KindTag        `cbor:"tag" json:"tag"`
	Project   *ProjectInfo   `cbor:"project,omitempty" json:"project,omitempty"`
	Session   *SessionInfo   `cbor:"session,omitempty" json:"session,omitempty"`
	Message   *MessageInfo   `cbor:"message,omitempty" json:"message,omitempty"`
	Operation *OperationInfo `cbor:"operation,omitempty" json:"operation,omitempty"`
}

// ProjectInfo is the payload of a project node.
type ProjectInfo struct {
	Name string `cbor:"name" json:"name"`
	Path string `cbor:"path" json:"path"`
}

// SessionInfo is the payload of a session node. EndTime is nil when
// the session has no known end.
type SessionInfo struct {
	ID        string `cbor:"id" json:"id"`
	StartTime int64  `cbor:"start_time" json:"start_time"`
	EndTime   *int64 `cbor:"end_time,omitempty" json:"end_time,omitempty"`
}

// Start returns StartTime as a UTC time.
func (info *SessionInfo) Start() time.Time {
	return fromUnixNanos(info.StartTime)
}

// End returns EndTime as a UTC time, or the zero time when absent.
func (info *SessionInfo) End() time.Time {
	if info.EndTime == nil {
		return time.Time{}
	}
	return fromUnixNanos(*info.EndTime)
}

// MessageInfo is the payload of a message leaf.
type MessageInfo struct {
	ID        string `cbor:"id" json:"id"`
	Timestamp int64  `cbor:"timestamp" json:"timestamp"`
	Role      string `cbor:"role" json:"role"`
}

// OperationInfo is the payload of an operation leaf.
type OperationInfo struct {
	ToolCallID string `cbor:"tool_call_id" json:"tool_call_id"`
	ToolName   string `cbor:"tool_name" json:"tool_name"`
	Timestamp  int64  `cbor:"timestamp" json:"timestamp"`
}

// RootKind returns the kind of the corpus root.
func RootKind() Kind {
	return Kind{Tag: KindRoot}
}

// ProjectKind returns a project kind.
func ProjectKind(name, path string) Kind {
	return Kind{Tag: KindProject, Project: &ProjectInfo{Name: name, Path: path}}
}

// SessionKind returns a session kind. A zero end time means the end
// is unknown.
func SessionKind(id string, start, end time.Time) Kind {
	info := &SessionInfo{ID: id, StartTime: unixNanos(start)}
	if !end.IsZero() {
		endNanos := unixNanos(end)
		info.EndTime = &endNanos
	}
	return Kind{Tag: KindSession, Session: info}
}

// MessageKind returns a message kind.
func MessageKind(id string, timestamp time.Time, role string) Kind {
	return Kind{Tag: KindMessage, Message: &MessageInfo{ID: id, Timestamp: unixNanos(timestamp), Role: role}}
}

// OperationKind returns an operation kind.
func OperationKind(toolCallID, toolName string, timestamp time.Time) Kind {
	return Kind{Tag: KindOperation, Operation: &OperationInfo{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Timestamp:  unixNanos(timestamp),
	}}
}

// Validate checks that exactly the payload matching Tag is populated
// and that the identifier a node of this kind is keyed by is
// non-empty. Errors wrap [ErrInvalidKind].
func (k Kind) Validate() error {
	populated := 0
	for _, present := range []bool{k.Project != nil, k.Session != nil, k.Message != nil, k.Operation != nil} {
		if present {
			populated++
		}
	}

	var matching bool
	switch k.Tag {
	case KindRoot:
		matching = populated == 0
	case KindProject:
		matching = k.Project != nil && populated == 1
		if matching && k.Project.Name == "" {
			return fmt.Errorf("%w: project name is empty", ErrInvalidKind)
		}
	case KindSession:
		matching = k.Session != nil && populated == 1
		if matching && k.Session.ID == "" {
			return fmt.Errorf("%w: session id is empty", ErrInvalidKind)
		}
	case KindMessage:
		matching = k.Message != nil && populated == 1
		if matching && k.Message.ID == "" {
			return fmt.Errorf("%w: message id is empty", ErrInvalidKind)
		}
	case KindOperation:
		matching = k.Operation != nil && populated == 1
		if matching && k.Operation.ToolCallID == "" {
			return fmt.Errorf("%w: tool call id is empty", ErrInvalidKind)
		}
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrInvalidKind, uint8(k.Tag))
	}
	if !matching {
		return fmt.Errorf("%w: payload does not match tag %s", ErrInvalidKind, k.Tag)
	}
	return nil
}

// ChildKey returns the key a node of this kind is stored under in its
// parent's child map. Root has no parent and returns false.
func (k Kind) ChildKey() (string, bool) {
	switch {
	case k.Tag == KindMessage && k.Message != nil:
		return "msg:" + k.Message.ID, true
	case k.Tag == KindOperation && k.Operation != nil:
		return "op:" + k.Operation.ToolCallID, true
	case k.Tag == KindSession && k.Session != nil:
		return k.Session.ID, true
	case k.Tag == KindProject && k.Project != nil:
		return k.Project.Name, true
	default:
		return "", false
	}
}

// Label returns a short human-readable description, for logs and CLI
// output.
func (k Kind) Label() string {
	switch {
	case k.Project != nil:
		return "project " + k.Project.Name
	case k.Session != nil:
		return "session " + k.Session.ID
	case k.Message != nil:
		return "message " + k.Message.ID + " (" + k.Message.Role + ")"
	case k.Operation != nil:
		return "operation " + k.Operation.ToolCallID + " (" + k.Operation.ToolName + ")"
	default:
		return k.Tag.String()
	}
}

func (k Kind) clone() Kind {
	out := Kind{Tag: k.Tag}
	if k.Project != nil {
		project := *k.Project
		out.Project = &project
	}
	if k.Session != nil {
		session := *k.Session
		if k.Session.EndTime != nil {
			end := *k.Session.EndTime
			session.EndTime = &end
		}
		out.Session = &session
	}
	if k.Message != nil {
		message := *k.Message
		out.Message = &message
	}
	if k.Operation != nil {
		operation := *k.Operation
		out.Operation = &operation
	}
	return out
}

// unixNanos maps the zero time to 0 so records without a timestamp
// encode deterministically.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}
