// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/sessiontree/lib/codec"
	"github.com/bureau-foundation/sessiontree/lib/digest"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

func sessionNode(t *testing.T, children map[string]digest.Digest) *Node {
	t.Helper()
	node, err := NewNode(
		SessionKind("s1", testTime, testTime.Add(time.Hour)),
		Metadata{MessageCount: 2, OperationCount: 1, ContentSize: 300},
		children,
		digest.Null,
		nil,
	)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return node
}

func TestNewNodeDeterministic(t *testing.T) {
	children := map[string]digest.Digest{
		"msg:a": digest.HashString("a"),
		"msg:b": digest.HashString("b"),
	}
	first := sessionNode(t, children)
	second := sessionNode(t, children)
	if first.Hash() != second.Hash() {
		t.Error("identical nodes hashed differently")
	}
	if first.Hash().IsNull() {
		t.Error("node hash is null")
	}
}

func TestHashExcludesInformationalFields(t *testing.T) {
	base := sessionNode(t, nil)

	withParent := base.WithParent(digest.HashString("parent"))
	if withParent.Hash() != base.Hash() {
		t.Error("parent changed the hash")
	}
	if !withParent.HasParent() || base.HasParent() {
		t.Error("WithParent modified the original or did not set the parent")
	}

	metadata := base.Metadata()
	metadata.CreatedAt = 12345
	metadata.UpdatedAt = 67890
	metadata.Custom = map[string]any{"note": "ignored by the hash"}
	restamped, err := base.WithMetadata(metadata)
	if err != nil {
		t.Fatalf("WithMetadata: %v", err)
	}
	if restamped.Hash() != base.Hash() {
		t.Error("timestamps or custom fields changed the hash")
	}
}

func TestHashCoversHashedFields(t *testing.T) {
	base := sessionNode(t, map[string]digest.Digest{"msg:a": digest.HashString("a")})

	tests := []struct {
		name   string
		mutate func(t *testing.T) *Node
	}{
		{"message count", func(t *testing.T) *Node {
			metadata := base.Metadata()
			metadata.MessageCount++
			node, err := base.WithMetadata(metadata)
			if err != nil {
				t.Fatal(err)
			}
			return node
		}},
		{"operation count", func(t *testing.T) *Node {
			metadata := base.Metadata()
			metadata.OperationCount++
			node, err := base.WithMetadata(metadata)
			if err != nil {
				t.Fatal(err)
			}
			return node
		}},
		{"content size", func(t *testing.T) *Node {
			metadata := base.Metadata()
			metadata.ContentSize++
			node, err := base.WithMetadata(metadata)
			if err != nil {
				t.Fatal(err)
			}
			return node
		}},
		{"child hash", func(t *testing.T) *Node {
			node, err := base.WithChild("msg:a", digest.HashString("other"))
			if err != nil {
				t.Fatal(err)
			}
			return node
		}},
		{"child key", func(t *testing.T) *Node {
			node, err := NewNode(base.Kind(), base.Metadata(),
				map[string]digest.Digest{"msg:b": digest.HashString("a")}, digest.Null, nil)
			if err != nil {
				t.Fatal(err)
			}
			return node
		}},
		{"kind", func(t *testing.T) *Node {
			node, err := NewNode(SessionKind("s2", testTime, testTime.Add(time.Hour)),
				base.Metadata(), base.ChildMap(), digest.Null, nil)
			if err != nil {
				t.Fatal(err)
			}
			return node
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.mutate(t).Hash() == base.Hash() {
				t.Errorf("changing the %s did not change the hash", test.name)
			}
		})
	}
}

func TestContentNormalization(t *testing.T) {
	kind := MessageKind("m1", testTime, "user")
	absent, err := NewNode(kind, Metadata{MessageCount: 1}, nil, digest.Null, nil)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	empty, err := NewNode(kind, Metadata{MessageCount: 1}, nil, digest.Null, []byte{})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if absent.Hash() != empty.Hash() {
		t.Error("empty content and absent content hashed differently")
	}
	if empty.HasContent() {
		t.Error("empty content reported as present")
	}

	withContent, err := NewNode(kind, Metadata{MessageCount: 1}, nil, digest.Null, []byte("hello"))
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if withContent.Hash() == absent.Hash() {
		t.Error("content did not change the hash")
	}

	// Content is copied on the way in and on the way out.
	content := withContent.Content()
	content[0] = 'X'
	if string(withContent.Content()) != "hello" {
		t.Error("mutating Content() output changed the node")
	}
}

func TestWithChildKeepsHashConsistent(t *testing.T) {
	node := sessionNode(t, nil)

	added, err := node.WithChild("msg:m1", digest.HashString("m1"))
	if err != nil {
		t.Fatalf("WithChild: %v", err)
	}
	if err := Validate(added); err != nil {
		t.Errorf("Validate after WithChild: %v", err)
	}
	if added.Hash() == node.Hash() {
		t.Error("WithChild did not change the hash")
	}
	if node.ChildCount() != 0 {
		t.Error("WithChild modified the original node")
	}

	removed, existed, err := added.WithoutChild("msg:m1")
	if err != nil {
		t.Fatalf("WithoutChild: %v", err)
	}
	if !existed {
		t.Error("WithoutChild reported a present key as absent")
	}
	if err := Validate(removed); err != nil {
		t.Errorf("Validate after WithoutChild: %v", err)
	}
	if removed.Hash() != node.Hash() {
		t.Error("adding then removing a child did not restore the hash")
	}

	same, existed, err := node.WithoutChild("msg:missing")
	if err != nil {
		t.Fatalf("WithoutChild: %v", err)
	}
	if existed || same != node {
		t.Error("WithoutChild of an absent key should return the same node and false")
	}
}

func TestChildrenSortedByKey(t *testing.T) {
	node := sessionNode(t, map[string]digest.Digest{
		"op:z":  digest.HashString("z"),
		"msg:b": digest.HashString("b"),
		"msg:a": digest.HashString("a"),
	})

	keys := node.ChildKeys()
	want := []string{"msg:a", "msg:b", "op:z"}
	if len(keys) != len(want) {
		t.Fatalf("ChildKeys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("ChildKeys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	entries := node.Children()
	if entries[0].Key != "msg:a" || entries[0].Hash != digest.HashString("a") {
		t.Errorf("Children()[0] = %+v", entries[0])
	}
	if hash, exists := node.Child("op:z"); !exists || hash != digest.HashString("z") {
		t.Error("Child(op:z) lookup failed")
	}
	if _, exists := node.Child("op:missing"); exists {
		t.Error("Child reported a missing key")
	}
}

func TestNewNodeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		children map[string]digest.Digest
		want     error
	}{
		{"unknown tag", Kind{Tag: 42}, nil, ErrInvalidKind},
		{"zero tag", Kind{}, nil, ErrInvalidKind},
		{"tag without payload", Kind{Tag: KindSession}, nil, ErrInvalidKind},
		{"mismatched payload", Kind{Tag: KindProject, Session: &SessionInfo{ID: "s"}}, nil, ErrInvalidKind},
		{"two payloads", Kind{Tag: KindMessage, Message: &MessageInfo{ID: "m"}, Operation: &OperationInfo{ToolCallID: "o"}}, nil, ErrInvalidKind},
		{"root with payload", Kind{Tag: KindRoot, Project: &ProjectInfo{Name: "p"}}, nil, ErrInvalidKind},
		{"empty message id", MessageKind("", testTime, "user"), nil, ErrInvalidKind},
		{"empty tool call id", OperationKind("", "Read", testTime), nil, ErrInvalidKind},
		{"empty project name", ProjectKind("", "/src"), nil, ErrInvalidKind},
		{"empty session id", SessionKind("", testTime, time.Time{}), nil, ErrInvalidKind},
		{"leaf with children", MessageKind("m", testTime, "user"),
			map[string]digest.Digest{"x": digest.HashString("x")}, ErrInvalidKind},
		{"empty child key", RootKind(), map[string]digest.Digest{"": digest.HashString("x")}, ErrEmptyChildKey},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewNode(test.kind, Metadata{}, test.children, digest.Null, nil)
			if !errors.Is(err, test.want) {
				t.Errorf("NewNode error = %v, want %v", err, test.want)
			}
		})
	}
}

func TestWithChildRejectsLeafAndEmptyKey(t *testing.T) {
	leaf, err := NewNode(OperationKind("op1", "Bash", testTime), Metadata{OperationCount: 1}, nil, digest.Null, nil)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if _, err := leaf.WithChild("x", digest.HashString("x")); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("WithChild on a leaf error = %v, want ErrInvalidKind", err)
	}
	if _, err := sessionNode(t, nil).WithChild("", digest.HashString("x")); !errors.Is(err, ErrEmptyChildKey) {
		t.Errorf("WithChild(\"\") error = %v, want ErrEmptyChildKey", err)
	}
}

func TestValidateDetectsTampering(t *testing.T) {
	node := sessionNode(t, map[string]digest.Digest{"msg:a": digest.HashString("a")})
	if err := Validate(node); err != nil {
		t.Fatalf("Validate of a fresh node: %v", err)
	}

	tampered := node.copy()
	tampered.children["msg:a"] = digest.HashString("tampered")

	err := Validate(tampered)
	var mismatch *HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Validate error = %v, want *HashMismatchError", err)
	}
	if mismatch.Expected != node.Hash() {
		t.Errorf("Expected = %s, want %s", mismatch.Expected, node.Hash())
	}
	computed, err := ComputeHash(tampered)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if mismatch.Computed != computed {
		t.Errorf("Computed = %s, want %s", mismatch.Computed, computed)
	}
}

func TestHashInputLayout(t *testing.T) {
	// Rebuild the hash input by hand to pin the node hash format.
	child := digest.HashString("child")
	node, err := NewNode(ProjectKind("p", "/src/p"),
		Metadata{MessageCount: 3, OperationCount: 2, ContentSize: 7},
		map[string]digest.Digest{"s1": child}, digest.Null, []byte("xyz"))
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	encodedKind, err := codec.Marshal(node.Kind())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	hasher := digest.NewHasher(digest.DomainNode)
	hasher.WriteLengthPrefixed(encodedKind)
	hasher.WriteString("CHILDREN:")
	hasher.WriteUint64(1)
	hasher.WriteLengthPrefixed([]byte("s1"))
	hasher.Write(child[:])
	hasher.WriteString("CONTENT:")
	hasher.WriteLengthPrefixed([]byte("xyz"))
	hasher.WriteString("METADATA:")
	hasher.WriteUint64(3)
	hasher.WriteUint64(2)
	hasher.WriteUint64(7)

	if hasher.Sum() != node.Hash() {
		t.Error("node hash does not match the documented layout")
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	original, err := NewNode(
		MessageKind("m1", testTime, "assistant"),
		Metadata{
			MessageCount: 1,
			ContentSize:  5,
			CreatedAt:    testTime.UnixNano(),
			UpdatedAt:    testTime.UnixNano(),
			Custom:       map[string]any{"label": "first"},
		},
		nil,
		digest.HashString("parent"),
		[]byte("hello"),
	)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	again, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if string(data) != string(again) {
		t.Error("MarshalBinary is not deterministic")
	}

	decoded, err := DecodeNode(data)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if !decoded.SameIdentity(original) {
		t.Error("decoded node differs in identity")
	}
	if decoded.Parent() != original.Parent() {
		t.Error("parent lost in roundtrip")
	}
	metadata := decoded.Metadata()
	if metadata.CreatedAt != testTime.UnixNano() || metadata.Custom["label"] != "first" {
		t.Errorf("metadata lost in roundtrip: %+v", metadata)
	}
	if !metadata.Created().Equal(testTime) {
		t.Errorf("Created() = %v, want %v", metadata.Created(), testTime)
	}
}

func TestDecodeNodeDetectsHashMismatch(t *testing.T) {
	node := sessionNode(t, nil)
	wire := wireNode{
		Hash:     digest.HashString("not the real hash"),
		Kind:     node.kind,
		Metadata: node.metadata,
	}
	data, err := codec.Marshal(wire)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	_, err = DecodeNode(data)
	var mismatch *HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("DecodeNode error = %v, want *HashMismatchError", err)
	}
	if mismatch.Computed != node.Hash() {
		t.Errorf("Computed = %s, want %s", mismatch.Computed, node.Hash())
	}
}

func TestDecodeNodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeNode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("DecodeNode accepted garbage")
	}
	var mismatch *HashMismatchError
	if _, err := DecodeNode(nil); err == nil || errors.As(err, &mismatch) {
		t.Errorf("DecodeNode(nil) error = %v, want a decode error", err)
	}
}

func TestSameIdentity(t *testing.T) {
	first := sessionNode(t, nil)
	second := sessionNode(t, nil).WithParent(digest.HashString("p"))
	if !first.SameIdentity(second) {
		t.Error("nodes differing only in parent should share identity")
	}

	other, err := first.WithChild("msg:x", digest.HashString("x"))
	if err != nil {
		t.Fatalf("WithChild: %v", err)
	}
	if first.SameIdentity(other) {
		t.Error("nodes with different children share identity")
	}
	if first.SameIdentity(nil) {
		t.Error("node shares identity with nil")
	}
}

func TestKindAccessorsCopy(t *testing.T) {
	node := sessionNode(t, nil)
	kind := node.Kind()
	kind.Session.ID = "changed"
	if node.Kind().Session.ID != "s1" {
		t.Error("mutating Kind() output changed the node")
	}

	session := node.Kind().Session
	if !session.Start().Equal(testTime) {
		t.Errorf("Start() = %v, want %v", session.Start(), testTime)
	}
	if !session.End().Equal(testTime.Add(time.Hour)) {
		t.Errorf("End() = %v", session.End())
	}

	open := SessionKind("open", testTime, time.Time{})
	if open.Session.EndTime != nil || !open.Session.End().IsZero() {
		t.Error("zero end time should be absent")
	}
}

func TestKindTagString(t *testing.T) {
	tests := []struct {
		tag  KindTag
		want string
	}{
		{KindRoot, "root"},
		{KindProject, "project"},
		{KindSession, "session"},
		{KindMessage, "message"},
		{KindOperation, "operation"},
		{KindTag(99), "unknown(99)"},
	}
	for _, test := range tests {
		if got := test.tag.String(); got != test.want {
			t.Errorf("KindTag(%d).String() = %q, want %q", test.tag, got, test.want)
		}
	}
}

func TestChildKey(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
		ok   bool
	}{
		{MessageKind("m1", testTime, "user"), "msg:m1", true},
		{OperationKind("op1", "Edit", testTime), "op:op1", true},
		{SessionKind("s1", testTime, time.Time{}), "s1", true},
		{ProjectKind("proj", "/src"), "proj", true},
		{RootKind(), "", false},
	}
	for _, test := range tests {
		key, ok := test.kind.ChildKey()
		if key != test.want || ok != test.ok {
			t.Errorf("%s ChildKey() = (%q, %v), want (%q, %v)", test.kind.Tag, key, ok, test.want, test.ok)
		}
	}
}

func TestCustomMetadataNormalized(t *testing.T) {
	metadata := Metadata{
		MessageCount: 2,
		Custom: map[string]any{
			"count":  3,
			"offset": -7,
			"tags":   []string{"review"},
			"nested": map[string]any{"depth": int8(2)},
		},
	}
	node, err := NewNode(SessionKind("s1", testTime, time.Time{}), metadata, nil, digest.Null, nil)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	custom := node.Metadata().Custom
	want := map[string]any{
		"count":  uint64(3),
		"offset": int64(-7),
		"tags":   []any{"review"},
		"nested": map[string]any{"depth": uint64(2)},
	}
	if !reflect.DeepEqual(custom, want) {
		t.Errorf("Custom = %#v, want %#v", custom, want)
	}

	encoded, err := node.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := DecodeNode(encoded)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if !reflect.DeepEqual(decoded.Metadata(), node.Metadata()) {
		t.Errorf("decoded metadata = %#v, want %#v", decoded.Metadata(), node.Metadata())
	}

	edited, err := node.WithMetadata(Metadata{MessageCount: 2, Custom: map[string]any{"count": 4}})
	if err != nil {
		t.Fatalf("WithMetadata: %v", err)
	}
	if edited.Metadata().Custom["count"] != uint64(4) {
		t.Errorf("WithMetadata Custom = %#v", edited.Metadata().Custom)
	}

	empty, err := NewNode(SessionKind("s1", testTime, time.Time{}), Metadata{Custom: map[string]any{}}, nil, digest.Null, nil)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if empty.Metadata().Custom != nil {
		t.Error("empty Custom map was not normalized to nil")
	}
}

func TestCustomMetadataUnencodable(t *testing.T) {
	metadata := Metadata{Custom: map[string]any{"callback": func() {}}}
	_, err := NewNode(SessionKind("s1", testTime, time.Time{}), metadata, nil, digest.Null, nil)
	var hashError *HashError
	if !errors.As(err, &hashError) {
		t.Fatalf("NewNode error = %v, want *HashError", err)
	}

	node := sessionNode(t, nil)
	if _, err := node.WithMetadata(metadata); !errors.As(err, &hashError) {
		t.Errorf("WithMetadata error = %v, want *HashError", err)
	}
}
