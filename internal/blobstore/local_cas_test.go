package blobstore

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"testing"
)

func TestLocalCASPutOpenDelete(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	first, err := cas.Put(ctx, bytes.NewBufferString("png-bytes"))
	if err != nil {
		t.Fatalf("put first: %v", err)
	}
	if len(first.Digest) != 64 || !strings.HasPrefix(first.BlobKey, "blake2b/") {
		t.Fatalf("unexpected put result: %#v", first)
	}
	if first.SizeBytes != int64(len("png-bytes")) {
		t.Fatalf("expected size %d, got %d", len("png-bytes"), first.SizeBytes)
	}

	second, err := cas.Put(ctx, bytes.NewBufferString("png-bytes"))
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if first != second {
		t.Fatalf("expected dedupe: first=%#v second=%#v", first, second)
	}

	rc, err := cas.Open(ctx, first.BlobKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("expected png-bytes, got %q", string(data))
	}

	if err := cas.Delete(ctx, first.BlobKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cas.Delete(ctx, first.BlobKey); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
}

func TestLocalCASRejectsEscapingKeys(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../outside", "blake2b/../../x"} {
		if _, err := cas.Open(context.Background(), key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestLocalCASKeysListsStoredPayloads(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	keys, err := cas.Keys(ctx)
	if err != nil {
		t.Fatalf("keys on empty store: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}

	a, err := cas.Put(ctx, strings.NewReader("a"))
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	b, err := cas.Put(ctx, strings.NewReader("b"))
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	keys, err = cas.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || !slices.Contains(keys, a.BlobKey) || !slices.Contains(keys, b.BlobKey) {
		t.Fatalf("expected both keys, got %v", keys)
	}

	if err := cas.Delete(ctx, a.BlobKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, err = cas.Keys(ctx)
	if err != nil {
		t.Fatalf("keys after delete: %v", err)
	}
	if len(keys) != 1 || keys[0] != b.BlobKey {
		t.Fatalf("expected only %s, got %v", b.BlobKey, keys)
	}
}
