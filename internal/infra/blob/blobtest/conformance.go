package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"fieldledger/internal/blob/core"
)

// Exercise runs the behaviour every driver shares against an empty store.
func Exercise(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/2024/cash.xlsx", strings.NewReader("ledger"), core.PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"account": "north"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/2024/cash.xlsx" || info.Size != 6 {
		t.Fatalf("unexpected put info: %+v", info)
	}
	if info.ETag == "" {
		t.Fatalf("expected etag")
	}

	if _, err := store.Put(ctx, "exports/2024/cash.xlsx", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "exports/2024/cash.xlsx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(body, []byte("ledger")) {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ContentType != "application/octet-stream" {
		t.Fatalf("unexpected content type %q", got.ContentType)
	}
	if got.Metadata["account"] != "north" {
		t.Fatalf("expected metadata to round trip, got %+v", got.Metadata)
	}

	if _, err := store.Head(ctx, "exports/missing.xlsx"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "exports/missing.xlsx"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}

	if _, err := store.Put(ctx, "exports/2025/cash.xlsx", strings.NewReader("next"), core.PutOptions{}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	if _, err := store.Put(ctx, "other/readme.txt", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("third put: %v", err)
	}
	listed, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].Key != "exports/2024/cash.xlsx" || listed[1].Key != "exports/2025/cash.xlsx" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	for _, bad := range []string{"", "/abs", "../escape", "a/../../b", `win\path`} {
		if _, err := store.Put(ctx, bad, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", bad)
		}
	}

	if _, err := store.PresignURL(ctx, "exports/2025/cash.xlsx", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected PUT presign to be unsupported, got %v", err)
	}

	deleted, err := store.Delete(ctx, "exports/2024/cash.xlsx")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "exports/2024/cash.xlsx")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := store.Head(ctx, "exports/2024/cash.xlsx"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected deleted blob to be gone, got %v", err)
	}
}
