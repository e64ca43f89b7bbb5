package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fieldledger/internal/blob/core"
	"fieldledger/internal/infra/blob/blobtest"
)

func TestFilesystemStoreConformance(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	blobtest.Exercise(t, store)
}

func TestFilesystemStoreWritesSidecarAndSurvivesReopen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "exports")
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "cash/jan.xlsx", strings.NewReader("data"), core.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cash", "jan.xlsx"+metaSuffix)); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "cash"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}

	reopened, err := New(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info, err := reopened.Head(ctx, "cash/jan.xlsx")
	if err != nil {
		t.Fatalf("head after reopen: %v", err)
	}
	if info.Size != 4 || info.ContentType != "text/plain" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestFilesystemStoreRejectsReservedSuffix(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := store.Put(context.Background(), "x"+metaSuffix, strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected reserved suffix to be rejected")
	}
}

func TestFilesystemStorePresignFileURL(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	u, err := store.PresignURL(context.Background(), "cash/jan.xlsx", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/cash/jan.xlsx") {
		t.Fatalf("unexpected url %s", u)
	}
}
