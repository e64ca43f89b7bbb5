package minio

import (
	"context"
	"strings"
	"testing"

	"fieldledger/internal/blob/core"
	"fieldledger/internal/infra/blob/blobtest"
)

func newTestStore(t *testing.T) (*Store, *blobtest.S3Server) {
	t.Helper()
	srv := blobtest.NewS3Server(t, "ledger-exports")
	store, err := New(context.Background(), Config{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		Bucket:          srv.Bucket,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		CreateBucket:    true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store, srv
}

func TestMinIOStoreConformance(t *testing.T) {
	store, _ := newTestStore(t)
	blobtest.Exercise(t, store)
}

func TestMinIOStoreDecodesStreamingUpload(t *testing.T) {
	store, srv := newTestStore(t)
	payload := strings.Repeat("ledger-row;", 200)
	if _, err := store.Put(context.Background(), "cash/feb.csv", strings.NewReader(payload), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	body, ok := srv.Body("cash/feb.csv")
	if !ok || string(body) != payload {
		t.Fatalf("bucket body mismatch ok=%v len=%d", ok, len(body))
	}
}

func TestMinIOStorePresignsGet(t *testing.T) {
	store, srv := newTestStore(t)
	u, err := store.PresignURL(context.Background(), "cash/feb.csv", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "/"+srv.Bucket+"/cash/feb.csv") || !strings.Contains(u, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned url %s", u)
	}
}

func TestMinIOStoreRequiresEndpoint(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "b"}); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
}
