package blob

import (
	"context"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  Config
		want Driver
	}{
		{name: "default filesystem", cfg: Config{FSRoot: t.TempDir()}, want: DriverFilesystem},
		{name: "memory", cfg: Config{Driver: DriverMemory}, want: DriverMemory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Open(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, store.Driver())
			}
		})
	}
}

func TestOpenRejectsIncompleteConfig(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []Config{
		{Driver: "gcs"},
		{Driver: DriverS3},
		{Driver: DriverMinIO, MinIO: MinIOConfig{Bucket: "x"}},
	} {
		if _, err := Open(ctx, cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
