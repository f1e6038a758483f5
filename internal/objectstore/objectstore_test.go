package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/cabinshare/internal/config"
)

func TestNotConfigured(t *testing.T) {
	s := New(config.S3Config{Bucket: "b"})
	if s.Configured() {
		t.Fatal("store without credentials reports configured")
	}
	ctx := context.Background()
	if err := s.Put(ctx, "k", strings.NewReader("x"), 1, ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("put err = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("get err = %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("delete err = %v", err)
	}
}

func TestPutGetDelete(t *testing.T) {
	mem := NewMemory()
	s := NewWithClient(mem, "cabin")
	ctx := context.Background()

	if err := s.Put(ctx, "orgs/1/docs/a.pdf", strings.NewReader("hello"), 5, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Get(ctx, "orgs/1/docs/a.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("body = %q", data)
	}

	if err := s.Delete(ctx, "orgs/1/docs/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = s.Get(ctx, "orgs/1/docs/a.pdf")
	var nsk *types.NoSuchKey
	if !errors.As(err, &nsk) {
		t.Errorf("get after delete err = %v, want NoSuchKey", err)
	}
}

func TestKey(t *testing.T) {
	a := Key(7, "images", "Photo.JPG")
	b := Key(7, "images", "Photo.JPG")
	if a == b {
		t.Error("keys should be unique")
	}
	if !strings.HasPrefix(a, "orgs/7/images/") || !strings.HasSuffix(a, ".jpg") {
		t.Errorf("key = %q", a)
	}
	if !OwnedBy(a, 7) || OwnedBy(a, 70) {
		t.Errorf("OwnedBy mismatch for %q", a)
	}
	if k := Key(1, "docs", "noext"); strings.Contains(k[len("orgs/1/docs/"):], ".") {
		t.Errorf("key without extension = %q", k)
	}
}
