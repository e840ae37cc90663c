package inmem

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/optiad/adpilot/pkg/store"
)

func TestPutGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "conv-1", []byte(`{"current_tier":"snapshot"}`)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(got, []byte("snapshot")) {
		t.Errorf("got %q", got)
	}

	if err := s.Delete(ctx, "conv-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "conv-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("after delete: err = %v, want ErrNotFound", err)
	}
}

func TestGet_Missing(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// The store hands out copies; callers mutating a returned or stored slice
// must not corrupt the record.
func TestValueIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	buf := []byte("original")
	if err := s.Put(ctx, "conv-1", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'

	got, err := s.Get(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("stored value mutated through caller's slice: %q", got)
	}

	got[0] = 'Y'
	again, _ := s.Get(ctx, "conv-1")
	if string(again) != "original" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}
