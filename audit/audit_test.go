package audit

import (
	"context"
	"sync"
	"testing"
)

func TestNewEntry(t *testing.T) {
	entry := NewEntry("delegation:rest", "user-1", "GET /orders", true, map[string]any{"status": 200})

	if entry.ID == "" {
		t.Error("ID is empty")
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
	if entry.Source != "delegation:rest" || entry.Action != "GET /orders" {
		t.Errorf("got source=%q action=%q", entry.Source, entry.Action)
	}
	if !entry.Success {
		t.Error("Success = false, want true")
	}
}

func TestMemory_AppendOrder(t *testing.T) {
	sink := NewMemory()
	ctx := context.Background()

	for _, action := range []string{"a", "b", "c"} {
		if err := sink.Log(ctx, NewEntry("test", "u", action, true, nil)); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	entries := sink.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].Action != want {
			t.Errorf("entries[%d].Action = %q, want %q", i, entries[i].Action, want)
		}
	}
}

func TestMemory_Concurrent(t *testing.T) {
	sink := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Log(ctx, NewEntry("test", "u", "act", true, nil))
		}()
	}
	wg.Wait()

	if sink.Len() != 50 {
		t.Errorf("Len() = %d, want 50", sink.Len())
	}
}

func TestNop(t *testing.T) {
	var sink Service = Nop{}
	if err := sink.Log(context.Background(), NewEntry("test", "", "act", false, nil)); err != nil {
		t.Errorf("Nop.Log() error = %v", err)
	}
}

func TestBolt_RoundTrip(t *testing.T) {
	path := t.TempDir() + "/audit.db"

	sink, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Log(ctx, NewEntry("secret:resolution", "", "resolve DB_PASSWORD", true, map[string]any{"provider": "file"})); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if err := sink.Log(ctx, NewEntry("delegation:postgres", "u1", "query", false, nil)); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	entries, err := sink.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Source != "secret:resolution" {
		t.Errorf("entries[0].Source = %q, want secret:resolution", entries[0].Source)
	}
	if entries[0].Metadata["provider"] != "file" {
		t.Errorf("entries[0].Metadata = %v, want provider=file", entries[0].Metadata)
	}
	if entries[1].Success {
		t.Error("entries[1].Success = true, want false")
	}
}
