package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileJournalAppendLatestAndReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}

	if _, _, err := j.Latest(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	id1, err := j.Append([]byte(`{"d":{"results":[1]}}`))
	if err != nil || id1 != 1 {
		t.Fatalf("append payload 1: %v id=%d", err, id1)
	}
	id2, err := j.Append([]byte(`{"d":{"results":[2]}}`))
	if err != nil || id2 != 2 {
		t.Fatalf("append payload 2: %v id=%d", err, id2)
	}

	id, payload, err := j.Latest()
	if err != nil || id != id2 || string(payload) != `{"d":{"results":[2]}}` {
		t.Fatalf("unexpected latest %d %q %v", id, payload, err)
	}

	if err := j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	// Reopen and ensure entries survived.
	j2, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}

	stats := j2.Stats()
	if stats.LatestAppended != id2 || stats.Entries != 2 {
		t.Fatalf("unexpected stats after reopen: %+v", stats)
	}
	if _, payload, err := j2.Latest(); err != nil || string(payload) != `{"d":{"results":[2]}}` {
		t.Fatalf("latest after reopen: %q %v", payload, err)
	}
	if err := j2.Close(); err != nil {
		t.Fatalf("close journal 2: %v", err)
	}

	// A torn tail is truncated on open.
	path := filepath.Join(dir, "payloads.log")
	if err := appendGarbage(path); err != nil {
		t.Fatalf("append garbage: %v", err)
	}

	j3, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer j3.Close()
	if j3.Stats().SizeBytes != stats.SizeBytes {
		t.Fatalf("expected garbage to be truncated, size %d vs %d", j3.Stats().SizeBytes, stats.SizeBytes)
	}
	id3, err := j3.Append([]byte("next"))
	if err != nil || id3 != 3 {
		t.Fatalf("append after recovery: %v id=%d", err, id3)
	}
	if _, payload, _ := j3.Latest(); string(payload) != "next" {
		t.Fatalf("unexpected latest after recovery %q", payload)
	}
}

func appendGarbage(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte{0xFF, 0xAA})
	return err
}
