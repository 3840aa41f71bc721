package store

import (
	"encoding/hex"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_42","type":"route.optimized"}`)
	got := computeDedupKey(body)
	if got != "evt_42" {
		t.Fatalf("want evt_42, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestComputeDedupKeyStable(t *testing.T) {
	body := []byte(`{"a":1}`)
	if computeDedupKey(body) != computeDedupKey(body) {
		t.Fatalf("same payload should dedup to same key")
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty string -> nil expected")
	}
	if v := nullIfEmpty("x"); v != "x" {
		t.Fatalf("non-empty -> string expected, got %v", v)
	}
}
