package storage

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"derivo/internal/sample"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// EncodeSnapshot serializes snap to JSON, addresses it by the BLAKE3 digest
// of that JSON and compresses it with zstd.
func EncodeSnapshot(snap *sample.Snapshot) (blob []byte, digest string, err error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	sum := blake3.Sum256(raw)

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, "", fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(raw); err != nil {
		encoder.Close()
		return nil, "", fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, "", fmt.Errorf("closing encoder: %w", err)
	}
	return compressed.Bytes(), hex.EncodeToString(sum[:]), nil
}

// DecodeSnapshot reverses EncodeSnapshot and verifies the digest.
func DecodeSnapshot(blob []byte, digest string) (*sample.Snapshot, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	sum := blake3.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != digest {
		return nil, fmt.Errorf("checkpoint digest mismatch: stored %s, computed %s", digest, got)
	}

	var snap sample.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
