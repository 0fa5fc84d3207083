package identifier_repo

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionAlgo specifies how registry metadata is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the JSON size above which metadata is compressed.
const DefaultCompressThreshold = 4 * 1024

// MetadataCodec stores caller metadata as JSONB, switching to zstd
// compressed bytes once the encoded JSON exceeds the threshold.
// Safe for concurrent use.
type MetadataCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// EncodedMetadata is the column form of a metadata bag.
type EncodedMetadata struct {
	JSON       []byte
	Compressed []byte
	Algo       CompressionAlgo
}

// NewMetadataCodec creates a codec. threshold <= 0 disables compression.
func NewMetadataCodec(threshold int) (*MetadataCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &MetadataCodec{
		encoder:   encoder,
		decoder:   decoder,
		threshold: threshold,
	}, nil
}

// Encode converts metadata into its column form. Empty metadata encodes to NULLs.
func (c *MetadataCodec) Encode(metadata map[string]any) (EncodedMetadata, error) {
	if len(metadata) == 0 {
		return EncodedMetadata{Algo: CompressionNone}, nil
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return EncodedMetadata{}, fmt.Errorf("marshal metadata: %w", err)
	}

	if c.threshold > 0 && len(raw) > c.threshold {
		return EncodedMetadata{
			Compressed: c.encoder.EncodeAll(raw, nil),
			Algo:       CompressionZstd,
		}, nil
	}
	return EncodedMetadata{JSON: raw, Algo: CompressionNone}, nil
}

// Decode restores metadata from its column form.
func (c *MetadataCodec) Decode(m EncodedMetadata) (map[string]any, error) {
	raw := m.JSON
	if m.Algo == CompressionZstd && len(m.Compressed) > 0 {
		decompressed, err := c.decoder.DecodeAll(m.Compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress metadata: %w", err)
		}
		raw = decompressed
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return out, nil
}
