package boltrepo

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	// compressionThreshold is the minimum payload size before compression is
	// considered. zstd overhead is not worth it for smaller payloads.
	compressionThreshold = 2048

	// maxPayloadSize is the maximum allowed uncompressed payload size.
	maxPayloadSize = 1 * 1024 * 1024 // 1MB

	encodingIdentity = "identity"
	encodingZstd     = "zstd"
)

var (
	// ErrPayloadTooLarge is returned when a payload exceeds maxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrCorrupted is returned when payload digest verification fails.
	ErrCorrupted = errors.New("payload digest mismatch")
)

// envelope wraps a stored record with its encoding, original size and a
// digest of the uncompressed payload.
type envelope struct {
	Encoding string `json:"encoding"`
	Digest   string `json:"digest"`
	Size     int64  `json:"size"`
	Payload  []byte `json:"payload"`
}

// envelopeCodec handles envelope encoding/decoding with optional compression.
// Encoder and decoder are goroutine-safe and can be reused.
type envelopeCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

func newEnvelopeCodec() (*envelopeCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &envelopeCodec{
		encoder: enc,
		decoder: dec,
	}, nil
}

// Close releases encoder/decoder resources.
func (c *envelopeCodec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encode wraps data in an envelope, compressing it when beneficial.
func (c *envelopeCodec) Encode(data []byte) ([]byte, error) {
	if len(data) > maxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	env := envelope{
		Encoding: encodingIdentity,
		Digest:   computeDigest(data),
		Size:     int64(len(data)),
		Payload:  data,
	}

	if len(data) >= compressionThreshold {
		c.mu.RLock()
		enc := c.encoder
		c.mu.RUnlock()

		if enc != nil {
			compressed := enc.EncodeAll(data, nil)
			if len(compressed) < len(data) {
				env.Encoding = encodingZstd
				env.Payload = compressed
			}
		}
	}

	return json.Marshal(&env)
}

// Decode unwraps an envelope, decompressing if needed and verifying the
// payload digest.
func (c *envelopeCodec) Decode(data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}

	payload := env.Payload

	switch env.Encoding {
	case encodingIdentity:
	case encodingZstd:
		if env.Size > maxPayloadSize {
			return nil, ErrPayloadTooLarge
		}

		c.mu.RLock()
		dec := c.decoder
		c.mu.RUnlock()

		if dec == nil {
			return nil, errors.New("decoder not initialized")
		}

		decompressed, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
		if len(decompressed) > maxPayloadSize {
			return nil, ErrPayloadTooLarge
		}
		payload = decompressed
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", env.Encoding)
	}

	if env.Digest != "" && computeDigest(payload) != env.Digest {
		return nil, ErrCorrupted
	}

	return payload, nil
}

// computeDigest computes a blake3 digest in canonical format.
func computeDigest(data []byte) string {
	h := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(h[:])
}
