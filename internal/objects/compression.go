package objects

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

// compressor keeps pooled zstd encoders and decoders. EncodeAll and
// DecodeAll are used on whole blobs.
type compressor struct {
	opts     CompressionOptions
	encoders sync.Pool
	decoders sync.Pool
}

func newCompressor(opts CompressionOptions) (*compressor, error) {
	level := zstd.EncoderLevelFromZstd(opts.Level)
	if opts.Level == 0 {
		level = zstd.SpeedDefault
	}

	// fail early on bad options instead of inside the pool
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	c := &compressor{opts: opts}
	c.encoders.New = func() interface{} {
		e, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
		return e
	}
	c.decoders.New = func() interface{} {
		d, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return d
	}
	c.encoders.Put(enc)
	c.decoders.Put(dec)
	return c, nil
}

// compress returns the zstd form of content and true, or content itself and
// false when it is below MinSize or does not shrink.
func (c *compressor) compress(content []byte) ([]byte, bool) {
	if len(content) < c.opts.MinSize {
		return content, false
	}

	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)

	out := enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false
	}
	return out, true
}

func (c *compressor) decompress(content []byte) ([]byte, error) {
	if !bytes.HasPrefix(content, zstdMagic) {
		return nil, fmt.Errorf("stored object is not zstd data")
	}

	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	out, err := dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
