package record

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// WriteFirstMeg compresses the raw first-megabyte capture into the run
// directory. Unlike the per-partition images, this artifact is produced
// in-process: the capture is small and fixed-size, so there is no reason to
// shell out for it.
func (w *Writer) WriteFirstMeg(data []byte, level int) error {
	if len(data) != FirstMegSize {
		return fmt.Errorf("first-megabyte capture is %d bytes, want %d", len(data), FirstMegSize)
	}
	f, err := os.Create(w.Path(FileFirstMeg))
	if err != nil {
		return fmt.Errorf("create %s: %w", FileFirstMeg, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("compress %s: %w", FileFirstMeg, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish %s: %w", FileFirstMeg, err)
	}
	return nil
}

// FirstMeg decompresses the persisted first-megabyte capture.
func (r *Run) FirstMeg() ([]byte, error) {
	f, err := os.Open(r.Path(FileFirstMeg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd reader: %v", ErrFormat, err)
	}
	defer dec.Close()

	data, err := io.ReadAll(io.LimitReader(dec, FirstMegSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %v", ErrFormat, FileFirstMeg, err)
	}
	if len(data) != FirstMegSize {
		return nil, fmt.Errorf("%w: %s decompressed to %d bytes, want %d",
			ErrFormat, FileFirstMeg, len(data), FirstMegSize)
	}
	return data, nil
}
