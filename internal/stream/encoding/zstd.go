package encoding

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return encoder, decoder, codecErr
}

// PackBlocks returns zstd(RLE(ids)). Safe for concurrent use.
func PackBlocks(ids []uint16) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(AppendRLE(nil, ids), nil), nil
}

// UnpackBlocks reverses PackBlocks and checks the decoded length.
func UnpackBlocks(blob []byte, want int) ([]uint16, error) {
	_, dec, err := codec()
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	ids, err := DecodeRLE(raw, want)
	if err != nil {
		return nil, err
	}
	if want > 0 && len(ids) != want {
		return nil, fmt.Errorf("decoded %d blocks, want %d", len(ids), want)
	}
	return ids, nil
}
