package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	out, err := DecodeRLE(AppendRLE(nil, in), 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_LimitRejectsOverflow(t *testing.T) {
	raw := AppendRLE(nil, make([]uint16, 100))
	if _, err := DecodeRLE(raw, 64); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := DecodeRLE([]byte{0x80}, 0); err == nil {
		t.Fatalf("expected bad varint error")
	}
}

func TestPackBlocks_RoundTrip(t *testing.T) {
	in := make([]uint16, 4096)
	for i := range in {
		if i%97 == 0 {
			in[i] = uint16(i % 11)
		}
	}
	blob, err := PackBlocks(in)
	if err != nil {
		t.Fatalf("PackBlocks: %v", err)
	}
	if len(blob) >= len(in)*2 {
		t.Fatalf("blob not compressed: %d bytes", len(blob))
	}
	out, err := UnpackBlocks(blob, len(in))
	if err != nil {
		t.Fatalf("UnpackBlocks: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d", i)
		}
	}
	if _, err := UnpackBlocks(blob, len(in)+1); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}
