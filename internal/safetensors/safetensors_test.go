package safetensors

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// writeRawHeader creates a file with the given header and dataLen zero bytes.
func writeRawHeader(t *testing.T, path string, header map[string]any, dataLen int) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	buf := make([]byte, 8, 8+len(headerBytes)+dataLen)
	binary.LittleEndian.PutUint64(buf, uint64(len(headerBytes)))
	buf = append(buf, headerBytes...)
	buf = append(buf, make([]byte, dataLen)...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func openT(t *testing.T, path string) *File {
	t.Helper()
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "weights.safetensors")

	a := []float32{1, -2.5, 3, 0, 1e-7, 42}
	b := []float32{0.25, 0.5}
	err := Write(path, []Tensor{
		{Name: "dense.kernel", Shape: []int{2, 3}, Data: a},
		{Name: "dense.bias", Shape: []int{1, 2}, Data: b},
	}, map[string]string{"format": "pt", "epoch": "3"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f := openT(t, path)
	if f.DataStart%8 != 0 {
		t.Fatalf("data start %d not 8-byte aligned", f.DataStart)
	}
	if got := f.Metadata["epoch"]; got != "3" {
		t.Fatalf("metadata epoch = %q, want 3", got)
	}
	if len(f.Tensors) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(f.Tensors))
	}

	got, info, err := f.ReadTensorF32("dense.kernel")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if info.DType != DTypeF32 || len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected info %+v", info)
	}
	for i := range a {
		if got[i] != a[i] {
			t.Fatalf("kernel[%d] = %v, want %v", i, got[i], a[i])
		}
	}
	got, _, err = f.ReadTensorF32("dense.bias")
	if err != nil {
		t.Fatalf("ReadTensorF32 bias: %v", err)
	}
	if got[0] != 0.25 || got[1] != 0.5 {
		t.Fatalf("bias = %v", got)
	}
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	err := Write(path, []Tensor{{Name: "w", Shape: []int{2, 2}, Data: []float32{1, 2, 3}}}, nil)
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("file should not exist after failed write, stat err = %v", statErr)
	}
}

func TestWriteRejectsDuplicateNames(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dup.safetensors")
	err := Write(path, []Tensor{
		{Name: "w", Shape: []int{1}, Data: []float32{1}},
		{Name: "w", Shape: []int{1}, Data: []float32{2}},
	}, nil)
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestTensorNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "one.safetensors")
	if err := Write(path, []Tensor{{Name: "w", Shape: []int{1}, Data: []float32{1}}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f := openT(t, path)
	if _, ok := f.Tensor("missing"); ok {
		t.Fatal("expected missing tensor")
	}
	_, _, err := f.ReadTensorF32("missing")
	if !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("expected ErrTensorNotFound, got %v", err)
	}
}

func TestReadAfterClose(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "closed.safetensors")
	if err := Write(path, []Tensor{{Name: "w", Shape: []int{1}, Data: []float32{1}}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := f.ReadTensorF32("w"); err == nil {
		t.Fatal("expected error reading closed file")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenInvalidFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	short := filepath.Join(dir, "short")
	if err := os.WriteFile(short, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(short); err == nil {
		t.Fatal("expected error for short file")
	}

	hugeHeader := filepath.Join(dir, "huge")
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1<<40)
	if err := os.WriteFile(hugeHeader, buf[:], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(hugeHeader); err == nil {
		t.Fatal("expected error for oversized header length")
	}

	if _, err := Open(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInvalidDataOffsets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cases := map[string][]int64{
		"beyond":   {0, 64},
		"inverted": {16, 8},
		"single":   {0},
	}
	for name, offsets := range cases {
		path := filepath.Join(dir, name)
		writeRawHeader(t, path, map[string]any{
			"w": tensorHeader{DType: DTypeF32, Shape: []int{2}, DataOffsets: offsets},
		}, 16)
		if _, err := Open(path); err == nil {
			t.Fatalf("%s: expected error for offsets %v", name, offsets)
		}
	}
}

func TestReadTensorUnsupportedDType(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "i8.safetensors")
	writeRawHeader(t, path, map[string]any{
		"w": tensorHeader{DType: "I8", Shape: []int{4}, DataOffsets: []int64{0, 4}},
	}, 4)
	f := openT(t, path)
	if _, _, err := f.ReadTensorF32("w"); err == nil {
		t.Fatal("expected unsupported dtype error")
	}
}

func TestReadTensorSizeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "short.safetensors")
	writeRawHeader(t, path, map[string]any{
		"w": tensorHeader{DType: DTypeF32, Shape: []int{4}, DataOffsets: []int64{0, 8}},
	}, 8)
	f := openT(t, path)
	if _, _, err := f.ReadTensorF32("w"); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape   []int
		want    int
		wantErr bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{5}, 5, false},
		{[]int{2, 3, 4}, 24, false},
		{nil, 0, true},
		{[]int{0, 3}, 0, true},
		{[]int{-1}, 0, true},
	}
	for _, tt := range tests {
		got, err := numElements(tt.shape)
		if (err != nil) != tt.wantErr {
			t.Fatalf("numElements(%v) err = %v, wantErr %v", tt.shape, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("numElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}
