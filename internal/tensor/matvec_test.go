package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func closeEnough(a, b float32, rel float64) bool {
	da := float64(a)
	db := float64(b)
	diff := math.Abs(da - db)
	scale := math.Max(1.0, math.Max(math.Abs(da), math.Abs(db)))
	return diff <= rel*scale
}

func TestMatVecMatchesNaive(t *testing.T) {
	for _, dims := range [][2]int{{3, 5}, {17, 9}, {300, 257}} {
		r, c := dims[0], dims[1]
		w := NewMat(r, c)
		FillRand(&w, int64(r*c))
		x := make([]float32, c)
		rng := rand.New(rand.NewSource(9))
		for i := range x {
			x[i] = rng.Float32() - 0.5
		}
		want := make([]float32, r)
		got := make([]float32, r)
		matVecNaive(want, &w, x)
		MatVec(got, &w, x)
		for i := range want {
			if !closeEnough(got[i], want[i], 1e-5) {
				t.Fatalf("%dx%d mismatch at %d: got %g want %g", r, c, i, got[i], want[i])
			}
		}
	}
}

func TestMatVecAddAppliesBias(t *testing.T) {
	w, err := NewMatFromData(2, 2, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewMatFromData: %v", err)
	}
	dst := make([]float32, 2)
	MatVecAdd(dst, &w, []float32{1, 1}, []float32{10, 20})
	if dst[0] != 13 || dst[1] != 27 {
		t.Fatalf("unexpected result: %v", dst)
	}
}

func TestTranspose(t *testing.T) {
	m, err := NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewMatFromData: %v", err)
	}
	tr := Transpose(&m)
	if tr.R != 3 || tr.C != 2 {
		t.Fatalf("unexpected shape %dx%d", tr.R, tr.C)
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if tr.Data[i] != want[i] {
			t.Fatalf("transpose mismatch at %d: got %g want %g", i, tr.Data[i], want[i])
		}
	}
}

func TestNewMatFromDataRejectsMismatch(t *testing.T) {
	if _, err := NewMatFromData(2, 3, make([]float32, 5)); err == nil {
		t.Fatal("expected error for short data")
	}
}

func TestActivations(t *testing.T) {
	if got := Sigmoid(0); got != 0.5 {
		t.Fatalf("Sigmoid(0) = %g", got)
	}
	if got := Tanh(0); got != 0 {
		t.Fatalf("Tanh(0) = %g", got)
	}
	if !closeEnough(Sigmoid(2)+Sigmoid(-2), 1, 1e-6) {
		t.Fatal("Sigmoid is not symmetric around 0.5")
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float32{0, -1, 3.5}) {
		t.Fatal("finite slice reported as non-finite")
	}
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if AllFinite([]float32{1, float32(v)}) {
			t.Fatalf("%v not detected", v)
		}
	}
}

func TestMatVecNoAllocsSmall(t *testing.T) {
	w := NewMat(8, 8)
	FillRand(&w, 3)
	x := make([]float32, 8)
	dst := make([]float32, 8)
	allocs := testing.AllocsPerRun(100, func() {
		MatVec(dst, &w, x)
	})
	if allocs != 0 {
		t.Fatalf("expected 0 allocations, got %v", allocs)
	}
}

func BenchmarkMatVecPool(b *testing.B) {
	r, c := 1024, 1024
	w := NewMat(r, c)
	x := make([]float32, c)
	dst := make([]float32, r)
	FillRand(&w, 1)

	for b.Loop() {
		MatVec(dst, &w, x)
	}
}
