package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/gogpu/shaderdbg/internal/raster"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if got := counter.Load(); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("closed pool ran %d items inline, want 2", ran)
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		name  string
		r     raster.Rect
		n     int
		count int
	}{
		{"single block", raster.Rect{X0: 0, Y0: 0, X1: 3, Y1: 3}, 4, 1},
		{"four blocks tall", raster.Rect{X0: 0, Y0: 0, X1: 31, Y1: 31}, 4, 4},
		{"more workers than rows", raster.Rect{X0: 2, Y0: 5, X1: 9, Y1: 20}, 8, 3},
		{"uneven", raster.Rect{X0: 0, Y0: 3, X1: 10, Y1: 60}, 3, 3},
		{"empty", raster.Rect{X0: 5, Y0: 5, X1: 4, Y1: 9}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bands := Bands(tt.r, 8, tt.n)
			if len(bands) != tt.count {
				t.Fatalf("len(Bands()) = %d, want %d (%v)", len(bands), tt.count, bands)
			}
			// Bands must tile the rectangle exactly, block aligned.
			next := tt.r.Y0
			for i, b := range bands {
				if b.Y0 != next || b.X0 != tt.r.X0 || b.X1 != tt.r.X1 {
					t.Errorf("band %d = %+v, want to start at row %d", i, b, next)
				}
				if i > 0 && b.Y0%8 != 0 {
					t.Errorf("band %d starts at %d, not block aligned", i, b.Y0)
				}
				next = b.Y1 + 1
			}
			if tt.count > 0 && next != tt.r.Y1+1 {
				t.Errorf("bands end at %d, want %d", next-1, tt.r.Y1)
			}
		})
	}
}
