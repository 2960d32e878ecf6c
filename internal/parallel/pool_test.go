package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolCreate(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{4, 4},
		{1, 1},
		{0, runtime.GOMAXPROCS(0)},
		{-5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		p := NewWorkerPool(tt.workers)
		if got := p.Workers(); got != tt.want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", tt.workers, got, tt.want)
		}
		if !p.IsRunning() {
			t.Errorf("NewWorkerPool(%d).IsRunning() = false", tt.workers)
		}
		p.Close()
	}
}

func TestWorkerPoolExecuteAll(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var n atomic.Int64
	work := make([]func(), 1000)
	for i := range work {
		work[i] = func() { n.Add(1) }
	}
	p.ExecuteAll(work)
	if got := n.Load(); got != 1000 {
		t.Errorf("ExecuteAll ran %d items, want 1000", got)
	}
}

func TestWorkerPoolAfterClose(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()
	p.Close()
	if p.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
	ran := 0
	p.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ExecuteAll after Close ran %d items, want 2", ran)
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		height, n int
		want      []Band
	}{
		{0, 4, nil},
		{1, 4, []Band{{0, 1}}},
		{10, 3, []Band{{0, 4}, {4, 7}, {7, 10}}},
		{8, 0, []Band{{0, 8}}},
	}
	for _, tt := range tests {
		got := Bands(tt.height, tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Bands(%d, %d) = %v, want %v", tt.height, tt.n, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Bands(%d, %d) = %v, want %v", tt.height, tt.n, got, tt.want)
				break
			}
		}
	}
}

func TestRowsCoversEveryRowOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 8} {
		var p *WorkerPool
		if workers > 0 {
			p = NewWorkerPool(workers)
		}
		const height = 37
		var hits [height]atomic.Int32
		Rows(p, height, func(b Band) {
			for y := b.Y0; y < b.Y1; y++ {
				hits[y].Add(1)
			}
		})
		for y := range hits {
			if got := hits[y].Load(); got != 1 {
				t.Errorf("workers=%d: row %d visited %d times, want 1", workers, y, got)
			}
		}
		if p != nil {
			p.Close()
		}
	}
}
