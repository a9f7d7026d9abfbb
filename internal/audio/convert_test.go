package audio

import (
	"errors"
	"math"
	"testing"
)

func TestMixdown(t *testing.T) {
	got := Mixdown([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Mixdown()[%d] = %f, want %f", i, got[i], want[i])
		}
	}

	mono := []float32{0.1, 0.2}
	if out := Mixdown(mono, 1); &out[0] != &mono[0] {
		t.Error("Mixdown() of mono input should return it unchanged")
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name      string
		in        int
		from, to  int
		wantCount int
	}{
		{"same rate", 160, 16000, 16000, 160},
		{"downsample 48k", 48000, 48000, 16000, 16000},
		{"upsample 8k", 8000, 8000, 16000, 16000},
		{"44.1k", 44100, 44100, 16000, 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resample(make([]float32, tt.in), tt.from, tt.to)
			if len(got) != tt.wantCount {
				t.Errorf("len(Resample()) = %d, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	got := Resample([]float32{0, 1}, 1, 2)
	want := []float32{0, 0.5, 1, 1}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("Resample()[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestIntsToFloat32(t *testing.T) {
	got := intsToFloat32([]int{-32768, 0, 16384}, 16)
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("16-bit [%d] = %f, want %f", i, got[i], want[i])
		}
	}

	got = intsToFloat32([]int{0, 128, 192}, 8)
	want = []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("8-bit [%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestChunkerEmitsFixedChunks(t *testing.T) {
	c := newChunker(16000, 1, 4)
	var chunks [][]float32
	collect := func(chunk []float32) error {
		chunks = append(chunks, chunk)
		return nil
	}

	_ = c.push([]float32{1, 2, 3}, collect)
	if len(chunks) != 0 {
		t.Fatalf("chunks = %d after 3 samples, want 0", len(chunks))
	}
	_ = c.push([]float32{4, 5, 6, 7, 8, 9}, collect)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[1][0] != 5 || chunks[1][3] != 8 {
		t.Errorf("second chunk = %v, want [5 6 7 8]", chunks[1])
	}
	if len(c.pending) != 1 {
		t.Errorf("pending = %v, want one sample", c.pending)
	}
}

func TestChunkerStopsOnError(t *testing.T) {
	c := newChunker(16000, 1, 2)
	boom := errors.New("boom")
	calls := 0
	err := c.push([]float32{1, 2, 3, 4, 5, 6}, func([]float32) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("push() error = %v, calls = %d", err, calls)
	}
}
