package memory_test

import (
	"math"
	"testing"

	"github.com/MrWong99/aemassist/pkg/memory"
)

func TestCosineDistance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"length mismatch", []float32{1}, []float32{1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
		{"empty", nil, nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := memory.CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkFilter_Matches(t *testing.T) {
	t.Parallel()
	c := memory.Chunk{Source: "https://example.com/a", DocType: "sites"}
	if !(memory.ChunkFilter{}).Matches(c) {
		t.Error("zero filter should match everything")
	}
	if !(memory.ChunkFilter{DocType: "sites"}).Matches(c) {
		t.Error("doc type filter should match")
	}
	if (memory.ChunkFilter{Source: "other"}).Matches(c) {
		t.Error("source filter should not match")
	}
}
