package util

import (
	"slices"
	"testing"
)

func TestRingBufferNewestFirst(t *testing.T) {
	r := NewRingBuffer[int](3)
	for i := 1; i <= 3; i++ {
		if r.Push(i) {
			t.Fatalf("Push(%d) evicted before full", i)
		}
	}
	if !r.Push(4) {
		t.Fatal("Push(4) did not evict")
	}
	if got, want := r.Newest(), []int{4, 3, 2}; !slices.Equal(got, want) {
		t.Errorf("Newest = %v, want %v", got, want)
	}
	r.Reset()
	if r.Len() != 0 || len(r.Newest()) != 0 {
		t.Errorf("Reset left %d items", r.Len())
	}
}
