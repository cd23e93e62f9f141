package main

import (
	"reflect"
	"testing"
)

func TestRing_PushEvictsOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	if got, want := r.Values(), []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("values = %v, want %v", got, want)
	}
	if last, ok := r.Last(); !ok || last != 5 {
		t.Fatalf("Last() = %d,%v, want 5,true", last, ok)
	}
}

func TestRing_PartialFillKeepsOrder(t *testing.T) {
	r := newRing[string](4)
	r.Push("a")
	r.Push("b")

	if got, want := r.Values(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("values = %v, want %v", got, want)
	}
	if r.Cap() != 4 {
		t.Fatalf("expected cap=4, got %d", r.Cap())
	}
}

func TestRing_ClearKeepsCapacity(t *testing.T) {
	r := newRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Clear()

	if r.Len() != 0 || r.Cap() != 2 {
		t.Fatalf("after Clear: len=%d cap=%d", r.Len(), r.Cap())
	}
	if _, ok := r.Last(); ok {
		t.Fatalf("expected Last() to fail on an empty ring")
	}

	r.Push(7)
	if got := r.Values(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("values after refill = %v", got)
	}
}

func TestRing_CloneIsIndependent(t *testing.T) {
	r := newRing[int](2)
	r.Push(1)
	c := r.Clone()

	r.Push(2)
	r.Push(3)

	if got := c.Values(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("clone changed with original: %v", got)
	}
}

func TestRing_NonPositiveCapacity(t *testing.T) {
	r := newRing[int](0)
	r.Push(1)
	r.Push(2)
	if got := r.Values(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("values = %v, want [2]", got)
	}
}

func TestRing_ValuesReturnsCopy(t *testing.T) {
	r := newRing[int](2)
	r.Push(1)
	v := r.Values()
	v[0] = 99
	if last, _ := r.Last(); last != 1 {
		t.Fatalf("Values() aliased the ring buffer")
	}
}
