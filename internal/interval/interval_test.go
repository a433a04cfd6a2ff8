package interval

import (
	"testing"
	"time"
)

var day = time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func rng(sh, sm, eh, em int) Range {
	return Range{Start: at(sh, sm), End: at(eh, em)}
}

func equalRanges(t *testing.T, got, want []Range) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d ranges, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("range %d: got %v-%v, want %v-%v",
				i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestNewRejectsDegenerate(t *testing.T) {
	if _, err := New(at(10, 0), at(10, 0)); err == nil {
		t.Error("zero-length range accepted")
	}
	if _, err := New(at(11, 0), at(10, 0)); err == nil {
		t.Error("negative range accepted")
	}
	if _, err := New(at(10, 0), at(11, 0)); err != nil {
		t.Errorf("valid range rejected: %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want bool
	}{
		{"disjoint", rng(9, 0, 10, 0), rng(11, 0, 12, 0), false},
		{"touching endpoints", rng(9, 0, 10, 0), rng(10, 0, 11, 0), false},
		{"partial overlap", rng(9, 0, 10, 30), rng(10, 0, 11, 0), true},
		{"contained", rng(9, 0, 17, 0), rng(10, 0, 11, 0), true},
		{"identical", rng(9, 0, 10, 0), rng(9, 0, 10, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps() not symmetric: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Range{
		rng(13, 0, 14, 0),
		rng(9, 0, 10, 0),
		rng(9, 30, 11, 0),
		rng(11, 0, 12, 0), // touches previous, coalesced
	})
	equalRanges(t, got, []Range{rng(9, 0, 12, 0), rng(13, 0, 14, 0)})
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil); got != nil {
		t.Errorf("Merge(nil) = %v, want nil", got)
	}
}

func TestSubtractEmptyBusyReturnsUniverse(t *testing.T) {
	universe := rng(9, 0, 17, 0)
	equalRanges(t, Subtract(universe, nil), []Range{universe})
}

func TestSubtractFullyBusy(t *testing.T) {
	universe := rng(9, 0, 17, 0)
	busy := []Range{rng(9, 0, 12, 0), rng(12, 0, 17, 0)}
	if got := Subtract(universe, busy); len(got) != 0 {
		t.Errorf("fully busy universe returned %v, want empty", got)
	}
}

func TestSubtractOverlappingBusy(t *testing.T) {
	universe := rng(9, 0, 17, 0)
	busy := []Range{
		rng(10, 0, 11, 30),
		rng(11, 0, 12, 0), // overlaps previous
		rng(8, 0, 9, 30),  // spills over universe start
	}
	equalRanges(t, Subtract(universe, busy), []Range{
		rng(9, 30, 10, 0),
		rng(12, 0, 17, 0),
	})
}

func TestSubtractBusyOutsideUniverse(t *testing.T) {
	universe := rng(9, 0, 17, 0)
	busy := []Range{rng(7, 0, 8, 0), rng(18, 0, 19, 0)}
	equalRanges(t, Subtract(universe, busy), []Range{universe})
}

func TestIntersect(t *testing.T) {
	a := []Range{rng(9, 0, 11, 0), rng(13, 0, 15, 0)}
	b := []Range{rng(10, 0, 14, 0)}
	want := []Range{rng(10, 0, 11, 0), rng(13, 0, 14, 0)}
	equalRanges(t, Intersect(a, b), want)
}

func TestIntersectCommutative(t *testing.T) {
	a := []Range{rng(9, 0, 10, 30), rng(11, 0, 12, 0), rng(14, 0, 17, 0)}
	b := []Range{rng(8, 0, 9, 15), rng(10, 0, 11, 30), rng(16, 0, 18, 0)}
	equalRanges(t, Intersect(a, b), Intersect(b, a))
}

func TestIntersectTouchingProducesNothing(t *testing.T) {
	a := []Range{rng(9, 0, 10, 0)}
	b := []Range{rng(10, 0, 11, 0)}
	if got := Intersect(a, b); len(got) != 0 {
		t.Errorf("touching ranges intersected to %v, want empty", got)
	}
}

func TestContains(t *testing.T) {
	r := rng(9, 0, 10, 0)
	if !r.Contains(at(9, 0)) {
		t.Error("start instant should be contained")
	}
	if r.Contains(at(10, 0)) {
		t.Error("end instant should not be contained")
	}
}

func TestCovers(t *testing.T) {
	tests := []struct {
		name string
		r, o Range
		want bool
	}{
		{"identical", rng(9, 0, 17, 0), rng(9, 0, 17, 0), true},
		{"strictly inside", rng(9, 0, 17, 0), rng(10, 0, 11, 0), true},
		{"shared start", rng(9, 0, 17, 0), rng(9, 0, 12, 0), true},
		{"starts earlier", rng(9, 0, 17, 0), rng(8, 0, 12, 0), false},
		{"ends later", rng(9, 0, 17, 0), rng(16, 0, 18, 0), false},
		{"disjoint", rng(9, 0, 17, 0), rng(18, 0, 19, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Covers(tt.o); got != tt.want {
				t.Errorf("Covers() = %v, want %v", got, tt.want)
			}
		})
	}
}
