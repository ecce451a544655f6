package geometry

import "testing"

func TestNewBox3NormalizesCorners(t *testing.T) {
	box := NewBox3(
		Position3D{X: 5, Y: 1, Z: 9},
		Position3D{X: 2, Y: 4, Z: 3},
	)

	want := Box3{
		Min: Position3D{X: 2, Y: 1, Z: 3},
		Max: Position3D{X: 5, Y: 4, Z: 9},
	}
	if box != want {
		t.Errorf("NewBox3 = %+v, want %+v", box, want)
	}
}

func TestContainsPoint(t *testing.T) {
	box := NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10})

	tests := []struct {
		name string
		p    Position3D
		want bool
	}{
		{"center", Position3D{X: 5, Y: 5, Z: 5}, true},
		{"on min corner", Position3D{X: 0, Y: 0, Z: 0}, true},
		{"on max corner", Position3D{X: 10, Y: 10, Z: 10}, true},
		{"on face", Position3D{X: 10, Y: 5, Z: 5}, true},
		{"outside x", Position3D{X: 10.001, Y: 5, Z: 5}, false},
		{"outside negative", Position3D{X: -1, Y: 5, Z: 5}, false},
		{"outside z only", Position3D{X: 5, Y: 5, Z: 11}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := box.ContainsPoint(tt.p); got != tt.want {
				t.Errorf("ContainsPoint(%+v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestSegmentIntersectsBox(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 Position3D
		box    Box3
		want   bool
	}{
		{
			name: "segment fully inside",
			p1:   Position3D{X: 2, Y: 2, Z: 2},
			p2:   Position3D{X: 3, Y: 3, Z: 3},
			box:  NewBox3(Position3D{X: 1, Y: 1, Z: 1}, Position3D{X: 5, Y: 5, Z: 5}),
			want: true,
		},
		{
			name: "segment fully outside",
			p1:   Position3D{X: 0, Y: 0, Z: 0},
			p2:   Position3D{X: 1, Y: 1, Z: 1},
			box:  NewBox3(Position3D{X: 5, Y: 5, Z: 5}, Position3D{X: 10, Y: 10, Z: 10}),
			want: false,
		},
		{
			name: "segment crossing in from outside",
			p1:   Position3D{X: 0, Y: 0, Z: 0},
			p2:   Position3D{X: 3, Y: 3, Z: 3},
			box:  NewBox3(Position3D{X: 2, Y: 2, Z: 2}, Position3D{X: 5, Y: 5, Z: 5}),
			want: true,
		},
		{
			name: "segment tunneling straight through",
			p1:   Position3D{X: -10, Y: 5, Z: 5},
			p2:   Position3D{X: 20, Y: 5, Z: 5},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10}),
			want: true,
		},
		{
			name: "fast segment through thin box",
			p1:   Position3D{X: -100, Y: 1, Z: 1},
			p2:   Position3D{X: 100, Y: 1, Z: 1},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 0.1, Y: 2, Z: 2}),
			want: true,
		},
		{
			name: "endpoint exactly on face",
			p1:   Position3D{X: -5, Y: 5, Z: 5},
			p2:   Position3D{X: 0, Y: 5, Z: 5},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10}),
			want: true,
		},
		{
			name: "stops just short of face",
			p1:   Position3D{X: -5, Y: 5, Z: 5},
			p2:   Position3D{X: -0.001, Y: 5, Z: 5},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10}),
			want: false,
		},
		{
			name: "flat on y outside the slab",
			p1:   Position3D{X: -5, Y: 20, Z: 5},
			p2:   Position3D{X: 15, Y: 20, Z: 5},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10}),
			want: false,
		},
		{
			name: "flat on y inside the slab",
			p1:   Position3D{X: -5, Y: 5, Z: 5},
			p2:   Position3D{X: 15, Y: 5, Z: 5},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10}),
			want: true,
		},
		{
			name: "diagonal miss past corner",
			p1:   Position3D{X: 11, Y: -1, Z: 5},
			p2:   Position3D{X: 21, Y: 9, Z: 5},
			box:  NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10}),
			want: false,
		},
		{
			name: "enters and exits within the step",
			p1:   Position3D{X: -1, Y: -1, Z: -1},
			p2:   Position3D{X: 11, Y: 11, Z: 11},
			box:  NewBox3(Position3D{X: 4, Y: 4, Z: 4}, Position3D{X: 6, Y: 6, Z: 6}),
			want: true,
		},
		{
			name: "inverted corners still detect",
			p1:   Position3D{X: 0, Y: 0, Z: 0},
			p2:   Position3D{X: 3, Y: 3, Z: 3},
			box:  NewBox3(Position3D{X: 5, Y: 5, Z: 5}, Position3D{X: 2, Y: 2, Z: 2}),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentIntersectsBox(tt.p1, tt.p2, tt.box); got != tt.want {
				t.Errorf("SegmentIntersectsBox(%+v, %+v, %+v) = %v, want %v",
					tt.p1, tt.p2, tt.box, got, tt.want)
			}
		})
	}
}

func TestSegmentIntersectsBoxDegenerate(t *testing.T) {
	box := NewBox3(Position3D{X: 0, Y: 0, Z: 0}, Position3D{X: 10, Y: 10, Z: 10})

	points := []struct {
		name string
		p    Position3D
	}{
		{"inside", Position3D{X: 5, Y: 5, Z: 5}},
		{"on corner", Position3D{X: 0, Y: 0, Z: 0}},
		{"on face", Position3D{X: 5, Y: 10, Z: 5}},
		{"outside", Position3D{X: 15, Y: 5, Z: 5}},
		{"just outside", Position3D{X: 10.0001, Y: 5, Z: 5}},
	}
	for _, tt := range points {
		t.Run(tt.name, func(t *testing.T) {
			want := box.ContainsPoint(tt.p)
			if got := SegmentIntersectsBox(tt.p, tt.p, box); got != want {
				t.Errorf("degenerate segment at %+v = %v, want point-in-box result %v", tt.p, got, want)
			}
		})
	}
}

func TestCenter(t *testing.T) {
	box := NewBox3(Position3D{X: 0, Y: 2, Z: 4}, Position3D{X: 10, Y: 6, Z: 8})
	want := Position3D{X: 5, Y: 4, Z: 6}
	if got := box.Center(); got != want {
		t.Errorf("Center() = %+v, want %+v", got, want)
	}
}
