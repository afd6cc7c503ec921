package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 31.19134, Lon: 121.44579},
			p2:   Point{Lat: 31.19134, Lon: 121.44579},
			want: 0,
		},
		{
			name: "Xujiahui to People's Square",
			p1:   Point{Lat: 31.19134, Lon: 121.44579},
			p2:   Point{Lat: 31.23280, Lon: 121.47530},
			want: 5390, // Approx 5.4km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 1},
			want: 111319, // Approx 111km
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			margin := tt.want * 0.02
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
			if tt.want == 0 && got != 0 {
				t.Errorf("Distance() = %v, want 0", got)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{"North", Point{0, 0}, Point{1, 0}, 0},
		{"East", Point{0, 0}, Point{0, 1}, 90},
		{"South", Point{1, 0}, Point{0, 0}, 180},
		{"West", Point{0, 1}, Point{0, 0}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bearing(tt.p1, tt.p2); math.Abs(got-tt.want) > 0.01 {
				t.Errorf("Bearing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"Shanghai", Point{31.0, 121.0}, true},
		{"Pole", Point{90, 180}, true},
		{"Lat Out Of Range", Point{91, 0}, false},
		{"Lon Out Of Range", Point{0, -181}, false},
		{"NaN", Point{math.NaN(), 0}, false},
		{"Inf", Point{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	got := Point{Lat: 31.0, Lon: 121.0}.Offset(0.02, 0.02)
	if math.Abs(got.Lat-31.02) > 1e-9 || math.Abs(got.Lon-121.02) > 1e-9 {
		t.Errorf("Offset() = %+v", got)
	}
}
