package hiz

import (
	"reflect"
	"testing"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
		want          []Extent
	}{
		{
			name:  "1024x768",
			width: 1024, height: 768,
			want: []Extent{
				{1024, 768}, {512, 384}, {256, 192}, {128, 96}, {64, 48}, {32, 24},
				{16, 12}, {8, 6}, {4, 3}, {2, 1}, {1, 1},
			},
		},
		{
			name:  "8x8",
			width: 8, height: 8,
			want: []Extent{{8, 8}, {4, 4}, {2, 2}, {1, 1}},
		},
		{
			name:  "1x1",
			width: 1, height: 1,
			want: []Extent{{1, 1}},
		},
		{
			name:  "zero treated as one",
			width: 0, height: 0,
			want: []Extent{{1, 1}},
		},
		{
			name:  "odd",
			width: 5, height: 3,
			want: []Extent{{5, 3}, {2, 1}, {1, 1}},
		},
		{
			name:  "tall",
			width: 1, height: 16,
			want: []Extent{{1, 16}, {1, 8}, {1, 4}, {1, 2}, {1, 1}},
		},
		{
			name:  "capped",
			width: 4096, height: 4096,
			want: []Extent{
				{4096, 4096}, {2048, 2048}, {1024, 1024}, {512, 512}, {256, 256}, {128, 128},
				{64, 64}, {32, 32}, {16, 16}, {8, 8}, {4, 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(tt.width, tt.height)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Plan(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestPlanProperties(t *testing.T) {
	sizes := []uint32{1, 2, 3, 7, 8, 31, 64, 100, 257, 640, 1023, 1920, 2160, 8192}
	for _, w := range sizes {
		for _, h := range sizes {
			levels := Plan(w, h)
			if len(levels) != LevelCount(w, h) {
				t.Fatalf("len(Plan(%d, %d)) = %d, want %d", w, h, len(levels), LevelCount(w, h))
			}
			if len(levels) > MaxLevels {
				t.Fatalf("Plan(%d, %d) has %d levels, cap is %d", w, h, len(levels), MaxLevels)
			}
			if levels[0] != (Extent{w, h}) {
				t.Errorf("Plan(%d, %d)[0] = %v", w, h, levels[0])
			}
			for i := 1; i < len(levels); i++ {
				prev, cur := levels[i-1], levels[i]
				if cur != prev.Half() {
					t.Errorf("Plan(%d, %d)[%d] = %v, want %v", w, h, i, cur, prev.Half())
				}
				if prev.IsUnit() {
					t.Errorf("Plan(%d, %d) continues past 1x1 at level %d", w, h, i)
				}
				if cur.Width > prev.Width || cur.Height > prev.Height || cur == prev {
					t.Errorf("Plan(%d, %d) not decreasing at level %d: %v -> %v", w, h, i, prev, cur)
				}
			}
			last := levels[len(levels)-1]
			if len(levels) < MaxLevels && !last.IsUnit() {
				t.Errorf("Plan(%d, %d) stopped at %v before the cap", w, h, last)
			}
		}
	}
}

func TestLevelCount(t *testing.T) {
	tests := []struct {
		width, height uint32
		want          int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{3, 3, 2},
		{8, 8, 4},
		{1024, 768, 11},
		{1023, 768, 10},
		{1 << 20, 1, MaxLevels},
	}
	for _, tt := range tests {
		if got := LevelCount(tt.width, tt.height); got != tt.want {
			t.Errorf("LevelCount(%d, %d) = %d, want %d", tt.width, tt.height, got, tt.want)
		}
	}
}

func TestPlanLevelsClamp(t *testing.T) {
	if got := len(PlanLevels(1024, 1024, 4)); got != 4 {
		t.Errorf("len(PlanLevels(1024, 1024, 4)) = %d, want 4", got)
	}
	if got := len(PlanLevels(1024, 1024, 0)); got != 1 {
		t.Errorf("len(PlanLevels(1024, 1024, 0)) = %d, want 1", got)
	}
	if got := len(PlanLevels(1<<16, 1<<16, 99)); got != MaxLevels {
		t.Errorf("len(PlanLevels(65536, 65536, 99)) = %d, want %d", got, MaxLevels)
	}
}
