package admission

import "testing"

func TestComputeWorkers_ExplicitInteger(t *testing.T) {
	got := ComputeWorkers("6", 4, nil, nil)
	if got != 6 {
		t.Errorf("explicit value = %d, want 6", got)
	}
}

func TestComputeWorkers_Auto(t *testing.T) {
	cpus := func() (int, error) { return 12, nil }      // floor(12*2/3) = 8
	memory := func() (float64, error) { return 8, nil } // floor(8/2) = 4

	tests := []struct {
		name    string
		ceiling int
		want    int
	}{
		{"memory bound", 16, 4},
		{"ceiling bound", 2, 2},
		{"ceiling above", 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeWorkers("auto", tt.ceiling, cpus, memory); got != tt.want {
				t.Errorf("ComputeWorkers = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeWorkers_CPUBound(t *testing.T) {
	cpus := func() (int, error) { return 4, nil }        // floor(4*2/3) = 2
	memory := func() (float64, error) { return 64, nil } // floor(64/2) = 32

	if got := ComputeWorkers("auto", 8, cpus, memory); got != 2 {
		t.Errorf("ComputeWorkers = %d, want 2 (cpu bound)", got)
	}
}

func TestComputeWorkers_ClampsToOne(t *testing.T) {
	cpus := func() (int, error) { return 1, nil }       // floor(2/3) = 0
	memory := func() (float64, error) { return 1, nil } // floor(0.5) = 0

	if got := ComputeWorkers("auto", 4, cpus, memory); got != 1 {
		t.Errorf("ComputeWorkers = %d, want clamp to 1", got)
	}
}

func TestComputeWorkers_InvalidStringFallsBackToAuto(t *testing.T) {
	cpus := func() (int, error) { return 6, nil }       // floor(6*2/3) = 4
	memory := func() (float64, error) { return 16, nil } // floor(16/2) = 8

	if got := ComputeWorkers("lots", 8, cpus, memory); got != 4 {
		t.Errorf("ComputeWorkers = %d, want 4", got)
	}
}
