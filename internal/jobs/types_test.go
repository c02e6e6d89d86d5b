package jobs

import "testing"

func TestCategorizationJob_Progress(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		categorized int
		want        int
	}{
		{"empty job", 0, 0, 100},
		{"not started", 200, 0, 0},
		{"halfway", 200, 100, 50},
		{"rounding down", 3, 1, 33},
		{"done", 200, 200, 100},
		{"overshoot is capped", 200, 250, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &CategorizationJob{Total: tt.total, Categorized: tt.categorized}
			if got := j.Progress(); got != tt.want {
				t.Errorf("Progress() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCategorizationJob_Remaining(t *testing.T) {
	j := &CategorizationJob{Total: 10, Categorized: 4}
	if got := j.Remaining(); got != 6 {
		t.Errorf("Remaining() = %d, want 6", got)
	}
	j.Categorized = 12
	if got := j.Remaining(); got != 0 {
		t.Errorf("Remaining() after overshoot = %d, want 0", got)
	}
}

func TestCategorizationJob_IsActive(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, true},
		{JobStatusInProgress, true},
		{JobStatusCompleted, false},
		{JobStatusFailed, false},
	}
	for _, tt := range tests {
		j := &CategorizationJob{Status: tt.status}
		if got := j.IsActive(); got != tt.want {
			t.Errorf("IsActive() with %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCategorizationJob_View(t *testing.T) {
	j := &CategorizationJob{
		JobID:       "j1",
		Total:       50,
		Categorized: 25,
		Status:      JobStatusInProgress,
	}
	v := j.View()
	if v.JobID != "j1" || v.Total != 50 || v.Categorized != 25 {
		t.Errorf("view fields wrong: %+v", v)
	}
	if v.Progress != 50 || v.Remaining != 25 || !v.IsActive {
		t.Errorf("derived fields wrong: %+v", v)
	}
}
