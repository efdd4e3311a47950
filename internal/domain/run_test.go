package domain

import "testing"

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from RunStatus
		to   RunStatus
		want bool
	}{
		{RunStatusPending, RunStatusRunning, true},
		{RunStatusPending, RunStatusQueued, true},
		{RunStatusQueued, RunStatusRunning, true},
		{RunStatusQueued, RunStatusCancelled, true},
		{RunStatusQueued, RunStatusCompleted, false},
		{RunStatusRunning, RunStatusCompleted, true},
		{RunStatusRunning, RunStatusError, true},
		{RunStatusRunning, RunStatusCancelled, true},
		{RunStatusRunning, RunStatusQueued, false},
		{RunStatusCompleted, RunStatusRunning, false},
		{RunStatusError, RunStatusCompleted, false},
		{RunStatusCancelled, RunStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	terminal := map[RunStatus]bool{
		RunStatusPending:   false,
		RunStatusQueued:    false,
		RunStatusRunning:   false,
		RunStatusCompleted: true,
		RunStatusError:     true,
		RunStatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTimeframeSeconds(t *testing.T) {
	if s, ok := TimeframeSeconds("1h"); !ok || s != 3600 {
		t.Errorf("1h: got (%d, %v), want (3600, true)", s, ok)
	}
	if s, ok := TimeframeSeconds("5m"); !ok || s != 300 {
		t.Errorf("5m: got (%d, %v), want (300, true)", s, ok)
	}
	if _, ok := TimeframeSeconds("7m"); ok {
		t.Error("expected unknown timeframe to return false")
	}
}
