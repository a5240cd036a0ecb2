package limit

import (
	"errors"
	"strings"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		requested   int
		wantAllowed int
		wantCapped  bool
	}{
		{name: "under limit", requested: 3, wantAllowed: 3},
		{name: "at limit", requested: 10, wantAllowed: 10},
		{name: "over limit", requested: 20, wantAllowed: 10, wantCapped: true},
		{name: "far over limit", requested: 250, wantAllowed: 10, wantCapped: true},
		{name: "zero", requested: 0, wantAllowed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Apply(tt.requested)
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Apply(%d) allowed = %d, want %d", tt.requested, d.Allowed, tt.wantAllowed)
			}
			if d.Capped != tt.wantCapped {
				t.Errorf("Apply(%d) capped = %v, want %v", tt.requested, d.Capped, tt.wantCapped)
			}
			if !tt.wantCapped && d.Notice != "" {
				t.Errorf("Apply(%d) notice = %q, want empty", tt.requested, d.Notice)
			}
		})
	}
}

func TestApplyNoticeNamesBothCounts(t *testing.T) {
	d := Apply(20)
	if !strings.Contains(d.Notice, "20") {
		t.Errorf("notice %q does not mention the requested count", d.Notice)
	}
	if !strings.Contains(d.Notice, "10") {
		t.Errorf("notice %q does not mention the limit", d.Notice)
	}
}

func TestCheckList(t *testing.T) {
	if err := CheckList(10); err != nil {
		t.Errorf("CheckList(10) = %v, want nil", err)
	}

	err := CheckList(15)
	if err == nil {
		t.Fatal("CheckList(15) = nil, want error")
	}
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("CheckList(15) error type = %T, want *ExceededError", err)
	}
	if exceeded.Requested != 15 || exceeded.Max != MaxSongs {
		t.Errorf("exceeded = %+v, want requested 15 max %d", exceeded, MaxSongs)
	}
}
