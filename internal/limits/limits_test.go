package limits_test

import (
	"errors"
	"testing"
	"time"

	"github.com/pollyconnect/polly/internal/clock"
	"github.com/pollyconnect/polly/internal/config"
	"github.com/pollyconnect/polly/internal/limits"
)

func newLedger(cooldownMinutes int) (*limits.Ledger, *clock.Fake) {
	clk := &clock.Fake{Current: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	cfg := config.LimitsConfig{CooldownBetweenSessionsMinutes: cooldownMinutes}
	return limits.NewLedger(cfg, clk), clk
}

func TestCanStartFreshResident(t *testing.T) {
	t.Parallel()
	ledger, _ := newLedger(60)
	if err := ledger.CanStart("rose"); err != nil {
		t.Fatalf("CanStart for unseen resident: %v", err)
	}
	if got := ledger.Remaining("rose"); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

func TestCooldownBlocksUntilElapsed(t *testing.T) {
	t.Parallel()
	ledger, clk := newLedger(60)
	ledger.RecordSessionEnd("rose")

	err := ledger.CanStart("rose")
	if !errors.Is(err, limits.ErrCooldownActive) {
		t.Fatalf("CanStart right after end = %v, want ErrCooldownActive", err)
	}
	if got := ledger.Remaining("rose"); got != time.Hour {
		t.Errorf("Remaining = %v, want 1h", got)
	}

	clk.Advance(45 * time.Minute)
	if got := ledger.Remaining("rose"); got != 15*time.Minute {
		t.Errorf("Remaining after 45m = %v, want 15m", got)
	}
	if err := ledger.CanStart("rose"); !errors.Is(err, limits.ErrCooldownActive) {
		t.Fatalf("CanStart mid-cooldown = %v, want ErrCooldownActive", err)
	}

	clk.Advance(15 * time.Minute)
	if err := ledger.CanStart("rose"); err != nil {
		t.Fatalf("CanStart once cooldown elapsed: %v", err)
	}
}

func TestCooldownIsPerResident(t *testing.T) {
	t.Parallel()
	ledger, _ := newLedger(60)
	ledger.RecordSessionEnd("rose")

	if err := ledger.CanStart("albert"); err != nil {
		t.Fatalf("other resident blocked by rose's cooldown: %v", err)
	}
}

func TestRecordSessionEndRestartsWindow(t *testing.T) {
	t.Parallel()
	ledger, clk := newLedger(60)
	ledger.RecordSessionEnd("rose")
	clk.Advance(50 * time.Minute)
	ledger.RecordSessionEnd("rose")

	if got := ledger.Remaining("rose"); got != time.Hour {
		t.Errorf("Remaining after second end = %v, want 1h", got)
	}
}

func TestZeroCooldownNeverBlocks(t *testing.T) {
	t.Parallel()
	ledger, _ := newLedger(0)
	ledger.RecordSessionEnd("rose")
	if err := ledger.CanStart("rose"); err != nil {
		t.Fatalf("CanStart with zero cooldown: %v", err)
	}
}
