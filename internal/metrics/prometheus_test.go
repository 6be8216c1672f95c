package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAward(t *testing.T) {
	// Reset the counter before test
	XPAwardsTotal.Reset()

	RecordAward("lesson", "accepted")
	RecordAward("lesson", "accepted")
	RecordAward("lesson", "duplicate")

	count := testutil.ToFloat64(XPAwardsTotal.WithLabelValues("lesson", "accepted"))
	if count != 2 {
		t.Errorf("Expected lesson accepted count = 2, got %f", count)
	}

	count = testutil.ToFloat64(XPAwardsTotal.WithLabelValues("lesson", "duplicate"))
	if count != 1 {
		t.Errorf("Expected lesson duplicate count = 1, got %f", count)
	}
}

func TestAddCreditedXP(t *testing.T) {
	XPCreditedTotal.Reset()

	AddCreditedXP("quiz", 15)
	AddCreditedXP("quiz", 35)

	total := testutil.ToFloat64(XPCreditedTotal.WithLabelValues("quiz"))
	if total != 50 {
		t.Errorf("Expected 50 credited XP, got %f", total)
	}
}

func TestRecordLeaderboardRequest(t *testing.T) {
	LeaderboardRequestsTotal.Reset()

	RecordLeaderboardRequest("BRANCH", "WEEKLY", "miss")
	RecordLeaderboardRequest("BRANCH", "WEEKLY", "hit")
	RecordLeaderboardRequest("BRANCH", "WEEKLY", "hit")

	hits := testutil.ToFloat64(LeaderboardRequestsTotal.WithLabelValues("BRANCH", "WEEKLY", "hit"))
	if hits != 2 {
		t.Errorf("Expected 2 cache hits, got %f", hits)
	}
}

func TestSetSnapshotAge(t *testing.T) {
	LeaderboardSnapshotAgeSeconds.Reset()

	SetSnapshotAge("INDIVIDUAL", "DAILY", 42)

	age := testutil.ToFloat64(LeaderboardSnapshotAgeSeconds.WithLabelValues("INDIVIDUAL", "DAILY"))
	if age != 42 {
		t.Errorf("Expected snapshot age 42, got %f", age)
	}
}

func TestObserveComputeDuration(t *testing.T) {
	LeaderboardComputeDurationSeconds.Reset()

	ObserveComputeDuration("AREA", "MONTHLY", 0.25)
	ObserveComputeDuration("AREA", "MONTHLY", 0.5)

	if n := testutil.CollectAndCount(LeaderboardComputeDurationSeconds); n != 1 {
		t.Errorf("Expected 1 histogram series, got %d", n)
	}
}
