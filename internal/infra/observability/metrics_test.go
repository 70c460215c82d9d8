package observability_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/boddenberg/cashy-bfa-go/internal/infra/observability"
)

func TestMetrics_CounterValue(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrUnclassified("crypto")
	m.IncrUnclassified("crypto")
	m.IncrInstitutionFailure()
	m.IncrDashboard("partial")

	if got := m.CounterValue("unclassified", "crypto"); got != 2 {
		t.Errorf("expected 2 unclassified, got %v", got)
	}
	if got := m.CounterValue("institution_failures"); got != 1 {
		t.Errorf("expected 1 institution failure, got %v", got)
	}
	if got := m.CounterValue("dashboards", "partial"); got != 1 {
		t.Errorf("expected 1 partial dashboard, got %v", got)
	}
	if got := m.CounterValue("dashboards", "complete"); got != 0 {
		t.Errorf("expected 0 complete dashboards, got %v", got)
	}
	if got := m.CounterValue("nope"); got != 0 {
		t.Errorf("expected 0 for unknown metric, got %v", got)
	}
}

func TestNewMetrics_Twice(t *testing.T) {
	// private registries: constructing twice must not panic
	observability.NewMetrics()
	observability.NewMetrics()
}

func TestIncrUnclassified_BoundsTypeLabel(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrUnclassified(" Crypto ")
	m.IncrUnclassified("crypto")
	m.IncrUnclassified("")
	m.IncrUnclassified("has spaces inside")
	m.IncrUnclassified("ünicode")
	m.IncrUnclassified(strings.Repeat("x", 33))

	if got := m.CounterValue("unclassified", "crypto"); got != 2 {
		t.Errorf("expected folded crypto count 2, got %v", got)
	}
	if got := m.CounterValue("unclassified", "invalid"); got != 4 {
		t.Errorf("expected 4 invalid, got %v", got)
	}
	if got := m.CounterValue("unclassified", "has spaces inside"); got != 0 {
		t.Errorf("expected raw label never used, got %v", got)
	}
}

func TestIncrUnclassified_CapsDistinctLabels(t *testing.T) {
	m := observability.NewMetrics()

	// "crypto" plus 19 more fills the label set.
	m.IncrUnclassified("crypto")
	for i := 0; i < 19; i++ {
		m.IncrUnclassified(fmt.Sprintf("type-%d", i))
	}
	for i := 0; i < 100; i++ {
		m.IncrUnclassified(fmt.Sprintf("random-%d", i))
	}
	m.IncrUnclassified("crypto")

	if got := m.CounterValue("unclassified", "overflow"); got != 100 {
		t.Errorf("expected 100 overflow, got %v", got)
	}
	if got := m.CounterValue("unclassified", "crypto"); got != 2 {
		t.Errorf("expected known label still counted, got %v", got)
	}
	if got := m.CounterValue("unclassified", "random-0"); got != 0 {
		t.Errorf("expected no series for random-0, got %v", got)
	}
}
