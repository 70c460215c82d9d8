package domain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

func TestTotals_MarshalAsNumbers(t *testing.T) {
	totals := domain.Totals{
		Net:    decimal.NewFromInt(60),
		Assets: decimal.RequireFromString("100.50"),
		Debts:  decimal.RequireFromString("40.50"),
		Other:  decimal.Zero,
	}

	raw, err := json.Marshal(totals)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(raw)
	for _, want := range []string{`"net":60`, `"assets":100.5`, `"debts":40.5`, `"other":0`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in %s", want, got)
		}
	}

	var back domain.Totals
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Net.Equal(totals.Net) || !back.Assets.Equal(totals.Assets) {
		t.Errorf("round trip changed values: %+v", back)
	}
}

func TestInstitutionSummary_MarshalsAccountIDs(t *testing.T) {
	raw, err := json.Marshal(domain.InstitutionSummary{
		ID:          "inst-1",
		Institution: "Bank",
		AccountIDs:  []string{},
		Net:         decimal.RequireFromString("-12.25"),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(raw)
	if !strings.Contains(got, `"account_ids":[]`) || !strings.Contains(got, `"net":-12.25`) {
		t.Errorf("unexpected summary json %s", got)
	}
}
