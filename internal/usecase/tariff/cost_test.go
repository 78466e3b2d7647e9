package tariff

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

var testFees = Fees{MPF: 35, HMF: 13}

type stubResolver struct {
	duty domain.ResolvedDuty
	err  error
}

func (s *stubResolver) Resolve(_ context.Context, _ domain.ClassificationRecord, _ string) (domain.ResolvedDuty, error) {
	return s.duty, s.err
}

func testContext(baseCost float64, modes ...string) domain.TariffContext {
	return domain.TariffContext{
		Classification: domain.ClassificationRecord{Code: "0101210010"},
		Country:        "Germany",
		BaseCost:       baseCost,
		TransportModes: modes,
	}
}

func TestTotalCostOceanEntry(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "10%"}}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(1000, "Ocean"))
	if err != nil {
		t.Fatalf("TotalCost failed: %v", err)
	}

	if got.DutyAmount != 100.00 {
		t.Errorf("DutyAmount = %f, expected 100.00", got.DutyAmount)
	}
	if got.TotalCost != 1148.00 {
		t.Errorf("TotalCost = %f, expected 1148.00", got.TotalCost)
	}
	if !reflect.DeepEqual(got.AppliedFees, []string{"MPF", "HMF"}) {
		t.Errorf("AppliedFees = %v", got.AppliedFees)
	}
	if got.TariffRate != "10%" {
		t.Errorf("TariffRate = %q", got.TariffRate)
	}
}

func TestTotalCostMonotonicInBaseCost(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "6.8%"}}, testFees, zap.NewNop())

	prev := -1.0
	for _, base := range []float64{0, 0.01, 100, 999.99, 1000, 25000} {
		got, err := calc.TotalCost(context.Background(), testContext(base, "Ocean"))
		if err != nil {
			t.Fatalf("TotalCost(%f) failed: %v", base, err)
		}
		if got.TotalCost < prev {
			t.Fatalf("TotalCost decreased: base %f gave %f after %f", base, got.TotalCost, prev)
		}
		prev = got.TotalCost
	}
}

func TestTotalCostAirEntrySkipsHMF(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "10%"}}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(1000, "Air"))
	if err != nil {
		t.Fatalf("TotalCost failed: %v", err)
	}

	if got.TotalCost != 1135.00 {
		t.Errorf("TotalCost = %f, expected 1135.00", got.TotalCost)
	}
	if !reflect.DeepEqual(got.AppliedFees, []string{"MPF"}) {
		t.Errorf("AppliedFees = %v", got.AppliedFees)
	}
}

func TestTotalCostOceanCaseInsensitive(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "Free"}}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(500, "Truck", "OCEAN"))
	if err != nil {
		t.Fatalf("TotalCost failed: %v", err)
	}
	if !reflect.DeepEqual(got.AppliedFees, []string{"MPF", "HMF"}) {
		t.Errorf("AppliedFees = %v", got.AppliedFees)
	}
	if got.TotalCost != 548.00 {
		t.Errorf("TotalCost = %f, expected 548.00", got.TotalCost)
	}
}

func TestTotalCostFreeRate(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "Free"}}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(1000, "Air"))
	if err != nil {
		t.Fatalf("TotalCost failed: %v", err)
	}
	if got.DutyAmount != 0 || got.RatePercent != 0 {
		t.Errorf("expected zero duty for Free, got %+v", got)
	}
	if got.TariffRate != "Free" {
		t.Errorf("TariffRate = %q, expected Free", got.TariffRate)
	}
}

func TestTotalCostUnparseableRateTreatedAsZero(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "4.4¢/kg"}}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(1000, "Air"))
	if err != nil {
		t.Fatalf("unparseable rate must not fail: %v", err)
	}
	if got.DutyAmount != 0 {
		t.Errorf("expected zero duty, got %f", got.DutyAmount)
	}
	if got.TotalCost != 1035.00 {
		t.Errorf("TotalCost = %f, expected 1035.00", got.TotalCost)
	}
}

func TestTotalCostProgramFragmentRate(t *testing.T) {
	calc := NewCalculator(&stubResolver{
		duty: domain.ResolvedDuty{ProgramCode: "CL", Rate: "2.5%"},
	}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(2000, "Air"))
	if err != nil {
		t.Fatalf("TotalCost failed: %v", err)
	}
	if got.DutyAmount != 50.00 {
		t.Errorf("DutyAmount = %f, expected 50.00", got.DutyAmount)
	}
}

func TestTotalCostRounding(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "6.8%"}}, testFees, zap.NewNop())

	got, err := calc.TotalCost(context.Background(), testContext(333.33, "Air"))
	if err != nil {
		t.Fatalf("TotalCost failed: %v", err)
	}
	// 333.33 * 0.068 = 22.66644 -> 22.67
	if got.DutyAmount != 22.67 {
		t.Errorf("DutyAmount = %f, expected 22.67", got.DutyAmount)
	}
}

func TestTotalCostResolverErrorPropagates(t *testing.T) {
	calc := NewCalculator(&stubResolver{err: domain.ErrMissingRate}, testFees, zap.NewNop())

	_, err := calc.TotalCost(context.Background(), testContext(1000, "Ocean"))
	if !errors.Is(err, domain.ErrMissingRate) {
		t.Fatalf("expected ErrMissingRate, got %v", err)
	}
}

func TestTotalCostValidation(t *testing.T) {
	calc := NewCalculator(&stubResolver{duty: domain.ResolvedDuty{Rate: "Free"}}, testFees, zap.NewNop())

	tc := testContext(-1, "Air")
	_, err := calc.TotalCost(context.Background(), tc)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative base cost, got %v", err)
	}
}
