package entitlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// TrialPeriod длительность пробного периода бесплатного тарифа.
const TrialPeriod = 7 * 24 * time.Hour

// Plan описывает тариф для витрины и расчёта лимитов.
type Plan struct {
	ID           models.PlanID `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	CheckLimit   int           `json:"check_limit"`
	MonthlyCents int64         `json:"monthly_cents"`
	YearlyCents  int64         `json:"yearly_cents"`
	Features     []string      `json:"features"`
	Highlighted  bool          `json:"highlighted,omitempty"`
}

var catalogue = []Plan{
	{
		ID:          models.PlanFree,
		Name:        "Free Trial",
		Description: "7-day access without a credit card",
		CheckLimit:  5,
		Features:    []string{"7-day full access", "5 document checks", "Basic reports & confidence scores"},
	},
	{
		ID:           models.PlanBasic,
		Name:         "Basic",
		Description:  "For individuals who need reliable AI detection",
		CheckLimit:   50,
		MonthlyCents: 1000,
		YearlyCents:  10000,
		Features:     []string{"50 checks/month", "Detailed analysis reports", "History tracking"},
	},
	{
		ID:           models.PlanPremium,
		Name:         "Premium",
		Description:  "Advanced features and bulk processing",
		CheckLimit:   200,
		MonthlyCents: 2000,
		YearlyCents:  20000,
		Features:     []string{"200 checks/month", "Advanced analytics", "Priority support"},
		Highlighted:  true,
	},
	{
		ID:          models.PlanEnterprise,
		Name:        "Enterprise",
		Description: "Unlimited usage for teams",
		CheckLimit:  Unlimited,
		Features:    []string{"Unlimited checks & users", "Full API access", "Dedicated account manager"},
	},
}

// Plans возвращает публичный каталог тарифов.
func Plans() []Plan {
	out := make([]Plan, len(catalogue))
	copy(out, catalogue)
	return out
}

// NormalizePlan приводит произвольную строку к известному тарифу; неизвестные значения дают free.
func NormalizePlan(plan string) models.PlanID {
	switch p := models.PlanID(strings.ToLower(strings.TrimSpace(plan))); p {
	case models.PlanBasic, models.PlanPremium, models.PlanEnterprise, models.PlanAdmin:
		return p
	default:
		return models.PlanFree
	}
}

// LimitFor возвращает лимит проверок для тарифа.
func LimitFor(plan models.PlanID) int {
	switch plan {
	case models.PlanBasic:
		return 50
	case models.PlanPremium:
		return 200
	case models.PlanEnterprise, models.PlanAdmin:
		return Unlimited
	default:
		return DefaultLimit
	}
}

// ParseCycle разбирает период оплаты.
func ParseCycle(cycle string) (models.BillingCycle, error) {
	const op = "entitlement.ParseCycle"
	switch c := models.BillingCycle(strings.ToLower(strings.TrimSpace(cycle))); c {
	case models.CycleMonthly, models.CycleYearly:
		return c, nil
	default:
		return "", fmt.Errorf("%s: unknown billing cycle %q: %w", op, cycle, apperr.ErrValidation)
	}
}

// PeriodEnd возвращает конец оплаченного периода, начинающегося в from.
func PeriodEnd(cycle models.BillingCycle, from time.Time) time.Time {
	if cycle == models.CycleYearly {
		return from.AddDate(0, 0, 365)
	}
	return from.AddDate(0, 0, 30)
}

// Price запись таблицы цен.
type Price struct {
	ID          string
	Plan        models.PlanID
	Cycle       models.BillingCycle
	AmountCents int64
}

type priceKey struct {
	plan  models.PlanID
	cycle models.BillingCycle
}

var prices = []Price{
	{ID: "price_basic_monthly", Plan: models.PlanBasic, Cycle: models.CycleMonthly, AmountCents: 1000},
	{ID: "price_basic_yearly", Plan: models.PlanBasic, Cycle: models.CycleYearly, AmountCents: 10000},
	{ID: "price_premium_monthly", Plan: models.PlanPremium, Cycle: models.CycleMonthly, AmountCents: 2000},
	{ID: "price_premium_yearly", Plan: models.PlanPremium, Cycle: models.CycleYearly, AmountCents: 20000},
}

var (
	pricesByID  = make(map[string]Price, len(prices))
	pricesByKey = make(map[priceKey]Price, len(prices))
)

func init() {
	for _, p := range prices {
		pricesByID[p.ID] = p
		pricesByKey[priceKey{plan: p.Plan, cycle: p.Cycle}] = p
	}
}

// ResolvePrice находит тариф и период оплаты по идентификатору цены.
func ResolvePrice(priceID string) (Price, error) {
	const op = "entitlement.ResolvePrice"
	p, ok := pricesByID[priceID]
	if !ok {
		return Price{}, fmt.Errorf("%s: unknown price %q: %w", op, priceID, apperr.ErrValidation)
	}
	return p, nil
}

// PriceFor находит цену для пары тариф/период. Бесплатный и корпоративный тарифы не продаются.
func PriceFor(plan models.PlanID, cycle models.BillingCycle) (Price, error) {
	const op = "entitlement.PriceFor"
	p, ok := pricesByKey[priceKey{plan: plan, cycle: cycle}]
	if !ok {
		return Price{}, fmt.Errorf("%s: no price for %s/%s: %w", op, plan, cycle, apperr.ErrValidation)
	}
	return p, nil
}
