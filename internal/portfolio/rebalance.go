package portfolio

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"trading-agent/internal/types"
)

const (
	assetPrecision = 8
	quotePrecision = 6
)

type shortfall struct {
	asset  string
	usd    decimal.Decimal
	reason string
}

// PlanRebalance returns the orders that move p toward target. Assets whose
// drift exceeds tolerance are sold into the numeraire; underweight assets are
// bought with the numeraire available once every sell is accounted for. All
// sells precede all buys.
func PlanRebalance(p types.Portfolio, target TargetAllocation, tolerance decimal.Decimal) ([]types.TradeOrder, error) {
	total := p.TotalValueUSD()
	if !total.IsPositive() {
		return nil, fmt.Errorf("portfolio has no value: %w", types.ErrInvalidPortfolio)
	}
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("negative tolerance %s", tolerance)
	}
	num := target.Numeraire()
	numHolding, _ := p.Holding(num)
	numPrice := numHolding.Price()
	if numPrice.IsZero() {
		// stablecoin numeraire with no balance
		numPrice = one
	}

	var sells []types.TradeOrder
	var needs []shortfall
	proceeds := decimal.Zero
	for _, asset := range rebalanceAssets(p, target) {
		h, _ := p.Holding(asset)
		weight := h.ValueUSD.Div(total)
		drift := weight.Sub(target.Weight(asset))
		switch {
		case drift.GreaterThan(tolerance):
			price := h.Price()
			if price.IsZero() {
				continue
			}
			units := drift.Mul(total).Div(price).Truncate(assetPrecision)
			if units.GreaterThan(h.Amount) {
				units = h.Amount
			}
			if !units.IsPositive() {
				continue
			}
			order, err := types.NewTradeOrder(asset, num, units, driftReason(asset, weight, target.Weight(asset), drift))
			if err != nil {
				return nil, err
			}
			sells = append(sells, order)
			proceeds = proceeds.Add(units.Mul(price))
		case drift.LessThan(tolerance.Neg()):
			needs = append(needs, shortfall{
				asset:  asset,
				usd:    drift.Neg().Mul(total),
				reason: driftReason(asset, weight, target.Weight(asset), drift),
			})
		}
	}

	// buys are sized only after all sell proceeds are known
	budget := fundsAfterSells(numHolding, proceeds, target.Weight(num).Mul(total))
	buys, err := planBuys(needs, budget, numPrice, num)
	if err != nil {
		return nil, err
	}
	return append(sells, buys...), nil
}

// fundsAfterSells is the numeraire value spendable on buys: the current
// balance plus sell proceeds, minus the numeraire's own target value.
func fundsAfterSells(numHolding types.Holding, proceeds, reserve decimal.Decimal) decimal.Decimal {
	avail := numHolding.ValueUSD.Add(proceeds).Sub(reserve)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// planBuys sizes the buys from budget, scaling every shortfall down evenly
// when the budget cannot cover all of them.
func planBuys(needs []shortfall, budget, numPrice decimal.Decimal, num string) ([]types.TradeOrder, error) {
	if len(needs) == 0 || !budget.IsPositive() {
		return nil, nil
	}
	totalNeed := decimal.Zero
	for _, n := range needs {
		totalNeed = totalNeed.Add(n.usd)
	}
	scale := one
	if totalNeed.GreaterThan(budget) {
		scale = budget.Div(totalNeed)
	}
	buys := make([]types.TradeOrder, 0, len(needs))
	for _, n := range needs {
		amount := n.usd.Mul(scale).Div(numPrice).Truncate(quotePrecision)
		if !amount.IsPositive() {
			continue
		}
		order, err := types.NewTradeOrder(num, n.asset, amount, n.reason)
		if err != nil {
			return nil, err
		}
		buys = append(buys, order)
	}
	return buys, nil
}

// rebalanceAssets lists every targeted or held asset except the numeraire.
func rebalanceAssets(p types.Portfolio, target TargetAllocation) []string {
	set := map[string]struct{}{}
	for _, a := range target.Assets() {
		set[a] = struct{}{}
	}
	for _, h := range p.Holdings() {
		set[h.Asset] = struct{}{}
	}
	delete(set, target.Numeraire())
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func driftReason(asset string, weight, target, drift decimal.Decimal) string {
	return fmt.Sprintf("rebalance: %s weight %s%% vs target %s%% (drift %s%%)",
		asset, pct(weight), pct(target), drift.Mul(hundred).StringFixed(2))
}

func pct(w decimal.Decimal) string {
	return w.Mul(hundred).StringFixed(2)
}
