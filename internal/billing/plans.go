// Package billing sells recording credit: plan definitions, Stripe
// checkout sessions, and the webhook that turns a completed payment into
// an activation code.
package billing

// Plan is a purchasable recording-credit package.
type Plan struct {
	Key      string
	Label    string
	Hours    float64
	PriceUSD int // display only; the charged amount lives in Stripe
}

// Plans in menu order.
var Plans = []Plan{
	{Key: "rb_plan_2h", Label: "2 Hours — $5", Hours: 2, PriceUSD: 5},
	{Key: "rb_plan_5h", Label: "5 Hours — $10", Hours: 5, PriceUSD: 10},
	{Key: "rb_plan_20h", Label: "20 Hours — $20", Hours: 20, PriceUSD: 20},
}

// PlanByKey looks a plan up by its callback key.
func PlanByKey(key string) (Plan, bool) {
	for _, p := range Plans {
		if p.Key == key {
			return p, true
		}
	}
	return Plan{}, false
}
