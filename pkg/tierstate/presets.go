package tierstate

// Named entry-condition shortcuts. The common business conditions resolve
// through a fixed dispatch table before anything reaches the generic
// expression evaluator; an unknown name is evaluated as a literal
// expression string.

const condUserChoseDrilldown = "user_chose_drilldown"

type conditionFn func(m *Machine, s TierState, data map[string]any) bool

// defaultExpressions backs the named metric aliases when the playbook does
// not override them in enter_conditions.
var defaultExpressions = map[string]string{
	"isHighCPL":      "cpl > targetCpl * 1.3",
	"isSmallSample":  "impressions < 1000",
	"isZeroSpend":    "spend == 0",
	"isSpendNoLeads": "spend > 0 && leads == 0",
}

var presetConditions = map[string]conditionFn{
	// Manual drilldown choice: an explicit flag in the data, or an offer the
	// user already selected. Never goes through the expression evaluator.
	condUserChoseDrilldown: func(_ *Machine, s TierState, data map[string]any) bool {
		if flag, ok := data[condUserChoseDrilldown].(bool); ok && flag {
			return true
		}
		return s.PendingNextStep != nil
	},

	"isHighCPL":      namedAlias("isHighCPL"),
	"isSmallSample":  namedAlias("isSmallSample"),
	"isZeroSpend":    namedAlias("isZeroSpend"),
	"isSpendNoLeads": namedAlias("isSpendNoLeads"),

	// Nested integrations flag.
	"hasWhatsApp": func(_ *Machine, _ TierState, data map[string]any) bool {
		integrations, _ := data["integrations"].(map[string]any)
		connected, _ := integrations["whatsapp"].(bool)
		return connected
	},

	"hasWorstCreatives": func(_ *Machine, _ TierState, data map[string]any) bool {
		return toFloat(data["worstCreativesCount"]) > 0
	},
}

// namedAlias resolves a metric condition by name: the playbook's
// enter_conditions entry wins, otherwise the built-in default expression.
// Either way the expression runs through the generic evaluator.
func namedAlias(name string) conditionFn {
	return func(m *Machine, s TierState, data map[string]any) bool {
		if expression, ok := m.catalog.EnterCondition(s.PlaybookID, name); ok {
			return m.eval.Evaluate(expression, data)
		}
		return m.eval.Evaluate(defaultExpressions[name], data)
	}
}

// evaluateSingleCondition resolves one entry-condition name: preset table
// first, then the playbook's named enter_conditions, then the name itself
// as a literal expression.
func (m *Machine) evaluateSingleCondition(s TierState, name string, data map[string]any) bool {
	if fn, ok := presetConditions[name]; ok {
		return fn(m, s, data)
	}
	if expression, ok := m.catalog.EnterCondition(s.PlaybookID, name); ok {
		return m.eval.Evaluate(expression, data)
	}
	return m.eval.Evaluate(name, data)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
