package core

import "fieldledger/pkg/domain"

// NewRulesEngine constructs an engine with no rules.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	for _, rule := range defaultRules() {
		engine.Register(rule)
	}
	return engine
}

func defaultRules() []Rule {
	return []Rule{
		NewStockBoundsRule(),
		NewCashbookMirrorRule(),
	}
}
