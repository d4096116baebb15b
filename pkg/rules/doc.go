// Package rules defines the threat rule model and the priority-ordered rule
// set used by the evaluation engine.
//
// A Rule describes one threat pattern as up to three match stages (literal
// keywords, regular expressions, semantic exemplars) plus optional stateful
// flag behavior and a threshold/window rate gate. Rules are immutable once
// loaded; the Set replaces its entire contents atomically on each load so
// evaluations never observe a partially updated list.
//
// # Priority Model
//
// Rules are evaluated in ascending priority-key order. The key is derived
// from the rule's action and the cost of its declared stages:
//
//	priority = actionWeight*10 + typeCost
//	actionWeight: pass=0, set_flag=1, flag=2, alert=3, block=4, other=5
//	typeCost:     content(+1) pcre(+2) semantic(+3) flags(+4)
//
// Cheap non-blocking rules therefore run first, so their flag side effects
// are visible to later, more consequential rules within the same evaluation
// pass. The sort is stable: equal-priority rules retain author order.
package rules
