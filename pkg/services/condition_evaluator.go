package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// DefaultMaxConditionDepth bounds condition tree recursion. Trees deeper
// than this are rejected with ErrDepthExceeded rather than risking stack
// exhaustion on malformed rules.
const DefaultMaxConditionDepth = 32

// fieldAccessor resolves a condition field name to a client attribute value.
type fieldAccessor func(c *models.Client) any

// clientFields is the accessor registry for condition leaves. Field names
// not present here are rejected with ErrUnknownField instead of silently
// evaluating to a non-match.
var clientFields = map[string]fieldAccessor{
	"name":       func(c *models.Client) any { return c.Name },
	"email":      func(c *models.Client) any { return c.Email },
	"phone":      func(c *models.Client) any { return c.Phone },
	"city":       func(c *models.Client) any { return c.City },
	"country":    func(c *models.Client) any { return c.Country },
	"status":     func(c *models.Client) any { return c.Status },
	"source":     func(c *models.Client) any { return c.Source },
	"industry":   func(c *models.Client) any { return c.Industry },
	"is_company": func(c *models.Client) any { return c.IsCompany },
	"tax_id":     func(c *models.Client) any { return c.TaxID },
	"owner_id": func(c *models.Client) any {
		if c.OwnerID == uuid.Nil {
			return ""
		}
		return c.OwnerID.String()
	},
}

// ConditionEvaluator evaluates tag condition trees against clients.
// Evaluation is pure: no side effects, deterministic for a given input.
type ConditionEvaluator struct {
	maxDepth int
}

// NewConditionEvaluator creates an evaluator with the given recursion
// limit. Non-positive maxDepth falls back to DefaultMaxConditionDepth.
func NewConditionEvaluator(maxDepth int) *ConditionEvaluator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxConditionDepth
	}
	return &ConditionEvaluator{maxDepth: maxDepth}
}

// Validate checks a condition tree structurally without a client: field
// names must be registered, operators known, depth within the limit.
// Used on tag create/update so broken rules are rejected at the door
// instead of failing on every evaluation.
func (e *ConditionEvaluator) Validate(node *models.ConditionNode) error {
	if node == nil {
		return nil
	}
	return e.validateNode(node, 0)
}

func (e *ConditionEvaluator) validateNode(node *models.ConditionNode, depth int) error {
	if depth > e.maxDepth {
		return fmt.Errorf("%w: depth %d exceeds limit %d", apperrors.ErrDepthExceeded, depth, e.maxDepth)
	}

	if node.IsGroup() {
		for _, child := range node.Children {
			if err := e.validateNode(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if _, ok := clientFields[node.Field]; !ok {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownField, node.Field)
	}
	switch node.Operator {
	case models.CompareEquals, models.CompareNotEquals, models.CompareIn,
		models.CompareGreaterThan, models.CompareLessThan:
		return nil
	default:
		return fmt.Errorf("unsupported comparison operator %q", node.Operator)
	}
}

// Evaluate reports whether the condition tree matches the client.
// A nil tree never matches: tags without a condition are manual-only.
func (e *ConditionEvaluator) Evaluate(client *models.Client, node *models.ConditionNode) (bool, error) {
	if node == nil {
		return false, nil
	}
	return e.evalNode(client, node, 0)
}

func (e *ConditionEvaluator) evalNode(client *models.Client, node *models.ConditionNode, depth int) (bool, error) {
	if depth > e.maxDepth {
		return false, fmt.Errorf("%w: depth %d exceeds limit %d", apperrors.ErrDepthExceeded, depth, e.maxDepth)
	}

	if node.IsGroup() {
		return e.evalGroup(client, node, depth)
	}
	return e.evalLeaf(client, node)
}

// evalGroup applies boolean AND/OR over the children with short-circuiting.
// Empty groups evaluate to the identity element of their operator:
// AND of nothing is true, OR of nothing is false.
func (e *ConditionEvaluator) evalGroup(client *models.Client, node *models.ConditionNode, depth int) (bool, error) {
	switch node.Operator {
	case models.GroupAnd:
		for _, child := range node.Children {
			matched, err := e.evalNode(client, child, depth+1)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil
	case models.GroupOr:
		for _, child := range node.Children {
			matched, err := e.evalNode(client, child, depth+1)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported group operator %q", node.Operator)
	}
}

func (e *ConditionEvaluator) evalLeaf(client *models.Client, node *models.ConditionNode) (bool, error) {
	accessor, ok := clientFields[node.Field]
	if !ok {
		return false, fmt.Errorf("%w: %q", apperrors.ErrUnknownField, node.Field)
	}
	got := accessor(client)

	switch node.Operator {
	case models.CompareEquals:
		return valuesEqual(node.Field, got, node.Value)
	case models.CompareNotEquals:
		matched, err := valuesEqual(node.Field, got, node.Value)
		if err != nil {
			return false, err
		}
		return !matched, nil
	case models.CompareIn:
		return valueInList(node.Field, got, node.Value)
	case models.CompareGreaterThan:
		cmp, err := compareOrdered(node.Field, got, node.Value)
		if err != nil {
			return false, err
		}
		return cmp > 0, nil
	case models.CompareLessThan:
		cmp, err := compareOrdered(node.Field, got, node.Value)
		if err != nil {
			return false, err
		}
		return cmp < 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", node.Operator)
	}
}

// valuesEqual compares a client attribute against a rule value. Condition
// values come from JSON, so numbers arrive as float64 and lists as []any.
func valuesEqual(field string, got, want any) (bool, error) {
	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			return false, typeMismatch(field, got, want)
		}
		return g == w, nil
	case bool:
		w, ok := want.(bool)
		if !ok {
			return false, typeMismatch(field, got, want)
		}
		return g == w, nil
	default:
		gf, gok := toFloat(got)
		wf, wok := toFloat(want)
		if gok && wok {
			return gf == wf, nil
		}
		return false, typeMismatch(field, got, want)
	}
}

// valueInList reports whether the attribute equals any element of the
// rule's list value.
func valueInList(field string, got, want any) (bool, error) {
	list, ok := want.([]any)
	if !ok {
		return false, fmt.Errorf("%w: field %q operator %q requires a list value, got %T",
			apperrors.ErrTypeMismatch, field, models.CompareIn, want)
	}
	for _, candidate := range list {
		matched, err := valuesEqual(field, got, candidate)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// compareOrdered returns -1, 0 or 1 for got relative to want. Numbers
// compare numerically, strings lexicographically; anything else is a
// type mismatch.
func compareOrdered(field string, got, want any) (int, error) {
	if gf, gok := toFloat(got); gok {
		wf, wok := toFloat(want)
		if !wok {
			return 0, typeMismatch(field, got, want)
		}
		switch {
		case gf < wf:
			return -1, nil
		case gf > wf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	gs, gok := got.(string)
	ws, wok := want.(string)
	if !gok || !wok {
		return 0, typeMismatch(field, got, want)
	}
	switch {
	case gs < ws:
		return -1, nil
	case gs > ws:
		return 1, nil
	default:
		return 0, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func typeMismatch(field string, got, want any) error {
	return fmt.Errorf("%w: field %q holds %T, rule value is %T", apperrors.ErrTypeMismatch, field, got, want)
}
