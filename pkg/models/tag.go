package models

import (
	"time"

	"github.com/google/uuid"
)

// Group operators for condition tree nodes.
const (
	GroupAnd = "and"
	GroupOr  = "or"
)

// Comparison operators for condition tree leaves. The set is deliberately
// small and closed; new operators get an entry here plus an evaluation
// branch and a test.
const (
	CompareEquals      = "equals"
	CompareNotEquals   = "not_equals"
	CompareIn          = "in"
	CompareGreaterThan = "greater_than"
	CompareLessThan    = "less_than"
)

// ConditionNode is one node of a tag's automatic-assignment rule.
//
// A node is either a group ({operator: and|or, children: [...]}) or a leaf
// ({field, operator, value}). The operator field is shared: for groups it
// names the boolean combinator, for leaves the comparison. Children may nest
// arbitrarily deep.
//
// An empty group is valid and evaluates to the operator's identity element:
// and-of-nothing is true, or-of-nothing is false.
type ConditionNode struct {
	Operator string           `json:"operator"`
	Children []*ConditionNode `json:"children,omitempty"`
	Field    string           `json:"field,omitempty"`
	Value    any              `json:"value,omitempty"`
}

// IsGroup reports whether the node is an and/or group rather than a leaf.
func (n *ConditionNode) IsGroup() bool {
	return n.Operator == GroupAnd || n.Operator == GroupOr
}

// TagDefinition is a tenant-defined label attachable to clients, optionally
// carrying a condition tree that drives automatic assignment. A nil
// Condition means the tag is purely manual.
type TagDefinition struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Name      string         `json:"name"`
	Color     string         `json:"color,omitempty"`
	IsActive  bool           `json:"is_active"`
	Condition *ConditionNode `json:"condition,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasCondition reports whether the tag carries an automatic-assignment rule.
func (t *TagDefinition) HasCondition() bool {
	return t.Condition != nil
}
