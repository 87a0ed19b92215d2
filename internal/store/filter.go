// ABOUTME: Typed metadata filter: equality, containment, and conjunction
// ABOUTME: Backends compile a Filter to their native query form; Matches is the reference semantics
package store

import (
	"fmt"
	"strings"

	"github.com/harper/ddl-architect/internal/models"
)

// Field names a filterable metadata key
type Field string

const (
	FieldDatabase       Field = models.KeyDatabase
	FieldTables         Field = models.KeyTables
	FieldRole           Field = models.KeyRole
	FieldConversationID Field = models.KeyConversationID
)

// Op is the kind of a filter node
type Op int

const (
	OpAll Op = iota
	OpEq
	OpContains
	OpAnd
)

// Filter is a small expression tree over message metadata.
// The zero value matches every record.
type Filter struct {
	Op       Op
	Field    Field
	Value    string
	Children []Filter
}

// Eq matches records whose field equals value
func Eq(field Field, value string) Filter {
	return Filter{Op: OpEq, Field: field, Value: value}
}

// Contains matches records whose list field holds value as an element.
// Table names are compared trimmed, the way they are stored.
func Contains(field Field, value string) Filter {
	if field == FieldTables {
		value = strings.TrimSpace(value)
	}
	return Filter{Op: OpContains, Field: field, Value: value}
}

// And matches records satisfying every given filter
func And(filters ...Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		switch f.Op {
		case OpAll:
		case OpAnd:
			kept = append(kept, f.Children...)
		default:
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return Filter{}
	case 1:
		return kept[0]
	}
	return Filter{Op: OpAnd, Children: kept}
}

// ScopeFilter builds the optional database/table filter used by history listings
func ScopeFilter(database, table string) Filter {
	var fs []Filter
	if database != "" {
		fs = append(fs, Eq(FieldDatabase, database))
	}
	if table != "" {
		fs = append(fs, Contains(FieldTables, table))
	}
	return And(fs...)
}

// IsZero reports whether f matches everything
func (f Filter) IsZero() bool {
	return f.Op == OpAll
}

// Leaves returns the equality and containment nodes of f
func (f Filter) Leaves() []Filter {
	switch f.Op {
	case OpAll:
		return nil
	case OpAnd:
		var out []Filter
		for _, c := range f.Children {
			out = append(out, c.Leaves()...)
		}
		return out
	}
	return []Filter{f}
}

// Matches evaluates f against metadata
func (f Filter) Matches(md models.Metadata) bool {
	switch f.Op {
	case OpAll:
		return true
	case OpAnd:
		for _, c := range f.Children {
			if !c.Matches(md) {
				return false
			}
		}
		return true
	case OpEq:
		return fieldValue(md, f.Field) == f.Value
	case OpContains:
		if f.Field == FieldTables {
			return md.HasTable(f.Value)
		}
		return strings.Contains(fieldValue(md, f.Field), f.Value)
	}
	return false
}

func (f Filter) String() string {
	switch f.Op {
	case OpAll:
		return "*"
	case OpEq:
		return fmt.Sprintf("%s=%q", f.Field, f.Value)
	case OpContains:
		return fmt.Sprintf("%s~%q", f.Field, f.Value)
	}
	parts := make([]string, len(f.Children))
	for i, c := range f.Children {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

func fieldValue(md models.Metadata, field Field) string {
	switch field {
	case FieldDatabase:
		return md.Database
	case FieldTables:
		return models.JoinTables(md.Tables)
	case FieldRole:
		return string(md.EffectiveRole())
	case FieldConversationID:
		return md.ConversationID
	}
	return ""
}
