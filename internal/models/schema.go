// ABOUTME: Relational schema description handed to the model
// ABOUTME: Produced by schema introspection, consumed by analysis
package models

// Column describes one column of an introspected table
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// TableSchemas maps table name to its columns in ordinal order
type TableSchemas map[string][]Column
