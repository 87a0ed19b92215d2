// ABOUTME: Model instructions and DDL extraction for schema analysis
// ABOUTME: The reply is scanned line by line for CREATE/ALTER statements
package architect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harper/ddl-architect/internal/llm"
	"github.com/harper/ddl-architect/internal/models"
)

const systemPrompt = `You are a senior data architect specializing in modern data warehouses.
Follow these rules:
1. Always generate ANSI-SQL DDL statements
2. Use star/snowflake schemas where appropriate
3. Add primary/foreign keys
4. Include indexes for frequent query columns
5. Add comments to columns/tables
6. Build on the related prior designs below when they apply`

// BuildMessages assembles the system and user turns for one analysis
func BuildMessages(req Request, related string) ([]llm.Message, error) {
	system := systemPrompt
	if related != "" {
		system += "\n\nRelated prior designs:\n" + related
	}

	schema := "{}"
	if len(req.Schema) > 0 {
		raw, err := json.MarshalIndent(req.Schema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%w: schema is not serializable: %w", models.ErrValidation, err)
		}
		schema = string(raw)
	}

	user := fmt.Sprintf("User Request: %s\nDatabase: %s\nTables: %s\nSchema Details: %s",
		req.Prompt, req.Database, strings.Join(req.Tables, ", "), schema)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

var ddlKeywords = []string{"CREATE TABLE", "ALTER TABLE", "CREATE INDEX"}

// ExtractDDL returns the reply lines that hold DDL statements, each ending in one semicolon
func ExtractDDL(reply string) []string {
	ddl := []string{}
	for _, line := range strings.Split(reply, "\n") {
		upper := strings.ToUpper(line)
		matched := false
		for _, kw := range ddlKeywords {
			if strings.Contains(upper, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		stmt := strings.TrimRight(strings.TrimSpace(line), "; \t")
		if stmt == "" {
			continue
		}
		ddl = append(ddl, stmt+";")
	}
	return ddl
}
