// ABOUTME: Imports a collection dump ({ids, documents, metadatas, embeddings}) into the record store
// ABOUTME: Imported records keep their ids; run the migrator afterwards to canonicalize them
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/harper/ddl-architect/internal/models"
)

// Dump is the column-oriented layout a vector collection get() returns
type Dump struct {
	IDs        []string         `json:"ids"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
	Embeddings [][]float32      `json:"embeddings"`
}

// ReadDump decodes and checks a dump
func ReadDump(r io.Reader) (*Dump, error) {
	var d Dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: failed to decode dump: %w", models.ErrValidation, err)
	}
	n := len(d.IDs)
	if len(d.Documents) != n {
		return nil, fmt.Errorf("%w: dump has %d ids but %d documents", models.ErrValidation, n, len(d.Documents))
	}
	if d.Metadatas != nil && len(d.Metadatas) != n {
		return nil, fmt.Errorf("%w: dump has %d ids but %d metadatas", models.ErrValidation, n, len(d.Metadatas))
	}
	if d.Embeddings != nil && len(d.Embeddings) != n {
		return nil, fmt.Errorf("%w: dump has %d ids but %d embeddings", models.ErrValidation, n, len(d.Embeddings))
	}
	return &d, nil
}

// Messages converts the dump into records; missing embeddings stay empty
func (d *Dump) Messages() []models.Message {
	out := make([]models.Message, 0, len(d.IDs))
	for i, id := range d.IDs {
		raw := map[string]string{}
		if d.Metadatas != nil {
			for k, v := range d.Metadatas[i] {
				raw[k] = metadataString(v)
			}
		}
		md := models.MetadataFromMap(raw)
		md.Timestamp = NormalizeTimestamp(md.Timestamp)

		msg := models.Message{ID: id, Body: d.Documents[i], Metadata: md}
		if d.Embeddings != nil {
			msg.Embedding = d.Embeddings[i]
		}
		out = append(out, msg)
	}
	return out
}

func metadataString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, metadataString(item))
		}
		return strings.Join(parts, ",")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Import writes the dump's records and then migrates them
func (m *Migrator) Import(ctx context.Context, r io.Reader) (Report, error) {
	d, err := ReadDump(r)
	if err != nil {
		return Report{}, err
	}
	msgs := d.Messages()

	reembedded := 0
	for i := range msgs {
		if len(msgs[i].Embedding) > 0 || m.embedder == nil {
			continue
		}
		msgs[i].Embedding, err = m.embedder.Embed(ctx, msgs[i].Body)
		if err != nil {
			return Report{}, fmt.Errorf("failed to embed imported record %s: %w", msgs[i].ID, err)
		}
		reembedded++
	}

	if err := m.store.Upsert(ctx, msgs); err != nil {
		return Report{}, fmt.Errorf("failed to write imported records: %w", err)
	}
	m.logger.Info("dump imported", "records", len(msgs), "reembedded", reembedded)

	report, err := m.Run(ctx, false)
	report.Reembedded += reembedded
	return report, err
}
