// ABOUTME: One-time migration of legacy chat history records into conversation pairs
// ABOUTME: Pairs adjacent same-timestamp records, mints pair ids, and backfills conversation ids
package migrate

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
)

// Embedder fills in embeddings that legacy records lack
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Report summarizes one migration run
type Report struct {
	Scanned       int  `json:"scanned" yaml:"scanned"`
	Canonical     int  `json:"canonical" yaml:"canonical"`
	PairsMigrated int  `json:"pairs_migrated" yaml:"pairs_migrated"`
	Conversations int  `json:"conversations" yaml:"conversations"`
	Orphans       int  `json:"orphans" yaml:"orphans"`
	Reembedded    int  `json:"reembedded" yaml:"reembedded"`
	DryRun        bool `json:"dry_run" yaml:"dry_run"`
}

// Migrator rewrites legacy records in place
type Migrator struct {
	store    store.Store
	embedder Embedder
	logger   *log.Logger
}

// New creates a migrator; embedder may be nil when every record carries an embedding
func New(s store.Store, embedder Embedder, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Migrator{store: s, embedder: embedder, logger: logger}
}

// Run migrates every legacy record. With dryRun set nothing is written.
func (m *Migrator) Run(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun}

	all, err := m.store.FetchByFilter(ctx, store.Filter{}, store.Page{})
	if err != nil {
		return report, fmt.Errorf("failed to read records: %w", err)
	}
	report.Scanned = len(all)

	var legacy []models.Message
	for _, msg := range all {
		if isCanonical(msg) {
			report.Canonical++
			continue
		}
		legacy = append(legacy, msg)
	}
	if len(legacy) == 0 {
		m.logger.Info("no legacy records found", "scanned", report.Scanned)
		return report, nil
	}

	pairs, orphans := PairLegacy(legacy)
	report.Orphans = len(orphans)
	for _, o := range orphans {
		m.logger.Warn("legacy record has no counterpart, leaving it in place", "id", o.ID, "timestamp", o.Metadata.Timestamp)
	}

	var (
		rewritten []models.Message
		oldIDs    []string
		convs     = map[string]bool{}
	)
	for _, p := range pairs {
		user, assistant, n, err := m.canonicalize(ctx, p)
		if err != nil {
			return report, err
		}
		report.Reembedded += n
		convs[user.Metadata.ConversationID] = true
		rewritten = append(rewritten, user, assistant)
		oldIDs = append(oldIDs, p.User.ID, p.Assistant.ID)
	}
	report.PairsMigrated = len(pairs)
	report.Conversations = len(convs)

	if len(pairs) == 0 {
		return report, nil
	}
	if dryRun {
		m.logger.Info("dry run complete", "pairs", report.PairsMigrated, "orphans", report.Orphans)
		return report, nil
	}

	if err := m.store.Upsert(ctx, rewritten); err != nil {
		return report, fmt.Errorf("failed to write migrated records: %w", err)
	}
	if err := m.store.DeleteByIDs(ctx, oldIDs); err != nil {
		return report, fmt.Errorf("failed to remove legacy records (migrated copies were written): %w", err)
	}

	m.logger.Info("migration complete",
		"pairs", report.PairsMigrated,
		"conversations", report.Conversations,
		"orphans", report.Orphans,
		"reembedded", report.Reembedded)
	return report, nil
}

// LegacyPair is two legacy records recovered as one exchange
type LegacyPair struct {
	User      models.Message
	Assistant models.Message
}

// PairLegacy pairs adjacent records that share a timestamp, user half first.
// Records without a role take it from their position: the earlier one is the prompt.
func PairLegacy(msgs []models.Message) (pairs []LegacyPair, orphans []models.Message) {
	sorted := append([]models.Message(nil), msgs...)
	for i := range sorted {
		sorted[i].Metadata.Timestamp = NormalizeTimestamp(sorted[i].Metadata.Timestamp)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Metadata, sorted[j].Metadata
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return roleRank(a.EffectiveRole()) < roleRank(b.EffectiveRole())
	})

	for i := 0; i < len(sorted); {
		if i+1 < len(sorted) && pairable(sorted[i], sorted[i+1]) {
			pairs = append(pairs, LegacyPair{User: sorted[i], Assistant: sorted[i+1]})
			i += 2
			continue
		}
		orphans = append(orphans, sorted[i])
		i++
	}
	return pairs, orphans
}

func pairable(a, b models.Message) bool {
	if a.Metadata.Timestamp == "" || a.Metadata.Timestamp != b.Metadata.Timestamp {
		return false
	}
	ra, rb := a.Metadata.EffectiveRole(), b.Metadata.EffectiveRole()
	if ra == models.RoleAssistant || rb == models.RoleUser {
		return false
	}
	return a.Metadata.ConversationID == b.Metadata.ConversationID
}

// roleRank orders the prompt before the reply; unknown roles keep their place
func roleRank(r models.Role) int {
	switch r {
	case models.RoleUser:
		return 0
	case models.RoleAssistant:
		return 2
	}
	return 1
}

func isCanonical(m models.Message) bool {
	role, _, err := models.ParseMessageID(m.ID)
	return err == nil &&
		m.Metadata.ConversationID != "" &&
		m.Metadata.Role == role
}

func (m *Migrator) canonicalize(ctx context.Context, p LegacyPair) (user, assistant models.Message, reembedded int, err error) {
	pairUUID := models.NewPairUUID()
	userID, assistantID := models.PairIDs(pairUUID)

	convID := p.User.Metadata.ConversationID
	if convID == "" {
		convID = models.NewConversationID()
	}

	user = rewrite(p.User, userID, models.RoleUser, convID)
	assistant = rewrite(p.Assistant, assistantID, models.RoleAssistant, convID)
	// The prompt's scope is authoritative for both halves
	assistant.Metadata.Database = user.Metadata.Database
	assistant.Metadata.Tables = user.Metadata.Tables

	for _, msg := range []*models.Message{&user, &assistant} {
		if len(msg.Embedding) > 0 {
			continue
		}
		if m.embedder == nil {
			return user, assistant, reembedded, fmt.Errorf("%w: record for %s has no embedding and no embedder is configured",
				models.ErrValidation, msg.ID)
		}
		msg.Embedding, err = m.embedder.Embed(ctx, msg.Body)
		if err != nil {
			return user, assistant, reembedded, fmt.Errorf("failed to embed record %s: %w", msg.ID, err)
		}
		reembedded++
	}
	return user, assistant, reembedded, nil
}

func rewrite(src models.Message, id string, role models.Role, convID string) models.Message {
	md := src.Metadata
	md.Role = role
	md.ConversationID = convID
	md.SchemaVersion = models.SchemaVersion
	md.Timestamp = NormalizeTimestamp(md.Timestamp)
	if md.Tables == nil {
		md.Tables = []string{}
	}
	if len(md.Extra) > 0 {
		extra := make(map[string]string, len(md.Extra))
		for k, v := range md.Extra {
			if k != models.KeyLegacyType {
				extra[k] = v
			}
		}
		md.Extra = extra
		if len(extra) == 0 {
			md.Extra = nil
		}
	}
	return models.Message{ID: id, Body: src.Body, Embedding: src.Embedding, Metadata: md}
}

var timestampLayouts = []string{
	models.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// NormalizeTimestamp rewrites a legacy ISO timestamp into the fixed-width layout.
// Zone-less values are taken as UTC; unparseable values are returned unchanged.
func NormalizeTimestamp(ts string) string {
	ts = strings.TrimSpace(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Format(models.TimestampLayout)
		}
	}
	return ts
}
