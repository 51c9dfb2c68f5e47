package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/advisorlens/internal/types"
)

// DemoBusinessID is the business the demo feeds belong to.
const DemoBusinessID = "acme-bakery"

// FeedID returns the id of a business's feed, e.g. "acme-bakery.audit".
func FeedID(businessID, feed string) string {
	return businessID + "." + feed
}

// seedNamespace makes demo ids stable across restarts, so links to a
// specific entry keep working.
var seedNamespace = uuid.MustParse("6f1c2b1e-3d0a-4f57-9a53-1f0a6b7e2c11")

// SeedDemoData writes 18 months of audit, signal and transaction history for
// the demo business, ending at now.
func SeedDemoData(ctx context.Context, store Store, now time.Time) error {
	rng := rand.New(rand.NewPCG(2024, 7))
	start := now.AddDate(0, -18, 0)
	span := now.Sub(start)
	at := func() time.Time {
		return start.Add(time.Duration(rng.Int64N(int64(span)))).Truncate(time.Second).UTC()
	}

	var entries []types.AuditEntry
	add := func(feed string, n int, e types.AuditEntry) {
		e.FeedID = FeedID(DemoBusinessID, feed)
		e.ID = uuid.NewSHA1(seedNamespace, fmt.Appendf(nil, "%s/%d", feed, n)).String()
		entries = append(entries, e)
	}

	// ─── Audit log: advisor and owner actions, plus sync heartbeats ───
	actors := []string{"dana.advisor", "lee.owner", "system"}
	auditKinds := []struct {
		kind, summary string
	}{
		{"plan.created", "Remediation plan created"},
		{"plan.updated", "Remediation plan step marked complete"},
		{"signal.acknowledged", "Cash-runway signal acknowledged"},
		{"export.generated", "Financial health report exported"},
		{"session.login", "Signed in"},
		{"sync.heartbeat", "Bank feed sync completed"},
		{"sync.heartbeat", "Bank feed sync completed"},
		{"sync.heartbeat", "Bank feed sync completed"},
	}
	for i := range 400 {
		k := auditKinds[rng.IntN(len(auditKinds))]
		actor := actors[rng.IntN(len(actors))]
		if k.kind == "sync.heartbeat" {
			actor = "system"
		}
		add("audit", i, types.AuditEntry{
			Kind:       k.kind,
			OccurredAt: at(),
			Actor:      actor,
			Summary:    k.summary,
		})
	}

	// ─── Signals: raised and resolved health signals ───
	signalCats := []string{"liquidity", "revenue", "expenses", "debt"}
	for i := range 120 {
		cat := signalCats[rng.IntN(len(signalCats))]
		kind, verb := "signal.raised", "raised"
		if rng.IntN(3) == 0 {
			kind, verb = "signal.resolved", "resolved"
		}
		payload, _ := json.Marshal(map[string]any{"severity": []string{"info", "moderate", "strong"}[rng.IntN(3)]})
		add("signals", i, types.AuditEntry{
			Kind:       kind,
			OccurredAt: at(),
			Actor:      "system",
			Category:   cat,
			Summary:    fmt.Sprintf("%s signal %s", cat, verb),
			Payload:    payload,
		})
	}

	// ─── Transactions: posted bank and card activity ───
	txnCats := []struct {
		category string
		sign     int64
		max      int64
	}{
		{"revenue", 1, 450000},
		{"payroll", -1, 900000},
		{"rent", -1, 320000},
		{"software", -1, 25000},
		{"supplies", -1, 80000},
		{"refund", 1, 15000},
	}
	accounts := []string{"checking", "savings", "credit-card"}
	for i := range 600 {
		c := txnCats[rng.IntN(len(txnCats))]
		amount := decimal.New(c.sign*(100+rng.Int64N(c.max)), -2)
		add("transactions", i, types.AuditEntry{
			Kind:       "txn.posted",
			OccurredAt: at(),
			Account:    accounts[rng.IntN(len(accounts))],
			Category:   c.category,
			Summary:    fmt.Sprintf("%s %s", c.category, amount.StringFixed(2)),
			Amount:     &amount,
		})
	}

	if err := store.Append(ctx, entries); err != nil {
		return fmt.Errorf("seeding demo data: %w", err)
	}
	log.Printf("activity: seeded %d demo entries for %s", len(entries), DemoBusinessID)
	return nil
}
