package jobs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInvoicePrefix is used when no prefix is configured.
const DefaultInvoicePrefix = "INV"

// Invoice is the part of an invoice row numbering cares about.
type Invoice struct {
	ID             string
	OrganizationID string
	Number         string
	CreatedAt      time.Time
	// Deleted invoices keep their numbers in the sequence but are never numbered.
	Deleted bool
}

// NumberAssignment gives one invoice its number.
type NumberAssignment struct {
	InvoiceID string
	Number    string
}

// InvoiceStore reads and renumbers invoices.
type InvoiceStore interface {
	// OrganizationsWithUnnumberedInvoices lists organizations that still have
	// invoices without a number.
	OrganizationsWithUnnumberedInvoices(ctx context.Context) ([]string, error)
	OrganizationInvoices(ctx context.Context, orgID string) ([]Invoice, error)
	// AssignInvoiceNumbers applies all assignments of one organization atomically.
	AssignInvoiceNumbers(ctx context.Context, orgID string, assignments []NumberAssignment) error
}

// FormatInvoiceNumber renders PREFIX-YYYY-NNNN. Sequences past 9999 keep growing.
func FormatInvoiceNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%04d", normalizePrefix(prefix), year, seq)
}

// ParseInvoiceNumber is the inverse of FormatInvoiceNumber.
func ParseInvoiceNumber(prefix, number string) (year, seq int, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(number), normalizePrefix(prefix)+"-")
	if !found {
		return 0, 0, false
	}
	y, s, found := strings.Cut(rest, "-")
	if !found || len(y) != 4 || len(s) < 4 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(s)
	if err != nil || seq <= 0 {
		return 0, 0, false
	}
	return year, seq, true
}

func normalizePrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return DefaultInvoicePrefix
	}
	return prefix
}

// PlanInvoiceNumbers numbers the unnumbered invoices of one organization.
// Numbers follow creation order and continue after the highest existing
// sequence of the same year. Numbers in a foreign format are left alone and
// do not affect the sequence.
func PlanInvoiceNumbers(prefix string, invoices []Invoice) []NumberAssignment {
	highest := make(map[int]int)
	var pending []Invoice
	for _, inv := range invoices {
		if strings.TrimSpace(inv.Number) == "" {
			if !inv.Deleted {
				pending = append(pending, inv)
			}
			continue
		}
		if year, seq, ok := ParseInvoiceNumber(prefix, inv.Number); ok && seq > highest[year] {
			highest[year] = seq
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	out := make([]NumberAssignment, 0, len(pending))
	for _, inv := range pending {
		year := inv.CreatedAt.UTC().Year()
		highest[year]++
		out = append(out, NumberAssignment{InvoiceID: inv.ID, Number: FormatInvoiceNumber(prefix, year, highest[year])})
	}
	return out
}

// InvoiceNumbering backfills invoice numbers organization by organization.
type InvoiceNumbering struct {
	store  InvoiceStore
	prefix string
	log    zerolog.Logger
}

// NewInvoiceNumbering builds the job.
func NewInvoiceNumbering(store InvoiceStore, prefix string, logger zerolog.Logger) *InvoiceNumbering {
	return &InvoiceNumbering{store: store, prefix: normalizePrefix(prefix), log: logger}
}

// Run numbers every unnumbered invoice. A failing organization is logged and
// skipped; the first such error is returned after all organizations ran.
func (j *InvoiceNumbering) Run(ctx context.Context) (int64, error) {
	orgs, err := j.store.OrganizationsWithUnnumberedInvoices(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobs: list organizations: %w", err)
	}

	var (
		total    int64
		firstErr error
	)
	for _, orgID := range orgs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := j.runOrganization(ctx, orgID)
		if err != nil {
			j.log.Error().Err(err).Str("organization_id", orgID).Msg("invoice numbering failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += int64(n)
	}
	return total, firstErr
}

func (j *InvoiceNumbering) runOrganization(ctx context.Context, orgID string) (int, error) {
	invoices, err := j.store.OrganizationInvoices(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("jobs: load invoices: %w", err)
	}
	plan := PlanInvoiceNumbers(j.prefix, invoices)
	if len(plan) == 0 {
		return 0, nil
	}
	if err := j.store.AssignInvoiceNumbers(ctx, orgID, plan); err != nil {
		return 0, fmt.Errorf("jobs: assign numbers: %w", err)
	}
	j.log.Info().Str("organization_id", orgID).Int("assigned", len(plan)).Msg("invoice numbers assigned")
	return len(plan), nil
}
