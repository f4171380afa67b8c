// Package sheets mirrors payment and handoff records to a Google
// spreadsheet so operators can follow them without database access.
package sheets

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

// Mirror keeps an append-only log of payment and handoff states. Each
// call adds a row; earlier rows are never rewritten. Callers treat
// failures as non-fatal.
type Mirror interface {
	RecordPayment(ctx context.Context, p *models.Payment) error
	RecordHandoff(ctx context.Context, h *models.HandoffRequest) error
}

// Tab ranges rows are appended to
const (
	PaymentsRange = "Payments!A:K"
	HandoffsRange = "Handoffs!A:J"
)

// GoogleMirror appends one row per state change to a spreadsheet
type GoogleMirror struct {
	svc           *gsheets.Service
	spreadsheetID string
}

// NewGoogleMirror connects to the Sheets API. Pass option.WithCredentialsFile
// for a service account.
func NewGoogleMirror(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*GoogleMirror, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &GoogleMirror{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// RecordPayment implements Mirror
func (g *GoogleMirror) RecordPayment(ctx context.Context, p *models.Payment) error {
	amount := ""
	if p.Amount != nil {
		amount = fmt.Sprintf("%.2f", *p.Amount)
	}
	return g.append(ctx, PaymentsRange, []interface{}{
		time.Now().UTC().Format(time.RFC3339),
		p.ID,
		p.Phone,
		p.ServiceID,
		amount,
		p.Currency,
		p.Status,
		p.ScreenshotURL,
		p.ReviewedBy,
		p.Notes,
		p.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// RecordHandoff implements Mirror
func (g *GoogleMirror) RecordHandoff(ctx context.Context, h *models.HandoffRequest) error {
	return g.append(ctx, HandoffsRange, []interface{}{
		time.Now().UTC().Format(time.RFC3339),
		h.ID,
		h.Phone,
		h.CustomerName,
		h.Reason,
		h.Priority,
		h.Status,
		h.AssignedTo,
		h.ResolutionNotes,
		h.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (g *GoogleMirror) append(ctx context.Context, rng string, row []interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rng, &gsheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", rng, err)
	}
	return nil
}

// NoopMirror is used when no spreadsheet is configured
type NoopMirror struct{}

// RecordPayment implements Mirror
func (NoopMirror) RecordPayment(ctx context.Context, p *models.Payment) error { return nil }

// RecordHandoff implements Mirror
func (NoopMirror) RecordHandoff(ctx context.Context, h *models.HandoffRequest) error { return nil }
