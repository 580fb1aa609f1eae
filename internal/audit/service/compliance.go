package service

import (
	"bytes"
	"context"
	"html/template"
	"sort"
	"time"

	"colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/pdf"
	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// complianceMaxRows bounds the detail table of a compliance report.
const complianceMaxRows = 500

var complianceTmpl = template.Must(template.New("compliance").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 11px; color: #1a1a2e; }
  h1 { font-size: 18px; margin-bottom: 2px; }
  .meta { color: #555; margin-bottom: 16px; }
  table { width: 100%; border-collapse: collapse; margin-bottom: 18px; }
  th { text-align: left; background: #eef1f6; padding: 5px 7px; border-bottom: 2px solid #cbd2dd; }
  td { padding: 4px 7px; border-bottom: 1px solid #e3e7ee; }
  .num { text-align: right; }
</style>
</head>
<body>
<h1>Communication Compliance Report</h1>
<p class="meta">Organization {{.OrganizationID}} &middot; {{.DateFrom}} through {{.DateTo}} &middot; generated {{.GeneratedAt}}</p>

<h2>Delivery status breakdown</h2>
<table>
  <tr><th>Status</th><th class="num">Count</th></tr>
  {{range .StatusRows}}<tr><td>{{.Key}}</td><td class="num">{{.Count}}</td></tr>{{end}}
</table>

<h2>Communication type breakdown</h2>
<table>
  <tr><th>Type</th><th class="num">Count</th></tr>
  {{range .TypeRows}}<tr><td>{{.Key}}</td><td class="num">{{.Count}}</td></tr>{{end}}
</table>

<h2>Entries ({{.TotalCount}} total{{if .Truncated}}, first {{len .Entries}} shown{{end}})</h2>
<table>
  <tr><th>Sent</th><th>Type</th><th>Recipient</th><th>Subject</th><th>Status</th></tr>
  {{range .Entries}}<tr>
    <td>{{.SentAt}}</td><td>{{.Type}}</td><td>{{.Recipient}}</td><td>{{.Subject}}</td><td>{{.DeliveryStatus}}</td>
  </tr>{{end}}
</table>
</body>
</html>`))

type summaryRow struct {
	Key   string
	Count int
}

type complianceEntry struct {
	SentAt         string
	Type           string
	Recipient      string
	Subject        string
	DeliveryStatus string
}

type complianceData struct {
	OrganizationID string
	DateFrom       string
	DateTo         string
	GeneratedAt    string
	TotalCount     int
	Truncated      bool
	StatusRows     []summaryRow
	TypeRows       []summaryRow
	Entries        []complianceEntry
}

func summaryRows(m map[string]int) []summaryRow {
	rows := make([]summaryRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, summaryRow{Key: k, Count: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// ComplianceReport renders a PDF summary of an organization's communications
// over a date range.
func (s *Service) ComplianceReport(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]byte, error) {
	if s.converter == nil {
		return nil, apperr.Internal("pdf rendering is not configured")
	}
	if to.Before(from) {
		return nil, apperr.Validation("dateTo must not be before dateFrom")
	}

	filters := repository.SearchFilters{
		OrganizationID: &orgID,
		DateFrom:       &from,
		DateTo:         &to,
		Page:           1,
		PageSize:       1,
	}
	result, err := s.logs.Search(ctx, filters)
	if err != nil {
		return nil, err
	}

	data := complianceData{
		OrganizationID: orgID.String(),
		DateFrom:       from.Format("2006-01-02"),
		DateTo:         to.Format("2006-01-02"),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		TotalCount:     result.TotalCount,
		Truncated:      result.TotalCount > complianceMaxRows,
		StatusRows:     summaryRows(result.StatusSummary),
		TypeRows:       summaryRows(result.TypeSummary),
	}

	_, err = s.logs.Stream(ctx, filters, complianceMaxRows, func(entry repository.CommunicationLog) error {
		data.Entries = append(data.Entries, complianceEntry{
			SentAt:         entry.SentAt.UTC().Format("2006-01-02 15:04"),
			Type:           entry.Type,
			Recipient:      entry.Recipient,
			Subject:        entry.Subject,
			DeliveryStatus: entry.DeliveryStatus,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := complianceTmpl.Execute(&html, data); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "render compliance report", err)
	}

	doc, err := s.converter.ConvertHTML(ctx, html.Bytes(), pdf.ReportOpts())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "convert compliance report", err)
	}
	return doc, nil
}
