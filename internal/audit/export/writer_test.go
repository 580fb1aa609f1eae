package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"colorgarb_portal_backend/internal/audit/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func sampleEntry() repository.CommunicationLog {
	orderID := uuid.New()
	orgID := uuid.New()
	return repository.CommunicationLog{
		ID:             uuid.New(),
		OrderID:        &orderID,
		OrganizationID: &orgID,
		Type:           repository.TypeEmail,
		Direction:      "Outbound",
		Sender:         "noreply@colorgarb.example",
		Recipient:      "director@lincolnhs.example",
		Subject:        "Order CG-2026-0042 moved to Sewing",
		BodyExcerpt:    "Your order has reached the Sewing stage.",
		DeliveryStatus: repository.StatusDelivered,
		SentAt:         time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC),
	}
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(repository.FormatCSV, &buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	entry := sampleEntry()
	if err := w.Write(entry); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("rows = %d, want header plus one entry", len(records))
	}
	if records[0][0] != "ID" || records[0][3] != "Type" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][3] != repository.TypeEmail {
		t.Errorf("type column = %q", records[1][3])
	}
	if records[1][9] != repository.StatusDelivered {
		t.Errorf("status column = %q", records[1][9])
	}
	if !strings.HasPrefix(records[1][10], "2026-03-04T10:30:00") {
		t.Errorf("sentAt column = %q", records[1][10])
	}
}

func TestCSVWriterEmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(repository.FormatCSV, &buf)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("rows = %d, want header only", len(records))
	}
}

func TestExcelWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(repository.FormatExcel, &buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	entry := sampleEntry()
	if err := w.Write(entry); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header plus one entry", len(rows))
	}
	if rows[0][0] != "ID" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][6] != entry.Recipient {
		t.Errorf("recipient cell = %q", rows[1][6])
	}
}

func TestNewWriterUnknownFormat(t *testing.T) {
	if _, err := NewWriter("pdf", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
