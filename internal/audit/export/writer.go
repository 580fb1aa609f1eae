// Package export writes communication audit result sets as CSV or Excel files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"colorgarb_portal_backend/internal/audit/repository"

	"github.com/xuri/excelize/v2"
)

// Content types for the supported formats.
const (
	ContentTypeCSV   = "text/csv"
	ContentTypeExcel = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FileExtension returns the artifact extension for a format.
func FileExtension(format string) string {
	if format == repository.FormatExcel {
		return ".xlsx"
	}
	return ".csv"
}

// ContentType returns the artifact content type for a format.
func ContentType(format string) string {
	if format == repository.FormatExcel {
		return ContentTypeExcel
	}
	return ContentTypeCSV
}

var columns = []string{
	"ID", "Order ID", "Organization ID", "Type", "Direction", "Sender",
	"Recipient", "Subject", "Body Excerpt", "Delivery Status", "Sent At",
	"External Message ID",
}

func rowOf(entry repository.CommunicationLog) []string {
	orderID, orgID := "", ""
	if entry.OrderID != nil {
		orderID = entry.OrderID.String()
	}
	if entry.OrganizationID != nil {
		orgID = entry.OrganizationID.String()
	}
	return []string{
		entry.ID.String(),
		orderID,
		orgID,
		entry.Type,
		entry.Direction,
		entry.Sender,
		entry.Recipient,
		entry.Subject,
		entry.BodyExcerpt,
		entry.DeliveryStatus,
		entry.SentAt.UTC().Format(time.RFC3339),
		entry.ExternalMessageID,
	}
}

// Writer appends audit entries to an export artifact one row at a time.
type Writer interface {
	Write(entry repository.CommunicationLog) error
	// Flush finalizes the artifact to the underlying output.
	Flush() error
}

// NewWriter creates a writer for the format, emitting to w.
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch format {
	case repository.FormatCSV:
		return newCSVWriter(w), nil
	case repository.FormatExcel:
		return newExcelWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

type csvWriter struct {
	w       *csv.Writer
	started bool
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: csv.NewWriter(w)}
}

func (c *csvWriter) Write(entry repository.CommunicationLog) error {
	if !c.started {
		if err := c.w.Write(columns); err != nil {
			return err
		}
		c.started = true
	}
	return c.w.Write(rowOf(entry))
}

func (c *csvWriter) Flush() error {
	if !c.started {
		if err := c.w.Write(columns); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

const sheetName = "Communication Audit"

type excelWriter struct {
	out  io.Writer
	file *excelize.File
	row  int
}

func newExcelWriter(out io.Writer) *excelWriter {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", sheetName)

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	f.SetSheetRow(sheetName, "A1", &header)
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		f.SetCellStyle(sheetName, "A1", end, style)
	}

	return &excelWriter{out: out, file: f, row: 2}
}

func (e *excelWriter) Write(entry repository.CommunicationLog) error {
	cell, err := excelize.CoordinatesToCellName(1, e.row)
	if err != nil {
		return err
	}
	values := rowOf(entry)
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := e.file.SetSheetRow(sheetName, cell, &row); err != nil {
		return err
	}
	e.row++
	return nil
}

func (e *excelWriter) Flush() error {
	defer e.file.Close()
	return e.file.Write(e.out)
}
