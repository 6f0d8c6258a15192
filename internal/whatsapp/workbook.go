package whatsapp

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Recipient is one parsed row of the upload workbook.
type Recipient struct {
	Phone   string
	Message string
}

// Result is one row of the delivery report.
//
// Fields:
//   - Phone:   the number as uploaded, before normalization
//   - Message: the message body
//   - Status:  "Enviado" on success, "Error" otherwise
//   - Error:   gateway error text when Status is "Error"
type Result struct {
	Phone   string
	Message string
	Status  string
	Error   string
}

// Delivery statuses used in reports.
const (
	StatusSent   = "Enviado"
	StatusFailed = "Error"
)

// ErrNoRecipients indicates the workbook held no usable rows.
var ErrNoRecipients = errors.New("workbook contains no recipients")

// Template returns the upload template workbook: a "Template" sheet with a
// phone/message header row and one example row.
func Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Template"
	f.SetSheetName(f.GetSheetName(0), sheet)
	if err := f.SetSheetRow(sheet, "A1", &[]string{"phone", "message"}); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A2", &[]string{"3001234567", "Hola, este es un mensaje de prueba"}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseRecipients reads the first sheet of an uploaded workbook. The header
// row names the columns; rows missing either phone or message are skipped.
func ParseRecipients(r io.Reader) ([]Recipient, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrNoRecipients
	}

	phoneCol, msgCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "phone":
			phoneCol = i
		case "message":
			msgCol = i
		}
	}
	if phoneCol < 0 || msgCol < 0 {
		return nil, fmt.Errorf("workbook is missing the phone/message header row")
	}

	var out []Recipient
	for _, row := range rows[1:] {
		rec := Recipient{
			Phone:   cell(row, phoneCol),
			Message: cell(row, msgCol),
		}
		if rec.Phone == "" || rec.Message == "" {
			continue
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

// Report renders delivery results as a "Reporte" workbook.
func Report(results []Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Reporte"
	f.SetSheetName(f.GetSheetName(0), sheet)
	if err := f.SetSheetRow(sheet, "A1", &[]string{"phone", "message", "status", "error"}); err != nil {
		return nil, err
	}
	for i, r := range results {
		addr, err := excelize.JoinCellName("A", i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, addr, &[]string{r.Phone, r.Message, r.Status, r.Error}); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
