// Package report renders a synchronization status report as a PDF
// document, summarizing each port's state, parent and counters.
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/ptpport/internal/port"
)

// SaveStatusPDF renders the given port snapshots into a PDF document.
func SaveStatusPDF(snaps []port.Snapshot, generated time.Time, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("PTP Synchronization Report", false)
	pdf.SetAuthor("ptpctl", false)
	pdf.SetCreator("ptpctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "PTP Synchronization Report")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, "Generated "+generated.UTC().Format(time.RFC3339))
	pdf.Ln(10)

	if len(snaps) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No ports reported.", "", "L", false)
	}
	for i := range snaps {
		addPortSection(pdf, &snaps[i])
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addPortSection(pdf *gofpdf.Fpdf, snap *port.Snapshot) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, fmt.Sprintf("Port %s (domain %d)", snap.Name, snap.DomainNumber))
	pdf.Ln(9)

	addSummaryRows(pdf, snap)
	addGrandmasterQR(pdf, snap)
	addCountersSection(pdf, &snap.Counters)
	addForeignSection(pdf, snap.ForeignMasters)
	pdf.Ln(6)
}

func addSummaryRows(pdf *gofpdf.Fpdf, snap *port.Snapshot) {
	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "State", value: snap.State},
		{label: "Alarms", value: snap.Alarms},
		{label: "Port Identity", value: snap.PortIdentity.String()},
		{label: "Parent", value: snap.ParentPortIdentity.String()},
		{label: "Grandmaster", value: snap.GrandmasterIdentity.String()},
		{label: "Steps Removed", value: strconv.Itoa(int(snap.StepsRemoved))},
		{label: "UTC Offset", value: strconv.Itoa(int(snap.CurrentUTCOffset))},
		{label: "Announce Interval (log2)", value: strconv.Itoa(int(snap.LogAnnounceInterval))},
		{label: "Sync Interval (log2)", value: strconv.Itoa(int(snap.LogSyncInterval))},
	}
	for _, item := range items {
		pdf.CellFormat(55, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
}

func addGrandmasterQR(pdf *gofpdf.Fpdf, snap *port.Snapshot) {
	png, err := GrandmasterQR(snap.GrandmasterIdentity, 192)
	if err != nil {
		return
	}
	name := "gm-" + snap.Name
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	x := pdf.GetX()
	y := pdf.GetY()
	pdf.ImageOptions(name, 160, y-58, 30, 30, false, opts, 0, "")
	pdf.SetXY(x, y)
}

func addCountersSection(pdf *gofpdf.Fpdf, c *port.Counters) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Counters")
	pdf.Ln(9)

	rows := []struct {
		label string
		value uint64
	}{
		{"Announce rx/tx", c.AnnounceMessagesReceived + c.AnnounceMessagesSent},
		{"Sync rx/tx", c.SyncMessagesReceived + c.SyncMessagesSent},
		{"Delay exchanges", c.DelayRespMessagesReceived},
		{"Master changes", c.MasterChanges},
		{"Format errors", c.MessageFormatErrors},
		{"Sequence mismatches", c.SequenceMismatchErrors},
		{"Announce timeouts", c.AnnounceTimeouts},
		{"Sync timeouts", c.SyncTimeouts},
		{"Delay response timeouts", c.DelayRespTimeouts},
		{"Faults entered", c.FaultsEntered},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		pdf.CellFormat(70, 5, row.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, strconv.FormatUint(row.value, 10), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
}

func addForeignSection(pdf *gofpdf.Fpdf, masters []port.ForeignMasterInfo) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Foreign Masters")
	pdf.Ln(9)

	if len(masters) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, "No foreign masters tracked.", "", "L", false)
		return
	}

	headers := []string{"Source", "Grandmaster", "Prio1", "Class", "Steps", "Selected"}
	widths := []float64{50, 50, 18, 18, 18, 24}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, m := range masters {
		selected := ""
		if m.Selected {
			selected = "yes"
		}
		values := []string{
			m.SourcePortIdentity.String(),
			m.GrandmasterIdentity.String(),
			strconv.Itoa(int(m.GrandmasterPriority1)),
			strconv.Itoa(int(m.ClockClass)),
			strconv.Itoa(int(m.StepsRemoved)),
			selected,
		}
		for i, v := range values {
			pdf.CellFormat(widths[i], 5, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
