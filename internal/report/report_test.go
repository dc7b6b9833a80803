package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/ptpport/internal/port"
	"example.com/ptpport/internal/wire"
)

var testIdentity = wire.ClockIdentity{0x00, 0x0B, 0x17, 0xFF, 0xFE, 0x00, 0x00, 0x99}

func TestGrandmasterQR(t *testing.T) {
	png, err := GrandmasterQR(testIdentity, 0)
	if err != nil {
		t.Fatalf("GrandmasterQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
	if _, err := GrandmasterQR(wire.ClockIdentity{}, 128); err == nil {
		t.Fatal("expected an error for an empty identity")
	}
}

func TestSaveStatusPDF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "status.pdf")
	snaps := []port.Snapshot{
		{
			Name:                "eth0",
			State:               "slave",
			Alarms:              "none",
			GrandmasterIdentity: testIdentity,
			StepsRemoved:        1,
			ForeignMasters: []port.ForeignMasterInfo{
				{
					SourcePortIdentity:  wire.PortIdentity{ClockIdentity: testIdentity, PortNumber: 1},
					GrandmasterIdentity: testIdentity,
					ClockClass:          6,
					Selected:            true,
				},
			},
		},
	}
	if err := SaveStatusPDF(snaps, time.Now(), out); err != nil {
		t.Fatalf("SaveStatusPDF: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("report file is empty")
	}
}
