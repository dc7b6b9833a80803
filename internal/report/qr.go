package report

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"example.com/ptpport/internal/wire"
)

var zeroIdentity wire.ClockIdentity

// GrandmasterQR creates a QR code PNG encoding the grandmaster identity,
// so a field technician can scan which clock a unit is tracking.
func GrandmasterQR(id wire.ClockIdentity, size int) ([]byte, error) {
	if id == zeroIdentity {
		return nil, fmt.Errorf("grandmaster identity is empty")
	}
	if size <= 0 {
		size = 128
	}
	png, err := qrcode.Encode("ptp:"+id.String(), qrcode.Medium, size)
	if err != nil {
		return nil, err
	}
	return png, nil
}
