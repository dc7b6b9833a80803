package port

import (
	"testing"

	"example.com/ptpport/internal/wire"
)

func TestAccessorGetSetAndCommands(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ManagementEnabled = true })
	acc := &DatasetAccessor{Port: h.port}
	h.port.mgmt = acc

	data, errID := acc.Handle(wire.ActionGet, wire.MMPriority1, nil)
	if errID != 0 || len(data) != 2 || data[0] != 128 {
		t.Fatalf("get priority1 = %v err %v, want default 128", data, errID)
	}

	if _, errID = acc.Handle(wire.ActionSet, wire.MMPriority1, []byte{10}); errID != 0 {
		t.Fatalf("set priority1: error %v", errID)
	}
	data, _ = acc.Handle(wire.ActionGet, wire.MMPriority1, nil)
	if data[0] != 10 {
		t.Fatalf("priority1 after set = %d, want 10", data[0])
	}
	if !h.port.recordUpdate {
		t.Fatal("priority change should force a reselection")
	}

	if _, errID = acc.Handle(wire.ActionSet, wire.MMPriority2, nil); errID != wire.MgmtErrWrongLength {
		t.Fatalf("short set error = %v, want wrong-length", errID)
	}
	if _, errID = acc.Handle(wire.ActionGet, wire.ManagementID(0x7777), nil); errID != wire.MgmtErrNoSuchID {
		t.Fatalf("unknown id error = %v, want no-such-id", errID)
	}
	if _, errID = acc.Handle(wire.ActionGet, wire.MMFaultLog, nil); errID != wire.MgmtErrNotSupported {
		t.Fatalf("fault log error = %v, want not-supported", errID)
	}
	if _, errID = acc.Handle(wire.ActionSet, wire.MMPortDataSet, nil); errID != wire.MgmtErrNotSetable {
		t.Fatalf("port data set error = %v, want not-setable", errID)
	}

	if _, errID = acc.Handle(wire.ActionCommand, wire.MMDisablePort, nil); errID != 0 {
		t.Fatalf("disable port: error %v", errID)
	}
	if h.port.State() != StateDisabled {
		t.Fatalf("state = %s, want disabled", h.port.State())
	}
	if _, errID = acc.Handle(wire.ActionCommand, wire.MMEnablePort, nil); errID != 0 {
		t.Fatalf("enable port: error %v", errID)
	}
	if h.port.State() != StateListening {
		t.Fatalf("state = %s, want listening", h.port.State())
	}

	data, errID = acc.Handle(wire.ActionGet, wire.MMPortDataSet, nil)
	if errID != 0 || len(data) != 26 {
		t.Fatalf("port data set = %d bytes err %v, want 26", len(data), errID)
	}
	if data[25] != 2 {
		t.Fatalf("version in port data set = %d, want 2", data[25])
	}
}
