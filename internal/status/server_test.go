package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/ptpport/internal/port"
	"example.com/ptpport/internal/wire"
)

func testStore() *Store {
	store := NewStore()
	store.PublishPort(port.Snapshot{
		Name:         "eth0",
		State:        "slave",
		DomainNumber: 0,
		GrandmasterIdentity: wire.ClockIdentity{
			0x00, 0x0B, 0x17, 0xFF, 0xFE, 0x00, 0x00, 0x99,
		},
		Counters: port.Counters{AnnounceMessagesReceived: 12},
	})
	store.PublishPort(port.Snapshot{Name: "eth1", State: "master"})
	store.PublishInterface("eth0", port.InterfaceStats{VersionMismatches: 3}, nil)
	return store
}

func TestStatusEndpoint(t *testing.T) {
	router := NewRouter(NewServer(testStore()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	var snaps []port.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Name != "eth0" || snaps[1].Name != "eth1" {
		t.Fatalf("snapshots = %+v, want eth0 then eth1", snaps)
	}
	if snaps[0].State != "slave" {
		t.Fatalf("eth0 state = %s, want slave", snaps[0].State)
	}
}

func TestCountersEndpoint(t *testing.T) {
	router := NewRouter(NewServer(testStore()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/counters", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	var out map[string]port.Counters
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out["eth0"].AnnounceMessagesReceived != 12 {
		t.Fatalf("eth0 announces = %d, want 12", out["eth0"].AnnounceMessagesReceived)
	}
}

func TestInterfacesEndpoint(t *testing.T) {
	router := NewRouter(NewServer(testStore()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/interfaces", nil))
	var out map[string]port.InterfaceStats
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out["eth0"].VersionMismatches != 3 {
		t.Fatalf("version mismatches = %d, want 3", out["eth0"].VersionMismatches)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := NewRouter(NewServer(testStore()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want 405", rr.Code)
	}
}
