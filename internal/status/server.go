package status

import (
	"encoding/json"
	"net/http"

	"example.com/ptpport/internal/port"
)

// Server serves the status endpoints from a Store.
type Server struct {
	store *Store
}

// NewServer creates a server over the given store.
func NewServer(store *Store) *Server {
	return &Server{store: store}
}

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/counters", s.handleCounters)
	mux.HandleFunc("/foreign", s.handleForeign)
	mux.HandleFunc("/interfaces", s.handleInterfaces)
	mux.HandleFunc("/observations", s.handleObservations)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, s.store.Snapshots())
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	out := make(map[string]port.Counters)
	for _, snap := range s.store.Snapshots() {
		out[snap.Name] = snap.Counters
	}
	writeJSON(w, out)
}

func (s *Server) handleForeign(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	out := make(map[string][]port.ForeignMasterInfo)
	for _, snap := range s.store.Snapshots() {
		out[snap.Name] = snap.ForeignMasters
	}
	writeJSON(w, out)
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, s.store.Interfaces())
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, s.store.Observations())
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
