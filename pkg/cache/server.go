package cache

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// PutRequest is the body of POST /programs.
type PutRequest struct {
	EnvID   string `json:"env_id"`
	Program string `json:"program"`
}

// ProgramsResponse is the body of GET /programs.
type ProgramsResponse struct {
	Programs map[string][]string `json:"programs"`
}

// NewHandler exposes a Cache over HTTP so actors and the learner can
// share one cache across processes.
func NewHandler(c Cache) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/programs", func(w http.ResponseWriter, req *http.Request) {
		var body PutRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.EnvID == "" || body.Program == "" {
			http.Error(w, "env_id and program are required", http.StatusBadRequest)
			return
		}
		if err := c.Put(body.EnvID, body.Program); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods("POST")

	r.HandleFunc("/programs", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, ProgramsResponse{Programs: c.AllPrograms()})
	}).Methods("GET")

	r.HandleFunc("/stat", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.Stat())
	}).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return r
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
