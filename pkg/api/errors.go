package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// ProblemDetails is an RFC 7807 error body, sent as application/problem+json.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func (pd *ProblemDetails) Error() string {
	return fmt.Sprintf("%d %s: %s", pd.Status, pd.Title, pd.Detail)
}

// NewProblem titles the problem with the status text of status.
func NewProblem(status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

func WriteProblem(w http.ResponseWriter, pd *ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(pd.Status)
	if err := json.NewEncoder(w).Encode(pd); err != nil {
		log.Printf("Error encoding problem %d for %s: %v", pd.Status, pd.Instance, err)
	}
}

func WriteError(w http.ResponseWriter, status int, detail, instance string) {
	WriteProblem(w, NewProblem(status, detail, instance))
}

func WriteInternalServerError(w http.ResponseWriter, err error, instance string) {
	WriteError(w, http.StatusInternalServerError, err.Error(), instance)
}

func WriteBadRequest(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusBadRequest, detail, instance)
}

func WriteNotFound(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusNotFound, detail, instance)
}

func WriteMethodNotAllowed(w http.ResponseWriter, allowed, instance string) {
	w.Header().Set("Allow", allowed)
	WriteError(w, http.StatusMethodNotAllowed, "Use "+allowed+".", instance)
}

// WriteUnprocessable is used for well-formed requests naming a source no
// strategy can handle.
func WriteUnprocessable(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusUnprocessableEntity, detail, instance)
}
