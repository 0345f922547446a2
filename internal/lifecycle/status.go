package lifecycle

import (
	"encoding/json"
	"strings"
)

// ExtractStatus pulls the status string out of a status response.
// Accounts and API versions differ in where they put it; the known
// shapes are service.status, service.state, and a top-level state.
func ExtractStatus(body []byte) (string, bool) {
	var payload struct {
		State   string `json:"state"`
		Service struct {
			Status string `json:"status"`
			State  string `json:"state"`
		} `json:"service"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	for _, s := range []string{payload.Service.Status, payload.Service.State, payload.State} {
		if strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// Normalize lower-cases and trims a raw status string for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
