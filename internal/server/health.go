// SPDX-License-Identifier: MIT
package server

import (
	"net/http"
)

type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// handleReadyz reports ready once the clip directory can be listed.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	res := healthResult{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK

	if names, err := s.clips.Names(); err != nil {
		res.Status = "fail"
		res.Checks["clips"] = "fail: " + err.Error()
		status = http.StatusServiceUnavailable
	} else if len(names) == 0 {
		res.Checks["clips"] = "ok: empty"
	} else {
		res.Checks["clips"] = "ok"
	}
	writeJSON(w, status, res)
}
