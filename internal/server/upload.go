// SPDX-License-Identifier: MIT
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	applog "pulse/internal/log"
	"pulse/internal/observe"
	"pulse/internal/remote"

	"github.com/klauspost/compress/gzip"
)

// uploadBody mirrors remote.Payload with raw fields so missing keys can be
// told apart from empty ones.
type uploadBody struct {
	FrequencyData json.RawMessage `json:"frequencyData"`
	AudioBuffer   json.RawMessage `json:"audioBuffer"`
	SampleRate    float64         `json:"sampleRate"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func missing(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, msg, detail string) {
	s.metrics.RecordServerUpload(r.Context(), observe.StatusError)
	applog.Warnf("Server: Rejected upload: %s %s", msg, detail)
	writeJSON(w, status, errorResponse{Error: msg, Message: detail})
}

func (s *Server) handleFrequencyData(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		s.reject(w, r, http.StatusBadRequest, "Invalid data format, JSON expected", "")
		return
	}

	var body io.Reader = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(body)
		if err != nil {
			s.reject(w, r, http.StatusBadRequest, "Invalid gzip body", err.Error())
			return
		}
		defer zr.Close()
		// The inflated stream gets the same cap as the wire bytes.
		body = http.MaxBytesReader(w, io.NopCloser(zr), s.cfg.MaxBodyBytes)
	}

	var req uploadBody
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.reject(w, r, http.StatusRequestEntityTooLarge, "Upload too large", err.Error())
			return
		}
		s.reject(w, r, http.StatusBadRequest, "Invalid data format, JSON expected", err.Error())
		return
	}

	if missing(req.FrequencyData) {
		s.reject(w, r, http.StatusBadRequest, "Missing frequency data", "")
		return
	}
	if missing(req.AudioBuffer) {
		s.reject(w, r, http.StatusBadRequest, "Missing audio buffer", "")
		return
	}

	var freq []int
	if err := json.Unmarshal(req.FrequencyData, &freq); err != nil {
		s.reject(w, r, http.StatusBadRequest, "Invalid frequency data", err.Error())
		return
	}
	var encoded string
	if err := json.Unmarshal(req.AudioBuffer, &encoded); err != nil {
		s.reject(w, r, http.StatusBadRequest, "Error decoding audio buffer", err.Error())
		return
	}
	samples, err := remote.DecodeSamples(encoded)
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "Error decoding audio buffer", err.Error())
		return
	}

	applog.Infof("Server: Received frequency data length: %d, audio buffer length: %d", len(freq), len(samples))

	if s.archive != nil && len(samples) > 0 {
		if path, err := s.archive.Save(samples, req.SampleRate); err != nil {
			applog.Errorf("Server: Archiving upload: %v", err)
		} else {
			applog.Debugf("Server: Archived upload to %s", path)
		}
	}

	s.metrics.RecordServerUpload(r.Context(), observe.StatusOK)
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Data received"})
}
