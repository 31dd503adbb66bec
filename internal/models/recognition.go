package models

import "time"

// Base64Request is the JSON body of the base64 endpoints. Base64String is
// accepted for clients of the older /api/v1/ocr route.
type Base64Request struct {
	Base64       string `json:"base64"`
	Base64String string `json:"base64_string,omitempty"`
	FileName     string `json:"filename,omitempty"`
}

// Payload returns whichever base64 field was set.
func (r Base64Request) Payload() string {
	if r.Base64 != "" {
		return r.Base64
	}
	return r.Base64String
}

// RecognitionResponse represents the output of a recognition request
type RecognitionResponse struct {
	Success  bool    `json:"success"`
	ID       string  `json:"id,omitempty"`
	Backend  string  `json:"backend,omitempty"`
	Text     string  `json:"text"`
	Duration float64 `json:"duration"` // seconds
	Sample   string  `json:"sample,omitempty"` // archived object, when storage is enabled
}

// TextResponse is the body of /api/v1/ocr.
type TextResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

// BackendInfo describes one registered backend.
type BackendInfo struct {
	Name      string `json:"name"`
	Default   bool   `json:"default"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Recognition is one audit log row.
type Recognition struct {
	ID           string    `json:"id"`
	Backend      string    `json:"backend"`
	Source       string    `json:"source"` // multipart, base64 or path
	Text         string    `json:"text"`
	Status       string    `json:"status"` // succeeded or failed
	ErrorKind    string    `json:"error_kind,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	SampleObject string    `json:"sample_object,omitempty"`
	SampleURL    string    `json:"sample_url,omitempty"` // presigned, filled in on listing
	CreatedAt    time.Time `json:"created_at"`
}

// BackendStats aggregates the audit log per backend.
type BackendStats struct {
	Backend       string  `json:"backend"`
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}
