package models

// Status summarizes service-wide counters.
type Status struct {
	Documents   int   `json:"documents"`
	Sessions    int   `json:"sessions"`
	Vectors     int   `json:"vectors"`
	UploadBytes int64 `json:"upload_bytes"`
}
