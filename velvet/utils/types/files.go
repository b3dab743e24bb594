// velvet/utils/types/files.go
package types

import (
	"time"

	"github.com/google/uuid"
)

type FileUploadResponse struct {
	FileID         uuid.UUID `json:"file_id"`
	Filename       string    `json:"filename"`
	FileType       string    `json:"file_type"`
	Size           int64     `json:"size"`
	Status         string    `json:"status"`
	ProcessingTime float64   `json:"processing_time"`
}

type FileInfo struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	Size      int64     `json:"size"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type SeriesRequest struct {
	Series    []string `json:"series"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

type SeriesPoint struct {
	Date       string  `json:"date"`
	Value      float64 `json:"value"`
	SeriesCode string  `json:"series_code"`
}

type SeriesResponse struct {
	Series    []string       `json:"series"`
	Data      []SeriesPoint  `json:"data"`
	Metadata  map[string]any `json:"metadata"`
	Error     string         `json:"error,omitempty"`
	QueryTime time.Time      `json:"query_time"`
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}
