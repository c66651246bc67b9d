// Package handlers provides HTTP API handlers for nodecast.
package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/zyp1690/nodecast-tv/internal/transcode"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version    string
	startTime  time.Time
	transcoder *transcode.Service
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, transcoder *transcode.Service) *HealthHandler {
	return &HealthHandler{
		version:    version,
		startTime:  time.Now(),
		transcoder: transcoder,
	}
}

// FFmpegHealth reports transcoder availability.
type FFmpegHealth struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MemoryInfo reports system memory usage.
type MemoryInfo struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	Version       string       `json:"version"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	CPUCores      int          `json:"cpu_cores"`
	Load1         float64      `json:"load_1m,omitempty"`
	Memory        *MemoryInfo  `json:"memory,omitempty"`
	FFmpeg        FFmpegHealth `json:"ffmpeg"`
	LiveSessions  int          `json:"live_sessions"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Description: "Returns service health including FFmpeg availability and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the service health. The service stays "healthy" without
// FFmpeg: direct and relayed delivery keep working, only the transcoded
// fallback is lost, and the response says so.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPUCores:      runtime.NumCPU(),
		LiveSessions:  len(h.transcoder.Sessions()),
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		resp.Load1 = avg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		resp.Memory = &MemoryInfo{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	}

	if info, err := h.transcoder.Available(ctx); err != nil {
		resp.FFmpeg = FFmpegHealth{Available: false, Error: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.FFmpeg = FFmpegHealth{
			Available: true,
			Path:      info.FFmpegPath,
			Version:   info.Version,
		}
	}

	return &HealthOutput{Body: resp}, nil
}
