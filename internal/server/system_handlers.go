package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/tracker/internal/clients/pricefeed"
	"github.com/aristath/tracker/internal/database"
	"github.com/aristath/tracker/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// cpuSampleInterval keeps the status call fast while still giving a usable reading
const cpuSampleInterval = 100 * time.Millisecond

// EntryLister lists scheduled jobs
type EntryLister interface {
	Entries() []scheduler.Entry
}

// FeedStatus reports the price feed connection
type FeedStatus interface {
	Status() pricefeed.Status
}

// DatabaseStatus is one database in the status report
type DatabaseStatus struct {
	Stats *database.Stats `json:"stats,omitempty"`
	Name  string          `json:"name"`
	Error string          `json:"error,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	StartedAt  time.Time         `json:"started_at"`
	PriceFeed  *pricefeed.Status `json:"price_feed,omitempty"`
	Uptime     string            `json:"uptime"`
	GoVersion  string            `json:"go_version"`
	Databases  []DatabaseStatus  `json:"databases"`
	Jobs       []scheduler.Entry `json:"jobs"`
	CPUPercent float64           `json:"cpu_percent"`
	RAMPercent float64           `json:"ram_percent"`
	Goroutines int               `json:"goroutines"`
}

// SystemHandlers serves process and storage diagnostics
type SystemHandlers struct {
	startedAt time.Time
	databases []*database.DB
	jobs      EntryLister
	feed      FeedStatus
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers. jobs and feed may be nil.
func NewSystemHandlers(databases []*database.DB, jobs EntryLister, feed FeedStatus, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		startedAt: time.Now(),
		databases: databases,
		log:       log.With().Str("handler", "system").Logger(),
	}
	// Avoid storing typed nil pointers behind the interfaces
	if s, ok := jobs.(*scheduler.Scheduler); !ok || s != nil {
		h.jobs = jobs
	}
	if f, ok := feed.(*pricefeed.Client); !ok || f != nil {
		h.feed = feed
	}
	return h
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()
	response := SystemStatusResponse{
		StartedAt:  h.startedAt,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		GoVersion:  runtime.Version(),
		Databases:  make([]DatabaseStatus, 0, len(h.databases)),
		Jobs:       []scheduler.Entry{},
		CPUPercent: cpuPercent,
		RAMPercent: ramPercent,
		Goroutines: runtime.NumGoroutine(),
	}

	for _, db := range h.databases {
		status := DatabaseStatus{Name: db.Name()}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			status.Error = err.Error()
		} else {
			status.Stats = stats
		}
		response.Databases = append(response.Databases, status)
	}

	if h.jobs != nil {
		response.Jobs = h.jobs.Entries()
	}
	if h.feed != nil {
		feed := h.feed.Status()
		response.PriceFeed = &feed
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(cpuSampleInterval, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
