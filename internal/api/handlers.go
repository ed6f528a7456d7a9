package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mpaland/chan-sccp/internal/call"
)

// handleListChannels returns a paginated list of channel snapshots, ordered
// by call ID.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	snaps := s.calls.Snapshots()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })

	total := len(snaps)
	lo := pg.Offset
	if lo > total {
		lo = total
	}
	hi := lo + pg.Limit
	if hi > total {
		hi = total
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  snaps[lo:hi],
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetChannel returns the snapshot of a single channel.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := channelID(w, r)
	if !ok {
		return
	}

	snap, ok := s.calls.ChannelSnapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleHangupChannel administratively ends a call.
func (s *Server) handleHangupChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := channelID(w, r)
	if !ok {
		return
	}

	if err := s.calls.HangupChannel(id); err != nil {
		if errors.Is(err, call.ErrChannelNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "hangup": true})
}

// handleListLines returns snapshots of all configured lines.
func (s *Server) handleListLines(w http.ResponseWriter, r *http.Request) {
	lines := s.calls.LineSnapshots()
	if lines == nil {
		lines = []call.LineSnapshot{}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
	writeJSON(w, http.StatusOK, lines)
}

// handleListDevices returns snapshots of all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.calls.DeviceSnapshots()
	if devices == nil {
		devices = []call.DeviceSnapshot{}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	writeJSON(w, http.StatusOK, devices)
}

// defaultNotifyTimeoutSec is how long a notify stays on the display when
// the request does not say.
const defaultNotifyTimeoutSec = 10

// deviceNotifyRequest is the body of POST /devices/{id}/notify.
type deviceNotifyRequest struct {
	Message    string `json:"message"`
	TimeoutSec int    `json:"timeout_sec"`
}

// handleNotifyDevice pushes an operator text message to a device display.
func (s *Server) handleNotifyDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req deviceNotifyRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	if req.TimeoutSec < 0 {
		writeError(w, http.StatusBadRequest, "timeout_sec must not be negative")
		return
	}
	if req.TimeoutSec == 0 {
		req.TimeoutSec = defaultNotifyTimeoutSec
	}

	if err := s.calls.NotifyDevice(deviceID, req.Message, req.TimeoutSec); err != nil {
		switch {
		case errors.Is(err, call.ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, call.ErrNoSession):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"device": deviceID, "notified": true})
}

// channelID parses the {id} URL parameter. Writes a 400 and returns
// ok=false on invalid input.
func channelID(w http.ResponseWriter, r *http.Request) (call.ID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return 0, false
	}
	return call.ID(n), true
}

// systemStatusResponse is the shape returned by GET /system/status.
type systemStatusResponse struct {
	Gateway gatewayStatusResponse `json:"gateway"`
	Stats   systemStatsResponse   `json:"stats"`
	Uptime  uptimeResponse        `json:"uptime"`
}

type gatewayStatusResponse struct {
	BindAddr     string `json:"bind_addr"`
	SCCPPort     int    `json:"sccp_port"`
	RTPPortMin   int    `json:"rtp_port_min"`
	RTPPortMax   int    `json:"rtp_port_max"`
	ExternalHost string `json:"external_host,omitempty"`
}

type systemStatsResponse struct {
	Channels       int    `json:"channels"`
	MediaSessions  int    `json:"media_sessions"`
	Lines          int    `json:"lines"`
	Devices        int    `json:"devices"`
	CallIDPosition uint32 `json:"call_id_position"`
}

type uptimeResponse struct {
	StartedAt  string `json:"started_at"`
	UptimeSec  int64  `json:"uptime_sec"`
	UptimeText string `json:"uptime_text"`
}

// handleSystemStatus returns the gateway configuration, live call stats,
// and uptime.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	mediaSessions := 0
	if s.media != nil {
		mediaSessions = s.media.Count()
	}

	uptimeDur := time.Since(s.startTime)

	resp := systemStatusResponse{
		Gateway: gatewayStatusResponse{
			BindAddr:     s.cfg.BindAddr,
			SCCPPort:     s.cfg.SCCPPort,
			RTPPortMin:   s.cfg.RTPPortMin,
			RTPPortMax:   s.cfg.RTPPortMax,
			ExternalHost: s.cfg.ExternalHost,
		},
		Stats: systemStatsResponse{
			Channels:       s.calls.ChannelCount(),
			MediaSessions:  mediaSessions,
			Lines:          len(s.calls.LineSnapshots()),
			Devices:        len(s.calls.DeviceSnapshots()),
			CallIDPosition: s.calls.AllocatorPosition(),
		},
		Uptime: uptimeResponse{
			StartedAt:  s.startTime.Format(time.RFC3339),
			UptimeSec:  int64(uptimeDur.Seconds()),
			UptimeText: formatUptime(uptimeDur),
		},
	}

	writeJSON(w, http.StatusOK, resp)
}

// formatUptime returns a human-readable uptime string like "2d 5h 30m 12s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
