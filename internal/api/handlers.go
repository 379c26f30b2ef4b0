// Package api exposes the read APIs, the command endpoint and the operator
// surfaces over HTTP.
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/server"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

// Commander sends a fire-and-forget call to a connected station.
type Commander interface {
	SendCall(stationID string, action string, payload json.RawMessage) (string, error)
}

// API serves the HTTP surface around the shared state.
type API struct {
	registry  *registry.Registry
	store     *session.Store
	activity  *session.ActivityLog
	commander Commander
}

// New creates the API handler set.
func New(reg *registry.Registry, store *session.Store, activity *session.ActivityLog, commander Commander) *API {
	return &API{registry: reg, store: store, activity: activity, commander: commander}
}

// NewRouter wires every route, including the OCPP WebSocket endpoint and
// Prometheus metrics, onto one mux router.
func NewRouter(a *API, ws http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ocpp16/{id}", ws)
	r.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", a.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", a.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{station}", a.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/command", a.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/logs", a.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/port/{n}", a.handlePort).Methods(http.MethodGet)
	r.HandleFunc("/", a.handleDashboard).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, online := a.registry.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"devices":        total,
		"sessions":       a.store.ActiveCount(),
		"devices_online": online,
	})
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := a.registry.SnapshotAll()
	if devices == nil {
		devices = []registry.Station{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"devices": devices,
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	var sessions []session.Session
	if station := mux.Vars(r)["station"]; station != "" {
		sessions = a.store.ActiveForStation(station)
	} else {
		sessions = a.store.ActiveAll()
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": sessions,
	})
}

type commandRequest struct {
	StationID string          `json:"station_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}
	if req.StationID == "" || req.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "station_id and action are required",
		})
		return
	}

	messageID, err := a.commander.SendCall(req.StationID, req.Action, req.Payload)
	if err != nil {
		if errors.Is(err, server.ErrStationOffline) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"success": false,
				"error":   "Station not connected",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"messageId": messageID,
	})
}

// filterCompleted applies the date, station and port query filters.
func filterCompleted(completed []session.Completed, date, station, port string) []session.Completed {
	out := make([]session.Completed, 0, len(completed))
	for _, c := range completed {
		if date != "" && c.StartTime.Format("2006-01-02") != date {
			continue
		}
		if station != "" && c.StationID != station {
			continue
		}
		if port != "" && strconv.Itoa(c.ConnectorID) != port {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	completed := filterCompleted(a.store.CompletedAll(), q.Get("date"), q.Get("station"), q.Get("port"))

	if q.Get("format") == "csv" {
		a.writeSessionsCSV(w, completed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": completed,
	})
}

func (a *API) writeSessionsCSV(w http.ResponseWriter, completed []session.Completed) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sessions.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"Date", "Station", "Port", "Start Time", "End Time",
		"Duration (min)", "Energy (kWh)", "Max Power (W)",
		"Avg Voltage (V)", "Avg Current (A)",
	})
	for _, c := range completed {
		cw.Write([]string{
			c.StartTime.Format("2006-01-02"),
			c.StationID,
			strconv.Itoa(c.ConnectorID),
			c.StartTime.Format("15:04:05"),
			c.EndTime.Format("15:04:05"),
			strconv.Itoa(c.DurationMin),
			fmt.Sprintf("%.3f", c.EnergyKWh),
			fmt.Sprintf("%.0f", c.MaxPowerW),
			fmt.Sprintf("%.1f", c.AvgVoltageV),
			fmt.Sprintf("%.1f", c.AvgCurrentA),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Error().Err(err).Msg("Failed to write CSV export")
	}
}

func (a *API) handlePort(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["n"])
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid port number",
		})
		return
	}

	var active []session.Session
	for _, s := range a.store.ActiveAll() {
		if s.ConnectorID == n {
			active = append(active, s)
		}
	}
	if active == nil {
		active = []session.Session{}
	}

	completed := make([]session.Completed, 0)
	for _, c := range a.store.CompletedAll() {
		if c.ConnectorID == n {
			completed = append(completed, c)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"port":      n,
		"active":    active,
		"completed": completed,
	})
}
