package api

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>OCPP Central</title>
<meta http-equiv="refresh" content="5">
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
.online { color: green; }
.offline { color: #999; }
</style>
</head>
<body>
<h1>OCPP Central</h1>
<p>{{.Online}}/{{.Total}} stations online, {{len .Sessions}} active session(s)</p>

<h2>Stations</h2>
<table>
<tr><th>Station</th><th>Status</th><th>Vendor</th><th>Model</th><th>Firmware</th><th>Last Heartbeat</th></tr>
{{range .Stations}}
<tr>
<td>{{.ID}}</td>
<td class="{{.Status}}">{{.Status}}</td>
<td>{{.Vendor}}</td>
<td>{{.Model}}</td>
<td>{{.Firmware}}</td>
<td>{{.LastHeartbeat.Format "15:04:05"}}</td>
</tr>
{{end}}
</table>

<h2>Active Sessions</h2>
<table>
<tr><th>Transaction</th><th>Station</th><th>Port</th><th>Power (W)</th><th>Energy (kWh)</th><th>Voltage (V)</th><th>Current (A)</th></tr>
{{range .Sessions}}
<tr>
<td>{{.TransactionID}}</td>
<td>{{.StationID}}</td>
<td>{{.ConnectorID}}</td>
<td>{{printf "%.0f" .PowerW}}</td>
<td>{{printf "%.3f" .EnergyKWh}}</td>
<td>{{printf "%.1f" .VoltageV}}</td>
<td>{{printf "%.1f" .CurrentA}}</td>
</tr>
{{end}}
</table>

<h2>Recent Activity</h2>
<ul>
{{range .Activity}}
<li>{{.Time.Format "15:04:05"}} {{.Message}}</li>
{{end}}
</ul>
</body>
</html>`))

type dashboardData struct {
	Total    int
	Online   int
	Stations []registry.Station
	Sessions []session.Session
	Activity []session.ActivityEntry
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	total, online := a.registry.Counts()
	data := dashboardData{
		Total:    total,
		Online:   online,
		Stations: a.registry.SnapshotAll(),
		Sessions: a.store.ActiveAll(),
		Activity: a.activity.Entries(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render dashboard")
	}
}
