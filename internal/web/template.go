package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/bathfan/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
	"ts": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Bathroom Fan</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Bathroom Fan</h1>

<h2>Fan</h2>
<table>
<tr><th>Fan</th><td id="fan" class="{{if .FanOn}}on{{else}}off{{end}}">{{if .FanOn}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>State</th><td>{{.Controller.State}}</td></tr>
{{if eq (printf "%s" .Controller.State) "ACTIVE"}}<tr><th>Running since</th><td>{{ts .Controller.ActivatedAt}}</td></tr>
<tr><th>Off below</th><td>{{pct .Controller.ReturnBaseline}}</td></tr>{{end}}
</table>

<h2>Humidity</h2>
<table>
{{if .Controller.Sampled}}<tr><th>Current</th><td>{{pct .Controller.Humidity}}</td></tr>
<tr><th>Short average</th><td>{{pct .Controller.ShortAvg}}</td></tr>
<tr><th>Long average</th><td>{{pct .Controller.LongAvg}}</td></tr>
<tr><th>Trigger level</th><td>{{pct .Controller.Trigger}}</td></tr>
<tr><th>Last sample</th><td>{{ts .Controller.LastSampleAt}}</td></tr>
{{else}}<tr><th>Readings</th><td class="warn">waiting for first sample</td></tr>{{end}}
<tr><th>History</th><td>{{.Controller.Filled}} / {{.Controller.Capacity}}</td></tr>
{{if .Controller.LastError}}<tr><th>Sensor</th><td class="warn">{{.Controller.LastError.String}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{else}}<tr><th>MQTT</th><td>disabled</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Fan on</th><td>{{.Controller.Counts.FanOn}}</td></tr>
<tr><th>Recovered</th><td>{{.Controller.Counts.Recovered}}</td></tr>
<tr><th>Safety ceiling</th><td>{{.Controller.Counts.SafetyCeiling}}</td></tr>
<tr><th>Samples</th><td>{{.Controller.Counts.Samples}}</td></tr>
<tr><th>Sensor errors</th><td>{{.Controller.Counts.SensorErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
{{if .Config.BootID}}<tr><th>Boot ID</th><td>{{.Config.BootID}}</td></tr>{{end}}
<tr><th>Sensor</th><td>{{.Config.Sensor}}</td></tr>
<tr><th>Sampling period</th><td>{{.Config.SamplingPeriod}}</td></tr>
<tr><th>Windows</th><td>short {{.Config.ShortWindow}} / long {{.Config.LongWindow}}</td></tr>
<tr><th>Max run</th><td>{{.Config.MaxRun}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
