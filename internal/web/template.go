package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/generator-ats/internal/eventlog"
	"github.com/sweeney/generator-ats/internal/logic"
	"github.com/sweeney/generator-ats/internal/status"
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
	"volts": func(v float32) string {
		return fmt.Sprintf("%.1f V", logic.RoundVolts(v))
	},
	"seconds": func(m logic.Millis) string {
		return fmt.Sprintf("%ds", m/1000)
	},
	"clock": eventlog.FormatClock,
	"level": func(l logic.Level) string {
		if l == logic.On {
			return "on"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Generator ATS</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on, .PRESENT, .RUNNING { color: green; font-weight: bold; }
.off, .STOPPED { color: #888; }
.ABSENT { color: red; font-weight: bold; }
.UNKNOWN { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Generator ATS{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Controller</h2>
<table>
<tr><th>State</th><td id="state">{{.Controller.State}}</td></tr>
<tr><th>In state for</th><td>{{seconds .Controller.Elapsed}}</td></tr>
<tr><th>Grid</th><td id="grid" class="{{.Grid}}">{{.Grid}}</td></tr>
<tr><th>Generator</th><td id="generator" class="{{.Generator}}">{{.Generator}}</td></tr>
<tr><th>Generator voltage</th><td id="gen-voltage">{{volts .Controller.GenVoltage}}</td></tr>
<tr><th>Grid voltage</th><td>{{volts .Controller.GridVoltage}}</td></tr>
<tr><th>Start attempts</th><td>{{.Controller.StartAttempts}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Relays</h2>
<table>
{{range .Relays}}<tr><th>{{.Name}}</th><td class="{{level .Level}}">{{.Level}}</td></tr>
{{end}}</table>

<h2>Event Log</h2>
<table id="log">
{{range .Log}}<tr><th>{{clock .At}}</th><td>{{.Text}}</td></tr>
{{else}}<tr><td>empty</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} / {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Relay backend</th><td>{{.Config.RelayBackend}}</td></tr>
{{if .Config.SerialPort}}<tr><th>Serial console</th><td>{{.Config.SerialPort}}</td></tr>{{end}}
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/log.json">Log</a> | <a href="/log.txt">Log (text)</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topicEvents = "energy/generator/ats/events";
  var topicLog = "energy/generator/ats/log";
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("state");
  var gridEl = document.getElementById("grid");
  var genEl = document.getElementById("generator");
  var voltEl = document.getElementById("gen-voltage");
  var logEl = document.getElementById("log");

  function setLabel(el, text) {
    el.textContent = text;
    el.className = text;
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function appendLog(clock, text) {
    var row = document.createElement("tr");
    var th = document.createElement("th");
    var td = document.createElement("td");
    th.textContent = clock;
    td.textContent = text;
    row.appendChild(th);
    row.appendChild(td);
    logEl.appendChild(row);
    while (logEl.rows.length > 10) {
      logEl.deleteRow(0);
    }
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe([topicEvents, topicLog]);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.generator) {
        stateEl.textContent = msg.generator.to;
        setLabel(gridEl, msg.generator.grid);
        setLabel(genEl, msg.generator.generator);
        voltEl.textContent = msg.generator.gen_voltage.toFixed(1) + " V";
      } else if (msg.log) {
        appendLog(msg.log.clock, msg.log.text);
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

type relayRow struct {
	Name  string
	Level logic.Level
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot methods are flattened into fields for the template.
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		Ready     bool
		Grid      string
		Generator string
		Relays    []relayRow
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Ready:     snap.Ready(),
		Grid:      status.GridLabel(snap),
		Generator: status.GeneratorLabel(snap),
	}
	for _, r := range logic.Relays() {
		data.Relays = append(data.Relays, relayRow{Name: r.String(), Level: snap.Controller.Relays[r]})
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("http: render index: %v", err)
	}
}
