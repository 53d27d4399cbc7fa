package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/generator-ats/internal/eventlog"
	"github.com/sweeney/generator-ats/internal/logic"
	"github.com/sweeney/generator-ats/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:       10,
		HeartbeatMs:  900000,
		Broker:       "tcp://192.168.1.200:1883",
		HTTPPort:     ":80",
		RelayBackend: "gpio",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func runningStatus() logic.Status {
	st := logic.Status{
		State:              logic.StateRunningWithATS,
		Elapsed:            42000,
		GridPresent:        false,
		GeneratorConfirmed: true,
		GridBaselined:      true,
		GenBaselined:       true,
		GenVoltage:         232.5,
		StartAttempts:      1,
		ATSEngaged:         true,
		Transitions:        8,
	}
	st.Relays[logic.RelayPowerOn] = logic.On
	st.Relays[logic.RelayATS] = logic.On
	return st
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(runningStatus(), nil)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.State != "RUNNING_WITH_ATS" {
		t.Errorf("State: got %q, want RUNNING_WITH_ATS", sj.Status.State)
	}
	if sj.Status.StateSeconds != 42 {
		t.Errorf("StateSeconds: got %d, want 42", sj.Status.StateSeconds)
	}
	if sj.Status.Grid != "ABSENT" {
		t.Errorf("Grid: got %q, want ABSENT", sj.Status.Grid)
	}
	if sj.Status.Generator != "RUNNING" {
		t.Errorf("Generator: got %q, want RUNNING", sj.Status.Generator)
	}
	if sj.Status.GenVoltage != 232.5 {
		t.Errorf("GenVoltage: got %v, want 232.5", sj.Status.GenVoltage)
	}
	if !sj.Status.ATSEngaged {
		t.Error("expected ATSEngaged=true")
	}
	if sj.Status.Relays["ATS"] != "ON" || sj.Status.Relays["STARTER"] != "OFF" {
		t.Errorf("Relays: got %v", sj.Status.Relays)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.PollMs != 10 {
		t.Errorf("Config.PollMs: got %d, want 10", sj.Status.Config.PollMs)
	}
	if sj.Status.Config.RelayBackend != "gpio" {
		t.Errorf("Config.RelayBackend: got %q, want gpio", sj.Status.Config.RelayBackend)
	}
}

func TestJSONUnknownBeforeBaseline(t *testing.T) {
	ts, _ := newTestServer(t)

	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.Grid != "UNKNOWN" {
		t.Errorf("Grid before baseline: got %q, want UNKNOWN", sj.Status.Grid)
	}
	if sj.Status.Generator != "UNKNOWN" {
		t.Errorf("Generator before baseline: got %q, want UNKNOWN", sj.Status.Generator)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before any update")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestLogEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(runningStatus(), []eventlog.Entry{
		{Slot: 8, At: 3723000, Text: "Grid power lost. Starting timer..."},
		{Slot: 9, At: 4023000, Text: "Changed to state: START_POWER_ON"},
	})

	resp, err := http.Get(ts.URL + "/log.json")
	if err != nil {
		t.Fatalf("GET /log.json: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var lj status.LogJSON
	if err := json.NewDecoder(resp.Body).Decode(&lj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(lj.Log) != 2 {
		t.Fatalf("entries: got %d, want 2", len(lj.Log))
	}
	if lj.Log[0].Clock != "1:02:03" {
		t.Errorf("clock: got %q, want 1:02:03", lj.Log[0].Clock)
	}
	if lj.Log[1].Slot != 9 {
		t.Errorf("slot: got %d, want 9", lj.Log[1].Slot)
	}
	if lj.Log[1].Text != "Changed to state: START_POWER_ON" {
		t.Errorf("text: got %q", lj.Log[1].Text)
	}
}

func TestLogEndpointEmpty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/log.json")
	if err != nil {
		t.Fatalf("GET /log.json: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var lj status.LogJSON
	if err := json.Unmarshal(body, &lj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if lj.Log == nil || len(lj.Log) != 0 {
		t.Errorf("expected empty log array, got %s", body)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(runningStatus(), []eventlog.Entry{
		{Slot: 9, At: 61000, Text: "Generator started successfully!"},
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{
		"RUNNING_WITH_ATS",
		"232.5 V",
		"0:01:01",
		"Generator started successfully!",
		"POWER_ON",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "mqtt.connect") {
		t.Error("live script rendered without a websocket broker")
	}
}

func TestHTMLLiveScriptWithWSBroker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, status.Config{WSBroker: "ws://192.168.1.200:9001"})
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	if !strings.Contains(page, "energy/generator/ats/events") {
		t.Error("expected events topic in live script")
	}
	if !strings.Contains(page, "192.168.1.200:9001") {
		t.Error("expected websocket broker URL in live script")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	st := runningStatus()
	st.State = logic.StateCoolingDown
	st.ATSEngaged = false
	st.Relays[logic.RelayATS] = logic.Off
	tr.Update(st, nil)
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if !sj2.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if sj2.Status.State != "COOLING_DOWN" {
		t.Errorf("State: got %q, want COOLING_DOWN", sj2.Status.State)
	}
	if sj2.Status.Relays["ATS"] != "OFF" {
		t.Errorf("ATS relay: got %q, want OFF", sj2.Status.Relays["ATS"])
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestLogTextEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(runningStatus(), []eventlog.Entry{
		{Slot: 8, At: 3723000, Text: "Grid power lost. Starting timer..."},
		{Slot: 9, At: 4023000, Text: "Changed to state: START_POWER_ON"},
	})

	resp, err := http.Get(ts.URL + "/log.txt")
	if err != nil {
		t.Fatalf("GET /log.txt: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: got %q, want text/plain", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	want := "8: 1:02:03 - Grid power lost. Starting timer...\n" +
		"9: 1:07:03 - Changed to state: START_POWER_ON\n"
	if string(body) != want {
		t.Errorf("body:\n got %q\nwant %q", body, want)
	}
}

func TestRejectsWrites(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/", "/index.json", "/log.json", "/log.txt"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
		if allow := resp.Header.Get("Allow"); allow != "GET, HEAD" {
			t.Errorf("POST %s Allow: got %q", path, allow)
		}
	}
}

func TestNoStore(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	resp.Body.Close()
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control: got %q, want no-store", cc)
	}
}
