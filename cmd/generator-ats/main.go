// Command generator-ats drives a standby generator and its automatic transfer
// switch, publishing state changes and the event log to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/generator-ats/internal/analog"
	"github.com/sweeney/generator-ats/internal/config"
	"github.com/sweeney/generator-ats/internal/console"
	"github.com/sweeney/generator-ats/internal/eventlog"
	"github.com/sweeney/generator-ats/internal/expander"
	"github.com/sweeney/generator-ats/internal/gpio"
	"github.com/sweeney/generator-ats/internal/i2cbus"
	"github.com/sweeney/generator-ats/internal/logic"
	"github.com/sweeney/generator-ats/internal/mqtt"
	"github.com/sweeney/generator-ats/internal/status"
	"github.com/sweeney/generator-ats/internal/web"
)

// pollInterval is the control loop period. Not configurable.
const pollInterval = 10 * time.Millisecond

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML config file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address, empty string in config disables (overrides config)")
	wsBroker := flag.String("ws-broker", "", `MQTT websocket URL for live UI ("=broker" derives from broker, "off" disables)`)
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "MQTT heartbeat interval (0 to disable)")
	printState := flag.Bool("print-state", false, "Print current sensor readings and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "ws-broker":
			cfg.MQTT.WSBroker = *wsBroker
		}
	})

	if err := run(cfg, *heartbeat, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// hardware groups the controller's I/O.
type hardware struct {
	sense  gpio.Reader
	adc    analog.Reader
	relays gpio.Relays
}

func run(cfg *config.Config, heartbeat time.Duration, printState bool) error {
	sense, err := gpio.NewRealReader(cfg.SensePins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer sense.Close()

	bus, err := i2cbus.Open()
	if err != nil {
		return fmt.Errorf("init i2c: %w", err)
	}
	defer bus.Close()

	adc, err := analog.New(bus, byte(cfg.ADC.Address), *cfg.ADC.GridChannel, *cfg.ADC.GenChannel)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}

	// Print state mode leaves the relays untouched.
	if printState {
		return printReadings(sense, adc)
	}

	relays, err := openRelays(cfg, bus)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer relays.Close()

	sinks := []eventlog.Sink{console.StdLog{}}
	if cfg.Serial.Port != "" {
		port, err := console.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			// The serial console is optional; carry on without it.
			log.Printf("console: %v", err)
		} else {
			defer port.Close()
			sinks = append(sinks, port)
		}
	}
	elog := eventlog.New(sinks...)

	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	defer publisher.Close()

	ws := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:       pollInterval.Milliseconds(),
		HeartbeatMs:  heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPPort:     cfg.HTTP.Addr,
		WSBroker:     ws,
		RelayBackend: cfg.Relays.Backend,
		SerialPort:   cfg.Serial.Port,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: poll=%v broker=%s relays=%s heartbeat=%v", pollInterval, cfg.MQTT.Broker, cfg.Relays.Backend, heartbeat)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	hw := hardware{sense: sense, adc: adc, relays: relays}
	return runLoop(hw, publisher, publisher, tracker, elog, heartbeat, time.Now, ticker.C, sigCh)
}

func openRelays(cfg *config.Config, bus i2cbus.Bus) (gpio.Relays, error) {
	switch cfg.Relays.Backend {
	case config.BackendPCF8575:
		r, err := expander.New(bus, byte(cfg.Relays.Address), cfg.RelayPins(), cfg.Relays.ActiveLow)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		r, err := gpio.NewRealRelays(cfg.RelayPins(), cfg.Relays.ActiveLow)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

func printReadings(sense gpio.Reader, adc analog.Reader) error {
	grid, gen, err := sense.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	gridRaw, genRaw, err := adc.Read()
	if err != nil {
		return fmt.Errorf("read adc: %w", err)
	}
	s := logic.NewSampler()
	gridV, _ := s.Sample(gridRaw)
	genV, _ := s.Sample(genRaw)
	fmt.Printf("Grid: %s (%.1f V), Generator: %s (%.1f V)\n",
		presence(grid, "PRESENT", "ABSENT"), gridV, presence(gen, "RUNNING", "STOPPED"), genV)
	return nil
}

func runLoop(hw hardware, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, elog *eventlog.Log, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastHeartbeat := startTime
	ctrl := logic.NewController(0)

	// millis is the controller clock: milliseconds since start, wrapping at 32 bits.
	millis := func(t time.Time) logic.Millis {
		return logic.Millis(t.Sub(startTime).Milliseconds())
	}

	apply := func(effects []logic.Effect, t time.Time) {
		applyEffects(effects, ctrl, hw.relays, elog, publisher, millis(t), t)
	}

	apply(ctrl.Boot(), startTime)
	if tracker != nil {
		tracker.Update(ctrl.Status(), elog.Dump())
	}

	var senseFailing, adcFailing, haveSense bool
	var grid, gen bool
	var gridADC, genADC int

	for {
		select {
		case s := <-sig:
			if s == syscall.SIGUSR1 {
				dumpEventLog(elog)
				continue
			}

			log.Printf("received %v, shutting down", s)
			for _, r := range logic.Relays() {
				if err := hw.relays.Set(r, logic.Off); err != nil {
					log.Printf("relay: release %s: %v", r, err)
				}
			}

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			// A failed read holds the last good levels so the sequencing
			// timers keep running and a timed relay still gets released.
			// Nothing is energized before the first good read.
			if g, v, err := hw.sense.Read(); err != nil {
				if !senseFailing {
					log.Printf("gpio read error: %v", err)
					senseFailing = true
				}
				if !haveSense {
					continue
				}
			} else {
				if senseFailing {
					log.Printf("gpio read recovered")
					senseFailing = false
				}
				grid, gen, haveSense = g, v, true
			}

			// Same for a failed conversion.
			if g, v, err := hw.adc.Read(); err != nil {
				if !adcFailing {
					log.Printf("adc read error: %v", err)
					adcFailing = true
				}
			} else {
				if adcFailing {
					log.Printf("adc read recovered")
					adcFailing = false
				}
				gridADC, genADC = g, v
			}

			effects := ctrl.Tick(logic.Input{
				Now:     millis(t),
				GridRaw: grid,
				GenRaw:  gen,
				GridADC: gridADC,
				GenADC:  genADC,
			})
			apply(effects, t)

			if tracker == nil {
				continue
			}
			tracker.Update(ctrl.Status(), elog.Dump())
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v state=%s", snap.Uptime().Truncate(time.Second), snap.Controller.State)
				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// applyEffects performs the controller's requested side effects in order.
// Failures are logged; none of them stop the loop.
func applyEffects(effects []logic.Effect, ctrl *logic.Controller, relays gpio.Relays, elog *eventlog.Log, publisher mqtt.Publisher, at logic.Millis, wall time.Time) {
	for _, e := range effects {
		switch e.Kind {
		case logic.EffectRelay:
			if err := relays.Set(e.Relay, e.Level); err != nil {
				log.Printf("relay: set %s %s: %v", e.Relay, e.Level, err)
			}

		case logic.EffectLog:
			entry := elog.Record(at, e.Text)
			line := mqtt.LogLine{
				Timestamp: wall,
				Clock:     eventlog.FormatClock(entry.At),
				Text:      entry.Text,
			}
			if err := publisher.PublishLog(line); err != nil {
				log.Printf("log publish error: %v", err)
			}

		case logic.EffectTransition:
			log.Printf("state: %s -> %s", e.From, e.To)
			event := mqtt.StateEvent{
				Timestamp: wall,
				From:      e.From,
				To:        e.To,
				Status:    ctrl.Status(),
			}
			if err := publisher.Publish(event); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
	}
}

// dumpEventLog prints the retained entries, oldest first.
func dumpEventLog(elog *eventlog.Log) {
	log.Printf("=== EVENT LOG ===")
	for _, e := range elog.Dump() {
		log.Printf("%d: %s", e.Slot, e.Line())
	}
	log.Printf("=================")
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func presence(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// resolveWSBroker converts the ws-broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
