// deviceprint generates and inspects device fingerprints from recorded
// host snapshots.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"deviceprint/internal/config"
	"deviceprint/internal/logging"
	"deviceprint/internal/metrics"
	"deviceprint/pkg/cache"
	"deviceprint/pkg/consent"
	"deviceprint/pkg/fingerprint"
	"deviceprint/pkg/host"
)

var (
	configPath   = flag.String("config", "", "path to config file")
	snapshotPath = flag.String("snapshot", "", "path to host snapshot JSON")
	format       = flag.String("format", "json", "output format: json or yaml")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	switch cmd := flag.Arg(0); cmd {
	case "generate":
		cmdGenerate()
	case "strength":
		cmdStrength()
	case "analyze":
		cmdAnalyze()
	case "consent":
		cmdConsent(flag.Args()[1:])
	case "serve":
		cmdServe()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `deviceprint - device fingerprinting from host snapshots

Usage: deviceprint [options] <command> [args]

Commands:
  generate                 Compute the fingerprint digest
  strength                 Report the fingerprint strength score
  analyze                  Estimate fingerprint entropy and quality
  consent show             Print current consent state
  consent grant <category> Grant a consent category
  consent revoke <category> Revoke a consent category
  consent reset            Reset consent to regional defaults
  serve                    Run resident: serve metrics, hot-reload config
  help                     Show this help message

Options:
  -config <path>    Path to config file (default: ~/.deviceprint/config.toml)
  -snapshot <path>  Path to a host snapshot JSON file (required)
  -format <fmt>     Output format: json or yaml (default: json)`)
}

// app bundles everything a subcommand needs.
type app struct {
	cfg  *config.Config
	env  *host.Synthetic
	orch *fingerprint.Orchestrator
	met  *metrics.Metrics

	cleanup []func()
}

func setup() *app {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	log, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fatal("set up logging: %v", err)
	}

	if *snapshotPath == "" {
		fatal("-snapshot is required")
	}
	snap, err := host.LoadSnapshot(*snapshotPath)
	if err != nil {
		fatal("load snapshot: %v", err)
	}
	if cfg.Origin != "" {
		snap.Origin = cfg.Origin
	}
	if snap.Origin == "" {
		fatal("no origin: set it in the snapshot or in the config")
	}
	env := host.NewSynthetic(*snap)

	store, err := cfg.OpenStore()
	if err != nil {
		fatal("open storage: %v", err)
	}

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.New()
		go serveMetrics(cfg.Metrics.Listen, met)
	}

	orch := buildOrchestrator(cfg, env, store, log, met)

	a := &app{cfg: cfg, env: env, orch: orch, met: met}
	a.cleanup = append(a.cleanup, orch.Cleanup, func() { store.Close() })
	if closer != nil {
		a.cleanup = append(a.cleanup, func() { closer.Close() })
	}
	return a
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// replay feeds the snapshot's recorded interaction trace to the behavioral
// engine while a generation pass is collecting.
func (a *app) replay() {
	if a.cfg.Collectors.Behavior.Enabled {
		go a.env.ReplayTrace(time.Now())
	}
}

func buildOrchestrator(cfg *config.Config, env host.Environment, store cache.Cache, log *slog.Logger, met *metrics.Metrics) *fingerprint.Orchestrator {
	return fingerprint.New(env, fingerprint.Options{
		Screen:        cfg.Collectors.Screen,
		Canvas:        cfg.Collectors.Canvas,
		Hardware:      cfg.Collectors.Hardware,
		Battery:       cfg.Collectors.Battery,
		Behavior:      cfg.BehaviorOptions(),
		Consent:       cfg.ConsentOptions(),
		Cache:         store,
		CacheValidity: cfg.Validity(),
		Logger:        log,
		Metrics:       met,
	})
}

func serveMetrics(listen string, met *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics endpoint: %v\n", err)
	}
}

func cmdGenerate() {
	a := setup()
	defer a.close()

	a.replay()
	digest := a.orch.Generate(context.Background())
	if digest == "" {
		fatal("fingerprint generation failed")
	}
	emit(map[string]string{"digest": digest})
}

func cmdStrength() {
	a := setup()
	defer a.close()

	a.replay()
	emit(a.orch.Strength(context.Background()))
}

func cmdAnalyze() {
	a := setup()
	defer a.close()

	a.replay()
	report, err := a.orch.Detailed(context.Background())
	if err != nil {
		fatal("detailed generation: %v", err)
	}
	analysis, err := a.orch.Analyze(context.Background())
	if err != nil {
		fatal("entropy analysis: %v", err)
	}

	emit(struct {
		fingerprint.Report
		Entropy any `json:"entropy" yaml:"entropy"`
	}{Report: report, Entropy: analysis})
}

// cmdServe runs resident: it computes a fingerprint, serves the Prometheus
// endpoint, and hot-reloads the configuration file, rebuilding the
// orchestrator when collector or consent settings change.
func cmdServe() {
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	defer loader.Close()

	log, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fatal("set up logging: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	if *snapshotPath == "" {
		fatal("-snapshot is required")
	}
	snap, err := host.LoadSnapshot(*snapshotPath)
	if err != nil {
		fatal("load snapshot: %v", err)
	}
	if cfg.Origin != "" {
		snap.Origin = cfg.Origin
	}
	if snap.Origin == "" {
		fatal("no origin: set it in the snapshot or in the config")
	}
	env := host.NewSynthetic(*snap)

	store, err := cfg.OpenStore()
	if err != nil {
		fatal("open storage: %v", err)
	}
	defer store.Close()

	met := metrics.New()
	go serveMetrics(cfg.Metrics.Listen, met)

	var mu sync.Mutex
	orch := buildOrchestrator(cfg, env, store, log, met)
	if cfg.Collectors.Behavior.Enabled {
		go env.ReplayTrace(time.Now())
	}
	log.Info("fingerprint computed", "digest", orch.Generate(context.Background()))

	loader.OnChange(func(next *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		if next.Storage != cfg.Storage {
			log.Warn("storage settings changed, restart required to apply them")
		}
		orch.Cleanup()
		orch = buildOrchestrator(next, env, store, log, met)
		log.Info("config reloaded",
			"digest", orch.Generate(context.Background()))
	})
	go func() {
		for err := range loader.Errors() {
			log.Warn("config reload failed", "error", err)
		}
	}()
	if err := loader.Watch(); err != nil {
		fatal("watch config: %v", err)
	}

	log.Info("serving", "metrics", cfg.Metrics.Listen)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	mu.Lock()
	orch.Cleanup()
	mu.Unlock()
}

func cmdConsent(args []string) {
	a := setup()
	defer a.close()

	gate := a.orch.Consent()
	if gate == nil {
		fatal("consent gating is disabled in the configuration")
	}

	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
	case "grant", "revoke":
		if len(args) < 2 {
			fatal("usage: deviceprint consent %s <category>", sub)
		}
		gate.Update(consent.Category(args[1]), sub == "grant")
	case "reset":
		gate.Reset()
	default:
		fatal("unknown consent subcommand %q", sub)
	}

	emit(struct {
		Region       consent.Region `json:"region" yaml:"region"`
		State        consent.State  `json:"state" yaml:"state"`
		NeedsRenewal bool           `json:"needsRenewal" yaml:"needsRenewal"`
	}{
		Region:       gate.Region(),
		State:        gate.State(),
		NeedsRenewal: gate.NeedsRenewal(),
	})
}

func emit(v any) {
	var out []byte
	var err error
	switch *format {
	case "yaml":
		out, err = yaml.Marshal(v)
	case "json":
		out, err = json.MarshalIndent(v, "", "  ")
	default:
		fatal("unknown output format %q", *format)
	}
	if err != nil {
		fatal("encode output: %v", err)
	}
	fmt.Println(string(out))
}

func fatal(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+msg+"\n", args...)
	os.Exit(1)
}
