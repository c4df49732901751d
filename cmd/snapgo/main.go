package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/timelapse"
	"github.com/cjeanneret/SnapGo/internal/web"
)

const defaultConfigPath = "snapgo.yaml"

// options holds the parsed command line.
type options struct {
	configPath     string
	configExplicit bool
	webPort        int
	series         bool
	photos         int
	minutes        float64
	schedule       string
	scheduleSet    bool
	timelapseDir   string
	timelapseSet   bool
}

func main() {
	os.Exit(runMain())
}

// runMain wires config, hardware and the capture invoker, then runs the
// selected mode. Deferred cleanup happens before the process exits.
func runMain() int {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Printf("invalid flags: %v", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(opts.configPath, opts.configExplicit)
	if err != nil {
		log.Printf("load config failed: %v", err)
		return 1
	}
	if err := applyOverrides(cfg, opts); err != nil {
		log.Printf("invalid CLI override: %v", err)
		return 2
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.PrintStruct("Camera config", cfg.Camera)

	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Printf("init GPIO failed: %v", err)
		return 1
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	inv := newInvoker(cfg, camera.NewGPhoto2(cfg.Camera.Tool, nil), gpioDriver)
	return run(ctx, opts, cfg, inv, os.Stdout)
}

// run executes the selected mode and returns the process exit code.
func run(ctx context.Context, opts options, cfg *config.Config, inv *capture.Invoker, out io.Writer) int {
	report := func(r *capture.Result) {
		if err := capture.Report(out, r); err != nil {
			log.Printf("write report: %v", err)
		}
	}

	switch {
	case opts.webPort > 0:
		if err := runWeb(ctx, opts.webPort, cfg, inv, report); err != nil {
			log.Printf("web server: %v", err)
			return 1
		}
		return 0

	case opts.scheduleSet:
		debug.Info("Mode: schedule (%s)", cfg.Schedule.Cron)
		if err := inv.RunSchedule(ctx, cfg.Schedule.Cron, report); err != nil {
			log.Printf("schedule: %v", err)
			return 1
		}
		return 0

	case opts.series:
		debug.Info("Mode: series")
		res, err := inv.RunSeries(ctx, seriesParams(cfg), report)
		if res != nil {
			if err := res.WriteSummary(out, cfg.Series.TotalPhotos); err != nil {
				log.Printf("write summary: %v", err)
			}
		}
		if err != nil {
			log.Printf("series: %v", err)
			return 1
		}
		if len(res.Captured) == 0 {
			return 1
		}
		return 0

	case opts.timelapseSet:
		debug.Info("Mode: timelapse")
		return runTimelapse(ctx, opts.timelapseDir, cfg, nil, out)

	default:
		debug.Info("Mode: single capture")
		r := inv.Capture(ctx)
		report(r)
		if !r.OK() {
			return 1
		}
		return 0
	}
}

func runWeb(ctx context.Context, port int, cfg *config.Config, inv *capture.Invoker, report func(*capture.Result)) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	if !debug.IsEnabled(debug.LevelLive) {
		// the status stream needs per-shot events
		debug.Init(debug.LevelLive)
	}

	captureFn := func(ctx context.Context) (string, error) {
		r := inv.Capture(ctx)
		report(r)
		if r.OK() {
			return r.Filename, nil
		}
		return r.Filename, errors.New(diagnostic(r.Err))
	}
	seriesFn := func(ctx context.Context, req web.SeriesRequest) (string, error) {
		p := seriesParams(cfg)
		p.TotalPhotos = req.TotalPhotos
		p.TotalDuration = minutes(req.TotalMinutes)
		res, err := inv.RunSeries(ctx, p, report)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%d/%d photos)", res.Dir, len(res.Captured), p.TotalPhotos), nil
	}

	srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, captureFn, seriesFn, web.FormConfig{
		Tool:         cfg.Camera.Tool,
		TotalPhotos:  cfg.Series.TotalPhotos,
		TotalMinutes: cfg.Series.TotalMinutes,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// runTimelapse encodes the photos of dir, or of the most recent series
// folder when dir is empty, and reports the outcome on out.
func runTimelapse(ctx context.Context, dir string, cfg *config.Config, runner camera.Runner, out io.Writer) int {
	if dir == "" {
		latest, err := timelapse.LatestSession(cfg.Series.DataDir)
		if err != nil {
			log.Printf("timelapse: %v", err)
			return 1
		}
		debug.Info("No folder given, using most recent series: %s", latest)
		dir = latest
	}

	res, err := timelapse.New(timelapseSettings(cfg), runner).Create(ctx, dir)
	if werr := timelapse.Report(out, res, err); werr != nil {
		log.Printf("write report: %v", werr)
	}
	if err != nil {
		return 1
	}
	return 0
}

func timelapseSettings(cfg *config.Config) timelapse.Settings {
	return timelapse.Settings{
		Tool:    cfg.Timelapse.Tool,
		FPS:     cfg.Timelapse.FPS,
		CRF:     cfg.Timelapse.CRF,
		Output:  cfg.Timelapse.Output,
		Pattern: cfg.Camera.FilenamePrefix + "*" + cfg.Camera.FilenameExt,
	}
}

func newInvoker(cfg *config.Config, cam camera.Camera, g gpio.Driver) *capture.Invoker {
	return capture.NewInvoker(cam,
		capture.WithNaming(cfg.Camera.FilenamePrefix, cfg.Camera.FilenameExt),
		capture.WithOutputDir(cfg.Camera.OutputDir),
		capture.WithIndicator(indicator.New(g, cfg.Indicator.Pin, cfg.Indicator.BlinkCount, cfg.BlinkDelay())),
	)
}

func seriesParams(cfg *config.Config) capture.SeriesParams {
	return capture.SeriesParams{
		TotalPhotos:   cfg.Series.TotalPhotos,
		TotalDuration: cfg.SeriesDuration(),
		DataDir:       cfg.Series.DataDir,
	}
}

func diagnostic(err error) string {
	var cmdErr *camera.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Diagnostic()
	}
	return err.Error()
}

// parseFlags parses args into options. With no arguments the result selects
// a single capture using the default config path.
func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	webPort := &webPortFlag{defaultPort: 8080}

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "path to config file (optional)")
	fs.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	fs.BoolVar(&opts.series, "series", false, "capture a timed photo series instead of a single photo")
	fs.IntVar(&opts.photos, "photos", 0, "override series.total_photos")
	fs.Float64Var(&opts.minutes, "minutes", 0, "override series.total_minutes")
	fs.StringVar(&opts.schedule, "schedule", "", "capture on every tick of a cron expression until interrupted; -schedule= uses schedule.cron")
	fs.StringVar(&opts.timelapseDir, "timelapse", "", "encode a series folder into a video; -timelapse= uses the most recent series")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			opts.configExplicit = true
		case "schedule":
			opts.scheduleSet = true
		case "timelapse":
			opts.timelapseSet = true
		}
	})
	opts.webPort = webPort.port()

	if err := validateOptions(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// validateOptions checks mode exclusivity and non-zero series overrides.
// Zero values mean "use config".
func validateOptions(o options) error {
	modes := 0
	if o.webPort > 0 {
		modes++
	}
	if o.series {
		modes++
	}
	if o.scheduleSet {
		modes++
	}
	if o.timelapseSet {
		modes++
	}
	if modes > 1 {
		return errors.New("-web, -series, -schedule and -timelapse are mutually exclusive")
	}
	if o.photos < 0 {
		return fmt.Errorf("photos must be >= 1, got %d", o.photos)
	}
	if o.minutes != 0 && (math.IsNaN(o.minutes) || math.IsInf(o.minutes, 0) || o.minutes < 0) {
		return fmt.Errorf("minutes must be > 0, got %g", o.minutes)
	}
	if (o.photos != 0 || o.minutes != 0) && !o.series && o.webPort == 0 {
		return errors.New("-photos and -minutes require -series or -web")
	}
	return nil
}

// applyOverrides mutates cfg with command-line values and validates the result. An explicit -schedule expression replaces schedule.cron.
func applyOverrides(cfg *config.Config, o options) error {
	if o.scheduleSet {
		if o.schedule != "" {
			cfg.Schedule.Cron = o.schedule
		}
		if cfg.Schedule.Cron == "" {
			return errors.New("-schedule needs an expression or schedule.cron in the config")
		}
	}
	if o.photos > 0 {
		cfg.Series.TotalPhotos = o.photos
	}
	if o.minutes > 0 {
		cfg.Series.TotalMinutes = o.minutes
	}
	return cfg.Validate()
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w == nil || w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
