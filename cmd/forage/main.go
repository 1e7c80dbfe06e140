// Command forage records foraging tracks from a scripted location feed and
// manages the stored track history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/config"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/geocode"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/history"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/influx"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/live"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/location"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/logging"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/mirror"
	intOtel "github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion = "0.1.0"
	BuildDate      = "unknown"
)

const usage = `usage: forage [-config dir] <command> [args]

commands:
  record -fixes file [-interval d] [-status file] [-finding type:name[:desc]@n ...]
  list
  search <query>
  export <out.gpx> [track ids...]
  import <in.gpx>
  delete <track id>
  delete-all
  backup <out.db>
  version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("forage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config", ".", "directory containing "+config.FileName)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "forage %s (built %s)\n", CurrentVersion, BuildDate)
		return 0
	}
	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logging.ContextWith(ctx, slog.String("command", cmd))
	e := &env{configDir: *configDir, stdout: stdout}
	if err := handler(ctx, e, cmdArgs); err != nil {
		fmt.Fprintf(stderr, "forage %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

// env opens the app for a command once its arguments are known.
type env struct {
	configDir string
	stdout    io.Writer
}

// open wires the services around replay, or around an empty feed when replay
// is nil.
func (e *env) open(ctx context.Context, replay *location.Replay) (*app, error) {
	if replay == nil {
		replay = location.NewReplay(nil, 0)
	}
	return newApp(ctx, e.configDir, e.stdout, replay)
}

// app holds the wired services for one invocation.
type app struct {
	cfg     config.Config
	stdout  io.Writer
	start   time.Time
	session atomic.Pointer[sessionInfo]
	eng     atomic.Pointer[engine.Engine] // read by the mirror goroutine

	logFile *os.File
	slogMgr *logging.SlogManager
	otel    *intOtel.Provider
	logger  *slog.Logger

	storage *storage
	mirror  *mirror.Mirror
	replay  *location.Replay
	engine  *engine.Engine
	history *history.History
	influx  *influx.Manager
	live    *live.Publisher
}

type sessionInfo struct {
	trackID string
	state   string
}

func newApp(ctx context.Context, configDir string, stdout io.Writer, replay *location.Replay) (*app, error) {
	a := &app{stdout: stdout, start: time.Now(), replay: replay}

	loadErr := config.Load(configDir)
	a.cfg = config.Get()
	if err := config.Validate(a.cfg); err != nil {
		return nil, err
	}

	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	if loadErr != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", loadErr)
	} else {
		a.logger.Info("Loaded config", "dir", configDir)
	}

	zl := logging.NewZerolog(a.logFile, a.cfg.LogLevel, "store")
	s, err := openStorage(a.cfg.Store, a.cfg.DB, zl)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.storage = s

	// the engine only exists after the mirror, so failures are routed late
	a.mirror, err = mirror.New(s.tiered, a.cfg.Store.Key,
		logging.NewZerologLogger(logging.NewZerolog(a.logFile, a.cfg.LogLevel, "mirror")),
		mirror.OnError(func(err error) {
			if eng := a.eng.Load(); eng != nil {
				eng.OnPersistError(err)
			}
		}),
		mirror.Logged(),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildEngine(); err != nil {
		a.Close()
		return nil, err
	}
	a.history = history.New(s.tiered, a.cfg.Store.Key, a.engine)
	a.attachSinks(ctx)
	return a, nil
}

func (a *app) setupLogging() error {
	a.slogMgr = logging.NewSlogManager()

	path := logging.LogFilePath(a.cfg.LogsDir, logging.DefaultServiceName, a.start)
	f, err := logging.OpenLogFile(path)
	if err != nil {
		return err
	}
	a.logFile = f

	oc := intOtel.FromConfig(a.cfg.OTel, f)
	oc.ServiceVersion = CurrentVersion
	a.otel, err = intOtel.New(oc)
	if err != nil {
		_ = f.Close()
		a.logFile = nil
		return fmt.Errorf("failed to create OTel provider: %w", err)
	}

	opts := []logging.Option{logging.WithContext(a.sessionAttrs)}
	if name := a.cfg.OTel.ServiceName; name != "" {
		opts = append(opts, logging.WithServiceName(name))
	}
	var gelfErr error
	if a.cfg.Graylog.Enabled {
		gw, err := logging.NewGraylogWriter(a.cfg.Graylog.Address)
		if err != nil {
			gelfErr = err
		} else {
			opts = append(opts, logging.WithGraylog(gw, a.cfg.Graylog.Level))
		}
	}
	a.slogMgr.Setup(f, a.cfg.LogLevel, a.otel.LoggerProvider(), opts...)
	a.logger = a.slogMgr.Logger()
	if gelfErr != nil {
		a.logger.Warn("Graylog unavailable", "address", a.cfg.Graylog.Address, "error", gelfErr)
	}
	a.logger.Info("forage starting", "version", CurrentVersion, "build_date", BuildDate, "log_file", path)
	return nil
}

// sessionAttrs tags every record with the active track. It reads a copy kept
// by an engine observer, so logging never takes the engine lock.
func (a *app) sessionAttrs() []slog.Attr {
	s := a.session.Load()
	if s == nil || s.trackID == "" {
		return nil
	}
	return []slog.Attr{
		slog.String("track_id", s.trackID),
		slog.String("state", s.state),
	}
}

func (a *app) buildEngine() error {
	lc := a.cfg.Location
	src := location.New(a.replay, location.Config{
		Options: location.Options{
			HighAccuracy: lc.HighAccuracy,
			Timeout:      lc.Timeout,
			MaxFixAge:    lc.MaxFixAge,
		},
		MaxRetries:  lc.MaxRetries,
		RetryDelay:  lc.RetryDelay,
		TimeoutStep: lc.TimeoutStep,
		MaxAgeStep:  lc.MaxAgeStep,
	}, a.logger.With("component", "location"))

	deps := engine.Dependencies{
		Location:  src,
		Persister: a.mirror,
		Cue:       newBellCue(a.stdout),
		Logger:    a.logger.With("component", "engine"),
		Now:       time.Now,
		NewID:     func() string { return uuid.NewString() },
	}
	if gc := a.cfg.Geocode; gc.Enabled {
		deps.Geocoder = geocode.New(gc.BaseURL, gc.UserAgent, gc.Timeout)
	}

	ec := a.cfg.Engine
	eng, err := engine.New(deps, engine.Config{
		EnterRadius:     ec.EnterRadius,
		ExitRadius:      ec.ExitRadius,
		HeadingMinMove:  ec.HeadingMinMove,
		DecimateCeiling: ec.DecimateCeiling,
		AutoSaveEvery:   ec.AutoSaveEvery,
		AcquireTimeout:  lc.Timeout,
	})
	if err != nil {
		return err
	}
	a.engine = eng
	a.eng.Store(eng)

	eng.Subscribe(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventStateChanged:
			a.session.Store(&sessionInfo{trackID: ev.TrackID, state: ev.State.String()})
		case engine.EventPersistWarning:
			fmt.Fprintf(a.stdout, "warning: %v\n", ev.Err)
		}
	})
	return nil
}

// attachSinks subscribes the optional telemetry and live stream outputs.
func (a *app) attachSinks(ctx context.Context) {
	if ic := a.cfg.Influx; ic.Enabled {
		if err := os.MkdirAll(ic.BackupDir, 0755); err != nil {
			a.logger.Warn("Failed to create influx backup dir", "error", err)
		}
		backup := filepath.Join(ic.BackupDir,
			fmt.Sprintf("influx_backup_%s.lp.gz", a.start.Format("20060102_150405")))
		m := influx.NewManager(ic, logging.NewZerolog(a.logFile, a.cfg.LogLevel, "influx"), backup)
		if err := m.Connect(ctx); err != nil {
			a.logger.Warn("Telemetry sink unavailable", "error", err)
		} else {
			a.influx = m
			a.engine.Subscribe(m.Handle)
		}
	}

	if lc := a.cfg.Live; lc.Enabled {
		p := live.New(live.Config{URL: lc.URL, Secret: lc.SecretKey, BufferSize: lc.BufferSize}, a.logger)
		if err := p.Connect(); err != nil {
			a.logger.Warn("Live stream unavailable", "url", lc.URL, "error", err)
		} else {
			a.live = p
			a.engine.Subscribe(p.Handle)
		}
	}
}

// Close releases everything in reverse order of creation.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	var errs []error
	if a.mirror != nil {
		errs = append(errs, a.mirror.Close())
	}
	if a.storage != nil {
		errs = append(errs, a.storage.close())
	}
	if a.influx != nil {
		errs = append(errs, a.influx.Close())
	}
	if a.live != nil {
		errs = append(errs, a.live.Close())
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Error("shutdown incomplete", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.slogMgr != nil {
		_ = a.slogMgr.Flush(ctx)
	}
	if a.otel != nil {
		_ = a.otel.Shutdown(ctx)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
