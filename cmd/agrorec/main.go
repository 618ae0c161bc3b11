// Command agrorec is the field technician's command line over the offline
// recommendation store: it records recommendations, maintains the client
// directory and product catalog, and hands pending records to the
// synchronizer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"agrorec/internal/blob"
	"agrorec/internal/config"
	"agrorec/internal/core"
	"agrorec/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var exitFunc = os.Exit

// errUsage marks flag errors already reported by the flag package.
var errUsage = errors.New("usage")

const usage = `usage: agrorec [flags] <command> [args]

commands:
  create     store a new recommendation
  list       list recommendations visible to the user
  show       print one recommendation as JSON
  last       print the most recent recommendation
  update     patch a recommendation (status, diagnosis, follow-up)
  delete     delete a recommendation
  pending    list records waiting for the synchronizer
  synced     mark a record as pushed by the synchronizer
  clients    list or search the client directory
  products   list, add, update or delete catalog products
  profile    show or save the technician profile
  archive    copy recommendation media into the blob store
  info       print storage status
  logout     wipe the local store (requires -yes)
  metrics    serve Prometheus and expvar metrics

flags:
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"create":   cmdCreate,
	"list":     cmdList,
	"show":     cmdShow,
	"last":     cmdLast,
	"update":   cmdUpdate,
	"delete":   cmdDelete,
	"pending":  cmdPending,
	"synced":   cmdSynced,
	"clients":  cmdClients,
	"products": cmdProducts,
	"profile":  cmdProfile,
	"archive":  cmdArchive,
	"info":     cmdInfo,
	"logout":   cmdLogout,
	"metrics":  cmdMetrics,
}

type globals struct {
	configPath string
	user       string
	email      string
	trace      bool
}

// main runs the command-line interface and exits with its status code.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("agrorec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	var g globals
	fs.StringVar(&g.configPath, "config", "", "path to YAML config (default $AGROREC_CONFIG)")
	fs.StringVar(&g.user, "user", os.Getenv("AGROREC_USER"), "authenticated user id")
	fs.StringVar(&g.email, "email", os.Getenv("AGROREC_EMAIL"), "authenticated user email")
	fs.BoolVar(&g.trace, "trace", false, "write operation spans as JSON lines to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	a, err := openApp(g, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "agrorec: %v\n", err)
		return 1
	}
	defer a.close()
	if err := cmd(ctx, a, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "agrorec %s: %v\n", name, err)
		return 1
	}
	return 0
}

// app carries the handles shared by every command of one invocation.
type app struct {
	cfg      config.Config
	globals  globals
	log      *logger.Logger
	svc      *core.Service
	registry *prometheus.Registry
	expvar   *core.ExpvarMetricsRecorder
	blobs    blob.Store
	out      io.Writer
	errOut   io.Writer
}

func openApp(g globals, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	registry := prometheus.NewRegistry()
	prom, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return nil, err
	}
	ev := core.NewExpvarMetricsRecorder("")

	store, err := core.OpenOrDegrade(core.NewDefaultRulesEngine(), cfg.StorageOptions())
	if err != nil {
		log.Error("local storage unavailable, continuing without local data", "driver", cfg.Storage.Driver, "error", err)
	}
	opts := []core.ServiceOption{
		core.WithLogger(log),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, ev}),
		core.WithPageSize(cfg.PageSize),
	}
	if g.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	return &app{
		cfg:      cfg,
		globals:  g,
		log:      log,
		svc:      core.NewService(store, opts...),
		registry: registry,
		expvar:   ev,
		out:      stdout,
		errOut:   stderr,
	}, nil
}

func (a *app) close() {
	if err := a.svc.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
	a.log.Sync()
}

// flags returns a flag set for a subcommand that reports to stderr.
func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("agrorec "+name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) session() (*core.Session, error) {
	if a.globals.user == "" {
		return nil, errors.New("no user: pass -user or set AGROREC_USER")
	}
	return a.svc.Login(core.Credentials{UserID: a.globals.user, Email: a.globals.email})
}

// media opens the blob store on first use so commands that never touch
// media do not create the archive root.
func (a *app) media(ctx context.Context) (*core.MediaArchive, error) {
	if a.blobs == nil {
		store, err := blob.Open(ctx, a.cfg.BlobOptions())
		if err != nil {
			return nil, fmt.Errorf("open media store: %w", err)
		}
		a.blobs = store
	}
	return core.NewMediaArchive(a.svc, a.blobs), nil
}
