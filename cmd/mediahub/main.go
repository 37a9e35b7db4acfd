package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/mediahub-client/internal/config"
	"github.com/Sternrassler/mediahub-client/pkg/auth"
	"github.com/Sternrassler/mediahub-client/pkg/client"
	"github.com/Sternrassler/mediahub-client/pkg/logging"
	"github.com/Sternrassler/mediahub-client/pkg/metrics"
	"github.com/Sternrassler/mediahub-client/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const usage = `usage: mediahub [-env file] <command> [flags]

commands:
  browse       interactive catalog (tags, tag X, all, page N, next, prev, open ID, retry, quit)
  login        sign in and store the session
  logout       remove the stored session
  whoami       show the stored session
  add-item     add a catalog item
  create-user  create a user account
  export       write the whole catalog as JSON
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is everything a command needs, built once from the configuration.
type app struct {
	cfg    *config.Config
	client *client.Client
	store  session.Store
	auth   *auth.Service
	rdb    *redis.Client
	in     io.Reader
	out    io.Writer
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"browse":      runBrowse,
	"login":       runLogin,
	"logout":      runLogout,
	"whoami":      runWhoami,
	"add-item":    runAddItem,
	"create-user": runCreateUser,
	"export":      runExport,
}

// errReported marks a failure whose notice was already printed.
var errReported = errors.New("reported")

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediahub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := fs.String("env", ".env", "dotenv file to load before reading the environment")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logCfg := cfg.Logging()
	logCfg.Output = stderr
	logging.Setup(logCfg)

	a, err := newApp(ctx, cfg, stdin, stdout)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.close()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr)
		defer shutdown()
	}

	if err := cmd(ctx, a, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		if !errors.Is(err, errReported) {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	return 0
}

func newApp(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) (*app, error) {
	path := cfg.SessionFile
	if path == "" {
		p, err := session.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	store, err := session.NewFileStore(path)
	if err != nil {
		return nil, err
	}

	rdb := cfg.Redis()
	if rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The cache is optional; run uncached rather than fail.
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, caching disabled")
			_ = rdb.Close()
			rdb = nil
		} else {
			log.Debug().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		}
	}

	clientCfg := cfg.Client(rdb)
	clientCfg.Session = store
	c, err := client.New(clientCfg)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &app{
		cfg:    cfg,
		client: c,
		store:  store,
		auth:   auth.NewService(c, store),
		rdb:    rdb,
		in:     stdin,
		out:    stdout,
	}, nil
}

func (a *app) close() {
	_ = a.client.Close()
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func serveMetrics(addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
