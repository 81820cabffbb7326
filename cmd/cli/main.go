// Command feedctl drives the photo feed client from a terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/imagefeed/internal/app"
	"github.com/and161185/imagefeed/internal/config"
	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// globals are the flags accepted before the subcommand. Empty or zero values
// keep what the environment configured.
type globals struct {
	apiURL    string
	authURL   string
	perPage   int
	tokenFile string
	dsn       string
	timeout   time.Duration
	verbose   bool
}

func (g globals) apply(cfg *config.Config) {
	if g.apiURL != "" {
		cfg.API.BaseURL = g.apiURL
	}
	if g.authURL != "" {
		cfg.OAuth.AuthURL = g.authURL
	}
	if g.perPage > 0 {
		cfg.Feed.PerPage = g.perPage
	}
	if g.tokenFile != "" {
		cfg.Store.TokenFile = g.tokenFile
	}
	if g.dsn != "" {
		cfg.Store.DSN = g.dsn
	}
	if g.timeout > 0 {
		cfg.API.Timeout = g.timeout
	}
}

func newLogger(verbose bool) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func usage() {
	fmt.Fprintf(os.Stderr, `feedctl
Usage:
  feedctl [-api URL] [-auth URL] [-per-page N] [-token-file PATH] [-dsn DSN] [-v] <cmd> [args]

Commands:
  version
  auth-url  [-state S]                      (prints the page granting a code)
  login     -code <code> | -redirect <url>  (saves token)
  me                                        (profile and avatar)
  feed      [-pages N]
  like      -id <photo> [-pages N]
  unlike    -id <photo> [-pages N]
  logout
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	if errors.Is(err, errs.ErrUnauthorized) {
		fmt.Fprintln(os.Stderr, "hint: run `feedctl login` first")
	}
	os.Exit(1)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type result[T any] struct {
	v   T
	err error
}

// await starts an asynchronous operation and waits for its callback.
func await[T any](ctx context.Context, start func(done func(T, error))) (T, error) {
	ch := make(chan result[T], 1)
	start(func(v T, err error) { ch <- result[T]{v, err} })
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// awaitErr is await for callbacks carrying only an error.
func awaitErr(ctx context.Context, start func(done func(error))) error {
	_, err := await(ctx, func(done func(struct{}, error)) {
		start(func(err error) { done(struct{}{}, err) })
	})
	return err
}

type profileView struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	LoginName string `json:"login_name"`
	Bio       string `json:"bio,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

type photoRow struct {
	ID          string `json:"id"`
	Size        string `json:"size"`
	CreatedAt   string `json:"created_at,omitempty"`
	Description string `json:"description,omitempty"`
	Thumb       string `json:"thumb"`
	Large       string `json:"large"`
	Liked       bool   `json:"liked"`
}

func photoRows(photos []model.Photo) []photoRow {
	rows := make([]photoRow, 0, len(photos))
	for _, p := range photos {
		r := photoRow{
			ID:          p.ID,
			Size:        fmt.Sprintf("%dx%d", p.Size.Width, p.Size.Height),
			Description: p.Description,
			Thumb:       p.ThumbURL,
			Large:       p.LargeURL,
			Liked:       p.IsLiked,
		}
		if !p.CreatedAt.IsZero() {
			r.CreatedAt = p.CreatedAt.Format(time.DateOnly)
		}
		rows = append(rows, r)
	}
	return rows
}

func findPhoto(photos []model.Photo, id string) (model.Photo, bool) {
	for _, p := range photos {
		if p.ID == id {
			return p, true
		}
	}
	return model.Photo{}, false
}

func loadPages(ctx context.Context, a *app.App, pages int) error {
	for range pages {
		if err := awaitErr(ctx, a.Feed.LoadNextPage); err != nil {
			return err
		}
	}
	return nil
}

// main dispatches subcommands against a wired client.
func main() {
	var g globals
	flag.StringVar(&g.apiURL, "api", "", "API base URL")
	flag.StringVar(&g.authURL, "auth", "", "authorization server URL")
	flag.IntVar(&g.perPage, "per-page", 0, "photos per page")
	flag.StringVar(&g.tokenFile, "token-file", "", "token file path")
	flag.StringVar(&g.dsn, "dsn", "", "PostgreSQL DSN for token storage")
	flag.DurationVar(&g.timeout, "timeout", 0, "per-request timeout")
	flag.BoolVar(&g.verbose, "v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("feedctl %s (%s)\n", version, buildDate)
		return
	}

	logger := newLogger(g.verbose)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	g.apply(cfg)

	// Only signals end the run; limiter waits past the burst take minutes.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() { _ = a.Run(loopCtx) }()

	switch cmd {

	case "auth-url":
		fs := flag.NewFlagSet("auth-url", flag.ExitOnError)
		state := fs.String("state", "", "opaque state echoed back by the server")
		_ = fs.Parse(flag.Args()[1:])
		if err := cfg.Validate(); err != nil {
			fail(err)
		}
		fmt.Println(a.Auth.AuthorizeURL(*state))

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		code := fs.String("code", "", "authorization code")
		redirect := fs.String("redirect", "", "redirect URL carrying the code")
		_ = fs.Parse(flag.Args()[1:])
		if err := cfg.Validate(); err != nil {
			fail(err)
		}
		if *code == "" && *redirect != "" {
			c, ok := service.CodeFromRedirect(*redirect)
			if !ok {
				fail(fmt.Errorf("no code in %q", *redirect))
			}
			*code = c
		}
		if *code == "" {
			fmt.Fprintln(os.Stderr, "need -code or -redirect")
			os.Exit(1)
		}
		if _, err := await(ctx, func(done func(string, error)) { a.Auth.ExchangeCode(*code, done) }); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "me":
		p, err := await(ctx, a.Bootstrap)
		if err != nil {
			fail(err)
		}
		view := profileView{Username: p.Username, Name: p.Name(), LoginName: p.LoginName(), Bio: p.Bio}
		view.Avatar, _ = a.Avatar.URL()
		printJSON(os.Stdout, view)

	case "feed":
		fs := flag.NewFlagSet("feed", flag.ExitOnError)
		pages := fs.Int("pages", 1, "pages to load")
		_ = fs.Parse(flag.Args()[1:])
		if err := loadPages(ctx, a, *pages); err != nil {
			fail(err)
		}
		printJSON(os.Stdout, photoRows(a.Feed.Photos()))

	case "like", "unlike":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "photo id")
		pages := fs.Int("pages", 1, "pages to search for the photo")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		if err := loadPages(ctx, a, *pages); err != nil {
			fail(err)
		}
		if _, ok := findPhoto(a.Feed.Photos(), *id); !ok {
			fail(fmt.Errorf("photo %s in first %d page(s): %w", *id, *pages, errs.ErrNotFound))
		}
		p, err := await(ctx, func(done func(model.Photo, error)) { a.Feed.SetLike(*id, cmd == "like", done) })
		if err != nil {
			fail(err)
		}
		printJSON(os.Stdout, photoRows([]model.Photo{p})[0])

	case "logout":
		_, _ = await(ctx, func(done func(struct{}, error)) {
			a.Logout(func() { done(struct{}{}, nil) })
		})
		fmt.Println("ok")

	default:
		usage()
	}
}
