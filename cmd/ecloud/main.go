// ecloud is the terminal front end of the e-cloud file storage service.
//
// Sub-commands:
//
//	ecloud login                       Sign in and save the session
//	ecloud register                    Create an account and sign in
//	ecloud logout                      End the session
//	ecloud whoami [-name n] [-email e] Show or edit the profile
//	ecloud passwd                      Change the password
//	ecloud ls [folder]                 List a folder
//	ecloud stats [folder]              Storage overview of a folder
//	ecloud mkdir [-parent id] <name>   Create a folder
//	ecloud upload [-zip] [-parent id] <files...>
//	ecloud mv [-from id] -to <id> <ids...>
//	ecloud rm [-in id] <ids...>
//	ecloud preview [-o file] <folder> <id>
//	ecloud watch [folder]              Re-list a folder as it changes
//	ecloud cache [-clear] [-evict key] Inspect the preview cache
//
// A leading -v enables debug logging.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fruitsalade/ecloud/internal/authform"
	"github.com/fruitsalade/ecloud/internal/browser"
	"github.com/fruitsalade/ecloud/internal/config"
	"github.com/fruitsalade/ecloud/internal/dashboard"
	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/metrics"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/client"
)

var commands = map[string]func(ctx context.Context, a *app, args []string) error{
	"login":    cmdLogin,
	"register": cmdRegister,
	"logout":   cmdLogout,
	"whoami":   cmdWhoami,
	"passwd":   cmdPasswd,
	"ls":       cmdList,
	"stats":    cmdStats,
	"mkdir":    cmdMkdir,
	"upload":   cmdUpload,
	"mv":       cmdMove,
	"rm":       cmdRemove,
	"preview":  cmdPreview,
	"watch":    cmdWatch,
	"cache":    cmdCache,
}

func main() {
	args := os.Args[1:]
	verbose := len(args) > 0 && args[0] == "-v"
	if verbose {
		args = args[1:]
	}
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		logging.SetLevel("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = cmd(ctx, a, args[1:])
	stop()
	a.close()

	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "Session expired. Run 'ecloud login' to sign in again.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: ecloud [-v] <command> [flags] [args]")
	fmt.Fprintln(os.Stderr, "Commands: login register logout whoami passwd ls stats mkdir upload mv rm preview watch cache")
}

// app holds the wiring shared by every command.
type app struct {
	cfg     *config.Config
	client  *client.Client
	session *session.Session
	bus     *events.Bus
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: "stderr"}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	a := &app{cfg: cfg, bus: events.NewBus()}
	a.closers = append(a.closers, logging.Sync)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		a.closers = append(a.closers, srv.Close)
	}

	var store session.Store
	switch cfg.SessionStore {
	case config.StoreBolt:
		bs, err := session.OpenBoltStore(cfg.SessionPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bs.Close)
		store = bs
	default:
		store = session.NewFileStore(cfg.SessionPath)
	}

	a.client = client.New(client.Config{
		BaseURL:   cfg.ServerURL,
		Timeout:   cfg.Timeout,
		Transport: logging.NewTransport(nil),
	})

	sess, err := session.Open(store, a.client)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	a.session = sess
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// shell boots the dashboard and opens folder. It fails when the session
// cannot be refreshed.
func (a *app) shell(ctx context.Context, folder string) (*dashboard.Shell, error) {
	view := browser.NewView(a.session, a.client, a.bus)
	sh := dashboard.NewShell(a.session, a.client, a.bus, view)
	if sh.Bootstrap(ctx) != dashboard.StateReady {
		return nil, session.ErrUnauthorized
	}
	if err := sh.Navigate(ctx, folder, ""); err != nil {
		return nil, err
	}
	return sh, nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email (prompted when empty)")
	fs.Parse(args)

	screen := authform.NewScreen(a.session)
	defer screen.Unmount()
	if screen.Mount(ctx) && *email == "" {
		fmt.Println("Already signed in.")
		return nil
	}

	f := authform.Form{Email: *email}
	if f.Email == "" {
		f.Email = prompt("Email: ")
	}
	f.Password = promptPassword("Password: ")
	return submit(ctx, screen, f)
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Display name (defaults to the email's local part)")
	fs.Parse(args)

	screen := authform.NewScreen(a.session)
	defer screen.Unmount()
	screen.Mount(ctx)
	screen.SetMode(authform.ModeRegister)

	f := authform.Form{Name: *name}
	f.Email = prompt("Email: ")
	f.Password = promptPassword("Password: ")
	screen.SetForm(f)
	fmt.Printf("Password strength: %s\n", authform.StrengthLabel(screen.Strength()))
	f.Confirm = promptPassword("Confirm password: ")
	return submit(ctx, screen, f)
}

func submit(ctx context.Context, screen *authform.Screen, f authform.Form) error {
	screen.SetForm(f)
	outcome, err := screen.Submit(ctx)
	if outcome == authform.NavigateDashboard {
		fmt.Println("Signed in.")
		return nil
	}
	errs := screen.Errors()
	for _, field := range []string{authform.FieldEmail, authform.FieldName, authform.FieldPassword, authform.FieldConfirm, authform.FieldServer} {
		if msg, ok := errs[field]; ok {
			fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
		}
	}
	return err
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	view := browser.NewView(a.session, a.client, a.bus)
	sh := dashboard.NewShell(a.session, a.client, a.bus, view)
	if err := sh.Logout(ctx); err != nil {
		logging.Debug("server logout failed", zap.Error(err))
	}
	fmt.Println("Logged out.")
	return nil
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Print(label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptPassword(label string) string {
	fmt.Print(label)
	if !term.IsTerminal(int(syscall.Stdin)) {
		line, _ := stdin.ReadString('\n')
		return strings.TrimRight(line, "\r\n")
	}
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}
	return string(b)
}
