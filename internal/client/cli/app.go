package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atiera/qrlogin/internal/client/client"
	"github.com/atiera/qrlogin/internal/client/config"
	"github.com/atiera/qrlogin/internal/client/models"
	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/filex"
)

// AccessTokenEnvVar overrides the session file when set.
const AccessTokenEnvVar = "QRCTL_ACCESS_TOKEN"

// ErrNotLoggedIn is returned by commands that need a session when none is
// stored.
var ErrNotLoggedIn = errors.New("not logged in, run: qrctl login")

// ErrUsage reports an unknown command or bad arguments.
var ErrUsage = errors.New("usage error")

// Client is the subset of client.GRPCClient the commands use.
type Client interface {
	Login(ctx context.Context, qrToken string) (*models.Session, error)
	IssueCode(ctx context.Context, rotate bool) (*models.IssuedCode, error)
	GetActiveCode(ctx context.Context) (*models.ActiveCode, error)
	RevokeCode(ctx context.Context) (int64, error)
	SetAccessToken(token string)
	Close() error
}

type App struct {
	config *config.Config
	client Client
	in     io.Reader
	out    io.Writer
}

func NewApp(cfg *config.Config) (*App, error) {
	c, err := client.NewQRLoginClient(cfg.ServerEndpointAddr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.ServerEndpointAddr, err)
	}
	return &App{config: cfg, client: c, in: os.Stdin, out: os.Stdout}, nil
}

// Run executes the command in args (os.Args[1:] with global flags already
// removed) and closes the connection.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.client.Close()

	if len(args) == 0 {
		a.usage()
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx)
	case "logout":
		return a.logout()
	case "issue":
		return a.issue(ctx, rest)
	case "show":
		return a.show(ctx)
	case "revoke":
		return a.revoke(ctx)
	case "help", "-h", "--help":
		a.usage()
		return nil
	default:
		a.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: qrctl [-a host:port] [-t seconds] [-s session-file] <command>")
	fmt.Fprintln(a.out, "Commands:")
	fmt.Fprintln(a.out, "  login            sign in with the token from a QR login card")
	fmt.Fprintln(a.out, "  logout           forget the stored session")
	fmt.Fprintln(a.out, "  issue [-rotate]  issue a QR login code, -rotate replaces the active one")
	fmt.Fprintln(a.out, "  show             show the active QR login code")
	fmt.Fprintln(a.out, "  revoke           revoke the active QR login code")
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

// authenticate loads the session token from the environment or the session
// file.
func (a *App) authenticate() error {
	token := strings.TrimSpace(os.Getenv(AccessTokenEnvVar))
	if token == "" {
		var err error
		token, err = filex.ReadSecret(a.config.SessionFile)
		if err != nil {
			return err
		}
	}
	if token == "" {
		return ErrNotLoggedIn
	}
	a.client.SetAccessToken(token)
	return nil
}

func (a *App) login(ctx context.Context) error {
	secret, err := GetSecret(a.in, a.out, "QR token: ")
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	defer common.WipeByteArray(secret)

	if len(secret) == 0 {
		return common.ErrMissingQRToken
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	sess, err := a.client.Login(ctx, string(secret))
	if err != nil {
		return err
	}

	if err := filex.WriteSecret(a.config.SessionFile, []byte(sess.AccessToken)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	fmt.Fprintf(a.out, "Logged in as user %s (%s)\n", sess.UserID, sess.Role)
	fmt.Fprintf(a.out, "Portal: %s\n", sess.Redirect)
	return nil
}

func (a *App) logout() error {
	if err := filex.RemoveSecret(a.config.SessionFile); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) issue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(a.out)
	rotate := fs.Bool("rotate", false, "revoke the active code and issue a new one")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := a.authenticate(); err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	code, err := a.client.IssueCode(ctx, *rotate)
	if errors.Is(err, common.ErrActiveCodeExists) {
		return fmt.Errorf("%w (use: qrctl issue -rotate)", err)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Record:    %s\n", code.RecordID)
	fmt.Fprintf(a.out, "Token:     %s\n", code.Token)
	fmt.Fprintf(a.out, "Login URL: %s\n", code.LoginURL)
	return nil
}

func (a *App) show(ctx context.Context) error {
	if err := a.authenticate(); err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	code, err := a.client.GetActiveCode(ctx)
	if errors.Is(err, client.ErrNotFound) {
		fmt.Fprintln(a.out, "No active QR login code")
		return nil
	}
	if err != nil {
		return err
	}

	lastUsed := "never"
	if code.LastUsedAt != nil {
		lastUsed = code.LastUsedAt.Local().Format(time.DateTime)
	}

	fmt.Fprintf(a.out, "Record:    %s\n", code.RecordID)
	fmt.Fprintf(a.out, "Token:     %s\n", code.Token)
	fmt.Fprintf(a.out, "Login URL: %s\n", code.LoginURL)
	fmt.Fprintf(a.out, "Created:   %s\n", code.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.out, "Last used: %s\n", lastUsed)
	return nil
}

func (a *App) revoke(ctx context.Context) error {
	if err := a.authenticate(); err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	n, err := a.client.RevokeCode(ctx)
	if err != nil {
		return err
	}

	if n == 0 {
		fmt.Fprintln(a.out, "No active QR login code")
		return nil
	}
	fmt.Fprintf(a.out, "Revoked %d code(s)\n", n)
	return nil
}
