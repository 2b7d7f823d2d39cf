package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loykin/svcdeck"
	"github.com/loykin/svcdeck/pkg/client"
)

// errActionFailed makes the process exit non-zero when an action is refused or fails.
var errActionFailed = errors.New("action failed")

type command struct {
	global *GlobalFlags
	// open builds a Deck from the config; replaced in tests.
	open func(path string) (*svcdeck.Deck, io.Closer, error)
}

func newCommand(global *GlobalFlags) *command {
	return &command{global: global, open: openDeck}
}

// openDeck loads the config and assembles a Deck logging per [log].
func openDeck(path string) (*svcdeck.Deck, io.Closer, error) {
	cfg, err := svcdeck.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	d, err := svcdeck.New(cfg, svcdeck.Options{Logger: logger})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return d, closerFunc(func() error {
		return errors.Join(d.Close(), closer.Close())
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (c *command) local() (*svcdeck.Deck, io.Closer, error) {
	if c.global.ConfigPath == "" {
		return nil, nil, fmt.Errorf("either --config or --api-url is required")
	}
	return c.open(c.global.ConfigPath)
}

func newAPIClient(f RemoteFlags) *client.Client {
	cfg := client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Token:    f.Token,
		Insecure: f.Insecure,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: f.CACert}
	}
	return client.New(cfg)
}

// Status prints every service, or one with --name.
func (c *command) Status(ctx context.Context, f StatusFlags) error {
	if f.APIUrl != "" {
		api := newAPIClient(f.RemoteFlags)
		if f.Name != "" {
			s, err := api.Service(ctx, f.Name)
			if err != nil {
				return err
			}
			printJSON(s)
			return nil
		}
		list, err := api.ListServices(ctx)
		if err != nil {
			return err
		}
		printJSON(list)
		return nil
	}

	d, closer, err := c.local()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if f.Name != "" {
		e, ok := d.Status(ctx, f.Name)
		if !ok {
			return fmt.Errorf("service %q not found", f.Name)
		}
		printJSON(entryView(e))
		return nil
	}
	entries := d.ListStatus(ctx)
	views := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	printJSON(views)
	return nil
}

// Action runs start, stop or restart and prints the result.
func (c *command) Action(ctx context.Context, f ActionFlags) error {
	var res svcdeck.Result
	if f.APIUrl != "" {
		r, err := newAPIClient(f.RemoteFlags).Action(ctx, f.Name, f.Action)
		if err != nil {
			return err
		}
		res = svcdeck.Result{OK: r.OK, Message: r.Message}
	} else {
		d, closer, err := c.local()
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()
		res = d.PerformAction(ctx, f.Name, f.Action)
	}
	printJSON(res)
	if !res.OK {
		return fmt.Errorf("%w: %s", errActionFailed, res.Message)
	}
	return nil
}

// Host prints the host memory and disk summary.
func (c *command) Host(ctx context.Context, f HostFlags) error {
	if f.APIUrl != "" {
		h, err := newAPIClient(f.RemoteFlags).Host(ctx)
		if err != nil {
			return err
		}
		printJSON(h)
		return nil
	}
	d, closer, err := c.local()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	printJSON(d.Host(ctx))
	return nil
}

// Validate loads the config and reports every problem found.
func (c *command) Validate(path string) error {
	cfg, err := svcdeck.LoadConfig(path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "%s: ok (%d services", path, len(cfg.Services))
	if cfg.Self != "" {
		_, _ = fmt.Fprintf(stdout, ", self=%s", cfg.Self)
	}
	_, _ = fmt.Fprintln(stdout, ")")
	return nil
}

// Token mints a bearer token with the configured or given secret.
func (c *command) Token(f TokenFlags) error {
	secret := f.Secret
	role := f.Role
	if secret == "" {
		if c.global.ConfigPath == "" {
			return fmt.Errorf("--secret or --config with server.auth.jwt_secret is required")
		}
		cfg, err := svcdeck.LoadConfig(c.global.ConfigPath)
		if err != nil {
			return err
		}
		secret = cfg.Server.Auth.JWTSecret
		if role == "" {
			role = cfg.Server.Auth.AdminRole
		}
	}
	if strings.TrimSpace(f.Subject) == "" {
		return fmt.Errorf("--subject is required")
	}
	if role == "" {
		role = "admin"
	}
	tok, err := svcdeck.IssueToken(secret, f.Subject, role, f.TTL)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, tok)
	return nil
}

func entryView(e svcdeck.Entry) map[string]any {
	d := e.Descriptor
	v := map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"kind":        d.Kind,
		"status":      e.Status.State,
	}
	if d.Unit != "" {
		v["unit"] = d.Unit
	}
	if d.Port != 0 {
		v["port"] = d.Port
	}
	if e.Status.PID != 0 {
		v["pid"] = e.Status.PID
	}
	if e.Status.MemoryMB != nil {
		v["memory_mb"] = *e.Status.MemoryMB
	}
	if e.Status.Detail != "" {
		v["detail"] = e.Status.Detail
	}
	return v
}
