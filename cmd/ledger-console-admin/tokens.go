package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/target/ledger-console/config"
	redisadapter "github.com/target/ledger-console/internal/adapters/redis"
	"github.com/target/ledger-console/internal/bootstrap"
	"github.com/target/ledger-console/internal/ports"
)

type tokensListOptions struct {
	Limit int
}

type tokensRevokeOptions struct {
	ConsoleID string
	Yes       bool
}

type tokenLister interface {
	List(ctx context.Context, limit int) ([]redisadapter.PersistedToken, error)
}

func parseTokensListFlags(args []string) (tokensListOptions, error) {
	fs := flag.NewFlagSet("tokens-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts tokensListOptions
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum number of consoles to list (0 for all)")
	if err := fs.Parse(args); err != nil {
		return tokensListOptions{}, err
	}
	if opts.Limit < 0 {
		return tokensListOptions{}, errors.New("--limit must not be negative")
	}
	return opts, nil
}

func parseTokensRevokeFlags(args []string) (tokensRevokeOptions, error) {
	fs := flag.NewFlagSet("tokens-revoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts tokensRevokeOptions
	fs.StringVar(&opts.ConsoleID, "console", "", "Console id whose token to revoke (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return tokensRevokeOptions{}, err
	}
	opts.ConsoleID = strings.TrimSpace(opts.ConsoleID)
	if opts.ConsoleID == "" {
		return tokensRevokeOptions{}, errors.New("--console is required")
	}
	if _, err := uuid.Parse(opts.ConsoleID); err != nil {
		return tokensRevokeOptions{}, fmt.Errorf("--console must be a console id: %w", err)
	}
	return opts, nil
}

func openTokenStore(cmdCtx *commandContext) (*redisadapter.TokenStore, func(), error) {
	client, err := connectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if closeErr := closeInfra(nil, client); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}
	return redisadapter.NewTokenStoreWithPrefix(client, cmdCtx.Config.Redis.KeyPrefix), closeFn, nil
}

func runTokensList(cmdCtx *commandContext, args []string) error {
	opts, err := parseTokensListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	store, closeFn, err := openTokenStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	return listTokens(ctx, store, cmdCtx.Stdout, opts.Limit)
}

func listTokens(ctx context.Context, store tokenLister, w io.Writer, limit int) error {
	tokens, err := store.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	if len(tokens) == 0 {
		return writeln(w, "(no persisted tokens)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "CONSOLE\tEXPIRES IN\n"); err != nil {
		return err
	}
	for _, tok := range tokens {
		expires := "never"
		if tok.TTL > 0 {
			expires = tok.TTL.Round(time.Second).String()
		}
		if err := writef(tw, "%s\t%s\n", tok.ConsoleID, expires); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "\nTotal: %d\n", len(tokens))
}

func runTokensRevoke(cmdCtx *commandContext, args []string) error {
	opts, err := parseTokensRevokeFlags(args)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("About to sign out console %s.", opts.ConsoleID)
	if confirmErr := confirmAction(cmdCtx.Stdin, cmdCtx.Stdout, opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	store, closeFn, err := openTokenStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	var backend ports.AuthBackend
	// The dev backend lives inside the server process; only a remote backend
	// can be told about the revocation from here.
	if cmdCtx.Config.Auth.Mode == config.AuthModeRemote {
		auth, authErr := bootstrap.BuildAuth(ctx, bootstrap.AuthDeps{Auth: cmdCtx.Config.Auth, Logger: cmdCtx.Logger})
		if authErr != nil {
			return authErr
		}
		backend = auth.Backend
	}

	revoked, err := revokeToken(ctx, store, backend, opts.ConsoleID)
	if err != nil {
		return err
	}
	if !revoked {
		return writef(cmdCtx.Stdout, "Console %s has no persisted token.\n", opts.ConsoleID)
	}
	cmdCtx.Logger.Info("console token revoked", "console_id", opts.ConsoleID)
	return writef(cmdCtx.Stdout, "Revoked token for console %s.\n", opts.ConsoleID)
}

// revokeToken revokes the persisted token with backend (when given) and
// deletes it. A backend failure is reported but the token is still deleted.
func revokeToken(ctx context.Context, store ports.TokenStore, backend ports.AuthBackend, consoleID string) (bool, error) {
	token, err := store.Load(ctx, consoleID)
	if errors.Is(err, ports.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}

	var revokeErr error
	if backend != nil {
		if err := backend.Revoke(ctx, token); err != nil {
			revokeErr = fmt.Errorf("revoke with backend: %w", err)
		}
	}
	if err := store.Delete(ctx, consoleID); err != nil {
		return false, errors.Join(revokeErr, fmt.Errorf("delete token: %w", err))
	}
	return true, revokeErr
}
