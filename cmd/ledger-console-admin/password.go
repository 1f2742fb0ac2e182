package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type hashPasswordOptions struct {
	Cost  int
	Email string
	Admin bool
}

func parseHashPasswordFlags(args []string) (hashPasswordOptions, error) {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts hashPasswordOptions
	fs.IntVar(&opts.Cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	fs.StringVar(&opts.Email, "email", "", "Print a full DEV_AUTH_USERS entry for this email")
	fs.BoolVar(&opts.Admin, "admin", false, "Mark the entry as an administrator (requires --email)")
	if err := fs.Parse(args); err != nil {
		return hashPasswordOptions{}, err
	}
	if opts.Cost < bcrypt.MinCost || opts.Cost > bcrypt.MaxCost {
		return hashPasswordOptions{}, fmt.Errorf("--cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	if strings.ContainsAny(opts.Email, ":,") {
		return hashPasswordOptions{}, errors.New("--email must not contain ':' or ','")
	}
	if opts.Admin && opts.Email == "" {
		return hashPasswordOptions{}, errors.New("--admin requires --email")
	}
	return opts, nil
}

func runHashPassword(cmdCtx *commandContext, args []string) error {
	opts, err := parseHashPasswordFlags(args)
	if err != nil {
		return err
	}
	return hashPassword(cmdCtx.Stdin, cmdCtx.Stdout, opts)
}

// hashPassword reads one line from in and writes its bcrypt hash, or a
// DEV_AUTH_USERS entry when an email is given.
func hashPassword(in io.Reader, out io.Writer, opts hashPasswordOptions) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), opts.Cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if opts.Email == "" {
		return writeln(out, string(hash))
	}
	entry := opts.Email + ":" + string(hash)
	if opts.Admin {
		entry += ":admin"
	}
	return writeln(out, entry)
}
