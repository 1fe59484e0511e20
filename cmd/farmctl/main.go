package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"xfarm/config"
	"xfarm/crypto"
	"xfarm/explorer"
	"xfarm/gateway/middleware"
)

const (
	tokenCommand    = "token"
	addrCommand     = "addr"
	keygenCommand   = "keygen"
	initCommand     = "init-config"
	exportCommand   = "export"
	secretEnv       = "XFARM_JWT_SECRET"
	defaultConfig   = "./config.toml"
	defaultIssuer   = "xfarm"
	defaultTokenTTL = 24 * time.Hour
)

var stdin = os.Stdin

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case addrCommand:
		err = runAddr(os.Args[2:], os.Stdout)
	case keygenCommand:
		err = runKeygen(os.Stdout)
	case initCommand:
		err = runInit(os.Args[2:], os.Stdout)
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: farmctl <command> [flags]")
	fmt.Fprintln(w, "  token        mint an API bearer token")
	fmt.Fprintln(w, "  addr         convert between hex and xfarm1 addresses")
	fmt.Fprintln(w, "  keygen       generate an account key")
	fmt.Fprintln(w, "  init-config  write a default farmd config")
	fmt.Fprintln(w, "  export       dump indexed events to a parquet file")
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	secret := fs.String("secret", "", "HMAC secret shared with farmd (defaults to $"+secretEnv+", then a terminal prompt)")
	subject := fs.String("sub", "", "account address placed in the sub claim")
	scopes := fs.String("scope", "", "comma separated scopes, e.g. admin")
	issuer := fs.String("iss", defaultIssuer, "issuer claim")
	audience := fs.String("aud", "", "audience claim")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.ParseAddress(*subject)
	if err != nil {
		return fmt.Errorf("invalid -sub: %w", err)
	}
	if strings.TrimSpace(*secret) == "" {
		if *secret, err = promptSecret(); err != nil {
			return err
		}
	}
	var scopeList []string
	for _, scope := range strings.Split(*scopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopeList = append(scopeList, scope)
		}
	}
	token, err := middleware.SignToken(*secret, middleware.TokenClaims{
		Subject:  crypto.FromCommon(addr).String(),
		Scopes:   scopeList,
		Issuer:   *issuer,
		Audience: *audience,
		TTL:      *ttl,
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runAddr(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("addr expects exactly one address")
	}
	addr, err := crypto.ParseAddress(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "hex:    %s\n", addr.Hex())
	fmt.Fprintf(out, "bech32: %s\n", crypto.FromCommon(addr).String())
	return nil
}

func runKeygen(out io.Writer) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	addr := key.Address()
	fmt.Fprintf(out, "address:     %s\n", addr.String())
	fmt.Fprintf(out, "hex:         %s\n", addr.Common().Hex())
	fmt.Fprintf(out, "private key: %s\n", hex.EncodeToString(key.Bytes()))
	return nil
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(initCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", defaultConfig, "where to write the config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s (data dir %s)\n", *path, cfg.DataDir)
	return nil
}

// promptSecret reads the signing secret from the environment, or from the
// terminal without echo when one is attached.
func promptSecret() (string, error) {
	if value := os.Getenv(secretEnv); strings.TrimSpace(value) != "" {
		return value, nil
	}
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("signing secret required; pass -secret or set %s", secretEnv)
	}
	fmt.Fprint(os.Stderr, "JWT signing secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("signing secret cannot be empty")
	}
	return string(raw), nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", defaultConfig, "farmd config holding the explorer database")
	driver := fs.String("driver", "", "explorer driver, overrides the config")
	dsn := fs.String("dsn", "", "explorer DSN, overrides the config")
	outPath := fs.String("out", "events.parquet", "parquet file to write")
	pool := fs.String("pool", "", "only events for this pool id")
	eventType := fs.String("type", "", "only events of this type")
	account := fs.String("account", "", "only events for this xfarm1 account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *driver == "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		if cfg.Explorer.Driver == "" {
			return fmt.Errorf("%s has no explorer database", *cfgPath)
		}
		*driver = cfg.Explorer.Driver
		if *dsn == "" {
			*dsn = cfg.Explorer.DSN
			if *driver == "sqlite" {
				*dsn = cfg.ResolvePath(*dsn)
			}
		}
	}
	index, err := explorer.Open(*driver, *dsn)
	if err != nil {
		return err
	}
	defer index.Close()

	file, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	n, err := index.ExportParquet(context.Background(), file, explorer.Filter{Pool: *pool, Type: *eventType, Account: *account})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d events to %s\n", n, *outPath)
	return nil
}
