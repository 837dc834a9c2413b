package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"safesaviour/cmd/internal/passphrase"
	"safesaviour/config"
	"safesaviour/crypto"
	rescuedconfig "safesaviour/services/rescued/config"
	"safesaviour/services/rescued/server"
)

var keystorePassphrase = func() (string, error) {
	return passphrase.NewSource(config.PassphraseEnv).Get()
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "path of the keystore file to create")
	force := fs.Bool("force", false, "overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return printError(stderr, errors.New("--out is required"))
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return printError(stderr, fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *out))
		} else if !errors.Is(err, os.ErrNotExist) {
			return printError(stderr, err)
		}
	}
	pass, err := keystorePassphrase()
	if err != nil {
		return printError(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, fmt.Errorf("generate key: %w", err))
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return printError(stderr, fmt.Errorf("write keystore: %w", err))
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	path := fs.String("keystore", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*path) == "" {
		return printError(stderr, errors.New("--keystore is required"))
	}
	addr, err := crypto.KeystoreAddress(*path)
	if err != nil {
		return printError(stderr, err)
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	defaults := rescuedconfig.Default()
	fs := newFlagSet("token", stderr)
	cfgPath := fs.String("config", "", "rescued YAML config supplying the auth settings")
	secret := fs.String("secret", os.Getenv("RESCUED_AUTH_SECRET"), "HMAC secret shared with rescued")
	issuer := fs.String("issuer", defaults.Auth.Issuer, "token issuer")
	audience := fs.String("audience", defaults.Auth.Audience, "token audience")
	principal := fs.String("principal", "", "principal address carried in the subject claim")
	keystorePath := fs.String("keystore", "", "derive the principal from a keystore file")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	auth := server.AuthConfig{HMACSecret: *secret, Issuer: *issuer, Audience: *audience}
	if strings.TrimSpace(*cfgPath) != "" {
		cfg, err := rescuedconfig.Load(*cfgPath)
		if err != nil {
			return printError(stderr, err)
		}
		auth = server.AuthConfig{HMACSecret: cfg.Auth.HMACSecret, Issuer: cfg.Auth.Issuer, Audience: cfg.Auth.Audience}
	}

	var subject crypto.Address
	switch {
	case strings.TrimSpace(*keystorePath) != "":
		addr, err := crypto.KeystoreAddress(*keystorePath)
		if err != nil {
			return printError(stderr, err)
		}
		subject = addr
	case strings.TrimSpace(*principal) != "":
		addr, err := crypto.DecodeAddress(strings.TrimSpace(*principal))
		if err != nil {
			return printError(stderr, fmt.Errorf("invalid principal: %w", err))
		}
		if addr.Prefix() != crypto.PrincipalPrefix {
			return printError(stderr, fmt.Errorf("principal must use the %s prefix", crypto.PrincipalPrefix))
		}
		subject = addr
	default:
		return printError(stderr, errors.New("--principal or --keystore is required"))
	}

	token, err := server.IssueToken(auth, subject, *ttl)
	if err != nil {
		return printError(stderr, err)
	}
	fmt.Fprintln(stdout, token)
	return 0
}
