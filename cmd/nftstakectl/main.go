package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	bolt "go.etcd.io/bbolt"

	"nftstake/cmd/internal/passphrase"
	"nftstake/config"
	"nftstake/core/state"
	"nftstake/crypto"
	"nftstake/gateway/middleware"
	"nftstake/integrations/exports"
	"nftstake/native/nftstake"
	"nftstake/services/stakingd"
	"nftstake/storage"
)

const (
	defaultParamsPath = "services/stakingd/params.toml"
	defaultStorePath  = "data/stakingd.db"
	defaultJWTEnv     = "STAKINGD_JWT_SECRET"
	defaultPassEnv    = "STAKINGD_CUSTODY_PASSPHRASE"
)

type command struct {
	name    string
	summary string
	run     func(args []string, out io.Writer) error
}

var commands = []command{
	{"init-config", "write a staking parameters file", runInitConfig},
	{"show-holder", "print a holder record from the store", runShowHolder},
	{"show-lock", "print a lock record from the store", runShowLock},
	{"issue-token", "mint a bearer token for the staking API", runIssueToken},
	{"export-claims", "export settled claims from the journal", runExportClaims},
	{"keygen", "create an encrypted custody signer keystore", runKeygen},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	for _, cmd := range commands {
		if cmd.name == os.Args[1] {
			if err := cmd.run(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}
	usage(os.Stderr)
	os.Exit(1)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nftstakectl <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", cmd.name, cmd.summary)
	}
}

func runInitConfig(args []string, out io.Writer) error {
	defaults := config.DefaultParams()
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	path := fs.String("out", defaultParamsPath, "Output path for the parameters file")
	points := fs.Uint("points", uint(defaults.PointsPerLock), "Points credited per completed lock")
	maxLocks := fs.Uint("max-locks", uint(defaults.MaxLocks), "Maximum concurrent locks per holder")
	freeze := fs.Duration("freeze", time.Duration(defaults.FreezePeriod), "Minimum lock duration")
	collection := fs.String("collection", "", "Verified collection id (32-byte hex)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *points > 255 || *maxLocks > 255 {
		return fmt.Errorf("points and max-locks must fit in 8 bits")
	}
	params := config.Params{
		PointsPerLock: uint8(*points),
		MaxLocks:      uint8(*maxLocks),
		FreezePeriod:  config.Duration(*freeze),
		Collection:    strings.TrimSpace(*collection),
	}
	if _, err := config.ValidateParams(params); err != nil {
		return err
	}
	if err := config.WriteParams(*path, params, *force); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", *path)
		}
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", *path)
	return nil
}

// openEngine opens the record store read-only and wraps it in an engine with
// no custody service, which is enough for the query operations.
func openEngine(backend, path string) (*nftstake.Engine, func(), error) {
	var (
		db  storage.Database
		err error
	)
	switch backend {
	case stakingd.StorageBolt:
		db, err = storage.NewBoltDB(path, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	case stakingd.StorageLevelDB:
		db, err = storage.NewLevelDB(path)
	default:
		return nil, nil, fmt.Errorf("backend %q not supported", backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	store, err := state.NewStakeStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	engine := nftstake.NewEngine()
	engine.SetStore(store)
	return engine, func() { _ = db.Close() }, nil
}

func storeFlags(fs *flag.FlagSet) (*string, *string) {
	backend := fs.String("backend", stakingd.StorageBolt, "Store backend (bolt|leveldb)")
	path := fs.String("store", defaultStorePath, "Path to the record store")
	return backend, path
}

func runShowHolder(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show-holder", flag.ContinueOnError)
	backend, path := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: show-holder [flags] <address>")
	}
	holder, err := nftstake.ParseHolderID(fs.Arg(0))
	if err != nil {
		return err
	}
	engine, closeFn, err := openEngine(*backend, *path)
	if err != nil {
		return err
	}
	defer closeFn()
	rec, err := engine.Holder(holder)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{
		"holder":      rec.ID.String(),
		"points":      rec.Points,
		"activeLocks": rec.ActiveLocks,
	})
}

func runShowLock(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show-lock", flag.ContinueOnError)
	backend, path := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: show-lock [flags] <item>")
	}
	item, err := nftstake.ParseItemID(fs.Arg(0))
	if err != nil {
		return err
	}
	engine, closeFn, err := openEngine(*backend, *path)
	if err != nil {
		return err
	}
	defer closeFn()
	rec, unlockableAt, err := engine.LockStatus(item)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{
		"owner":        rec.Owner.String(),
		"item":         rec.Item.String(),
		"lockedAt":     time.Unix(rec.LockedAt, 0).UTC().Format(time.RFC3339),
		"unlockableAt": time.Unix(unlockableAt, 0).UTC().Format(time.RFC3339),
	})
}

func runIssueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	secretEnv := fs.String("secret-env", defaultJWTEnv, "Environment variable holding the HMAC secret")
	subject := fs.String("subject", "", "Token subject (holder address for holder tokens)")
	scopes := fs.String("scopes", stakingd.ScopeHolder, "Comma separated scopes")
	issuer := fs.String("issuer", "", "Token issuer")
	audience := fs.String("audience", "", "Token audience")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}
	var scopeList []string
	for _, scope := range strings.Split(*scopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopeList = append(scopeList, scope)
		}
	}
	token, err := middleware.IssueToken(secret, middleware.TokenRequest{
		Subject:  *subject,
		Issuer:   *issuer,
		Audience: *audience,
		Scopes:   scopeList,
		TTL:      *ttl,
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runExportClaims(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export-claims", flag.ContinueOnError)
	dsn := fs.String("journal", "", "Journal DSN (sqlite file or postgres URL)")
	since := fs.String("since", "", "Only export claims at or after this RFC3339 time")
	format := fs.String("format", "csv", "Output format (csv|jsonl)")
	path := fs.String("out", "", "Write the export to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var from time.Time
	if *since != "" {
		parsed, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("parse since: %w", err)
		}
		from = parsed
	}
	journal, err := stakingd.OpenJournal(*dsn, 0, nil)
	if err != nil {
		return err
	}
	defer journal.Close()
	receipts, err := journal.Claims(context.Background(), from)
	if err != nil {
		return err
	}
	var (
		data     []byte
		checksum string
	)
	switch *format {
	case "csv":
		data, checksum, err = exports.ClaimsCSV(receipts)
	case "jsonl":
		data, checksum, err = exports.ClaimsJSONL(receipts)
	default:
		return fmt.Errorf("format %q not supported", *format)
	}
	if err != nil {
		return err
	}
	if *path == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(*path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d claims to %s (sha256 %s)\n", len(receipts), *path, checksum)
	return nil
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	passFile := fs.String("pass-file", "", "File containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*path) == "" {
		return fmt.Errorf("--out is required")
	}
	source := passphrase.NewSource(*passEnv, "custody keystore").WithFile(*passFile)
	pass, err := source.Get()
	if err != nil {
		return err
	}
	key, err := crypto.CreateKeystore(*path, pass)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]string{
		"keystore": *path,
		"address":  ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		"holder":   key.PubKey().Address().String(),
	})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
