// Command send delivers one message to a recipient file through the
// configured provider, skipping suppressed addresses.
//
//	send -message message.json -recipients recipients.json [-provider mailgun]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/ignite/bulkmail/internal/app"
	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/mailing"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/providers"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code, so deferred
// cleanup runs before the process exits.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", envOrDefault("CONFIG_PATH", "config/config.yaml"), "path to the YAML config file")
	provider := fs.String("provider", "", "provider to send through (defaults to mailing.provider)")
	messagePath := fs.String("message", "", "JSON file holding the message")
	recipientsPath := fs.String("recipients", "", "JSON file mapping address to variables")
	dryRun := fs.Bool("dry-run", false, "plan batches without sending")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *messagePath == "" || *recipientsPath == "" {
		fs.Usage()
		return 2
	}

	fatal := func(what string, err error) int {
		fmt.Fprintf(stderr, "FATAL: %s: %v\n", what, err)
		return 1
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		return fatal("load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if *provider == "" {
		*provider = cfg.Mailing.Provider
	}

	var msg domain.Message
	if err := readJSON(*messagePath, &msg); err != nil {
		return fatal("read message", err)
	}
	var recipients domain.RecipientData
	if err := readJSON(*recipientsPath, &recipients); err != nil {
		return fatal("read recipients", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		return fatal("startup", err)
	}
	defer deps.Close()

	adapter, err := providers.New(*provider, cfg, deps.Settings)
	if err != nil {
		return fatal("select provider", err)
	}
	sender := mailing.NewBatchSender(adapter, mailing.WithTagPrefix(cfg.Mailing.TagPrefix))

	allowed, skipped, err := filterSuppressed(ctx, deps.Suppressions, recipients)
	if err != nil {
		return fatal("suppression check", err)
	}

	batches := mailing.Chunk(allowed, sender.BatchSize())
	fmt.Fprintf(stdout, "message %s via %s: %d recipients, %d suppressed, %d batches\n",
		msg.ID, sender.Provider(), len(allowed), skipped, len(batches))
	if *dryRun {
		return 0
	}

	var accepted, rejected int
	for i, batch := range batches {
		res, err := sender.Send(ctx, msg, batch)
		if err != nil {
			fmt.Fprintf(stderr, "batch %d/%d failed: %v\n", i+1, len(batches), err)
			return 1
		}
		accepted += res.Accepted
		rejected += res.Rejected
		for _, f := range res.Failed() {
			fmt.Fprintf(stderr, "rejected %s: %s\n", logger.RedactEmail(f.Address), f.Error)
		}
	}
	fmt.Fprintf(stdout, "accepted=%d rejected=%d tag=%s\n", accepted, rejected, sender.Tag(msg.ID))
	return 0
}

// filterSuppressed drops recipients with any standing suppression record.
func filterSuppressed(ctx context.Context, svc *suppression.Service, recipients domain.RecipientData) (domain.RecipientData, int, error) {
	out := make(domain.RecipientData, len(recipients))
	skipped := 0
	for addr, vars := range recipients {
		ok, err := svc.IsSuppressed(ctx, addr)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			skipped++
			continue
		}
		out[addr] = vars
	}
	return out, skipped, nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
