// Package providers selects provider adapters from configuration. The set
// of variants is closed: adding a provider means adding a case here.
package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/mailgun"
	"github.com/ignite/bulkmail/internal/postmark"
	"github.com/ignite/bulkmail/internal/ses"
	"github.com/ignite/bulkmail/internal/settings"
	"github.com/ignite/bulkmail/internal/sparkpost"
)

// Names lists the supported providers.
var Names = []string{postmark.Name, mailgun.Name, sparkpost.Name, ses.Name}

// New returns the adapter for name.
func New(name string, cfg *config.Config, resolver *settings.Resolver) (esp.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case postmark.Name:
		return postmark.NewClient(cfg.Postmark, resolver), nil
	case mailgun.Name:
		return mailgun.NewClient(cfg.Mailgun, resolver), nil
	case sparkpost.Name:
		return sparkpost.NewClient(cfg.SparkPost, resolver), nil
	case ses.Name:
		return ses.NewClient(cfg.SES, resolver), nil
	}
	return nil, fmt.Errorf("unknown mail provider %q (supported: %s)", name, strings.Join(Names, ", "))
}

// Enabled returns an adapter for every provider enabled in cfg plus the
// active sending provider, sorted by name.
func Enabled(cfg *config.Config, resolver *settings.Resolver) ([]esp.Adapter, error) {
	want := map[string]bool{}
	if cfg.Mailing.Provider != "" {
		want[strings.ToLower(cfg.Mailing.Provider)] = true
	}
	if cfg.Postmark.Enabled {
		want[postmark.Name] = true
	}
	if cfg.Mailgun.Enabled {
		want[mailgun.Name] = true
	}
	if cfg.SparkPost.Enabled {
		want[sparkpost.Name] = true
	}
	if cfg.SES.Enabled {
		want[ses.Name] = true
	}

	names := make([]string, 0, len(want))
	for n := range want {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]esp.Adapter, 0, len(names))
	for _, n := range names {
		a, err := New(n, cfg, resolver)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
