// Package config parses the CLI surface (C9) into an immutable Config,
// in this codebase's idiom of building *flag.FlagSet accessors rather
// than a declarative struct-tag binder.
package config

import (
	"flag"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/rannes/pact-stub-server/internal/config/flags"
)

// Config is the fully-parsed, immutable set of switches consumed by
// the loader, dispatcher, and server. Once Parse returns, nothing
// mutates it.
type Config struct {
	Files []string
	Dirs  []string
	URLs  []string

	BrokerURL string
	User      string
	Password  string
	Token     string

	Port     int
	LogLevel string

	CORS                    bool
	CORSReferer             bool
	ProviderState           string
	ProviderStateHeaderName string
	MatchEmptyProviderState bool

	InsecureTLS bool

	// RequestTimeout bounds Dispatch's per-request work (narrowing
	// through scoring). Zero means unbounded.
	RequestTimeout time.Duration
}

// ProviderStateFilter compiles --provider-state, if set, into a
// *regexp.Regexp for the loader's load-time filter. Returns nil if the
// flag was never set.
func (c Config) ProviderStateFilter() (*regexp.Regexp, error) {
	if c.ProviderState == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.ProviderState)
	if err != nil {
		return nil, fmt.Errorf("invalid --provider-state pattern %q: %w", c.ProviderState, err)
	}
	return re, nil
}

// repeatedFlag accumulates repeatable "--flag value" occurrences into
// a slice, the idiom this codebase's flags helpers use for --file/
// --dir/--url.
type repeatedFlag struct {
	values *[]string
}

func (r repeatedFlag) String() string {
	if r.values == nil {
		return ""
	}
	return fmt.Sprint(*r.values)
}

func (r repeatedFlag) Set(v string) error {
	*r.values = append(*r.values, v)
	return nil
}

// Parse parses args (excluding the program name) into a Config. A
// parse error is returned unmodified; the caller is expected to exit
// with code 2 per the CLI's documented exit codes.
func Parse(args []string, errOutput io.Writer) (Config, error) {
	fs := flag.NewFlagSet("pact-stub-server", flag.ContinueOnError)
	fs.SetOutput(errOutput)

	var cfg Config
	fs.Var(repeatedFlag{&cfg.Files}, "file", "add a contract file to the load set (repeatable)")
	fs.Var(repeatedFlag{&cfg.Dirs}, "dir", "recursively add *.json contract files from a directory (repeatable)")
	fs.Var(repeatedFlag{&cfg.URLs}, "url", "fetch a contract from a URL (repeatable)")

	fs.StringVar(&cfg.BrokerURL, "broker-url", "", "fetch contracts from a Pact broker")
	fs.StringVar(&cfg.User, "user", "", "broker basic-auth username")
	fs.StringVar(&cfg.Password, "password", "", "broker basic-auth password")
	fs.StringVar(&cfg.Token, "token", "", "broker bearer token")

	port := flags.AddPortFlag(fs, 8080)
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "error|warn|info|debug|trace")

	fs.BoolVar(&cfg.CORS, "cors", false, "enable CORS preflight fast path and header merging")
	fs.BoolVar(&cfg.CORSReferer, "cors-referer", false, "additionally accept Origin from Referer")
	fs.StringVar(&cfg.ProviderState, "provider-state", "", "only load interactions whose state matches this regex")
	fs.StringVar(&cfg.ProviderStateHeaderName, "provider-state-header-name", "X-Pact-Provider-State", "header used in the per-request provider-state filter")
	fs.BoolVar(&cfg.MatchEmptyProviderState, "empty-provider-state", false, "also match interactions without provider state when filtering")

	fs.BoolVar(&cfg.InsecureTLS, "insecure-tls", false, "disable TLS verification on loader and broker requests")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", 0, "per-request dispatch deadline; 0 disables it")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Port = *port
	return cfg, nil
}
