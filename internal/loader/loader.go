// Package loader implements C8: assembling a contract.ContractSet from
// files, directories, URLs, and a Pact broker, per the --file/--dir/
// --url/--broker-url CLI surface. Any failure here is fatal: the caller
// is expected to exit(1) on a non-nil error.
package loader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rannes/pact-stub-server/internal/brokerclient"
	"github.com/rannes/pact-stub-server/internal/contract"
)

// Options configures one Load call, mirroring the CLI's loader flags.
type Options struct {
	Files  []string
	Dirs   []string
	URLs   []string
	Broker *BrokerOptions

	// ProviderStateFilter, if non-nil, drops any interaction none of
	// whose provider states match, at load time.
	ProviderStateFilter *regexp.Regexp

	InsecureTLS bool
}

// BrokerOptions carries the broker endpoint and credentials.
type BrokerOptions struct {
	URL      string
	User     string
	Password string
	Token    string
}

// Load reads every configured source in declaration order (files, then
// dirs, then URLs, then broker) and concatenates their interactions,
// preserving load order since it is the tie-break of last resort.
func Load(ctx context.Context, opt Options) (contract.ContractSet, error) {
	var set contract.ContractSet

	for _, path := range opt.Files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading contract file %q: %w", path, err)
		}
		part, err := parsePactFile(path, raw)
		if err != nil {
			return nil, err
		}
		set = append(set, part...)
	}

	dirFiles, err := expandDirs(opt.Dirs)
	if err != nil {
		return nil, err
	}
	for _, path := range dirFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading contract file %q: %w", path, err)
		}
		part, err := parsePactFile(path, raw)
		if err != nil {
			return nil, err
		}
		set = append(set, part...)
	}

	client := httpClient(opt.InsecureTLS)
	for _, u := range opt.URLs {
		part, err := fetchURL(ctx, client, u)
		if err != nil {
			return nil, err
		}
		set = append(set, part...)
	}

	if opt.Broker != nil {
		part, err := loadFromBroker(ctx, client, *opt.Broker)
		if err != nil {
			return nil, err
		}
		set = append(set, part...)
	}

	if opt.ProviderStateFilter != nil {
		set = filterByProviderState(set, opt.ProviderStateFilter)
	}

	return set, nil
}

// expandDirs recursively collects "*.json" under each directory using a
// doublestar glob, sorted lexically within each directory so load order
// is deterministic across runs on the same filesystem contents.
func expandDirs(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		fsys := os.DirFS(dir)
		matches, err := doublestar.Glob(fsys, "**/*.json")
		if err != nil {
			return nil, fmt.Errorf("scanning contract dir %q: %w", dir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			files = append(files, dir+string(os.PathSeparator)+m)
		}
	}
	return files, nil
}

func httpClient(insecureTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
	}
	return &http.Client{Transport: transport}
}

func fetchURL(ctx context.Context, client *http.Client, u string) (contract.ContractSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for contract URL %q: %w", u, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching contract URL %q: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching contract URL %q: unexpected status %d", u, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading contract URL %q: %w", u, err)
	}
	return parsePactFile(u, raw)
}

// loadFromBroker fetches the broker's pact list through brokerclient,
// which wraps the call in a circuit breaker and bounded jittered retry.
func loadFromBroker(ctx context.Context, client *http.Client, opt BrokerOptions) (contract.ContractSet, error) {
	bc := brokerclient.New(brokerclient.Config{
		BaseURL:  opt.URL,
		User:     opt.User,
		Password: opt.Password,
		Token:    opt.Token,
		HTTP:     client,
	})

	docs, err := bc.FetchPacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching pacts from broker %q: %w", opt.URL, err)
	}

	var set contract.ContractSet
	for _, doc := range docs {
		part, err := parsePactFile(doc.Source, doc.Body)
		if err != nil {
			return nil, err
		}
		set = append(set, part...)
	}
	return set, nil
}

func filterByProviderState(set contract.ContractSet, filter *regexp.Regexp) contract.ContractSet {
	out := set[:0:0]
	for _, in := range set {
		if matchesProviderStateFilter(in, filter) {
			out = append(out, in)
		}
	}
	return out
}
