package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/browser"
	"github.com/edgecomet/netscan/internal/cache"
	"github.com/edgecomet/netscan/internal/challenge"
	"github.com/edgecomet/netscan/internal/common/config"
	"github.com/edgecomet/netscan/internal/common/logger"
	"github.com/edgecomet/netscan/internal/pipeline"
	"github.com/edgecomet/netscan/internal/rules"
	"github.com/edgecomet/netscan/internal/scan"
	"github.com/edgecomet/netscan/internal/tools"
	"github.com/edgecomet/netscan/pkg/types"
)

// cliFlags holds the CLI surface spec.md §6 describes. Config-file parsing
// and argument parsing itself are both explicitly out of scope as crawler
// internals (spec.md §1) -- this is the thin collaborator that owns them.
type cliFlags struct {
	configPath string
	output     string
	appendMode bool
	comparePath string

	syntax  rules.Syntax
	hostsIP string

	subDomains  bool
	removeDupes bool
	showTitles  bool
	dumpURLs    bool
	dryRun      bool

	maxConcurrent   int
	cleanupInterval int

	clearCache  bool
	ignoreCache bool
	cacheReqs   bool

	headful    bool
	noInteract bool

	validateConfig bool
	validateRules  string
	cleanRules     string

	silent, verbose, debug bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}

	flag.StringVar(&f.configPath, "config", "netscan.yaml", "path to the site/global config document")
	flag.StringVar(&f.output, "output", "", "output file for rendered rules")
	flag.StringVar(&f.output, "o", "", "shorthand for --output")
	flag.BoolVar(&f.appendMode, "append", false, "append to --output instead of truncating")
	flag.StringVar(&f.comparePath, "compare", "", "only emit rules absent from this prior output file")

	localhostIP := flag.String("localhost", "", "hosts-local syntax, optionally =<ip> (default 127.0.0.1)")
	plain := flag.Bool("plain", false, "plain domain-per-line syntax")
	dnsmasq := flag.Bool("dnsmasq", false, "dnsmasq local= syntax")
	dnsmasqOld := flag.Bool("dnsmasq-old", false, "dnsmasq server= syntax")
	unbound := flag.Bool("unbound", false, "unbound local-zone syntax")
	privoxy := flag.Bool("privoxy", false, "privoxy action-file syntax")
	pihole := flag.Bool("pihole", false, "pi-hole regex syntax")
	adblockRules := flag.Bool("adblock-rules", false, "adblock syntax annotated with resource types")

	flag.BoolVar(&f.subDomains, "sub-domains", false, "accepted for compatibility; has no effect (rules always use the registrable domain)")
	flag.BoolVar(&f.removeDupes, "remove-dupes", false, "drop repeated domain lines")
	flag.BoolVar(&f.showTitles, "titles", false, "prepend a comment header per source URL")
	flag.BoolVar(&f.dumpURLs, "dumpurls", false, "print the flattened task URL list and exit, without scanning")
	flag.BoolVar(&f.dryRun, "dry-run", false, "scan and classify but skip the post-processing safety net and output write")

	flag.IntVar(&f.maxConcurrent, "max-concurrent", 0, "override max_concurrent_sites")
	flag.IntVar(&f.cleanupInterval, "cleanup-interval", 0, "override resource_cleanup_interval")

	flag.BoolVar(&f.clearCache, "clear-cache", false, "no-op: no cache state is persisted across runs")
	flag.BoolVar(&f.ignoreCache, "ignore-cache", false, "accepted; SmartCache is still built with its default per-category bound")
	flag.BoolVar(&f.cacheReqs, "cache-requests", false, "accepted for compatibility; has no effect")

	flag.BoolVar(&f.headful, "headful", false, "run Chrome with a visible window instead of headless")
	flag.BoolVar(&f.noInteract, "no-interact", false, "disable site.interact regardless of config")

	flag.BoolVar(&f.validateConfig, "validate-config", false, "validate --config and exit (0 on success, 1 on failure)")
	flag.StringVar(&f.validateRules, "validate-rules", "", "validate a prior rules output file's syntax and exit")
	flag.StringVar(&f.cleanRules, "clean-rules", "", "rewrite a prior rules output file with duplicate lines removed")

	flag.BoolVar(&f.silent, "silent", false, "only log errors")
	flag.BoolVar(&f.verbose, "verbose", false, "log info-level progress")
	flag.BoolVar(&f.debug, "debug", false, "log debug-level detail, including to logs/debug_requests_<ts>.log")

	flag.Parse()

	f.syntax = rules.SyntaxPlain
	switch {
	case *localhostIP != "" || hasBoolFlag("localhost"):
		f.syntax = rules.SyntaxHostsLocal
		f.hostsIP = *localhostIP
	case *plain:
		f.syntax = rules.SyntaxPlain
	case *dnsmasq:
		f.syntax = rules.SyntaxDnsmasq
	case *dnsmasqOld:
		f.syntax = rules.SyntaxDnsmasqOld
	case *unbound:
		f.syntax = rules.SyntaxUnbound
	case *privoxy:
		f.syntax = rules.SyntaxPrivoxy
	case *pihole:
		f.syntax = rules.SyntaxPihole
	case *adblockRules:
		f.syntax = rules.SyntaxAdblockRules
	default:
		f.syntax = rules.SyntaxAdblock
	}

	return f
}

// hasBoolFlag reports whether name was passed on the command line at all,
// distinguishing bare --localhost from an unset flag (flag.String can't
// tell the two apart on its own since both yield an empty default).
func hasBoolFlag(name string) bool {
	found := false
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func main() {
	f := parseFlags()
	consoleLevel := logger.ConsoleLevel(f.silent, f.verbose, f.debug)

	timestamp := time.Now().UTC().Format("20060102T150405Z")

	logsDir := ""
	if f.debug {
		logsDir = "logs"
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create logs dir: %v\n", err)
			os.Exit(1)
		}
	}

	log, err := logger.New(consoleLevel, logsDir, timestamp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if f.validateRules != "" {
		os.Exit(runValidateRules(log, f.validateRules))
	}
	if f.cleanRules != "" {
		os.Exit(runCleanRules(log, f.cleanRules))
	}

	global, err := config.Load(f.configPath)
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		os.Exit(1)
	}

	if f.validateConfig {
		validator := config.NewValidator()
		if errs := validator.Validate(global); len(errs) > 0 {
			for _, e := range errs {
				log.Error("validation error", zap.Error(e))
			}
			os.Exit(1)
		}
		log.Info("config valid")
		os.Exit(0)
	}

	applyFlagOverrides(global, f)

	if f.dumpURLs {
		for _, task := range scan.FlattenTasks(global) {
			fmt.Println(task.URL)
		}
		os.Exit(0)
	}

	browserConfig := browser.DefaultConfig()
	browserConfig.Headless = !f.headful
	if err := browserConfig.Validate(); err != nil {
		log.Error("invalid browser configuration", zap.Error(err))
		os.Exit(1)
	}

	pool, err := browser.NewPool(browserConfig, log)
	if err != nil {
		log.Error("failed to start browser pool", zap.Error(err))
		os.Exit(1)
	}

	cacheSize := cache.DefaultLRUSize
	if f.ignoreCache {
		cacheSize = 0
	}
	smartCache := cache.New(cacheSize, log, nil)

	curlAdapter := tools.NewCurlAdapter("curl")
	digAdapter := tools.NewDigAdapter("dig")
	whoisAdapter := tools.NewWhoisAdapter("whois")
	whoisAdapter.SetMinDelay(global.WhoisDelay.ToDuration())

	pipe := pipeline.New(log, global, smartCache, curlAdapter, digAdapter, whoisAdapter, "grep", challenge.NoopHandler{})

	orchestrator := scan.New(log, global, pool, smartCache, pipe, f.debug, f.dryRun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("scan starting", zap.String("config", f.configPath), zap.Int("sites", len(global.Sites)))

	store, runErr := orchestrator.Run(ctx)
	if runErr != nil {
		log.Warn("scan ended early", zap.Error(runErr))
	}

	if err := pool.Shutdown(browserConfig.ShutdownTimeout); err != nil {
		log.Warn("browser pool shutdown reported an error", zap.Error(err))
	}

	summarize(log, store)

	if f.dryRun {
		os.Exit(0)
	}

	if err := writeOutput(store, f); err != nil {
		log.Error("failed to write output", zap.Error(err))
		os.Exit(1)
	}

	os.Exit(0)
}

// applyFlagOverrides layers CLI flags over the loaded config document, per
// spec.md §6's CLI flags taking precedence over the equivalent YAML field.
func applyFlagOverrides(global *types.GlobalConfig, f *cliFlags) {
	if f.maxConcurrent > 0 {
		global.MaxConcurrentSites = f.maxConcurrent
	}
	if f.cleanupInterval > 0 {
		global.ResourceCleanupInterval = f.cleanupInterval
	}
	if f.noInteract {
		for i := range global.Sites {
			global.Sites[i].Interact = false
		}
	}
}

func summarize(log *zap.Logger, store *rules.Store) {
	results := store.Results()
	successCount, matchCount := 0, 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
		matchCount += len(r.Rules)
	}
	log.Info("scan complete",
		zap.Int("tasks", len(results)),
		zap.Int("successful_loads", successCount),
		zap.Int("matches", matchCount))
}

func writeOutput(store *rules.Store, f *cliFlags) error {
	formatter := rules.NewFormatter(f.syntax, f.hostsIP)
	content, err := store.Render(rules.RenderOptions{
		Formatter:    formatter,
		ShowTitles:   f.showTitles,
		RemoveDupes:  f.removeDupes,
		BaselinePath: f.comparePath,
	})
	if err != nil {
		return err
	}

	if f.output == "" {
		fmt.Print(content)
		return nil
	}
	if dir := filepath.Dir(f.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir %q: %w", dir, err)
		}
	}
	return rules.WriteTo(f.output, content, f.appendMode)
}

func runValidateRules(log *zap.Logger, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("read rules file", zap.Error(err))
		return 1
	}
	bad := 0
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || rules.IsCommentLine(trimmed) {
			continue
		}
		if strings.ContainsAny(trimmed, "\t") {
			log.Error("invalid rule line", zap.Int("line", i+1), zap.String("content", trimmed))
			bad++
		}
	}
	if bad > 0 {
		return 1
	}
	log.Info("rules file valid", zap.String("path", path))
	return 0
}

func runCleanRules(log *zap.Logger, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("read rules file", zap.Error(err))
		return 1
	}

	seen := make(map[string]struct{})
	var out strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key := rules.NormalizeRuleLine(line)
		if !rules.IsCommentLine(line) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out.WriteString(line)
		out.WriteString("\n")
	}

	if err := rules.WriteTo(path, out.String(), false); err != nil {
		log.Error("write cleaned rules", zap.Error(err))
		return 1
	}
	log.Info("rules file cleaned", zap.String("path", path))
	return 0
}
