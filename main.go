// i18nextract extracts __() translation markers from PHP sources into a message store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/minios-linux/i18nextract/catalog"
	"github.com/minios-linux/i18nextract/config"
	"github.com/minios-linux/i18nextract/extract"
	"github.com/minios-linux/i18nextract/i18n"
	"github.com/minios-linux/i18nextract/lockfile"
	"github.com/minios-linux/i18nextract/route"
	"github.com/minios-linux/i18nextract/store"
	"github.com/minios-linux/i18nextract/store/boltstore"
	"github.com/minios-linux/i18nextract/store/postore"
	"github.com/minios-linux/i18nextract/store/sqlstore"
	"github.com/minios-linux/i18nextract/watch"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func setupLogging(w io.Writer, verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func logInfo(format string, args ...any) {
	log.Info().Msgf(format, args...)
}

func logSuccess(format string, args ...any) {
	log.Info().Str("status", "ok").Msgf(format, args...)
}

func logWarning(format string, args ...any) {
	log.Warn().Msgf(format, args...)
}

func logError(format string, args ...any) {
	log.Error().Msgf(format, args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "i18nextract",
		Short: "Extract __() translation markers from PHP sources",
		Long: `i18nextract scans PHP sources for the __ family of translation
functions and stores every message for each configured language.

Commands:
  extract     Scan sources and save new messages to the store
  status      Show message counts per domain and locale
  lookup      Translate a message from the store
  route       Expand and test a language-prefixed route

Stores:
  po          gettext files under locale/<lang>/<domain>.po (default)
  bolt        embedded bbolt database
  sql         PostgreSQL table (I18N_DSN)
  memory      in-process only, nothing is written`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Stderr, verbose)
		},
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newExtractCmd(),
		newStatusCmd(),
		newLookupCmd(),
		newRouteCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	setupLogging(os.Stderr, false)
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("i18nextract version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Config and store helpers
// ---------------------------------------------------------------------------

// storeArgs are the flags selecting a message store.
type storeArgs struct {
	kind  string
	dsn   string
	bolt  string
	poDir string
}

func (s *storeArgs) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.kind, "store", "", "Message store: sql, bolt, po, memory")
	cmd.Flags().StringVar(&s.dsn, "dsn", "", "PostgreSQL DSN for the sql store")
	cmd.Flags().StringVar(&s.bolt, "bolt", "", "Database file for the bolt store")
	cmd.Flags().StringVar(&s.poDir, "po-dir", "", "Directory for the po store")
}

func (s *storeArgs) apply(cfg *config.Config) {
	if s.kind != "" {
		cfg.Store.Type = s.kind
	}
	if s.dsn != "" {
		cfg.Store.DSN = s.dsn
	}
	if s.bolt != "" {
		cfg.Store.Bolt = s.bolt
	}
	if s.poDir != "" {
		cfg.Store.PODir = s.poDir
	}
}

func loadConfig() (*config.Config, error) {
	if !fileExists(filepath.Join(rootDir, config.FileName)) {
		log.Debug().Str("root", rootDir).Msgf("no %s, using defaults", config.FileName)
	}
	return config.Load(rootDir)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQL:
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("sql store needs a DSN (set %s or --dsn)", config.EnvDSN)
		}
		return sqlstore.Open(ctx, cfg.Store.DSN)
	case config.StoreBolt:
		path := cfg.BoltPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		return boltstore.Open(path)
	case config.StorePO:
		return postore.Open(cfg.PODir())
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 90:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

// ---------------------------------------------------------------------------
// extract
// ---------------------------------------------------------------------------

type extractArgs struct {
	paths         []string
	files         []string
	exclude       []string
	languages     []string
	domains       []string
	merge         string
	extractCore   string
	corePath      string
	noLocation    bool
	markerError   bool
	relativePaths bool
	jobs          int
	cache         bool
	watch         bool
	dryRun        bool
	store         storeArgs
}

func newExtractCmd() *cobra.Command {
	var a extractArgs

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Scan sources and save new messages to the store",
		Long: `Scan PHP sources for __(), __n(), __d(), __dn(), __x(), __xn(), __dx()
and __dxn() calls and save each message once per configured language.

Messages already in the store are left untouched, so re-running is safe.
Calls whose arguments are not string literals are reported as invalid
marker content and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := a.apply(cmd, cfg); err != nil {
				return err
			}
			return runExtract(cmdContext(cmd), cfg, a.watch)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&a.paths, "paths", nil, "Comma separated directories to search")
	f.StringSliceVar(&a.files, "files", nil, "Comma separated files to scan instead of searching paths")
	f.StringSliceVar(&a.exclude, "exclude", nil, "Comma separated path segments to skip (e.g. test,vendors)")
	f.StringSliceVar(&a.languages, "languages", nil, "Comma separated locales to store messages for")
	f.StringSliceVar(&a.domains, "domains", nil, "Only store these domains")
	f.StringVar(&a.merge, "merge", "", "Merge all domains into \"default\" (yes|no)")
	f.StringVar(&a.extractCore, "extract-core", "", "Also scan the core path (yes|no)")
	f.StringVar(&a.corePath, "core-path", "", "Framework source directory")
	f.BoolVar(&a.noLocation, "no-location", false, "Do not store source references")
	f.BoolVar(&a.markerError, "marker-error", false, "List every invalid marker call")
	f.BoolVar(&a.relativePaths, "relative-paths", false, "Record references relative to the project root")
	f.IntVarP(&a.jobs, "jobs", "j", 0, "Files scanned concurrently")
	f.BoolVar(&a.cache, "cache", false, "Reuse results for unchanged files ("+lockfile.LockFileName+")")
	f.BoolVar(&a.watch, "watch", false, "Re-extract when sources change")
	f.BoolVar(&a.dryRun, "dry-run", false, "Extract into memory and print the counts")
	a.store.register(cmd)

	return cmd
}

func (a *extractArgs) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("paths") {
		cfg.Paths = a.paths
	}
	if f.Changed("files") {
		cfg.Files = a.files
	}
	if f.Changed("exclude") {
		cfg.Exclude = a.exclude
	}
	if f.Changed("languages") {
		cfg.Languages = config.Languages(a.languages)
	}
	if f.Changed("domains") {
		cfg.Domains = a.domains
	}
	if f.Changed("merge") {
		v, err := config.ParseYesNo(a.merge)
		if err != nil {
			return fmt.Errorf("--merge: %w", err)
		}
		cfg.Merge = v
	}
	if f.Changed("extract-core") {
		v, err := config.ParseYesNo(a.extractCore)
		if err != nil {
			return fmt.Errorf("--extract-core: %w", err)
		}
		cfg.ExtractCore = v
	}
	if f.Changed("core-path") {
		cfg.CorePath = a.corePath
	}
	if f.Changed("no-location") {
		cfg.NoLocation = a.noLocation
	}
	if f.Changed("marker-error") {
		cfg.MarkerError = a.markerError
	}
	if f.Changed("relative-paths") {
		cfg.RelativePaths = a.relativePaths
	}
	if f.Changed("jobs") {
		cfg.Jobs = a.jobs
	}
	if f.Changed("cache") {
		cfg.Cache = a.cache
	}
	a.store.apply(cfg)
	if a.dryRun {
		cfg.Store.Type = config.StoreMemory
	}
	return nil
}

// extractor holds what stays the same between watch-mode runs.
type extractor struct {
	cfg     *config.Config
	scanner *extract.Scanner
	store   store.Store
}

func newExtractor(cfg *config.Config, st store.Store) (*extractor, error) {
	markers, err := cfg.ExtractMarkers()
	if err != nil {
		return nil, err
	}
	scanner, err := extract.NewScanner(markers)
	if err != nil {
		return nil, err
	}
	return &extractor{cfg: cfg, scanner: scanner, store: st}, nil
}

func (x *extractor) sources() ([]string, error) {
	if len(x.cfg.Files) > 0 {
		return extract.FindSources(x.cfg.ScanFiles(), x.cfg.Exclude)
	}
	return extract.FindSources(x.cfg.ScanPaths(), x.cfg.Exclude)
}

// run performs one scan and flush.
func (x *extractor) run(ctx context.Context) (*extract.Report, catalog.FlushStats, error) {
	cfg := x.cfg
	var stats catalog.FlushStats

	files, err := x.sources()
	if err != nil {
		return nil, stats, err
	}
	if len(files) == 0 {
		logWarning("No PHP sources found")
		return &extract.Report{}, stats, nil
	}
	logInfo("Scanning %d files (%s)", len(files), extract.DescribeFiles(files))

	opts := extract.Options{
		Scanner:  x.scanner,
		CorePath: cfg.AbsCorePath(),
		Jobs:     cfg.Jobs,
	}
	if cfg.RelativePaths {
		root, err := filepath.Abs(cfg.Root())
		if err != nil {
			return nil, stats, err
		}
		opts.Root = root
	}
	if cfg.Cache {
		lf, err := lockfile.Load(cfg.Root(), x.scanner.Fingerprint())
		if err != nil {
			logWarning("Ignoring scan cache: %v", err)
		} else {
			opts.Cache = lf
			log.Debug().Str("cache", lf.Summary()).Msg("loaded scan cache")
		}
	}
	if isTerminal(os.Stderr) && !verbose {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r%s %d/%d", progressBar(done*100/total, 30), done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	cat := catalog.New()
	report, err := extract.Run(ctx, files, cat, opts)
	if err != nil {
		return nil, stats, err
	}
	log.Debug().
		Int("scanned", report.Scanned).
		Int("cached", report.Cached).
		Int("calls", report.Calls).
		Msg("scan finished")

	reportDiagnostics(os.Stderr, report.Diagnostics, cfg.MarkerError)

	stats, err = cat.Flush(ctx, x.store, catalog.FlushOptions{
		Languages:  cfg.Languages,
		Domains:    cfg.Domains,
		Merge:      cfg.Merge,
		NoLocation: cfg.NoLocation,
		Roots:      cfg.ReferenceRoots(),
	})
	if err != nil {
		return report, stats, err
	}

	if opts.Cache != nil {
		if err := opts.Cache.Save(); err != nil {
			logWarning("Cannot save scan cache: %v", err)
		}
	}
	return report, stats, nil
}

// reportDiagnostics warns about counted diagnostics. With markerError set
// every item is listed, including uncounted ones from the core path.
func reportDiagnostics(w io.Writer, ds extract.Diagnostics, markerError bool) {
	if ds.Count > 0 {
		logWarning("%d invalid marker content(s) found", ds.Count)
		if !markerError {
			logInfo("Use --marker-error to list them")
		}
	}
	if markerError {
		for _, d := range ds.Items {
			fmt.Fprintln(w, d.String())
		}
	}
}

func runExtract(ctx context.Context, cfg *config.Config, watchMode bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
	}
	defer st.Close()

	x, err := newExtractor(cfg, st)
	if err != nil {
		return err
	}

	once := func() error {
		_, stats, err := x.run(ctx)
		if err != nil {
			return err
		}
		logSuccess("%d new, %d already stored (%s)", stats.Inserted, stats.Skipped,
			strings.Join(cfg.Languages, ", "))
		return nil
	}
	if err := once(); err != nil {
		return err
	}

	if cfg.Store.Type == config.StoreMemory {
		if err := printTallies(ctx, st); err != nil {
			return err
		}
	}

	if !watchMode {
		return nil
	}
	return watchSources(ctx, cfg, once)
}

func watchSources(ctx context.Context, cfg *config.Config, once func() error) error {
	w, err := watch.New(cfg.Exclude)
	if err != nil {
		return err
	}
	defer w.Close()

	dirs := cfg.ScanPaths()
	if len(cfg.Files) > 0 {
		dirs = nil
		for _, f := range cfg.ScanFiles() {
			dirs = append(dirs, filepath.Dir(f))
		}
	}
	if err := w.Add(dirs...); err != nil {
		return err
	}
	logInfo("Watching %s (Ctrl+C to stop)", strings.Join(dirs, ", "))

	err = w.Run(ctx, func(files []string) {
		logInfo("%d file(s) changed", len(files))
		if err := once(); err != nil {
			logError("%v", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var sa storeArgs

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show message counts per domain and locale",
		Long: `Show how many messages the store holds for every domain and locale,
and how many of them are translated. Does not modify anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sa.apply(cfg)
			ctx := cmdContext(cmd)
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
			}
			defer st.Close()
			return printTallies(ctx, st)
		},
	}
	sa.register(cmd)

	return cmd
}

func printTallies(ctx context.Context, st store.Store) error {
	tallies, err := store.Summarize(ctx, st)
	if err != nil {
		return err
	}
	if len(tallies) == 0 {
		logInfo("Store is empty")
		return nil
	}

	fmt.Fprintf(os.Stderr, "%sMessages%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 64))
	fmt.Fprintf(os.Stderr, "%-16s %-8s %-10s %-12s %s\n", "Domain", "Locale", "Messages", "Translated", "Progress")
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 64))

	total := 0
	for _, t := range tallies {
		percent := 0
		if t.Messages > 0 {
			percent = t.Translated * 100 / t.Messages
		}
		fmt.Fprintf(os.Stderr, "%-16s %-8s %-10d %-12d %s\n",
			t.Domain, t.Locale, t.Messages, t.Translated, progressBar(percent, 20))
		total += t.Messages
	}
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 64))
	fmt.Fprintf(os.Stderr, "Total records: %d\n", total)
	return nil
}

// ---------------------------------------------------------------------------
// lookup
// ---------------------------------------------------------------------------

func newLookupCmd() *cobra.Command {
	var (
		sa      storeArgs
		domain  string
		locale  string
		msgctxt string
		plural  string
		n       int
	)

	cmd := &cobra.Command{
		Use:   "lookup MSGID",
		Short: "Translate a message from the store",
		Long: `Look up MSGID in the store for a domain and locale, the way the
application would at run time. Untranslated messages print unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sa.apply(cfg)
			if locale == "" {
				locale = i18n.DetectLanguage()
			}

			ctx := cmdContext(cmd)
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
			}
			defer st.Close()

			tr, err := i18n.Load(ctx, st, domain, locale)
			if err != nil {
				return err
			}
			msgid := args[0]
			switch {
			case plural != "" && msgctxt != "":
				fmt.Println(tr.XN(msgctxt, msgid, plural, n))
			case plural != "":
				fmt.Println(tr.N(msgid, plural, n))
			case msgctxt != "":
				fmt.Println(tr.X(msgctxt, msgid))
			default:
				fmt.Println(tr.T(msgid))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&domain, "domain", "d", catalog.DefaultDomain, "Message domain")
	f.StringVarP(&locale, "locale", "l", "", "Locale (default from LANGUAGE/LC_ALL/LANG)")
	f.StringVar(&msgctxt, "context", "", "Message context")
	f.StringVar(&plural, "plural", "", "Plural msgid")
	f.IntVarP(&n, "count", "n", 1, "Count for plural selection")
	sa.register(cmd)

	return cmd
}

// ---------------------------------------------------------------------------
// route
// ---------------------------------------------------------------------------

func newRouteCmd() *cobra.Command {
	var (
		lang      string
		languages []string
		url       string
		accept    string
	)

	cmd := &cobra.Command{
		Use:   "route TEMPLATE",
		Short: "Expand and test a language-prefixed route",
		Long: `Print the route TEMPLATE with its :lang prefix and options.

With --url, match a request path against it. With --accept, pick the
language an Accept-Language header would be redirected to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("languages") {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				languages = cfg.Languages
			}

			var opts *route.Options
			if lang != "" {
				opts = &route.Options{Lang: lang}
			}
			r, err := route.New(args[0], nil, opts, languages)
			if err != nil {
				return err
			}

			fmt.Printf("template: %s\n", r.Template)
			fmt.Printf("lang:     %s\n", r.Options.Lang)
			fmt.Printf("inflect:  %s\n", r.Options.Inflect)
			fmt.Printf("persist:  %s\n", strings.Join(r.Options.Persist, ", "))

			if url != "" {
				params, ok := r.Match(url)
				if !ok {
					return fmt.Errorf("%s does not match %s", url, r.Template)
				}
				for _, name := range sortedKeys(params) {
					fmt.Printf("  %s = %s\n", name, params[name])
				}
			}
			if cmd.Flags().Changed("accept") {
				fallback := ""
				if len(languages) > 0 {
					fallback = languages[0]
				}
				fmt.Printf("redirect: /%s\n", route.Negotiate(accept, languages, fallback))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&lang, "lang", "", "Language alternation, e.g. en|fr (default: configured languages)")
	f.StringSliceVar(&languages, "languages", nil, "Comma separated languages (default from config)")
	f.StringVar(&url, "url", "", "Request path to match")
	f.StringVar(&accept, "accept", "", "Accept-Language header to negotiate")

	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
