package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmtab/internal/cache"
	"github.com/wegman-software/osmtab/internal/config"
	"github.com/wegman-software/osmtab/internal/download"
	"github.com/wegman-software/osmtab/internal/geofabrik"
	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/pbf"
)

var (
	cfg             = config.DefaultConfig()
	cfgFile         string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
	tagErrors       string
)

var rootCmd = &cobra.Command{
	Use:   "osmtab",
	Short: "Geofabrik OSM extracts as queryable tables",
	Long: `osmtab downloads Geofabrik OSM extracts and parses them into per-layer
tables: points, lines, multilinestrings, multipolygons and other_relations.

Features:
  - Fuzzy subregion name resolution against the Geofabrik download tree
  - Two-pass PBF scan with a memory-mapped node index
  - Tag blob decoding with the "key"=>"value" convention
  - Gob-snapshot dataset cache, LRU-fronted
  - Shapefile flavour: read, filter and merge .shp.zip layers
  - Exports to Parquet and PostGIS`,
}

// Assigned in init rather than in the rootCmd literal to avoid an
// initialization cycle through applyConfig.
func rootPersistentPreRun(cmd *cobra.Command, args []string) {
	applyConfig()

	if cfg.LogFile != "" {
		logger.InitWithFile(cfg.Verbose, cfg.LogFile)
	} else {
		logger.Init(cfg.Verbose)
	}

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
}

// applyConfig settles the final configuration: defaults, then the config
// file, then any flag the user set explicitly. Flags bound straight to cfg
// fields hold their parsed values before the file overlays them, so those
// are captured first and re-applied for flags marked changed.
func applyConfig() {
	flags := rootCmd.PersistentFlags()

	if cfgFile != "" {
		fromFlags := *cfg
		if err := cfg.LoadFile(cfgFile); err != nil {
			exitWithError("failed to load config file", err)
		}
		restore := map[string]func(){
			"data-dir":         func() { cfg.DataDir = fromFlags.DataDir },
			"cache-dir":        func() { cfg.CacheDir = fromFlags.CacheDir },
			"workers":          func() { cfg.Workers = fromFlags.Workers },
			"yes":              func() { cfg.AssumeYes = fromFlags.AssumeYes },
			"update":           func() { cfg.Update = fromFlags.Update },
			"download-timeout": func() { cfg.DownloadTimeout = fromFlags.DownloadTimeout },
			"db-host":          func() { cfg.DBHost = fromFlags.DBHost },
			"db-port":          func() { cfg.DBPort = fromFlags.DBPort },
			"db-name":          func() { cfg.DBName = fromFlags.DBName },
			"db-user":          func() { cfg.DBUser = fromFlags.DBUser },
			"db-password":      func() { cfg.DBPassword = fromFlags.DBPassword },
			"db-schema":        func() { cfg.DBSchema = fromFlags.DBSchema },
		}
		for name, apply := range restore {
			if flags.Changed(name) {
				apply()
			}
		}
	}

	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("metrics-interval") {
		cfg.MetricsInterval = metricsInterval
	}
	if flags.Changed("tag-errors") {
		cfg.TagErrors = config.TagErrorPolicy(tagErrors)
	}
}

func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentPreRun = rootPersistentPreRun
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for downloaded archives and extracts")
	rootCmd.PersistentFlags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory for parsed dataset snapshots")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel PBF block decoders")
	rootCmd.PersistentFlags().BoolVarP(&cfg.AssumeYes, "yes", "y", false, "Skip download confirmation prompts")
	rootCmd.PersistentFlags().BoolVar(&cfg.Update, "update", false, "Re-download and re-parse even when local copies exist")
	rootCmd.PersistentFlags().StringVar(&tagErrors, "tag-errors", string(cfg.TagErrors), "Malformed tag blob policy: skip or fail")
	rootCmd.PersistentFlags().DurationVar(&cfg.DownloadTimeout, "download-timeout", cfg.DownloadTimeout, "Per-file download timeout")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for resource usage logging (e.g., 10s, 1m)")

	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}

// newFetcher builds the shared download fetcher from the global config.
func newFetcher() *download.Fetcher {
	confirm := download.StdinConfirm
	if cfg.AssumeYes {
		confirm = download.AlwaysConfirm
	}
	return download.NewFetcher(cfg.DataDir,
		download.WithConfirm(confirm),
		download.WithUpdate(cfg.Update),
		download.WithTimeout(cfg.DownloadTimeout),
	)
}

// newParser wires the PBF parser with its cache. A cache that fails to
// open degrades to uncached parsing.
func newParser() *pbf.Parser {
	var dsCache pbf.DatasetCache
	if c, err := cache.New(cfg.CacheDir, 4); err != nil {
		logger.Get().Warn("Dataset cache unavailable, parsing uncached", zap.Error(err))
	} else {
		dsCache = c
	}
	return pbf.NewParser(cfg, geofabrik.DefaultIndex(), newFetcher(), dsCache)
}
