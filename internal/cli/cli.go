package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"soundbridge.dev/internal/config"
	"soundbridge.dev/internal/engine"
	"soundbridge.dev/internal/fs"
	"soundbridge.dev/internal/journal"
	"soundbridge.dev/internal/library"
)

const Version = "1.2.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	fsFactory        fs.Factory
	engineFactory    engine.Factory
	terminalDetector TerminalDetector
	journalDB        *sql.DB // Optional journal database
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "soundbridge",
		Short: "Sound playback command adapter",
		Long: "Soundbridge reads newline-delimited JSON playback commands from stdin,\n" +
			"drives an audio engine, and writes normalized playback events to stdout\n" +
			"as they happen.",
		SilenceUsage: true,
		RunE:         runStreamModeE, // Default behavior when no subcommand is provided
	}

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newStatsCommand())

	// Persistent flags shared by stream mode and the subcommands
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("volume", "", "Set volume (0 to 100)")
	rootCmd.PersistentFlags().String("engine", "", "Audio engine (auto/oto/malgo/silent)")
	rootCmd.PersistentFlags().Bool("silent", false, "Silent mode - run the full lifecycle without audio output")

	// Stream-mode flags
	rootCmd.Flags().Bool("interactive", false, "Allow reading commands from an interactive terminal")
	rootCmd.Flags().StringSlice("scope", nil, "Isolation labels stamped on commands and filtered on events")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	return &CLI{
		rootCmd:          rootCmd,
		configManager:    nil, // Lazy initialization - only create when needed
		fsFactory:        nil, // Lazy initialization - only create when needed
		engineFactory:    nil, // Lazy initialization - only create when needed
		terminalDetector: nil, // Lazy initialization - only create when needed
		journalDB:        nil, // Lazy initialization - only create when needed
	}
}

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), "cli", cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value("cli").(*CLI); ok {
		return cli
	}
	return nil
}

// handleVersionFlag checks and handles the version flag
// Returns true if version was handled and processing should stop
func handleVersionFlag(cmd *cobra.Command) (bool, error) {
	version, _ := cmd.Flags().GetBool("version")
	if version {
		cmd.Printf("soundbridge version %s\nSound playback command adapter\n", Version)
		return true, nil
	}
	return false, nil
}

// loadAndValidateConfig loads configuration from flags and files, applies overrides, and validates
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	volumeStr, _ := cmd.Flags().GetString("volume")
	engineFlag, _ := cmd.Flags().GetString("engine")
	silent, _ := cmd.Flags().GetBool("silent")

	// Validate volume flag early so a typo fails before any engine work
	if volumeStr != "" {
		vol, err := strconv.Atoi(volumeStr)
		if err != nil {
			cmd.PrintErrf("Error: invalid volume value '%s': %v\n", volumeStr, err)
			slog.Error("invalid volume value", "value", volumeStr, "error", err)
			return nil, fmt.Errorf("invalid volume value '%s': %w", volumeStr, err)
		}
		if vol < 0 || vol > 100 {
			cmd.PrintErrf("Error: volume must be between 0 and 100, got %d\n", vol)
			slog.Error("volume out of range", "value", vol)
			return nil, fmt.Errorf("volume must be between 0 and 100, got %d", vol)
		}
	}

	// Load configuration
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			// If config file doesn't exist, use defaults
			slog.Warn("config file not found, using defaults", "file", configFile, "error", err)
			cfg = cli.configManager.GetDefaultConfig()
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// Apply environment overrides
	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	// Apply command line overrides
	if volumeStr != "" {
		// Volume already validated above, just parse and apply
		vol, _ := strconv.Atoi(volumeStr)
		cfg.Volume = vol
		slog.Debug("volume override applied", "value", vol)
	}

	if engineFlag != "" {
		cfg.Engine = engineConfigWithType(cfg.Engine, engineFlag)
		slog.Debug("engine override applied", "value", engineFlag)
	}

	if silent {
		cfg.Engine = engineConfigWithType(cfg.Engine, "silent")
		slog.Debug("silent mode enabled")
	}

	// Validate final configuration
	err = cli.configManager.ValidateConfig(cfg)
	if err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		slog.Error("config validation failed", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// engineConfigWithType returns a copy of base with its type replaced,
// preserving the tuning fields when base is set
func engineConfigWithType(base *config.EngineConfig, engineType string) *config.EngineConfig {
	if base == nil {
		return &config.EngineConfig{Type: engineType}
	}
	derived := *base
	derived.Type = engineType
	return &derived
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// Check for version flag before any system initialization so a
	// version request never touches audio devices
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "soundbridge version %s\nSound playback command adapter\n", Version)
		return 0
	}

	c.initializeSystems()

	// Ensure resources are cleaned up on exit
	defer func() {
		if c.journalDB != nil {
			if err := c.journalDB.Close(); err != nil {
				slog.Error("error closing journal database", "error", err)
			}
		}
	}()

	// Configure cobra to use the provided I/O streams
	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	// Store CLI instance for access in command handlers
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("cobra execution failed", "error", err)
		return 1
	}

	return 0
}

// initializeSystems lazily initializes CLI components when actually needed
func (c *CLI) initializeSystems() {
	slog.Debug("initializeSystems() called")

	if c.configManager == nil {
		c.configManager = config.NewConfigManager()
	}
	if c.fsFactory == nil {
		c.fsFactory = fs.NewDefaultFactory()
	}
	if c.engineFactory == nil {
		c.engineFactory = engine.NewFactory()
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	// journalDB is initialized in initializeJournal when needed
}

// buildEngine creates the audio engine described by the configuration
func (c *CLI) buildEngine(cfg *config.Config) (engine.Engine, error) {
	opts := engine.Options{Volume: cfg.Volume}
	engineType := ""
	if cfg.Engine != nil {
		engineType = cfg.Engine.Type
		opts.SampleRate = cfg.Engine.SampleRate
		opts.Channels = cfg.Engine.Channels
		if cfg.Engine.TickMillis > 0 {
			opts.TickInterval = time.Duration(cfg.Engine.TickMillis) * time.Millisecond
		}
		opts.Raw = cfg.Engine.Options
	}

	slog.Debug("building engine from config",
		"type", engineType,
		"sample_rate", opts.SampleRate,
		"channels", opts.Channels)

	eng, err := c.engineFactory.CreateEngine(engineType, opts, c.fsFactory.Production())
	if err != nil {
		slog.Error("engine creation failed", "type", engineType, "error", err)
		return nil, fmt.Errorf("failed to create engine '%s': %w", engineType, err)
	}

	return eng, nil
}

// buildResolver creates the source resolver: the alias file when one
// is configured, directory search over the library roots otherwise
func buildResolver(cfg *config.Config, fsys afero.Fs) *library.Resolver {
	if cfg.AliasFile != "" {
		mapper, err := library.LoadAliasMapper(fsys, cfg.AliasFile)
		if err == nil {
			slog.Debug("alias resolver initialized", "path", cfg.AliasFile)
			return library.NewResolver(fsys, mapper)
		}
		slog.Warn("alias file unavailable, falling back to directory search",
			"path", cfg.AliasFile, "error", err)
	}

	roots := library.DefaultRoots(cfg.LibraryPaths...)
	return library.NewResolver(fsys, library.NewDirectoryMapper("library", roots))
}

// setupLogging configures slog with file logging when enabled. The
// stderr handler honors the configured level while the rotated file
// always captures debug detail.
func setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo // Default level if parsing fails
	}

	// Check if current logger is already more verbose than config specifies
	// This preserves test logger setup
	currentHandler := slog.Default().Handler()
	if textHandler, ok := currentHandler.(*slog.TextHandler); ok {
		if textHandler.Enabled(context.Background(), slog.LevelDebug) && level > slog.LevelDebug {
			slog.Debug("preserving existing verbose logger setup", "config_level", level.String())
			return
		}
	}

	stderrHandler := slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{
		Level: level,
	})
	handler := slog.Handler(stderrHandler)

	fileEnabled := false
	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		configManager := config.NewConfigManager()
		logFilePath := configManager.ResolveLogFilePath(cfg.FileLogging.Filename)

		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			slog.Error("failed to create log directory", "path", logDir, "error", err)
			// Continue without file logging rather than failing
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})
			handler = NewMultiLevelHandler(stderrHandler, fileHandler)
			fileEnabled = true
			slog.Debug("file logging enabled", "path", logFilePath)
		}
	}

	slog.SetDefault(slog.New(handler))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"file_enabled", fileEnabled)
}

// initializeJournal initializes the journal database if enabled in
// configuration. Failures degrade gracefully: playback runs without a
// journal rather than not at all.
func (c *CLI) initializeJournal() {
	slog.Debug("initializeJournal() called", "journal_db_nil", c.journalDB == nil)

	if c.journalDB != nil {
		slog.Debug("journal database already initialized, skipping")
		return
	}

	cfg, err := c.configManager.LoadConfig()
	if err != nil {
		slog.Debug("failed to load config for journal initialization, using defaults", "error", err)
		cfg = c.configManager.GetDefaultConfig()
	}
	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)

	if cfg.Journal == nil || !cfg.Journal.Enabled {
		slog.Debug("journal disabled, skipping database initialization")
		return
	}

	var dbPath string
	if cfg.Journal.DatabasePath != "" {
		dbPath = cfg.Journal.DatabasePath
		slog.Debug("using custom journal path from config", "path", dbPath)
	} else {
		dbPath, err = journal.GetDatabasePath()
		if err != nil {
			slog.Error("failed to get journal path, continuing without journal", "error", err)
			return
		}
		slog.Debug("using default journal path", "path", dbPath)
	}

	db, err := journal.NewDatabase(dbPath)
	if err != nil {
		slog.Error("failed to initialize journal database, continuing without journal",
			"path", dbPath, "error", err)
		return
	}

	c.journalDB = db
	slog.Info("journal database initialized", "path", dbPath)
}

// newSessionID derives a journal session identifier for this process
func newSessionID() string {
	return fmt.Sprintf("%d-%d", time.Now().Unix(), os.Getpid())
}
