// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcdonaldj/flatarc/internal/archive"
	"github.com/mcdonaldj/flatarc/internal/config"
	"github.com/mcdonaldj/flatarc/internal/tui"
	"github.com/mcdonaldj/flatarc/internal/units"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	// Load reads the config at path, or the default location when path is empty.
	Load(path string) (*config.Config, error)
	Save(cfg *config.Config, path string) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// Archiver is the set of archive operations the CLI drives.
type Archiver interface {
	Append(ctx context.Context, source string) (archive.Entry, error)
	List(ctx context.Context) ([]archive.Entry, error)
	Scan(ctx context.Context) ([]archive.Entry, error)
	Extract(ctx context.Context, target string) (archive.ExtractResult, error)
	Compact(ctx context.Context) (archive.CompactResult, error)
	Verify(ctx context.Context) (archive.VerifyReport, error)
}

// ArchiveService opens archive handles configured from cfg.
type ArchiveService interface {
	Open(path string, cfg *config.Config, log *slog.Logger) Archiver
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc  ConfigService
	ArchiveSvc ArchiveService

	// UI runs the interactive browser (defaults to tui.Run)
	UI func(ctx context.Context, arc tui.Archive, path, timeFormat string) error

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
// Exit is a no-op; tests that care about the exit code replace it.
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(code int) {},
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func (d *defaultConfigService) Save(cfg *config.Config, path string) error {
	if path == "" {
		return cfg.Save()
	}
	return cfg.SaveTo(path)
}

func (d *defaultConfigService) ConfigPath() string            { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// defaultArchiveService builds real archive handles.
type defaultArchiveService struct{}

func (d *defaultArchiveService) Open(path string, cfg *config.Config, log *slog.Logger) Archiver {
	return archive.New(path,
		archive.WithLogger(log),
		archive.WithBufferSize(cfg.BufferSize),
		archive.WithMaxExtractSize(cfg.MaxExtractSize),
		archive.WithPerm(cfg.ArchiveMode.Perm()),
		archive.WithLocking(cfg.Lock),
		archive.WithSync(cfg.Sync),
	)
}

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) archiveSvc() ArchiveService {
	if c.ArchiveSvc != nil {
		return c.ArchiveSvc
	}
	return &defaultArchiveService{}
}

// errUsage marks errors caused by a malformed command line.
var errUsage = errors.New("usage")

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	c.RunContext(context.Background())
}

// RunContext executes the CLI; ctx cancels a running archive operation.
func (c *CLI) RunContext(ctx context.Context) {
	root := c.rootCommand()
	if len(c.Args) > 1 {
		root.SetArgs(c.Args[1:])
	} else {
		root.SetArgs([]string{})
	}

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(c.Err, "Run 'flatarc --help' for usage.")
		}
		c.Exit(1)
	}
}

// options holds the parsed command-line flags.
type options struct {
	insert  string
	extract string
	show    bool
	raw     bool
	compact bool
	verify  bool
	output  string

	configPath string
	lock       bool
	verbose    bool
}

func (c *CLI) rootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "flatarc <archive> (-i <file> | -e <file> | -s | --raw | --compact | --verify)",
		Short: "flatarc - flat-file archiver",
		Long: `flatarc stores files in a single flat archive.

Each record keeps the file's metadata next to its bytes. Extracting a file
writes it back to its recorded path, removes it from the archive and then
compacts the archive.`,
		Example: `  flatarc backup.farc -i notes.txt
  flatarc backup.farc -s
  flatarc backup.farc -s -o json
  flatarc backup.farc -e notes.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runArchive(cmd, opts, args[0])
		},
	}
	root.SetOut(c.Out)
	root.SetErr(c.Err)

	flags := root.Flags()
	flags.StringVarP(&opts.insert, "insert", "i", "", "append `file` to the archive")
	flags.StringVarP(&opts.extract, "extract", "e", "", "extract `file` from the archive and remove it")
	flags.BoolVarP(&opts.show, "show", "s", false, "list the files in the archive")
	flags.BoolVar(&opts.raw, "raw", false, "list every record, including deleted ones, with offsets")
	flags.BoolVar(&opts.compact, "compact", false, "remove deleted records from the archive")
	flags.BoolVar(&opts.verify, "verify", false, "check every payload against its recorded digest")
	flags.StringVarP(&opts.output, "output", "o", "table", "listing format: table, json or yaml")

	persistent := root.PersistentFlags()
	persistent.StringVar(&opts.configPath, "config", "", "config `file` (default ~/.flatarc/config.yaml)")
	persistent.BoolVar(&opts.lock, "lock", false, "take an advisory lock on the archive")
	persistent.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(c.versionCommand(), c.initCommand(opts), c.uiCommand(opts))
	return root
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.Out, "flatarc v%s\n", c.Version)
		},
	}
}

func (c *CLI) uiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ui <archive>",
		Short: "Browse an archive interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runUI(cmd, opts, args[0])
		},
	}
}

func (c *CLI) initCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.InitConfig(opts.configPath)
		},
	}
}

// InitConfig creates the default config file at path, or the default location.
func (c *CLI) InitConfig(path string) error {
	svc := c.configSvc()
	if err := svc.Save(svc.DefaultConfig(), path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	if path == "" {
		path = svc.ConfigPath()
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", path)
	return nil
}

func (o *options) actionCount() int {
	n := 0
	for _, set := range []bool{o.insert != "", o.extract != "", o.show, o.raw, o.compact, o.verify} {
		if set {
			n++
		}
	}
	return n
}

func (c *CLI) runArchive(cmd *cobra.Command, opts *options, path string) error {
	if n := opts.actionCount(); n != 1 {
		return fmt.Errorf("%w: exactly one of -i, -e, -s, --raw, --compact or --verify is required", errUsage)
	}
	switch opts.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("%w: unknown output format %q", errUsage, opts.output)
	}
	if opts.output != "table" && !opts.show && !opts.raw {
		return fmt.Errorf("%w: -o only applies to -s and --raw", errUsage)
	}

	cfg, err := c.loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(c.Err, &slog.HandlerOptions{Level: level}))

	arc := c.archiveSvc().Open(config.ExpandPath(path), cfg, log)
	ctx := cmd.Context()

	switch {
	case opts.insert != "":
		return c.Append(ctx, arc, opts.insert)
	case opts.extract != "":
		return c.Extract(ctx, arc, opts.extract)
	case opts.show:
		return c.List(ctx, arc, cfg, opts.output)
	case opts.raw:
		return c.ListRaw(ctx, arc, cfg, opts.output)
	case opts.compact:
		return c.Compact(ctx, arc)
	default:
		return c.Verify(ctx, arc)
	}
}

func (c *CLI) loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := c.configSvc().Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("lock") {
		cfg.Lock = opts.lock
	}
	return cfg, nil
}

// runUI opens the interactive browser. Log output would corrupt the
// alternate screen, so the archive gets a discarding logger.
func (c *CLI) runUI(cmd *cobra.Command, opts *options, path string) error {
	cfg, err := c.loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	path = config.ExpandPath(path)
	arc := c.archiveSvc().Open(path, cfg, slog.New(slog.DiscardHandler))

	run := c.UI
	if run == nil {
		run = tui.Run
	}
	return run(cmd.Context(), arc, path, cfg.TimeFormat)
}

// Append adds a file to the archive.
func (c *CLI) Append(ctx context.Context, arc Archiver, source string) error {
	entry, err := arc.Append(ctx, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s Added %s %s\n", c.green("*"), entry.Path, c.yellow(units.FormatSize(entry.Meta.Size)))
	return nil
}

// Extract restores a file from the archive.
func (c *CLI) Extract(ctx context.Context, arc Archiver, target string) error {
	res, err := arc.Extract(ctx, target)
	if errors.Is(err, archive.ErrTooLarge) {
		fmt.Fprintf(c.Err, "%s %s is %s, above the extract size limit; archive left unchanged\n",
			c.yellow("!"), target, units.FormatSize(res.Entry.Meta.Size))
		return err
	}
	if err != nil {
		return err
	}
	if !res.Found {
		fmt.Fprintf(c.Out, "%s %s not found in archive\n", c.gray("-"), target)
		return nil
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(c.Err, "  %s %s\n", c.yellow("!"), w)
	}
	fmt.Fprintf(c.Out, "%s Extracted %s %s\n", c.green("*"), res.Entry.Path, c.yellow(units.FormatSize(res.Entry.Meta.Size)))
	if res.Compacted {
		fmt.Fprintf(c.Out, "  %s\n", c.gray("reclaimed "+units.FormatSize(res.Compaction.Reclaimed())))
	}
	return nil
}

// List prints the visible records.
func (c *CLI) List(ctx context.Context, arc Archiver, cfg *config.Config, format string) error {
	entries, err := arc.List(ctx)
	if err != nil {
		return err
	}
	if format != "table" {
		return writeListing(c.Out, format, entries, false)
	}

	if len(entries) == 0 {
		fmt.Fprintln(c.Out, "Archive is empty")
		return nil
	}

	fmt.Fprintf(c.Out, "  %-10s %10s  %-19s %s\n", "MODE", "SIZE", "MODIFIED", "NAME")
	fmt.Fprintf(c.Out, "  %-10s %10s  %-19s %s\n", "----", "----", "--------", "----")
	var total int64
	for _, e := range entries {
		fmt.Fprintf(c.Out, "  %-10s %10s  %-19s %s\n",
			modeString(e.Meta.Mode),
			units.FormatSize(e.Meta.Size),
			formatTime(e.Meta.MTime, cfg.TimeFormat),
			e.Path)
		total += e.Meta.Size
	}
	fmt.Fprintf(c.Out, "\n%s files, %s\n", c.cyan(fmt.Sprintf("%d", len(entries))), units.FormatSize(total))
	return nil
}

// ListRaw prints every record, deleted ones included, with its offset.
func (c *CLI) ListRaw(ctx context.Context, arc Archiver, cfg *config.Config, format string) error {
	entries, err := arc.Scan(ctx)
	if err != nil {
		return err
	}
	if format != "table" {
		return writeListing(c.Out, format, entries, true)
	}

	fmt.Fprintf(c.Out, "  %12s %-8s %12s  %-19s %s\n", "OFFSET", "STATE", "BYTES", "MODIFIED", "NAME")
	fmt.Fprintf(c.Out, "  %12s %-8s %12s  %-19s %s\n", "------", "-----", "-----", "--------", "----")
	deleted := 0
	for _, e := range entries {
		state := "live"
		name := e.Path
		if e.Deleted {
			state = c.gray("deleted")
			name = c.gray(e.Path)
			deleted++
		}
		fmt.Fprintf(c.Out, "  %12d %-8s %12d  %-19s %s\n",
			e.Offset, state, e.Meta.Size, formatTime(e.Meta.MTime, cfg.TimeFormat), name)
	}
	fmt.Fprintf(c.Out, "\n%d records, %d deleted\n", len(entries), deleted)
	return nil
}

// Compact removes deleted records from the archive.
func (c *CLI) Compact(ctx context.Context, arc Archiver) error {
	res, err := arc.Compact(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s Compacted: %d kept, %d dropped, reclaimed %s\n",
		c.green("*"), res.Kept, res.Dropped, c.yellow(units.FormatSize(res.Reclaimed())))
	return nil
}

// Verify checks every payload digest.
func (c *CLI) Verify(ctx context.Context, arc Archiver) error {
	report, err := arc.Verify(ctx)
	if err != nil {
		return err
	}

	for _, e := range report.Mismatched {
		fmt.Fprintf(c.Out, "  %s %s (offset %d)\n", c.red("x"), e.Path, e.Offset)
	}
	if report.Unverified > 0 {
		fmt.Fprintf(c.Out, "  %s\n", c.gray(fmt.Sprintf("%d records have no digest", report.Unverified)))
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d records failed verification",
			len(report.Mismatched), len(report.Mismatched)+report.Checked)
	}
	fmt.Fprintf(c.Out, "%s Checksum verified for %d records\n", c.green("*"), report.Checked)
	return nil
}
