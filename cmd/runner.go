package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/desertthunder/cvsync/internal/filter"
	"github.com/desertthunder/cvsync/internal/organizer"
	"github.com/desertthunder/cvsync/internal/repositories"
	"github.com/desertthunder/cvsync/internal/services"
	"github.com/desertthunder/cvsync/internal/shared"
	"github.com/desertthunder/cvsync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Lister, Transferrer and Notifier replace the Canvas client, the HTTP downloader and the SMTP notifier when set.
type Runner struct {
	configPath string
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	fs         afero.Fs

	lister   tasks.Lister
	transfer tasks.Transferrer
	notifier tasks.Notifier
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	ConfigPath  string
	Config      *shared.Config
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	Fs          afero.Fs
	Lister      tasks.Lister
	Transferrer tasks.Transferrer
	Notifier    tasks.Notifier
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	return &Runner{
		configPath: opts.ConfigPath,
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		fs:         opts.Fs,
		lister:     opts.Lister,
		transfer:   opts.Transferrer,
		notifier:   opts.Notifier,
	}
}

// SetLogger replaces the logger used by later commands.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, coursesCommand, historyCommand, statusCommand, testEmailCommand, setupCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// path returns the config path from the command line, falling back to the one the runner was built with.
func (r *Runner) path(cmd *cli.Command) string {
	if cmd.IsSet("config") || r.configPath == "" {
		if p := cmd.String("config"); p != "" {
			return p
		}
		return "config.toml"
	}
	return r.configPath
}

// loadConfig returns the runner's config or reads it from --config, expanding ~ in paths.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.path(cmd)
	config, err := shared.LoadConfig(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (run 'cvsync setup config' to create one)", shared.ErrMissingConfig, path)
		}
		return nil, err
	}

	if config.Download.BasePath, err = shared.ExpandPath(config.Download.BasePath); err != nil {
		return nil, err
	}
	if config.Database.Path, err = shared.ExpandPath(config.Database.Path); err != nil {
		return nil, err
	}

	r.logger.Debug("loaded config", "path", path)
	r.config = config
	return config, nil
}

// openStore opens the metadata store and applies the configured pool limits.
func (r *Runner) openStore(ctx context.Context, config *shared.Config) (*repositories.Store, error) {
	r.logger.Debug("opening metadata store", "path", config.Database.Path)

	store, err := repositories.OpenStore(ctx, config.Database.Path)
	if err != nil {
		return nil, err
	}
	if config.Database.Path != ":memory:" {
		shared.ConfigureDatabase(store.DB(), config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	}
	return store, nil
}

// canvas returns the injected lister or a Canvas client for config.
func (r *Runner) canvas(config *shared.Config) (tasks.Lister, error) {
	if r.lister != nil {
		return r.lister, nil
	}
	svc, err := services.NewCanvasService(config.Canvas, r.httpClient)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// emailNotifier returns the injected notifier or an SMTP notifier for config.
func (r *Runner) emailNotifier(config *shared.Config) (tasks.Notifier, error) {
	if r.notifier != nil {
		return r.notifier, nil
	}
	return services.NewSMTPNotifier(config.Notification.Email)
}

// buildEngine wires a sync engine over store. progress may be nil.
func (r *Runner) buildEngine(config *shared.Config, store *repositories.Store, progress chan<- tasks.ProgressUpdate) (*tasks.SyncEngine, error) {
	lister, err := r.canvas(config)
	if err != nil {
		return nil, err
	}

	transfer := r.transfer
	if transfer == nil {
		transfer = services.NewDownloader(services.NewTransferClient(), r.fs).WithToken(config.Canvas.APIToken)
	}

	var notifier tasks.Notifier
	if config.Notification.Email.Enabled {
		if notifier, err = r.emailNotifier(config); err != nil {
			return nil, err
		}
	}

	downloads := tasks.NewDownloadManager(transfer, r.fs, tasks.DownloadOptionsFromConfig(config.Download)).
		WithLogger(r.logger).
		WithProgress(progress)

	return tasks.NewSyncEngine(tasks.Deps{
		Config:    config,
		Lister:    lister,
		Stores:    tasks.StoresFrom(store),
		Filter:    filter.New(filter.RulesFromConfig(config)),
		Paths:     organizer.New(r.fs, config.Download.BasePath),
		Downloads: downloads,
		Notifier:  notifier,
		Logger:    r.logger,
		Progress:  progress,
	})
}

// promptSecret reads one line without echo when input is a terminal.
func (r *Runner) promptSecret(label string) (string, error) {
	r.writePlain("%s: ", label)

	if f, ok := r.input.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		r.writePlain("\n")
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(r.input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
