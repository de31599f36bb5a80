package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intelterm/internal/app"
	"intelterm/internal/config"
	"intelterm/internal/core"
	"intelterm/internal/probe"
	"intelterm/internal/storage"
	"intelterm/internal/transports/terminal"
	"intelterm/internal/xapi"
	"intelterm/pkg/logger"
)

// ErrCommandFailed возвращается `run`, если результат неуспешный.
var ErrCommandFailed = errors.New("command failed")

type rootOptions struct {
	configPath string
	version    string
}

// New создает корневую CLI-команду.
func New(version string) *cobra.Command {
	opts := &rootOptions{version: version}
	root := &cobra.Command{
		Use:           "intelterm",
		Short:         "Терминал аналитики экосистемы",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := loadDotEnv(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("INTELTERM_CONFIG"), "путь к YAML/TOML конфигу")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newREPLCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newProbeCmd(opts))
	root.AddCommand(newHistoryCmd(opts))

	return root
}

func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Agent.LogLevel), nil
}

func (o *rootOptions) newApp() (*app.App, error) {
	cfg, lg, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.NewApp(cfg, lg, o.version)
}

// loadDotEnv подхватывает .env из рабочего каталога, если он есть.
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Выполнить одну команду",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Processor.Process(cmd.Context(), args[0], args[1:])
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if res.Type == core.TypeAnalysis {
				fmt.Fprintln(cmd.OutOrStdout(), res.Content())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			if !res.Success {
				return fmt.Errorf("%s: %w", args[0], ErrCommandFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "вывести результат в JSON")
	return cmd
}

func newREPLCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Интерактивный терминал",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			repl, err := terminal.New(a.Processor, terminal.Options{
				Prompt:      a.Config.Terminal.Prompt,
				HistoryFile: a.Config.Terminal.HistoryFile,
				Render:      a.Config.Terminal.Render,
			}, cmd.OutOrStdout(), a.Logger)
			if err != nil {
				return err
			}
			return repl.Run(cmd.Context())
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить транспорты и планировщик дайджестов",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() { _ = a.Logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Проверить ключи X API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			probe.Run(ctx, cmd.OutOrStdout(), os.LookupEnv, xapi.New(cfg.X.BaseURL, os.Getenv("TWITTER_BEARER_TOKEN")))
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Показать последние команды",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Store == nil {
				return app.ErrStorageDisabled
			}

			records, err := a.Store.QueryHistory(cmd.Context(), storage.HistoryQuery{Subject: subject, Limit: limit})
			if err != nil {
				return err
			}
			printHistory(cmd, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "фильтр по субъекту")
	cmd.Flags().IntVar(&limit, "limit", 20, "число записей")
	return cmd
}

func printHistory(cmd *cobra.Command, records []storage.CommandRecord) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCE\tSUBJECT\tCOMMAND\tRESULT")
	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = rec.Type
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.TS.Local().Format(time.DateTime), rec.Source, rec.Subject, rec.Command, status)
	}
	_ = tw.Flush()
}
