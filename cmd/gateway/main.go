package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ericksa/contractassist/internal/audit"
	"github.com/ericksa/contractassist/internal/config"
	"github.com/ericksa/contractassist/internal/extract"
	"github.com/ericksa/contractassist/internal/llm"
	"github.com/ericksa/contractassist/internal/logging"
	"github.com/ericksa/contractassist/internal/prompt"
	"github.com/ericksa/contractassist/internal/repair"
	"github.com/ericksa/contractassist/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	configFile string
	shapeName  string
	taskName   string
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Contract analysis gateway",
	Long: `gateway extracts text from PDF and DOCX contracts, asks a language model
to identify clauses or suggest negotiation points, and repairs the model's
reply into JSON records.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the cleaned sections of a PDF or DOCX file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(args[0], cmd.OutOrStdout())
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [file|-]",
	Short: "Repair a saved model reply into JSON records",
	Long:  "Reads a raw model reply from a file (or stdin with - or no argument) and prints the repaired records.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runRepair(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), shapeName)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run one analysis against the configured model and print the records",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./config.yaml or $HOME/.contractassist/config.yaml)")
	repairCmd.Flags().StringVar(&shapeName, "shape", "clauses", "record shape: clauses or suggestions")
	analyzeCmd.Flags().StringVar(&taskName, "task", "clauses", "analysis: clauses or suggestions")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(configFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return loader, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, atom, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	if c, ok := model.(io.Closer); ok {
		defer c.Close()
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open upload store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	var auditor *audit.Auditor
	if cfg.Audit.Enabled {
		auditor, err = audit.New(cfg.Audit.DSN, logger.Named("audit"))
		if err != nil {
			return err
		}
		defer auditor.Close()
	}

	gw := newGateway(cfg, logger, model, store, auditor)

	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		if err := logging.SetLevel(atom, next.Log.Level); err != nil {
			logger.Warn("ignoring invalid log level", zap.String("level", next.Log.Level), zap.Error(err))
			return
		}
		gw.configAPI.SetLogLevel(next.Log.Level)
		logger.Info("log level updated", zap.String("level", next.Log.Level))
	})

	logger.Info("contract gateway configured",
		zap.String("version", version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("config_file", loader.ConfigFile()),
	)
	return serve(ctx, cfg.Server, gw.router(), logger)
}

func runExtract(path string, out io.Writer) error {
	kind, err := extract.KindFromFilename(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := extract.Extract(data, kind)
	if err != nil {
		return err
	}
	sections := doc.Sections
	if sections == nil {
		sections = []extract.Section{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sections)
}

func runRepair(in io.Reader, out, diag io.Writer, shape string) error {
	s, err := repair.ParseShape(shape)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	res, err := repair.Repair(string(raw), s)
	if err != nil {
		return err
	}
	fmt.Fprintf(diag, "kept %d, dropped %d, fixups %v\n", len(res.Records), res.Dropped, res.Applied)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Records)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	task, err := prompt.ParseTask(taskName)
	if err != nil {
		return err
	}
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, _, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLM.Timeout)
	defer cancel()

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	if c, ok := model.(io.Closer); ok {
		defer c.Close()
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	store, err := storage.NewLocal(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}
	gw := newGateway(cfg, logger, model, store, nil)
	a, err := gw.contracts.Analyze(ctx, "cli", task, args[0], data)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(a.Result.Records)
}
