package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	"github.com/pavelanni/mockinterview/internal/llm"
	"github.com/pavelanni/mockinterview/internal/llm/prompts"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/store"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mockinterview",
		Short:        "Mock interview practice with per-answer feedback",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, practiceCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mockinterview --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addBackendFlags registers the flags every command that talks to an
// evaluation backend shares.
func addBackendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("backend", "b", "remote", "Evaluation backend (remote, llm)")
	f.String("service-url", "http://localhost:8000", "Interview service base URL for the remote backend")
	f.String("db", "mockinterview.db", "SQLite question bank path for the llm backend")
	f.StringSliceP("questions", "q", []string{"questions/interview_bank.yaml"}, "Question bank files to import for the llm backend (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.IntP("num-questions", "n", llm.DefaultNumQuestions, "Questions per session for the llm backend")
	f.Duration("call-timeout", 30*time.Second, "Timeout for each evaluation service call")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	addLogFlags(cmd)
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MOCKINTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mockinterview")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mockinterview")
	v.AddConfigPath("/etc/mockinterview")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// backendConfig is the resolved backend configuration of a command.
type backendConfig struct {
	Backend       string   `validate:"required,oneof=remote llm"`
	ServiceURL    string   `validate:"required_if=Backend remote,omitempty,url"`
	DB            string   `validate:"required_if=Backend llm"`
	Questions     []string `validate:"dive,required"`
	LLMURL        string   `validate:"required_if=Backend llm,omitempty,url"`
	LLMKey        string
	LLMModel      string        `validate:"required_if=Backend llm"`
	PromptVariant string        `validate:"oneof=strict standard lenient"`
	NumQuestions  int           `validate:"gte=0"`
	CallTimeout   time.Duration `validate:"gt=0"`
	Lang          string        `validate:"required,oneof=en ru"`
}

func loadBackendConfig(v *viper.Viper) (backendConfig, error) {
	cfg := backendConfig{
		Backend:       strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		ServiceURL:    strings.TrimRight(v.GetString("service-url"), "/"),
		DB:            v.GetString("db"),
		Questions:     v.GetStringSlice("questions"),
		LLMURL:        v.GetString("llm-url"),
		LLMKey:        v.GetString("llm-key"),
		LLMModel:      v.GetString("llm-model"),
		PromptVariant: strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))),
		NumQuestions:  v.GetInt("num-questions"),
		CallTimeout:   v.GetDuration("call-timeout"),
		Lang:          v.GetString("lang"),
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s %s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// backend is an evaluation client plus the local question bank behind it,
// if any.
type backend struct {
	client evaluator.Client
	bank   *store.Store
	roles  []string
}

func (b *backend) Close() {
	if b.bank != nil {
		b.bank.Close()
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// openBackend builds the configured evaluation client and checks that it
// is reachable.
func openBackend(ctx context.Context, cfg backendConfig) (*backend, error) {
	b := &backend{roles: model.DefaultRoles}

	switch cfg.Backend {
	case "llm":
		db, err := store.New(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		b.bank = db
		if err := importQuestions(db, cfg.Questions); err != nil {
			b.Close()
			return nil, fmt.Errorf("load questions: %w", err)
		}
		roles, err := db.Roles()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("list roles: %w", err)
		}
		if len(roles) > 0 {
			b.roles = roles
		}
		client, err := llm.New(llm.Config{
			BaseURL:      cfg.LLMURL,
			APIKey:       cfg.LLMKey,
			Model:        cfg.LLMModel,
			Variant:      prompts.PromptVariant(cfg.PromptVariant),
			NumQuestions: cfg.NumQuestions,
		}, db)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("create LLM client: %w", err)
		}
		b.client = client
	default:
		client, err := evaluator.NewRemote(cfg.ServiceURL, cfg.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("create service client: %w", err)
		}
		b.client = client
	}

	if p, ok := b.client.(pinger); ok {
		pctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
		if err := p.Ping(pctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("%s backend health check: %w", cfg.Backend, err)
		}
	}
	slog.Info("evaluation backend OK", "backend", cfg.Backend, "service_url", cfg.ServiceURL, "llm_url", cfg.LLMURL, "model", cfg.LLMModel)
	return b, nil
}

// importQuestions loads question bank files into db. Unchanged files are
// skipped; files that changed since their import are kept as first imported.
func importQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		if _, _, err := db.ImportFile(path); err != nil {
			return err
		}
	}
	count, err := db.QuestionCount()
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("question bank is empty: pass --questions with at least one file")
	}
	return nil
}
