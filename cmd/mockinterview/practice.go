package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	appI18n "github.com/pavelanni/mockinterview/internal/i18n"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/session"
	"github.com/pavelanni/mockinterview/internal/view"
)

var errInputClosed = errors.New("input closed before the interview finished")

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run an interactive interview in the terminal",
		RunE:  runPracticeCmd,
	}
	addBackendFlags(cmd)
	f := cmd.Flags()
	f.StringP("role", "r", "", "Target role (prompted when empty)")
	f.StringP("difficulty", "d", "", "Difficulty: Easy, Medium, Hard or Mixed (prompted when empty)")
	f.StringP("output", "o", "", "Write the session report as JSON to this file (- for stdout)")
	return cmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := loadBackendConfig(v)
	if err != nil {
		return err
	}
	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	report, err := practice(appI18n.WithLang(ctx, cfg.Lang), b.client, os.Stdin, os.Stdout, practiceOptions{
		Roles:       b.roles,
		Role:        v.GetString("role"),
		Difficulty:  v.GetString("difficulty"),
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		return err
	}

	outPath := v.GetString("output")
	if outPath == "" {
		return nil
	}
	return writeReport(outPath, report)
}

type practiceOptions struct {
	Roles       []string
	Role        string
	Difficulty  string
	CallTimeout time.Duration
}

// practice drives one session from a line-oriented reader until it completes.
// Retriable service failures are shown and the same step is offered again.
// Cancelling ctx abandons the session and returns ctx's error.
func practice(ctx context.Context, client evaluator.Client, in io.Reader, out io.Writer, opts practiceOptions) (model.SessionReport, error) {
	caps := model.DefaultCapabilities()
	presenter := view.NewPresenter(caps)
	m := session.New(client,
		session.WithCallTimeout(opts.CallTimeout),
		session.WithObserver(presenter),
		session.WithLogger(slog.Default()),
	)
	defer m.Close()

	lines := bufio.NewScanner(in)
	lines.Buffer(make([]byte, 64*1024), 1<<20)

	role, err := chooseRole(ctx, lines, out, opts)
	if err != nil {
		return model.SessionReport{}, err
	}
	difficulty, err := chooseDifficulty(ctx, lines, out, opts.Difficulty)
	if err != nil {
		return model.SessionReport{}, err
	}
	if err := m.Configure(role, difficulty); err != nil {
		return model.SessionReport{}, err
	}
	if !caps.VoiceInputSupported {
		fmt.Fprintln(out, appI18n.T(ctx, "VoiceInputUnsupported"))
	}

	for {
		if err := ctx.Err(); err != nil {
			m.Abandon()
			return model.SessionReport{}, err
		}
		snap := m.Snapshot()
		if err := view.WriteText(out, presenter.View(ctx)); err != nil {
			return model.SessionReport{}, err
		}

		var stepErr error
		switch snap.Phase {
		case session.PhaseConfiguring:
			if snap.Err != nil && !waitForEnter(ctx, lines, out) {
				m.Abandon()
				return model.SessionReport{}, errInputClosed
			}
			stepErr = m.Start(ctx)
		case session.PhaseInProgress:
			fmt.Fprintln(out, appI18n.T(ctx, "PromptAnswer"))
			answer, ok := readAnswer(lines)
			if !ok {
				m.Abandon()
				return model.SessionReport{}, errInputClosed
			}
			stepErr = m.SubmitAnswer(ctx, answer)
		case session.PhaseAnswerReviewed:
			if !waitForEnter(ctx, lines, out) {
				m.Abandon()
				return model.SessionReport{}, errInputClosed
			}
			stepErr = m.Advance(ctx)
		case session.PhaseCompleted:
			return model.SessionReport{
				SessionID:   snap.SessionID,
				TargetRole:  snap.Role,
				Difficulty:  snap.Difficulty,
				CompletedAt: time.Now().UTC(),
				Questions:   snap.Questions,
				Answers:     snap.Answers,
				Summary:     *snap.Summary,
			}, nil
		default:
			return model.SessionReport{}, fmt.Errorf("unexpected phase %s", snap.Phase)
		}

		switch {
		case ctx.Err() != nil:
			m.Abandon()
			return model.SessionReport{}, ctx.Err()
		case stepErr == nil, evaluator.IsRetriable(stepErr):
			// Retriable failures are on the next view.
		case errors.Is(stepErr, session.ErrValidation):
			fmt.Fprintf(out, "! %v\n", stepErr)
		default:
			return model.SessionReport{}, stepErr
		}
	}
}

func chooseRole(ctx context.Context, lines *bufio.Scanner, out io.Writer, opts practiceOptions) (string, error) {
	if r := strings.TrimSpace(opts.Role); r != "" {
		return r, nil
	}
	fmt.Fprintf(out, "%s:\n", appI18n.T(ctx, "PromptRole"))
	for i, r := range opts.Roles {
		fmt.Fprintf(out, "  %d) %s\n", i+1, r)
	}
	for {
		fmt.Fprint(out, "> ")
		if !lines.Scan() {
			return "", errInputClosed
		}
		choice := strings.TrimSpace(lines.Text())
		if choice == "" {
			continue
		}
		if n, err := strconv.Atoi(choice); err == nil {
			if n >= 1 && n <= len(opts.Roles) {
				return opts.Roles[n-1], nil
			}
			continue
		}
		return choice, nil
	}
}

func chooseDifficulty(ctx context.Context, lines *bufio.Scanner, out io.Writer, flag string) (model.Difficulty, error) {
	if strings.TrimSpace(flag) != "" {
		return model.ParseDifficulty(flag)
	}
	fmt.Fprintf(out, "%s:\n", appI18n.T(ctx, "PromptDifficulty"))
	for i, d := range model.Difficulties {
		fmt.Fprintf(out, "  %d) %s\n", i+1, d)
	}
	for {
		fmt.Fprint(out, "> ")
		if !lines.Scan() {
			return "", errInputClosed
		}
		choice := strings.TrimSpace(lines.Text())
		if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(model.Difficulties) {
			return model.Difficulties[n-1], nil
		}
		if d, err := model.ParseDifficulty(choice); err == nil {
			return d, nil
		}
	}
}

// readAnswer reads lines up to the first empty one. Input that ends without
// an empty line still counts if it produced any text.
func readAnswer(lines *bufio.Scanner) (string, bool) {
	var parts []string
	for lines.Scan() {
		line := lines.Text()
		if strings.TrimSpace(line) == "" {
			return strings.Join(parts, "\n"), true
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n"), len(parts) > 0
}

func waitForEnter(ctx context.Context, lines *bufio.Scanner, out io.Writer) bool {
	fmt.Fprintln(out, appI18n.T(ctx, "PressEnterToContinue"))
	return lines.Scan()
}

func writeReport(outPath string, report model.SessionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	slog.Info("wrote session report", "path", outPath)
	return nil
}
