package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/codeboard/internal/gamestate"
	"github.com/pavelanni/codeboard/internal/grader"
	"github.com/pavelanni/codeboard/internal/handler"
	appI18n "github.com/pavelanni/codeboard/internal/i18n"
	"github.com/pavelanni/codeboard/internal/llm"
	"github.com/pavelanni/codeboard/internal/llm/prompts"
	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
	"github.com/pavelanni/codeboard/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codeboard",
		Short: "Grading backend for the Python learning board game",
	}

	serve := serveCmd()
	root.AddCommand(serve, gradeCmd(), questionsCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `codeboard --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addSandboxFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Uint64("max-steps", sandbox.DefaultLimits.MaxSteps, "Interpreter step budget per test case")
	f.Duration("eval-timeout", sandbox.DefaultLimits.Timeout, "Wall-clock limit per test case")
	f.Int("max-output", sandbox.DefaultLimits.MaxOutput, "Maximum bytes of printed output per test case")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":5001", "HTTP listen address")
	f.String("state-file", "game_state.json", "Path of the persisted game state")
	f.String("db", "codeboard.db", "SQLite attempt log path (empty disables the log)")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.String("admin-password", "", "Password for /admin (or set CODEBOARD_ADMIN_PASSWORD); empty leaves /admin open")
	f.String("llm-url", "", "OpenAI-compatible API base URL for hints (empty disables hints)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("hint-style", string(prompts.PromptStandard), "Hint prompt variant (standard, socratic)")
	f.Duration("hint-timeout", 10*time.Second, "Upper bound for one hint request")
	addSandboxFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade QUESTION_ID [FILE]",
		Short: "Grade a submission from a file or stdin and print the verdict",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	f.Bool("json", false, "Print the verdict as JSON")
	addSandboxFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List the built-in questions",
		RunE:  runQuestions,
	}
	f := cmd.Flags()
	f.Bool("json", false, "Print the catalog as JSON")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the attempt log as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "codeboard.db", "SQLite database path")
	f.String("question-id", "", "Only export attempts of this question")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
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

	v.SetEnvPrefix("CODEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("codeboard")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/codeboard")
	v.AddConfigPath("/etc/codeboard")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newGrader(v *viper.Viper) (*grader.Grader, error) {
	runner := sandbox.NewRunner(sandbox.Limits{
		MaxSteps:  v.GetUint64("max-steps"),
		Timeout:   v.GetDuration("eval-timeout"),
		MaxOutput: v.GetInt("max-output"),
	})
	return grader.New(runner)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	g, err := newGrader(v)
	if err != nil {
		return fmt.Errorf("create grader: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	state := gamestate.New(afero.NewOsFs(), v.GetString("state-file"))

	// The attempt log is optional. A nil *store.Store must not reach the
	// handler as a non-nil interface.
	var attempts handler.AttemptLog
	if dbPath := v.GetString("db"); dbPath != "" {
		db, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		attempts = db
	}

	var hints handler.Hinter
	if url := v.GetString("llm-url"); url != "" {
		hintStyle := strings.ToLower(strings.TrimSpace(v.GetString("hint-style")))
		if !prompts.IsValidVariant(hintStyle) {
			slog.Warn("invalid hint-style, using standard", "style", hintStyle)
			hintStyle = string(prompts.PromptStandard)
		}
		llmClient, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), hintStyle)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = llmClient.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		hints = llmClient
	}

	cfg := model.ServerConfig{
		Lang:        lang,
		HintTimeout: v.GetDuration("hint-timeout"),
	}
	if password := v.GetString("admin-password"); password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		cfg.AdminPasswordHash = string(hash)
	} else if attempts != nil {
		slog.Warn("admin routes are not protected: set --admin-password or CODEBOARD_ADMIN_PASSWORD")
	}

	h, err := handler.New(g, state, attempts, hints, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"questions", len(g.Questions()),
		"state_file", state.Path(),
		"attempt_log", attempts != nil,
		"hints", hints != nil,
		"max_steps", v.GetUint64("max-steps"),
		"eval_timeout", v.GetDuration("eval-timeout"),
	)
	return http.ListenAndServe(addr, r)
}

func runGrade(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	g, err := newGrader(v)
	if err != nil {
		return fmt.Errorf("create grader: %w", err)
	}

	questionID := args[0]
	if _, ok := g.Question(questionID); !ok {
		return fmt.Errorf("unknown question %q", questionID)
	}

	var src io.Reader = cmd.InOrStdin()
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("open submission: %w", err)
		}
		defer f.Close()
		src = f
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}
	code := strings.TrimSpace(string(data))
	if code == "" {
		return fmt.Errorf("empty submission")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	verdict := g.Grade(ctx, questionID, code)
	verdict.Message = appI18n.Tf(ctx, verdict.MessageID, verdict.Message, map[string]any{"QuestionID": questionID})

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			return fmt.Errorf("encode verdict: %w", err)
		}
	} else {
		printVerdict(ctx, out, verdict)
	}
	if !verdict.Passed {
		cmd.SilenceUsage = true
		return fmt.Errorf("%s: %s", questionID, appI18n.Tp(ctx, "TestsFailed", countFailed(verdict.Tests)))
	}
	return nil
}

func printVerdict(ctx context.Context, w io.Writer, v model.Verdict) {
	for _, t := range v.Tests {
		mark := "FAIL"
		if t.Passed {
			mark = "ok  "
		}
		fmt.Fprintf(w, "%s %s\n", mark, t.Label)
	}
	if v.Output != "" {
		fmt.Fprintf(w, "\n%s\n", v.Output)
	}
	fmt.Fprintf(w, "\n%s\n%s\n", appI18n.Tp(ctx, "TestsPassed", len(v.Tests)-countFailed(v.Tests)), v.Message)
}

func countFailed(tests model.TestResults) int {
	return len(prompts.FailedTests(tests))
}

func runQuestions(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	g, err := grader.New(sandbox.NewRunner(sandbox.Limits{}))
	if err != nil {
		return fmt.Errorf("create grader: %w", err)
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(g.Questions())
	}
	category := ""
	for _, q := range g.Questions() {
		if q.Category != category {
			category = q.Category
			fmt.Fprintf(out, "\n%s\n", category)
		}
		fmt.Fprintf(out, "  %-26s %-16s %s\n", q.ID, q.Kind, q.Title)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAttempts(v.GetString("question-id"))
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported attempts", "total", export.Total)
	return nil
}
