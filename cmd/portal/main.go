package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/feedbackportal/internal/assistant"
	"github.com/pavelanni/feedbackportal/internal/backend"
	"github.com/pavelanni/feedbackportal/internal/handler"
	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/llm"
	"github.com/pavelanni/feedbackportal/internal/llm/prompts"
	"github.com/pavelanni/feedbackportal/internal/model"
	"github.com/pavelanni/feedbackportal/internal/store"
)

const cleanupInterval = time.Hour

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "portal",
		Short: "Student feedback portal with an assisted comment drafter",
	}

	serve := serveCmd()
	root.AddCommand(serve, historyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `portal --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP portal",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "portal.db", "SQLite database path for sessions and drafts")
	f.String("backend-url", "http://localhost:5000", "Feedback API base URL")
	f.Duration("backend-timeout", 10*time.Second, "Timeout for feedback API calls")
	f.String("llm-provider", llm.ProviderOpenAI, "LLM provider (openai, gemini, anthropic)")
	f.String("llm-url", "", "API base URL for openai-compatible or anthropic endpoints")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("tone", string(prompts.ToneWarm), "Drafting assistant tone (warm, formal, concise)")
	f.Bool("assistant", true, "Offer the drafting assistant on teacher pages")
	f.StringP("lang", "l", "en", "Fallback UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /feedback)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("strict-gating", false, "Require every question answered before submit")
	f.Int("semesters", 8, "Number of semesters offered in the picker")
	f.String("identity-mode", handler.IdentityGoogle, "Identity verification (google, jwt, header)")
	f.String("google-client-id", "", "OAuth client ID for Google sign-in")
	f.String("jwt-secret", "", "HS256 secret for gateway identity tokens (or set PORTAL_JWT_SECRET)")
	f.String("identity-header", "X-Forwarded-Email", "Header carrying the email in header mode")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export a student's feedback, comments and drafts as JSON",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("email", "", "Student email (required)")
	f.String("db", "portal.db", "SQLite database path")
	f.String("backend-url", "http://localhost:5000", "Feedback API base URL")
	f.Duration("backend-timeout", 10*time.Second, "Timeout for feedback API calls")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("email")

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

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("portal")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/portal")
	v.AddConfigPath("/etc/portal")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	api, err := backend.New(v.GetString("backend-url"), v.GetDuration("backend-timeout"))
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	var drafter *assistant.Assistant
	if v.GetBool("assistant") {
		drafter, err = newAssistant(ctx, v, api)
		if err != nil {
			return err
		}
	}

	identity, err := handler.NewIdentityVerifier(handler.IdentityConfig{
		Mode:           v.GetString("identity-mode"),
		GoogleClientID: v.GetString("google-client-id"),
		JWTSecret:      v.GetString("jwt-secret"),
		Header:         v.GetString("identity-header"),
	})
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	portalCfg := model.PortalConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		StrictGating:  v.GetBool("strict-gating"),
		Semesters:     v.GetInt("semesters"),
		IdentityMode:  identity.Mode(),
		GoogleClient:  v.GetString("google-client-id"),
		AssistantOn:   drafter != nil,
	}

	h, err := handler.New(db, api, drafter, identity, portalCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	go cleanupLoop(db)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"backend_url", v.GetString("backend-url"),
		"llm_provider", v.GetString("llm-provider"),
		"model", v.GetString("llm-model"),
		"assistant", portalCfg.AssistantOn,
		"identity_mode", portalCfg.IdentityMode,
		"strict_gating", portalCfg.StrictGating,
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

// newAssistant loads the drafting prompts and connects to the configured model.
func newAssistant(ctx context.Context, v *viper.Viper, poster assistant.CommentPoster) (*assistant.Assistant, error) {
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	tone := strings.ToLower(strings.TrimSpace(v.GetString("tone")))
	if !prompts.IsValidTone(tone) {
		slog.Warn("invalid tone, using warm", "tone", tone)
		tone = string(prompts.ToneWarm)
	}

	chat, err := llm.New(ctx, llm.Config{
		Provider: v.GetString("llm-provider"),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if err := chat.Ping(ctx); err != nil {
		slog.Warn("LLM health check failed, the assistant may not answer", "error", err)
	} else {
		slog.Info("LLM endpoint OK", "provider", v.GetString("llm-provider"), "model", v.GetString("llm-model"))
	}
	return assistant.New(chat, poster, prompts.Tone(tone)), nil
}

func cleanupLoop(db *store.Store) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := db.CleanupExpiredSessions(); err != nil {
			slog.Error("session cleanup failed", "error", err)
		}
	}
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	api, err := backend.New(v.GetString("backend-url"), v.GetDuration("backend-timeout"))
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	student, err := api.StudentByEmail(ctx, v.GetString("email"))
	if err != nil {
		return fmt.Errorf("resolve student: %w", err)
	}
	feedback, err := api.StudentFeedback(ctx, student.ID)
	if err != nil {
		return fmt.Errorf("fetch feedback: %w", err)
	}
	comments, err := api.StudentComments(ctx, student.ID)
	if err != nil {
		return fmt.Errorf("fetch comments: %w", err)
	}
	drafts, err := db.ExportDrafts(student.ID)
	if err != nil {
		return fmt.Errorf("export drafts: %w", err)
	}

	export := buildHistory(v.GetString("email"), student, feedback, comments, drafts)
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
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
	_, _ = fmt.Fprintln(w)
	return nil
}

func buildHistory(email string, student model.Student, feedback []model.PastFeedback,
	comments []model.StudentComment, drafts []model.DraftRecord) model.HistoryExport {
	return model.HistoryExport{
		Email:       email,
		StudentID:   student.ID,
		StudentName: student.Name,
		ExportedAt:  time.Now().UTC(),
		Feedback: lo.Map(feedback, func(f model.PastFeedback, _ int) model.FeedbackRecord {
			return model.FeedbackRecord{
				FeedbackID: f.Feedback.ID,
				Teacher:    f.Teacher.Name,
				OpenedAt:   f.Feedback.CreatedAt,
				ExpiresAt:  f.Feedback.ExpiryDate,
			}
		}),
		Comments: lo.Map(comments, func(c model.StudentComment, _ int) model.CommentRecord {
			return model.CommentRecord{Teacher: c.Teacher.Name, Comment: c.Comment, CreatedAt: c.CreatedAt}
		}),
		Drafts: drafts,
	}
}
