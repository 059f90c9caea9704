package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"

	"tribu-agent/internal/chat"
	"tribu-agent/internal/client"
	appconfig "tribu-agent/internal/config"
	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
	"tribu-agent/internal/extract"
	"tribu-agent/internal/logging"
)

const (
	help = "Commands: /reset, /retry, /transcript, /save <file>, /load <file>, /quit"

	modeLocal  = "local"
	modeRemote = "remote"
)

// chatSession is satisfied by the local questionnaire driver and by the
// backend-driven one.
type chatSession interface {
	Send(ctx context.Context, text string) (chat.Reply, error)
	Retry(ctx context.Context) (chat.Reply, error)
	Reset() error
	Transcript() []domain.ChatMessage
	RestoreTranscript(msgs []domain.ChatMessage) error
}

func main() {
	os.Exit(start())
}

func start() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := appconfig.LoadEnvFiles(appconfig.EnvFiles(os.Getenv("DOTENV_FILES"))...); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load env files:", err)
		return 1
	}

	// ---- Configuration (read only here) ----
	logger, logCloser, err := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: logging.FormatText,
		File:   os.Getenv("LOG_FILE"),
	}, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to configure logging:", err)
		return 1
	}
	defer func() { _ = logCloser.Close() }()
	apiURL := envOr("TRIBU_API_URL", "http://localhost:8000")
	mode := strings.ToLower(envOr("CHAT_MODE", modeLocal))
	policyName := os.Getenv("COMPLETION_POLICY")

	api, err := client.New(client.WithBaseURL(apiURL))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create API client:", err)
		return 1
	}
	if !checkBackend(ctx, api, logger) {
		fmt.Fprintf(os.Stderr, "warning: backend at %s is not ready\n", apiURL)
	}

	session, err := newSession(mode, policyName, api, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create session:", err)
		return 1
	}

	fmt.Printf("TribuAI cultural profile chat (%s mode). %s\n", mode, help)
	err = run(ctx, session, os.Stdin, os.Stdout)
	if remote, ok := session.(*chat.Remote); ok {
		logger.Info("chat ended", "session_id", remote.SessionID())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("chat ended with error", "err", err)
		return 1
	}
	return 0
}

// newSession builds the driver for mode. Local mode runs the questionnaire
// here and needs a completion policy; remote mode lets the backend run it.
func newSession(mode, policyName string, api *client.Client, logger *slog.Logger) (chatSession, error) {
	switch mode {
	case modeLocal:
		if strings.TrimSpace(policyName) == "" {
			return nil, errors.New("COMPLETION_POLICY is required in local mode")
		}
		policy, err := conversation.ParsePolicy(policyName)
		if err != nil {
			return nil, fmt.Errorf("invalid COMPLETION_POLICY: %w", err)
		}
		tracker, err := conversation.NewTracker(extract.NewKeywordExtractor(extract.DefaultVocabulary()), policy)
		if err != nil {
			return nil, err
		}
		s, err := chat.NewSession(tracker, api, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case modeRemote:
		r, err := chat.NewRemote(api, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown CHAT_MODE %q", mode)
	}
}

// checkBackend reports whether the backend answers both liveness probes.
func checkBackend(ctx context.Context, api *client.Client, logger *slog.Logger) bool {
	health, err := api.Health(ctx)
	if err != nil || health != "healthy" {
		logger.Warn("backend health check failed", "health", health, "err", err)
		return false
	}
	status, err := api.Status(ctx)
	if err != nil || status != "running" {
		logger.Warn("backend status check failed", "status", status, "err", err)
		return false
	}
	logger.Debug("backend ready", "health", health, "status", status)
	return true
}

func run(ctx context.Context, s chatSession, in io.Reader, out io.Writer) error {
	printLast(out, s.Transcript())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := s.Reset(); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			printLast(out, s.Transcript())
		case "/retry":
			reply, err := s.Retry(ctx)
			printReply(out, reply, err)
		case "/transcript":
			for _, m := range s.Transcript() {
				fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
			}
		case "/save":
			if err := saveTranscript(s, strings.TrimSpace(arg)); err != nil {
				fmt.Fprintln(out, err)
			}
		case "/load":
			if err := loadTranscript(s, strings.TrimSpace(arg)); err != nil {
				fmt.Fprintln(out, err)
			}
		default:
			reply, err := s.Send(ctx, line)
			printReply(out, reply, err)
		}
	}
}

func printReply(out io.Writer, reply chat.Reply, err error) {
	if err != nil && reply.Message == "" {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintln(out, reply.Message)
	if reply.Result == nil {
		return
	}
	raw, jerr := json.MarshalIndent(reply.Result, "", "  ")
	if jerr != nil {
		fmt.Fprintln(out, jerr)
		return
	}
	fmt.Fprintln(out, string(raw))
}

func printLast(out io.Writer, msgs []domain.ChatMessage) {
	if len(msgs) > 0 {
		fmt.Fprintln(out, msgs[len(msgs)-1].Content)
	}
}

func saveTranscript(s chatSession, path string) error {
	if path == "" {
		return errors.New("usage: /save <file>")
	}
	raw, err := json.MarshalIndent(s.Transcript(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func loadTranscript(s chatSession, path string) error {
	if path == "" {
		return errors.New("usage: /load <file>")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var msgs []domain.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return fmt.Errorf("decode transcript: %w", err)
	}
	return s.RestoreTranscript(msgs)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
