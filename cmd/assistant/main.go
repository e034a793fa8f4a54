// Package main - локальный чат с ассистентом Vibe Academy.
//
// Ключ провайдера хранится только на машине ученика в зашифрованном файле
// и никогда не отправляется в API академии.
//
//	assistant key set     # прочитать ключ из stdin и сохранить
//	assistant key clear   # удалить сохранённый ключ
//	assistant [chat]      # интерактивный чат
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vibecoding/vibe-academy/config"
	"github.com/vibecoding/vibe-academy/internal/application/chat"
	"github.com/vibecoding/vibe-academy/internal/bootstrap"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/external/assistant"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/service"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

const greeting = "Hi! Ask me anything about your Vibe Academy modules. Type /reset to start over, /quit to leave."

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: assistant [chat | key set | key clear]")
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(config.ComponentAssistant)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Логи не должны смешиваться с диалогом в stdout.
	cfg.Observability.LogFormat = string(logger.FormatConsole)
	log := bootstrap.NewLogger(cfg).With(logger.Component("assistant_cli"))
	defer func() { _ = log.Sync() }()

	store, err := assistant.NewCredentialStore(cfg.Assistant.CredentialPath, cfg.Assistant.Passphrase)
	if err != nil {
		return fmt.Errorf("%w (set ASSISTANT_PASSPHRASE)", err)
	}

	switch strings.Join(args, " ") {
	case "key set":
		return setKey(store, os.Stdin, os.Stdout)
	case "key clear":
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("assistant key removed")
		return nil
	case "", "chat":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", strings.Join(args, " "))
	}

	client := assistant.NewClient(assistant.ClientConfig{
		BaseURL:   cfg.Assistant.BaseURL,
		Model:     cfg.Assistant.Model,
		MaxTokens: cfg.Assistant.MaxTokens,
		Timeout:   cfg.Assistant.Timeout,
		RateLimiterConfig: assistant.RateLimiterConfig{
			RequestsPerSecond: cfg.Assistant.RequestsPerSecond,
			BurstSize:         cfg.Assistant.Burst,
			WaitTimeout:       assistant.DefaultRateLimiterConfig().WaitTimeout,
		},
		Logger: log,
	})

	session := chat.NewSession(
		service.NewAssistantAdapter(client, store, ""),
		chat.WithGreeting(greeting),
		chat.WithLogger(log),
	)
	defer session.Close()

	// Ctrl+C отменяет текущий запрос и завершает чат.
	go func() {
		<-ctx.Done()
		session.Close()
	}()

	return runChat(ctx, session, os.Stdin, os.Stdout)
}

// setKey reads one line from in and seals it into the store.
func setKey(store *assistant.CredentialStore, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, "Paste your assistant API key: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("empty key")
	}
	if err := store.Save(key); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nkey saved to %s\n", store.Path())
	return nil
}

// runChat reads one message per line and prints every new transcript entry.
func runChat(ctx context.Context, session *chat.Session, in io.Reader, out io.Writer) error {
	printed := printNew(out, session.Transcript(), 0)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		switch text := strings.TrimSpace(scanner.Text()); text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			session.Reset()
			printed = 0
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		default:
			err := session.Send(ctx, text)
			switch {
			case errors.Is(err, chat.ErrSessionClosed):
				return nil
			case err != nil:
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
		}

		printed = printNew(out, session.Transcript(), printed)
	}
}

// printNew prints the assistant and error entries after index from and
// returns the new length of the transcript.
func printNew(out io.Writer, transcript []chat.Message, from int) int {
	for _, m := range transcript[min(from, len(transcript)):] {
		switch m.Role {
		case chat.RoleAssistant:
			fmt.Fprintf(out, "assistant: %s\n", m.Content)
		case chat.RoleError:
			fmt.Fprintf(out, "! %s\n", m.Content)
		}
	}
	return len(transcript)
}
