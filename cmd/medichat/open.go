package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vovakirdan/medichat/internal/chat"
	"github.com/vovakirdan/medichat/internal/chatview"
	"github.com/vovakirdan/medichat/internal/collab"
	"github.com/vovakirdan/medichat/internal/config"
	"github.com/vovakirdan/medichat/internal/conn"
	"github.com/vovakirdan/medichat/internal/log"
)

func newOpenCmd(configPath *string) *cobra.Command {
	var (
		consultationID string
		name           string
		role           string
	)

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open the chat for one consultation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOpen(*configPath, consultationID, name, role)
		},
	}
	cmd.Flags().StringVar(&consultationID, "consultation", "demo", "consultation identifier")
	cmd.Flags().StringVar(&name, "name", "cli-user", "display name for guest sessions")
	cmd.Flags().StringVar(&role, "role", string(chat.RolePatient), "role for guest sessions (patient|doctor)")

	return cmd
}

func runOpen(configPath, consultationID, name, role string) error {
	bootLog := log.New("info")
	cfg, _, err := config.Load(bootLog, configPath)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token := cfg.Token
	if token == "" {
		if token, err = guestToken(name, role); err != nil {
			return fmt.Errorf("build guest token: %w", err)
		}
	}
	user, err := collab.UserFromToken(token)
	if err != nil {
		return fmt.Errorf("resolve session identity: %w", err)
	}

	api := collab.NewClient(cfg.APIBaseURL, token, logger)
	mgr := conn.NewManager(conn.Settings{
		EventURL:          cfg.EventURL,
		Token:             token,
		Transports:        cfg.Transports,
		Upgrade:           cfg.Upgrade,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		RetryAttempts:     cfg.RetryAttempts,
		RetryBackoff:      cfg.RetryBackoff,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	}, logger)

	var view *chatview.View

	view, err = chatview.Open(ctx, chatview.Deps{
		Manager:       mgr,
		Messages:      api,
		Files:         api,
		Consultations: api,
	}, chatview.Options{
		User:            user,
		ConsultationID:  consultationID,
		PendingExpiry:   cfg.PendingExpiry,
		DuplicateWindow: cfg.DuplicateWindow,
		Notify: func(text string) {
			fmt.Printf("! %s\n", text)
		},
		OnAppend: func(m chat.Message) {
			printMessage(user, m)
		},
		OnHistory: func(msgs []chat.Message) {
			for _, m := range msgs {
				printMessage(user, m)
			}
		},
		OnPresence: func() {
			if view == nil {
				return
			}
			if typing := view.TypingUsers(); len(typing) > 0 {
				fmt.Printf("… %s typing\n", strings.Join(typing, ", "))
			}
		},
		OnState: func(sc conn.StateChange) {
			switch sc.State {
			case conn.StateConnected:
				fmt.Printf("✓ connected via %s\n", sc.Transport)
			case conn.StateDisconnected:
				fmt.Println("⚠ disconnected, reconnecting…")
			case conn.StateError:
				fmt.Println("✗ connection failed")
			}
		},
	}, logger)
	if errors.Is(err, chat.ErrChatUnavailable) {
		fmt.Println("Chat room not available for this consultation.")
		return nil
	}
	if err != nil {
		return err
	}
	defer view.Close()

	c := view.Consultation()
	fmt.Printf("Consultation %s — patient %s, doctor %s\n", c.ID, c.PatientName, c.DoctorName)
	fmt.Println("Type messages and press Enter to send. /file <path> shares a document, /quit exits.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			switch {
			case text == "/quit":
				return nil
			case strings.HasPrefix(text, "/file "):
				sendFile(ctx, view, strings.TrimSpace(strings.TrimPrefix(text, "/file ")))
			default:
				view.Send(ctx, text)
			}
		}
	}
}

func sendFile(ctx context.Context, view *chatview.View, path string) {
	// Read up front: the upload runs in the background and outlives this call.
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("! cannot read %s: %v\n", path, err)
		return
	}
	view.SendFile(ctx, filepath.Base(path), bytes.NewReader(data))
}

func printMessage(self chat.Participant, m chat.Message) {
	sender := m.SenderID
	if m.SenderID == self.ID {
		sender = "you"
	}
	suffix := ""
	if m.Pending {
		suffix = " (sending…)"
	}
	if m.Kind == chat.KindFile && m.FileURL != "" {
		suffix += " [" + m.FileURL + "]"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Local().Format("15:04"), sender, m.Content, suffix)
}

// guestToken mints an unsigned identity token for local use against the
// stub; real deployments pass the portal-issued token via config.
func guestToken(name, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":       "guest-" + uuid.NewString()[:8],
		"name":      name,
		"user_type": role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
}
