// Command relay-client is a terminal client for the relay. It waits for the
// shared key, encrypts every stdin line into a submission and prints the
// messages and deletions it receives.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/chatrelay/internal/crypto"
	"github.com/pscheid92/chatrelay/internal/domain"
)

const (
	keyTimeout   = 10 * time.Second
	writeTimeout = 5 * time.Second
)

func main() {
	var (
		relayURL = flag.String("url", envOr("RELAY_URL", "ws://localhost:8080/"), "Relay WebSocket URL (or set RELAY_URL env)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *relayURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to relay: %v", err)
	}
	defer conn.Close()
	slog.Debug("Connected to relay", "url", *relayURL)

	cipher, err := awaitKey(conn)
	if err != nil {
		log.Fatalf("Handshake failed: %v", err)
	}
	fmt.Fprintln(os.Stderr, "Connected. Type a message and press enter.")

	go receive(conn, cipher, os.Stdout)

	if err := send(ctx, conn, cipher, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Sending stopped", "error", err)
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeTimeout))
}

// awaitKey reads the first frame, which must carry the shared key.
func awaitKey(conn *websocket.Conn) (*crypto.Cipher, error) {
	_ = conn.SetReadDeadline(time.Now().Add(keyTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read key frame: %w", err)
	}
	return cipherFromKeyFrame(data)
}

func cipherFromKeyFrame(data []byte) (*crypto.Cipher, error) {
	var env domain.InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid key frame: %w", err)
	}
	if env.Type != domain.EnvelopeKey {
		return nil, fmt.Errorf("expected %q frame, got %q", domain.EnvelopeKey, env.Type)
	}

	key, err := crypto.ParseSharedKey(env.Key)
	if err != nil {
		return nil, err
	}
	return crypto.NewCipher(key)
}

func receive(conn *websocket.Conn, cipher *crypto.Cipher, out io.Writer) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				slog.Error("Connection lost", "error", err)
			}
			os.Exit(0)
		}

		line, err := render(cipher, data)
		if err != nil {
			slog.Warn("Skipping frame", "error", err)
			continue
		}
		fmt.Fprintln(out, line)
	}
}

// render turns one server frame into a line for the terminal.
func render(cipher *crypto.Cipher, data []byte) (string, error) {
	var env domain.InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("invalid frame: %w", err)
	}

	switch env.Type {
	case domain.EnvelopeMessage:
		plaintext, err := cipher.Open(domain.Payload{Content: env.Content, IV: env.IV, AuthTag: env.AuthTag})
		if err != nil {
			return "", fmt.Errorf("message %s: %w", env.MessageID, err)
		}
		return fmt.Sprintf("[%s] %s", shortID(env.SenderID.String()), plaintext), nil
	case domain.EnvelopeDelete:
		return fmt.Sprintf("-- message %s expired", shortID(env.MessageID.String())), nil
	case domain.EnvelopeKey:
		return "", errors.New("unexpected second key frame")
	default:
		return "", fmt.Errorf("unknown frame type %q", env.Type)
	}
}

func send(ctx context.Context, conn *websocket.Conn, cipher *crypto.Cipher, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line := <-lines:
			if line == "" {
				continue
			}
			frame, err := seal(cipher, line)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}
		}
	}
}

func seal(cipher *crypto.Cipher, text string) ([]byte, error) {
	payload, err := cipher.Seal([]byte(text))
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
