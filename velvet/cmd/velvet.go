// Command-line chat client for a running Velvet server
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"velvet/velvet/config"
	"velvet/velvet/utils/color"
	httputils "velvet/velvet/utils/http"
	"velvet/velvet/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 || args[0] != "connect" {
		fmt.Println("Velvet CLI usage:")
		fmt.Println("  velvet connect [-server URL] [-email E] [-password P] [-chat ID] [-no-color]")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Println(color.ColorError(err.Error()))
		os.Exit(1)
	}

	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	server := fs.String("server", envOr("VELVET_SERVER", "http://localhost:"+cfg.HTTPPort), "server base URL")
	email := fs.String("email", os.Getenv("VELVET_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("VELVET_PASSWORD"), "account password")
	chatID := fs.String("chat", "", "continue an existing chat")
	noColor := fs.Bool("no-color", false, "disable coloured output")
	fs.Parse(args[1:])
	if *noColor {
		color.Disable()
	}

	if err := run(*server, *email, *password, *chatID); err != nil {
		fmt.Println(color.ColorError(err.Error()))
		os.Exit(1)
	}
}

func run(server, email, password, chatID string) error {
	client := &http.Client{Timeout: 30 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var tok types.TokenResponse
	if err := httputils.PostJSON(ctx, client, server+"/auth/login", types.LoginRequest{Email: email, Password: password}, &tok); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if chatID == "" {
		var chat types.Chat
		err := httputils.PostJSON(ctx, client, server+"/chats", types.CreateChatRequest{Title: "CLI session"}, &chat, httputils.Bearer(tok.AccessToken))
		if err != nil {
			return fmt.Errorf("create chat failed: %w", err)
		}
		chatID = chat.ID.String()
	}

	wsURL := "ws" + strings.TrimPrefix(server, "http") + "/chats/" + chatID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + tok.AccessToken}},
	})
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	fmt.Println(color.ColorInfo("Connected to chat " + chatID))
	fmt.Println("Commands: /bcrp on|off, /file <id>, /files clear, exit")
	fmt.Println()

	var fileIDs []string
	includeBCRP := false
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.ColorPrompt("velvet> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			conn.Close(websocket.StatusNormalClosure, "")
			fmt.Println("Goodbye!")
			return nil
		case line == "/bcrp on" || line == "/bcrp off":
			includeBCRP = line == "/bcrp on"
			fmt.Println(color.ColorInfo("BCRP data: " + strings.TrimPrefix(line, "/bcrp ")))
			continue
		case strings.HasPrefix(line, "/file "):
			fileIDs = append(fileIDs, strings.TrimSpace(strings.TrimPrefix(line, "/file ")))
			fmt.Println(color.ColorInfo(fmt.Sprintf("%d file(s) attached", len(fileIDs))))
			continue
		case line == "/files clear":
			fileIDs = nil
			continue
		}

		req := types.SendMessageRequest{Content: line, FileIDs: fileIDs, IncludeBCRPData: includeBCRP}
		if err := converse(conn, req); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// converse sends one message and prints the streamed reply.
func converse(conn *websocket.Conn, req types.SendMessageRequest) error {
	ctx := context.Background()
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	for {
		var ev types.StreamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		switch ev.Type {
		case types.EventChunk:
			fmt.Print(color.ColorAssistant(ev.Content))
		case types.EventError:
			fmt.Println(color.ColorError(ev.Content))
			return nil
		case types.EventDone:
			fmt.Println()
			if ev.Result != nil && ev.Result.AssistantMessage.Metadata["fallback"] == true {
				fmt.Println(color.ColorWarning("(model unavailable, fallback reply)"))
			}
			fmt.Println()
			return nil
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
