// ABOUTME: Operator CLI for the chat-gateway admin API
// ABOUTME: Login, identity, principal management, and API key issuance over HTTP

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
)

const banner = `
      _           _                    _           _
  ___| |__   __ _| |_        __ _  __| |_ __ ___ (_)_ __
 / __| '_ \ / _' | __|_____ / _' |/ _' | '_ ' _ \| | '_ \
| (__| | | | (_| | ||______| (_| | (_| | | | | | | | | | |
 \___|_| |_|\__,_|\__|      \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := getEnv("CHAT_GATEWAY_URL", "http://localhost:8080")
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(baseURL, args)
	case "me":
		err = cmdMe(baseURL, token)
	case "principals":
		err = cmdPrincipals(baseURL, token, args)
	case "apikey":
		err = cmdAPIKey(baseURL, token)
	case "sessions":
		err = cmdSessions(baseURL, token)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: chat-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login -u USER -p PASS       Log in and save a token")
	fmt.Println("  me                          Show your identity")
	fmt.Println("  principals                  List all principals (admin)")
	fmt.Println("  principals list             List all principals (admin)")
	fmt.Println("  principals create           Create a principal (admin)")
	fmt.Println("  principals deactivate <id>  Deactivate a principal (admin)")
	fmt.Println("  apikey                      Issue a fresh API key for yourself")
	fmt.Println("  sessions                    List your sessions")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CHAT_GATEWAY_URL     Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  CHAT_GATEWAY_TOKEN   Bearer token (falls back to the saved login token)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  chat-admin login -u admin -p admin123")
	fmt.Println("  chat-admin principals")
	fmt.Println("  chat-admin principals create --username carol --email carol@example.com --password s3cret")
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// tokenPath is where a successful login stores the bearer token.
func tokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "chat-gateway", "token")
}

// getToken returns the bearer token from CHAT_GATEWAY_TOKEN or the token file.
func getToken() string {
	if token := os.Getenv("CHAT_GATEWAY_TOKEN"); token != "" {
		return token
	}

	path := tokenPath()
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// request sends a JSON API call and decodes the response into out.
// Non-2xx responses surface the server's error envelope.
func request(baseURL, token, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Kind != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Kind, envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func requireToken(token string) error {
	if token == "" {
		return fmt.Errorf("no token: run 'chat-admin login' or set CHAT_GATEWAY_TOKEN")
	}
	return nil
}

type principalView struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	APIKeyUsageCount int64  `json:"apiKeyUsageCount"`
	APIKeyLimit      int64  `json:"apiKeyLimit"`
	IsActive         bool   `json:"isActive"`
	LastLoginAt      string `json:"lastLoginAt"`
}

func cmdLogin(baseURL string, args []string) error {
	var username, password string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--username" || args[i] == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--username requires a value")
			}
			username = args[i+1]
			i++
		case args[i] == "--password" || args[i] == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--password requires a value")
			}
			password = args[i+1]
			i++
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}
	if username == "" || password == "" {
		return fmt.Errorf("--username and --password are required")
	}

	var resp struct {
		AccessToken string        `json:"accessToken"`
		ExpiresAt   string        `json:"expiresAt"`
		User        principalView `json:"user"`
	}
	err := request(baseURL, "", http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}

	path := tokenPath()
	if path == "" {
		return fmt.Errorf("cannot determine token path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(resp.AccessToken), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Logged in as %s (%s)\n", resp.User.Username, resp.User.Role)
	fmt.Printf("Token saved to %s (expires %s)\n", path, resp.ExpiresAt)
	return nil
}

func cmdMe(baseURL, token string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	var me principalView
	if err := request(baseURL, token, http.MethodGet, "/api/auth/me", nil, &me); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("Identity")
	cyan.Println("--------")
	fmt.Printf("ID:       %s\n", me.ID)
	fmt.Printf("Username: %s\n", me.Username)
	fmt.Printf("Email:    %s\n", me.Email)
	fmt.Printf("Role:     %s\n", me.Role)
	fmt.Printf("Active:   %t\n", me.IsActive)
	if me.LastLoginAt != "" {
		fmt.Printf("Last login: %s\n", me.LastLoginAt)
	}
	return nil
}

func cmdPrincipals(baseURL, token string, args []string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdPrincipalsList(baseURL, token)
	case "create", "add":
		return cmdPrincipalsCreate(baseURL, token, args)
	case "deactivate":
		return cmdPrincipalsDeactivate(baseURL, token, args)
	default:
		return fmt.Errorf("unknown principals subcommand: %s", subcmd)
	}
}

func cmdPrincipalsList(baseURL, token string) error {
	var principals []principalView
	if err := request(baseURL, token, http.MethodGet, "/api/admin/principals", nil, &principals); err != nil {
		return err
	}

	if len(principals) == 0 {
		fmt.Println("No principals.")
		return nil
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("%-36s  %-16s  %-6s  %-7s  %s\n", "ID", "USERNAME", "ROLE", "ACTIVE", "KEY USAGE")
	for _, p := range principals {
		fmt.Printf("%-36s  %-16s  %-6s  %-7t  %d/%d\n",
			p.ID, truncate(p.Username, 16), p.Role, p.IsActive, p.APIKeyUsageCount, p.APIKeyLimit)
	}
	return nil
}

func cmdPrincipalsCreate(baseURL, token string, args []string) error {
	var username, email, password, role string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--username" || args[i] == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--username requires a value")
			}
			username = args[i+1]
			i++
		case args[i] == "--email" || args[i] == "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case args[i] == "--password" || args[i] == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--password requires a value")
			}
			password = args[i+1]
			i++
		case args[i] == "--role" || args[i] == "-r":
			if i+1 >= len(args) {
				return fmt.Errorf("--role requires a value")
			}
			role = args[i+1]
			i++
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("--username, --email, and --password are required")
	}

	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	if role != "" {
		body["role"] = role
	}

	var created principalView
	if err := request(baseURL, token, http.MethodPost, "/api/admin/principals", body, &created); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Created principal %s (%s)\n", created.Username, created.ID)
	return nil
}

func cmdPrincipalsDeactivate(baseURL, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chat-admin principals deactivate <id>")
	}
	id := args[0]

	var updated principalView
	err := request(baseURL, token, http.MethodPost, "/api/admin/principals/"+id+"/deactivate", nil, &updated)
	if err != nil {
		return err
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("Deactivated %s (%s)\n", updated.Username, updated.ID)
	return nil
}

func cmdAPIKey(baseURL, token string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	var resp struct {
		APIKey     string `json:"apiKey"`
		UsageLimit int64  `json:"usageLimit"`
	}
	if err := request(baseURL, token, http.MethodPost, "/api/auth/apikey", nil, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("Issued a new API key (replaces any previous key):")
	fmt.Println(resp.APIKey)
	fmt.Printf("Usage limit: %d\n", resp.UsageLimit)
	return nil
}

func cmdSessions(baseURL, token string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	var sessions []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		IsActive  bool   `json:"isActive"`
		UpdatedAt string `json:"updatedAt"`
	}
	if err := request(baseURL, token, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("%-36s  %-30s  %-7s  %s\n", "ID", "TITLE", "ACTIVE", "UPDATED")
	for _, s := range sessions {
		fmt.Printf("%-36s  %-30s  %-7t  %s\n", s.ID, truncate(s.Title, 30), s.IsActive, s.UpdatedAt)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
