package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/seblog/micropub/internal/auth"
	"github.com/seblog/micropub/internal/client"
	"github.com/seblog/micropub/internal/config"
	httpapp "github.com/seblog/micropub/internal/http"
	"github.com/seblog/micropub/internal/micropub"
	"github.com/seblog/micropub/internal/rate"
	"github.com/seblog/micropub/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("micropub v0.1.0")
		return
	}

	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "post", "create":
		cmdPost(args)
	case "config":
		cmdConfig(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`micropub - Micropub server endpoint

Usage: micropub <command> [options]

Client Commands:
  post                Create an entry on a Micropub endpoint
  config              Query a Micropub endpoint's configuration

Server:
  server              Start the Micropub server (default if no command)

Examples:
  micropub post --server https://example.com --token TOKEN --content "Hello world"
  micropub post --server https://example.com --token TOKEN --name "A post" --category go,indieweb
  micropub post --server https://example.com --token TOKEN --form --content "Hello"
  micropub config --server https://example.com --token TOKEN

Environment Variables (server):
  MICROPUB_ADDR               Listen address (default: :8080)
  MICROPUB_DB                 Database path (default: micropub.db)
  MICROPUB_BASE_URL           Public base URL, matched against token identity
  MICROPUB_TOKEN_ENDPOINT     Token verification endpoint
  MICROPUB_FETCH_TIMEOUT      Outbound request timeout (default: 5s)
  MICROPUB_MAX_UPLOADS        Max photo uploads per entry (default: 20)
  MICROPUB_RL_CREATE_PER_MIN  Entry creations per minute per IP (default: 30)`)
}

func runServer() {
	cfg := config.Load()

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer st.Close()

	authority := auth.NewHTTPAuthority(cfg.TokenEndpoint, cfg.FetchTimeout)
	verifier := auth.NewVerifier(authority)
	normalizer := micropub.NewNormalizer(micropub.NewHTTPFetcher(cfg.FetchTimeout))
	limiter := rate.NewMemory(cfg.RateLimits.CreatePerMinute, time.Minute)

	server := httpapp.NewServer(st, verifier, normalizer, limiter, cfg)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("micropub listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

func cmdPost(args []string) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	server := fs.String("server", "", "Micropub server base URL (required)")
	token := fs.String("token", "", "Bearer token (required)")
	content := fs.String("content", "", "Entry content")
	name := fs.String("name", "", "Entry name/title")
	slug := fs.String("slug", "", "Explicit slug")
	summary := fs.String("summary", "", "Entry summary")
	category := fs.String("category", "", "Comma-separated categories")
	form := fs.Bool("form", false, "Send form-encoded instead of JSON")
	fs.Parse(args)

	if *server == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "Error: --server and --token are required")
		os.Exit(1)
	}
	if *content == "" && *name == "" && *summary == "" {
		fmt.Fprintln(os.Stderr, "Error: provide at least one of --content, --name, --summary")
		os.Exit(1)
	}

	c := client.New(*server)
	c.Token = *token

	var location string
	var err error
	if *form {
		values := url.Values{}
		setIf(values, "content", *content)
		setIf(values, "name", *name)
		setIf(values, "slug", *slug)
		setIf(values, "summary", *summary)
		for _, cat := range splitList(*category) {
			values.Add("category[]", cat)
		}
		location, err = c.CreateForm(values)
	} else {
		properties := map[string]any{}
		if *content != "" {
			properties["content"] = *content
		}
		if *name != "" {
			properties["name"] = *name
		}
		if *slug != "" {
			properties["slug"] = *slug
		}
		if *summary != "" {
			properties["summary"] = *summary
		}
		if cats := splitList(*category); len(cats) > 0 {
			properties["category"] = cats
		}
		location, err = c.Create(properties)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Created: %s\n", location)
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	server := fs.String("server", "", "Micropub server base URL (required)")
	token := fs.String("token", "", "Bearer token (required)")
	fs.Parse(args)

	if *server == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "Error: --server and --token are required")
		os.Exit(1)
	}

	c := client.New(*server)
	c.Token = *token

	cfg, err := c.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Println(string(out))
}

func setIf(values url.Values, key, value string) {
	if value != "" {
		values.Set(key, value)
	}
}

func splitList(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
