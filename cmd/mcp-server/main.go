package main

import (
	"context"
	"log"

	"github.com/eshaffer321/petsgo-go/internal/config"
	"github.com/eshaffer321/petsgo-go/internal/logging"
	"github.com/eshaffer321/petsgo-go/pkg/petsgo"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// stdout carries the protocol, so only errors are logged (to stderr)
	logger, err := logging.New("error")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := petsgo.NewClient(&petsgo.ClientOptions{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		Envelope:    cfg.EnvelopeMode(),
		LenientJSON: cfg.LenientJSON,
		Store:       petsgo.NewFileStore(cfg.TokenStore, logger),
		AutoRefresh: true,
		Logger:      logger,
		RetryConfig: cfg.RetryConfig(),
		SentryDSN:   cfg.SentryDSN,
	})
	if err != nil {
		log.Fatalf("failed to initialize PetsGo client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Auth.Restore(ctx); err != nil {
		log.Printf("no saved session: %v", err)
	}

	impl := &mcp.Implementation{
		Name:    "petsgo",
		Version: "1.0.0",
	}

	server := mcp.NewServer(impl, nil)

	registerTools(server, client)

	// Run server over stdio transport
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func registerTools(server *mcp.Server, client *petsgo.Client) {
	tools := &petsgoTools{client: client}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "api_request",
		Description: "Call a PetsGo API endpoint with the saved session. Returns the HTTP method, path and the unwrapped response payload.",
	}, tools.APIRequest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "whoami",
		Description: "Get the signed-in user from the saved session.",
	}, tools.WhoAmI)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_profile",
		Description: "Fetch the signed-in user's profile from the server.",
	}, tools.GetProfile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_token",
		Description: "Exchange the saved token for a new one and save it.",
	}, tools.RefreshToken)
}
