// Package main is the kaiwa CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/indexer"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/openai"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/server"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/token"
	"github.com/hyperjump/kaiwa/internal/vectorstore"
	"github.com/hyperjump/kaiwa/internal/watcher"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kaiwa/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kaiwa server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Optional .env in the working directory, for local development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kaiwa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// indexHolder hands out the current vector index and lets a background
// rebuild swap in a fresh one without restarting the server.
type indexHolder struct {
	mu    sync.RWMutex
	store *vectorstore.Store
}

func newIndexHolder(store *vectorstore.Store) *indexHolder {
	return &indexHolder{store: store}
}

func (h *indexHolder) Get() *vectorstore.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store
}

func (h *indexHolder) Set(store *vectorstore.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = store
}

func (h *indexHolder) Search(ctx context.Context, query string) ([]models.SimilarityResult, error) {
	return h.Get().Search(ctx, query)
}

func (h *indexHolder) Len() int {
	return h.Get().Len()
}

// Components holds initialized services.
type Components struct {
	Estimator    *token.Estimator
	Client       *openai.Client
	Embedder     embedding.Embedder
	Index        *indexHolder
	Indexer      *indexer.Indexer
	Orchestrator *chat.Orchestrator
	Storage      storage.Storage
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	est, err := token.NewEstimator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token estimator: %w", err)
	}

	apiKey, err := cfg.OpenAI.APIKey()
	if err != nil {
		return nil, err
	}
	client, err := openai.NewClient(openai.Config{
		BaseURL:        cfg.OpenAI.BaseURL,
		APIKey:         apiKey,
		EmbedModel:     cfg.OpenAI.EmbedModel,
		ChatModel:      cfg.OpenAI.ChatModel,
		Timeout:        time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		MaxRetries:     cfg.OpenAI.MaxRetries,
		EmbedMaxTokens: cfg.OpenAI.EmbedMaxTokens,
	}, est)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gateway client: %w", err)
	}
	embedder := embedding.NewCachedEmbedder(client, cfg.Index.CacheSize)

	store, err := vectorstore.Load(cfg.Index.Path, embedder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	holder := newIndexHolder(store)

	chunker := indexer.NewChunker(est, cfg.Index.BlockSize)
	idxOpts := []indexer.IndexerOption{}
	if debug && logger != nil {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	idx := indexer.NewIndexer(chunker, embedder, cfg.Index.Concurrency, idxOpts...)

	planner := retrieval.NewPlanner(est)
	chatOpts := []chat.Option{}
	if debug && logger != nil {
		chatOpts = append(chatOpts, chat.WithLogger(logger))
	}
	orchestrator := chat.NewOrchestrator(holder, planner, client, est, chat.Config{
		Template:             cfg.Chat.Template,
		MaxPromptTokens:      cfg.Chat.MaxPromptTokens,
		ReservedOutputTokens: cfg.Chat.ReservedOutputTokens,
	}, chatOpts...)

	docStore, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &Components{
		Estimator:    est,
		Client:       client,
		Embedder:     embedder,
		Index:        holder,
		Indexer:      idx,
		Orchestrator: orchestrator,
		Storage:      docStore,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (chunking, packing, gateway calls)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	logger.Info("vector index loaded",
		zap.String("path", cfg.Index.Path),
		zap.Int("records", components.Index.Len()),
	)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Index.SourcePath, func(path string) {
			logger.Info("page export changed, rebuilding index", zap.String("path", path))
			fresh, err := components.Indexer.Rebuild(context.Background(), path, cfg.Index.Path, components.Index.Get())
			if err != nil {
				logger.Warn("reindex failed", zap.String("path", path), zap.Error(err))
				return
			}
			components.Index.Set(fresh)
			logger.Info("index rebuilt", zap.Int("records", fresh.Len()))
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Index,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "page export file (default: index.source_path from config)")
	out := fs.String("out", "", "index output file (default: index.path from config)")
	cachePath := fs.String("cache", "", "prior index file to reuse embeddings from (default: the output index, when present)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Index.SourcePath = *source
	}
	if *out != "" {
		cfg.Index.Path = *out
	}
	debugMode := cfg.Debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	// The previous index, loaded at init, seeds the build so unchanged
	// chunks cost no gateway calls. --cache points the reuse at a
	// different snapshot.
	cache := components.Index.Get()
	if *cachePath != "" {
		cache, err = vectorstore.Load(*cachePath, components.Embedder, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load cache index: %v\n", err)
			os.Exit(1)
		}
	}
	fresh, err := components.Indexer.Rebuild(context.Background(), cfg.Index.SourcePath, cfg.Index.Path, cache)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d chunk(s) from %s to %s\n", fresh.Len(), cfg.Index.SourcePath, cfg.Index.Path)
}

// buildAskMessage joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildAskMessage(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct components when server is not running)")
	sessionID := fs.String("session", "", "session ID echoed back in the response")
	showContext := fs.Bool("context", false, "print the retrieved context chunks")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kaiwa ask [flags] <message>")
		os.Exit(1)
	}
	message := buildAskMessage(fs.Args())
	if message == "" {
		fmt.Println("Usage: kaiwa ask [flags] <message>")
		os.Exit(1)
	}

	var resp *models.AskResponse
	if *serverURL != "" {
		res, err := askViaHTTP(*serverURL, &models.AskRequest{Message: message, SessionID: *sessionID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		resp, err = components.Orchestrator.Ask(context.Background(), message, *sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println(resp.Message)
	if *showContext && len(resp.Context) > 0 {
		fmt.Println()
		fmt.Println("# context")
		for _, c := range resp.Context {
			fmt.Printf("- %s\n", utils.Truncate(c, 160))
		}
	}
}

func askViaHTTP(serverURL string, req *models.AskRequest) (*models.AskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	EmbedModel string `json:"embed_model,omitempty"`
	ChatModel  string `json:"chat_model,omitempty"`
	BlockSize  int    `json:"block_size,omitempty"`
	IndexPath  string `json:"index_path,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents      int64                 `json:"documents"`
	IndexRecords   int                   `json:"index_records"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct components)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		docCount, err := components.Storage.CountDocuments(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents:    docCount,
			IndexRecords: components.Index.Len(),
			Config: &statusConfigResponse{
				EmbedModel: cfg.OpenAI.EmbedModel,
				ChatModel:  cfg.OpenAI.ChatModel,
				BlockSize:  cfg.Index.BlockSize,
				IndexPath:  cfg.Index.Path,
			},
		}
		diskBytes, err := storage.DiskUsageBytes(cfg.Index.Path, cfg.Storage.DatabasePath)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:        %d   # stored source documents\n", status.Documents)
		fmt.Printf("index_records:    %d   # embedded chunks in the vector index\n", status.IndexRecords)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes: %d   # index + database on disk\n", *status.DiskUsageBytes)
		}
		if status.Config != nil {
			fmt.Println()
			fmt.Println("# configuration")
			fmt.Printf("embed_model:      %s\n", status.Config.EmbedModel)
			fmt.Printf("chat_model:       %s\n", status.Config.ChatModel)
			if status.Config.BlockSize > 0 {
				fmt.Printf("block_size:       %d\n", status.Config.BlockSize)
			}
			if status.Config.IndexPath != "" {
				fmt.Printf("index_path:       %s\n", status.Config.IndexPath)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Println(`kaiwa - Retrieval-grounded chat over a page export

Usage:
  kaiwa server [flags]          Start the HTTP server
  kaiwa index [flags]           Build the vector index from the page export
  kaiwa ask [flags] <message>   Ask a question grounded in the index
  kaiwa status [flags]          Show index/storage status
  kaiwa version                 Show version
  kaiwa help                    Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kaiwa/config.yaml)
  --debug            Enable debug logging (chunking, packing, gateway calls)

Index Flags:
  --config string    Config file path
  --source string    Page export file (default: index.source_path from config)
  --out string       Index output file (default: index.path from config)
  --cache string     Prior index file to reuse embeddings from

Ask Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --session string   Session ID echoed back in the response
  --context          Print the retrieved context chunks

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  kaiwa index --source data/pages.json
  kaiwa server
  kaiwa ask "what does the export say about onboarding?"
  kaiwa ask --context --session abc123 "next steps"
  kaiwa status --output json`)
}
