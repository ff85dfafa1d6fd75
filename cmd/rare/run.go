package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/rare"
	"github.com/hupe1980/rare/agent"
	"github.com/hupe1980/rare/cognitive"
	"github.com/hupe1980/rare/config"
	"github.com/hupe1980/rare/contextstore"
	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/memory"
	"github.com/hupe1980/rare/metrics"
	"github.com/hupe1980/rare/model"
	"github.com/hupe1980/rare/model/anthropic"
	"github.com/hupe1980/rare/model/openai"
	"github.com/hupe1980/rare/storage/sqlite"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the kernel and feed stdin lines as user input",
		Long: `Run the kernel with the ai, vault, builder and filing engines.

Every stdin line is processed as one user input and the resulting decision is
printed as a JSON line, followed by the engine results. Lines starting with a
slash are commands:

  /grant     unlock the vault for the configured grant TTL
  /revoke    lock the vault
  /analyze   print the current pattern analysis

Example:
  echo "build me a delivery app" | rare run --config rare.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func run(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.NewSlogLogger(level, cfg.Log.Format, cfg.Log.AddSource).WithComponent("rare")

	persist, closePersist, err := openPersistence(cfg.Store)
	if err != nil {
		return err
	}
	defer closePersist()

	llm, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	r := rare.New(func(o *rare.Options) {
		o.Persistence = persist
		o.Logger = logger
		o.Metrics = m
		o.AmbientInterval = cfg.Kernel.AmbientInterval
		o.DefaultAppState = cfg.Cognitive.DefaultAppState
		o.StopTimeout = cfg.Kernel.StopTimeout
		o.Store = append(o.Store, func(so *contextstore.Options) {
			so.PersistTimeout = cfg.Store.PersistTimeout
		})
		o.Loop = append(o.Loop, func(lo *cognitive.Options) {
			lo.HistoryLimit = cfg.Cognitive.DecisionHistoryLimit
			lo.AnalysisInterval = cfg.Kernel.AnalysisInterval
			lo.IntentClassifier = cognitive.NewPatternIntentClassifier(func(co *cognitive.IntentOptions) {
				co.CacheSize = cfg.Cognitive.IntentCacheSize
			})
		})
	})

	vault := agent.NewVaultAgent(func(o *agent.VaultAgentOptions) {
		o.GrantTTL = cfg.Vault.GrantTTL
		o.Logger = logger
	})
	engines := []core.Engine{
		agent.NewChatAgent(llm, func(o *agent.ChatAgentOptions) { o.Logger = logger }),
		vault,
		agent.NewBuilderAgent(llm, logger),
		agent.NewFilingAgent(logger),
	}
	for _, e := range engines {
		if err := r.RegisterEngine(ctx, e); err != nil {
			return err
		}
	}

	w := &jsonWriter{enc: json.NewEncoder(out)}
	r.Bus().On("agent:*", func(_ context.Context, ev core.Event) error {
		switch ev.Data.(type) {
		case core.AgentResult, core.AgentFailure:
			return w.write(map[string]any{"event": ev.Type, "data": ev.Data})
		}
		return nil
	})

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() {
		defer logger.StartTimer("shutdown")()
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Kernel.StopTimeout)
		defer cancel()
		if err := r.Stop(stopCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	lines := scanLines(in)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "reason", context.Cause(ctx))
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, r, vault, w, line); err != nil {
				return err
			}
		}
	}
}

func handleLine(ctx context.Context, r *rare.RARE, vault *agent.VaultAgent, w *jsonWriter, line string) error {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return nil
	case "/grant":
		return w.write(map[string]any{"grant": vault.Grant(0)})
	case "/revoke":
		vault.Revoke()
		return w.write(map[string]any{"vault": "locked"})
	case "/analyze":
		return w.write(map[string]any{"analysis": r.Loop().AnalyzePatterns(ctx)})
	}
	d := r.ProcessInput(ctx, core.Input{Text: line, Source: "stdin"})
	return w.write(map[string]any{"decision": d})
}

// scanLines feeds in line by line until EOF; the channel is then closed.
func scanLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

type jsonWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *jsonWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func openPersistence(cfg config.StoreConfig) (core.PersistenceStore, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	case config.DriverMemory, "":
		return memory.NewInMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderMock, "":
		return model.NewMockModel("mock", "mock"), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
