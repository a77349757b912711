// Command vocalis runs the voice-agent runtime: the WebSocket media-stream
// endpoint, the admin HTTP surface, and the observability endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vocalis-ai/vocalis/internal/call"
	"github.com/vocalis-ai/vocalis/internal/config"
	"github.com/vocalis-ai/vocalis/internal/health"
	"github.com/vocalis-ai/vocalis/internal/httpapi"
	"github.com/vocalis-ai/vocalis/internal/observe"
	"github.com/vocalis-ai/vocalis/internal/resilience"
	"github.com/vocalis-ai/vocalis/internal/transport"
	"github.com/vocalis-ai/vocalis/internal/usecase"
	cacheredis "github.com/vocalis-ai/vocalis/pkg/cache/redis"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm/groq"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt/deepgram"
	"github.com/vocalis-ai/vocalis/pkg/provider/telephony"
	"github.com/vocalis-ai/vocalis/pkg/provider/telephony/telnyx"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts/elevenlabs"
	"github.com/vocalis-ai/vocalis/pkg/provider/vad"
	"github.com/vocalis-ai/vocalis/pkg/provider/vad/energy"
	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/store/cached"
	"github.com/vocalis-ai/vocalis/pkg/store/memstore"
	"github.com/vocalis-ai/vocalis/pkg/store/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vocalis"})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown failed", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// --- Repositories ---
	var (
		callRepo       store.CallRepository
		agentRepo      store.AgentRepository
		transcriptRepo store.TranscriptRepository
		readyChecks    []health.Checker
	)
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		callRepo, agentRepo, transcriptRepo = pg.Calls(), pg.Agents(), pg.Transcripts()
		readyChecks = append(readyChecks, health.Checker{Name: "database", Check: pg.Ping})
	} else {
		callRepo = memstore.NewCalls()
		agentRepo = memstore.NewAgents()
		transcriptRepo = memstore.NewTranscripts()
	}

	// --- Cache ---
	// Agent configs are read on every session start; a short-TTL cache in
	// front of the repository removes the hot-path query.
	if cfg.Cache.RedisAddr != "" {
		rc := cacheredis.New(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		defer rc.Close()
		agentRepo = cached.NewAgents(agentRepo, rc, 0)
	}

	// --- Providers ---
	ports, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	// --- HTTP surface ---
	mux := http.NewServeMux()

	health.New(readyChecks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	httpapi.New(agentRepo, callRepo, transcriptRepo, cfg.Server.APIKey).Register(mux)

	sessionFactory := func(output func(ctx context.Context, chunk []byte) error) *call.Orchestrator {
		return call.New(call.Deps{
			StartCall:      &usecase.StartCall{Calls: callRepo, Agents: agentRepo},
			EndCall:        &usecase.EndCall{Calls: callRepo, Telephony: ports.Telephony},
			ProcessAudio:   &usecase.ProcessAudio{STT: ports.STT},
			Generate:       &usecase.GenerateResponse{LLM: ports.LLM, TTS: ports.TTS},
			SynthesizeText: &usecase.SynthesizeText{TTS: ports.TTS},
			STT:            ports.STT,
			LLM:            ports.LLM,
			TTS:            ports.TTS,
			VAD:            ports.VAD,
			Transcripts:    transcriptRepo,
		},
			call.WithOutputCallback(output),
			call.WithMetrics(metrics),
			call.WithMaxDuration(time.Duration(cfg.Session.MaxDurationS)*time.Second),
			call.WithIdleTimeout(time.Duration(cfg.Session.IdleTimeoutS)*time.Second),
		)
	}
	transport.NewHandler(agentRepo, sessionFactory).Register(mux)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics, mux),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// providers holds one interface value per port slot. Nil means the port is
// not configured; the orchestrator runs without a pipeline in that case.
type providers struct {
	LLM       llm.Provider
	STT       stt.Provider
	TTS       tts.Provider
	VAD       vad.Engine
	Telephony telephony.Provider
}

// buildProviders constructs the port implementations selected by the config,
// wrapping each in a failover adapter when a fallback is declared.
func buildProviders(cfg *config.Config) (*providers, error) {
	ports := &providers{
		VAD:       energy.New(),
		Telephony: telephony.Noop{},
	}

	if e := cfg.Providers.LLM; e.Name != "" {
		primary, err := buildLLM(e)
		if err != nil {
			return nil, err
		}
		ports.LLM = primary
		if f := cfg.Providers.Fallbacks.LLM; f.Name != "" {
			fallback, err := buildLLM(f)
			if err != nil {
				return nil, err
			}
			ports.LLM = resilience.NewLLMFailover(primary, fallback, 0)
		}
	}

	if e := cfg.Providers.STT; e.Name != "" {
		primary, err := buildSTT(e)
		if err != nil {
			return nil, err
		}
		ports.STT = primary
		if f := cfg.Providers.Fallbacks.STT; f.Name != "" {
			fallback, err := buildSTT(f)
			if err != nil {
				return nil, err
			}
			ports.STT = resilience.NewSTTFailover(primary, fallback, 0)
		}
	}

	if e := cfg.Providers.TTS; e.Name != "" {
		primary, err := buildTTS(e)
		if err != nil {
			return nil, err
		}
		ports.TTS = primary
		if f := cfg.Providers.Fallbacks.TTS; f.Name != "" {
			fallback, err := buildTTS(f)
			if err != nil {
				return nil, err
			}
			ports.TTS = resilience.NewTTSFailover(primary, fallback, 0)
		}
	}

	if e := cfg.Providers.Telephony; e.Name == "telnyx" {
		t, err := telnyx.New(e.APIKey)
		if err != nil {
			return nil, err
		}
		ports.Telephony = t
	}

	return ports, nil
}

func buildLLM(e config.ProviderEntry) (llm.Provider, error) {
	opts := []groq.Option{}
	if e.BaseURL != "" {
		opts = append(opts, groq.WithBaseURL(e.BaseURL))
	}
	if e.Model != "" {
		opts = append(opts, groq.WithModel(e.Model))
	}
	return groq.New(e.APIKey, opts...)
}

func buildSTT(e config.ProviderEntry) (stt.Provider, error) {
	opts := []deepgram.Option{}
	if e.Model != "" {
		opts = append(opts, deepgram.WithModel(e.Model))
	}
	return deepgram.New(e.APIKey, opts...)
}

func buildTTS(e config.ProviderEntry) (tts.Provider, error) {
	opts := []elevenlabs.Option{}
	if e.Model != "" {
		opts = append(opts, elevenlabs.WithModel(e.Model))
	}
	return elevenlabs.New(e.APIKey, opts...)
}
