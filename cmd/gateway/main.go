package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/riverrun/voicegateway/internal/asr"
	"github.com/riverrun/voicegateway/internal/audio"
	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/config"
	"github.com/riverrun/voicegateway/internal/env"
	"github.com/riverrun/voicegateway/internal/llm"
	"github.com/riverrun/voicegateway/internal/session"
	"github.com/riverrun/voicegateway/internal/trace"
	"github.com/riverrun/voicegateway/internal/tts"
	"github.com/riverrun/voicegateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(env.Str("GATEWAY_CONFIG", "gateway.yaml"))
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	modules := buildModuleRegistry(cfg)
	sessions := session.NewRegistry()

	traceStore := openTraceStore()
	if traceStore != nil {
		defer traceStore.Close()
	}

	handler := ws.NewHandler(ws.HandlerConfig{
		Sessions:   sessions,
		Modules:    modules,
		Config:     cfg,
		TraceStore: traceStore,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		modules:    modules,
		sessions:   sessions,
		cfg:        cfg,
		traceStore: traceStore,
		wsHandler:  handler,
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go awaitShutdown(srv)

	slog.Info("gateway starting", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
}

// buildModuleRegistry registers every VAD/ASR/LLM/TTS backend this gateway
// can reach given the environment, with the first registered backend per
// role becoming active by default (capability.Registry's rule).
func buildModuleRegistry(cfg *config.Config) *capability.Registry {
	reg := capability.NewRegistry()

	vadCfg := audio.DefaultVADConfig()
	if threshold := env.Str("VAD_SPEECH_THRESHOLD_DB", ""); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			vadCfg.SpeechThresholdDB = v
		}
	}
	reg.RegisterVAD("energy", audio.NewEnergyVAD(vadCfg))

	registerASRBackends(reg)
	registerLLMBackends(reg)
	registerTTSBackends(reg)

	for role, mod := range cfg.Modules {
		if mod.AdapterType == "" {
			continue
		}
		if err := reg.SetActive(role, mod.AdapterType); err != nil {
			slog.Debug("module config names an unregistered adapter, keeping default active backend", "role", role, "adapter_type", mod.AdapterType, "error", err)
		}
	}
	return reg
}

func registerASRBackends(reg *capability.Registry) {
	whisperURL := env.Str("WHISPER_SERVER_URL", "")
	if whisperURL == "" {
		return
	}
	reg.RegisterASR("whisper.cpp", asr.New(whisperURL, 50))
}

func registerLLMBackends(reg *capability.Registry) {
	ollamaURL := env.Str("OLLAMA_URL", "http://localhost:11434")
	ollamaModel := env.Str("OLLAMA_MODEL", "llama3.2:3b")
	maxTokens := 2048

	reg.RegisterLLM("ollama", llm.NewOllamaClient(ollamaURL, ollamaModel, "", maxTokens, 50))

	if openaiKey := env.Str("OPENAI_API_KEY", ""); openaiKey != "" {
		provider := agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(env.Str("OPENAI_URL", "https://api.openai.com") + "/v1/"),
			APIKey:       param.NewOpt(openaiKey),
			UseResponses: param.NewOpt(true),
		})
		reg.RegisterLLM("openai", llm.NewAgentClient(provider, env.Str("OPENAI_MODEL", "gpt-4.1-nano"), maxTokens))
	}

	if anthropicKey := env.Str("ANTHROPIC_API_KEY", ""); anthropicKey != "" {
		reg.RegisterLLM("anthropic", llm.NewAnthropicClient(
			anthropicKey,
			env.Str("ANTHROPIC_URL", "https://api.anthropic.com"),
			env.Str("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			maxTokens, 50,
		))
	}

	if codexKey := env.Str("OPENAI_COMPLETIONS_API_KEY", ""); codexKey != "" {
		reg.RegisterLLM("openai-completions", llm.NewOpenAICompletionsClient(
			codexKey, env.Str("OPENAI_URL", "https://api.openai.com"), env.Str("OPENAI_COMPLETIONS_MODEL", "gpt-3.5-turbo-instruct"),
			maxTokens, 50,
		))
	}
}

func registerTTSBackends(reg *capability.Registry) {
	piperURL := env.Str("PIPER_URL", "")
	if piperURL == "" {
		return
	}
	reg.RegisterTTS("fast", tts.NewPiperClient(piperURL, "fast", 50))
	reg.RegisterTTS("quality", tts.NewPiperClient(piperURL, "quality", 50))
}

func openTraceStore() *trace.Store {
	dsn := env.Str("TRACE_DB_DSN", "")
	if dsn == "" {
		return nil
	}
	store, err := trace.Open(dsn)
	if err != nil {
		slog.Error("trace store open failed", "error", err)
		return nil
	}
	slog.Info("tracing enabled", "dsn", dsn)
	return store
}
