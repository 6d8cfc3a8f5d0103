// Command sentinel runs the Drexel Sentinel Discord assistant: a supervisor
// network that routes campus questions to advisor, calendar, and research
// specialists.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	sentinel "github.com/key-r-code/drexel-sentinel"
	"github.com/key-r-code/drexel-sentinel/frontend/discord"
	"github.com/key-r-code/drexel-sentinel/internal/bot"
	"github.com/key-r-code/drexel-sentinel/internal/config"
	"github.com/key-r-code/drexel-sentinel/observer"
	"github.com/key-r-code/drexel-sentinel/provider/gemini"
	"github.com/key-r-code/drexel-sentinel/store/postgres"
	"github.com/key-r-code/drexel-sentinel/store/sqlite"
	"github.com/key-r-code/drexel-sentinel/tools/calendar"
	"github.com/key-r-code/drexel-sentinel/tools/syllabus"
	"github.com/key-r-code/drexel-sentinel/tools/websearch"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 1. Load config
	cfg := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if cfg.Discord.Token == "" {
		log.Fatal("sentinel: discord token not configured")
	}

	// 2. Create providers
	var routerLLM sentinel.Provider = gemini.New(cfg.LLM.APIKey, cfg.LLM.Model)
	var specialistLLM sentinel.Provider = gemini.New(cfg.LLM.APIKey, cfg.LLM.Model)
	var embedding sentinel.EmbeddingProvider = gemini.NewEmbedding(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	// 3. Observer (opt-in via config)
	var inst *observer.Instruments
	var tracer sentinel.Tracer
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		var obsOpts []observer.Option
		if cfg.Observer.Endpoint != "" {
			obsOpts = append(obsOpts, observer.WithEndpointURL(cfg.Observer.Endpoint))
		}
		inst, shutdown, err = observer.Init(ctx, obsOpts...)
		if err != nil {
			log.Fatalf("sentinel: observer init failed: %v", err)
		}
		defer shutdown(context.Background())

		routerLLM = observer.WrapProvider(routerLLM, cfg.LLM.Model, inst)
		specialistLLM = observer.WrapProvider(specialistLLM, cfg.LLM.Model, inst)
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
		tracer = observer.NewTracer()

		logger.Info("sentinel: OTEL observability enabled")
	}

	// 4. Create store
	store := openStore(ctx, cfg, logger)
	defer store.Close()

	// 5. Create frontend
	frontend, err := discord.NewBot(cfg.Discord.Token, discord.WithLogger(logger))
	if err != nil {
		log.Fatalf("sentinel: discord: %v", err)
	}

	// 6. Create tools
	calSvc, err := calendar.NewGoogleService(ctx, cfg.Calendar.CredentialsPath, cfg.Calendar.CalendarID)
	if err != nil {
		log.Fatalf("sentinel: calendar: %v", err)
	}
	calendarTool := wrapTool(calendar.New(calSvc,
		calendar.WithTimezone(cfg.Calendar.Timezone),
		calendar.WithLogger(logger)), inst)
	syllabusTool := wrapTool(syllabus.New(store, embedding, syllabus.WithLogger(logger)), inst)

	var researchTools []sentinel.Tool
	if cfg.Search.BraveAPIKey != "" {
		researchTools = append(researchTools, wrapTool(websearch.New(cfg.Search.BraveAPIKey, websearch.WithLogger(logger)), inst))
	} else {
		logger.Warn("sentinel: brave api key missing, web search disabled")
	}

	memoryOpts := []sentinel.ConversationOption{sentinel.MaxHistory(cfg.Session.MaxHistory)}

	// 7. Build specialist agents
	advisorAgent := sentinel.NewLLMAgent("advisor",
		"Search the course documents for information. Use for grading policies, office hours, exam dates, and anything found in a syllabus.",
		specialistLLM,
		sentinel.WithDynamicPrompt(datedPrompt(advisorPrompt)),
		sentinel.WithTools(syllabusTool),
		sentinel.WithConversationMemory(store, embedding, memoryOpts...),
		sentinel.WithTracer(tracer),
		sentinel.WithLogger(logger),
	)

	calendarAgent := sentinel.NewLLMAgent("calendar",
		"Add or remove calendar events. Use when the user asks to add, remove, or modify calendar events.",
		specialistLLM,
		sentinel.WithDynamicPrompt(datedPrompt(calendarPrompt)),
		sentinel.WithTools(calendarTool),
		sentinel.WithConversationMemory(store, embedding, memoryOpts...),
		sentinel.WithTracer(tracer),
		sentinel.WithLogger(logger),
	)

	researchAgent := sentinel.NewLLMAgent("research",
		"Search the web for information. Use for faculty news, professor bios, weather, and general questions.",
		specialistLLM,
		sentinel.WithDynamicPrompt(datedPrompt(researchPrompt)),
		sentinel.WithTools(researchTools...),
		sentinel.WithConversationMemory(store, embedding, memoryOpts...),
		sentinel.WithTracer(tracer),
		sentinel.WithLogger(logger),
	)

	// 8. Build supervisor network
	network := sentinel.NewNetwork("sentinel", "Drexel campus executive assistant", routerLLM,
		sentinel.WithAgents(advisorAgent, calendarAgent, researchAgent),
		sentinel.WithDynamicPrompt(datedPrompt(supervisorPrompt)),
		sentinel.WithConversationMemory(store, embedding, memoryOpts...),
		sentinel.WithProcessors(
			sentinel.NewInjectionGuard(sentinel.InjectionLogger(logger)),
			sentinel.NewContentGuard(4000).WithContentLogger(logger),
			sentinel.NewMaxToolCallsGuard(5),
		),
		sentinel.WithMaxIter(10),
		sentinel.WithTracer(tracer),
		sentinel.WithLogger(logger),
	)

	// 9. Run
	sessions := sentinel.NewSessions(time.Duration(cfg.Session.IdleMinutes) * time.Minute)
	app := bot.New(frontend, network, store, sessions, bot.WithLogger(logger))
	log.Fatal(app.RunWithSignal())
}

// openStore selects the store backend from config.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) sentinel.VectorStore {
	if cfg.Database.Driver == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("sentinel: postgres: %v", err)
		}
		return postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
	}
	return sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
}

// wrapTool wraps a tool with observer instrumentation if inst is non-nil.
func wrapTool(t sentinel.Tool, inst *observer.Instruments) sentinel.Tool {
	if inst == nil {
		return t
	}
	return observer.WrapTool(t, inst)
}
