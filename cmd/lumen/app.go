package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lumen-agent/internal/adapter/embedding"
	"lumen-agent/internal/adapter/gateway"
	"lumen-agent/internal/adapter/llm"
	"lumen-agent/internal/adapter/skill"
	"lumen-agent/internal/adapter/store"
	"lumen-agent/internal/adapter/tokenizer"
	"lumen-agent/internal/adapter/tool"
	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/metrics"
	"lumen-agent/internal/infra/tracer"
	"lumen-agent/internal/usecase"
	"lumen-agent/internal/usecase/eventbus"
	"lumen-agent/internal/usecase/multiagent"
	"lumen-agent/internal/usecase/scheduling"
	"lumen-agent/internal/usecase/skills"
	"lumen-agent/internal/usecase/streamfilter"
	"lumen-agent/internal/usecase/toolcall"
)

// app is the wired runtime shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	bus      *eventbus.Bus

	skills   *skill.FileRegistry // nil when skills are disabled
	index    *embedding.SkillIndex
	matcher  *skills.Matcher
	router   *multiagent.TaskRouter
	executor *tool.Executor
	files    *tool.LocalFileCreator
	agent    *usecase.Agent

	closers []func() error
}

// buildApp wires every component from cfg. The returned app must be closed.
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Logger
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a.logger = log
	a.closers = append(a.closers, closeLog)

	// 2. Tracer
	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracer(sctx)
	})

	// 3. Metrics
	a.registry = prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.metrics = metrics.New(a.registry)
	}

	// 4. Event bus
	a.bus = eventbus.New(eventbus.Options{
		BatchSize:    cfg.Events.BatchSize,
		SnapshotSize: cfg.Events.SnapshotSize,
		Scheduler:    eventbus.TimerScheduler{Interval: cfg.Events.FlushInterval},
		Logger:       log,
		Metrics:      a.metrics,
	})
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	// 5. Outcome persistence
	var stats domain.StatsStore
	if cfg.Store.Enabled {
		st, err := store.NewSQLiteStatsStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		stats = st
	}

	// 6. Skills
	if cfg.Skills.Enabled {
		if err := a.buildSkills(ctx, stats); err != nil {
			return nil, err
		}
	}

	// 7. Router
	profiles := profilesFromConfig(cfg.Router.Profiles)
	if len(profiles) == 0 {
		profiles = multiagent.DefaultProfiles()
	}
	reg, err := multiagent.NewRegistry(profiles, log)
	if err != nil {
		return nil, fmt.Errorf("register profiles: %w", err)
	}
	deps := multiagent.RouterDeps{Registry: reg, Store: stats, Logger: log, Metrics: a.metrics}
	if a.matcher != nil {
		deps.Skills = a.matcher
	}
	a.router = multiagent.NewTaskRouter(deps, multiagent.RouterOptions{
		KeywordPoints: cfg.Router.KeywordPoints,
		PatternBonus:  cfg.Router.PatternBonus,
		MaxSkills:     cfg.Router.MaxSkills,
	})
	if err := a.router.LoadScores(ctx); err != nil {
		log.Warn("load agent scores", "error", err)
	}

	// 8. Tools
	a.files, err = tool.NewLocalFileCreator(cfg.Tools.SandboxDir, cfg.Tools.MaxFileBytes, log)
	if err != nil {
		return nil, fmt.Errorf("init file sandbox: %w", err)
	}
	a.executor, err = tool.NewExecutor(tool.Options{
		Calculator: tool.NewCalculator(cfg.Tools.CalcTimeout),
		Files:      a.files,
		Limiter:    tool.NewRateLimiter(cfg.Tools.RatePerMin, cfg.Tools.Burst),
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("init tools: %w", err)
	}

	// 9. Prompt assembly
	cb := usecase.NewContextBuilder(cfg.Agent.Persona, cfg.Agent.MaxHistoryMessages)
	if cfg.Agent.ContextTokens > 0 {
		counter := tokenizer.NewCounter(cfg.Agent.TokenEncoding, log)
		cb.SetGuard(usecase.NewContextGuard(cfg.Agent.ContextTokens, counter, log))
	}
	var hints *usecase.IntentHints
	if cfg.Agent.IntentHints {
		hints = usecase.NewIntentHints(usecase.DefaultIntentTriggers()...)
	}

	// 10. Generator and agent
	gen, err := llm.NewGenerator(cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	general, _ := reg.Get(domain.GeneralAgentID)
	agentDeps := usecase.AgentDeps{
		Generator: gen,
		Tools:     a.executor,
		Router:    a.router,
		Parser: toolcall.NewFromSchemas(a.executor.Schemas(), toolcall.Options{
			RepairJSON: cfg.Tools.RepairJSON,
			Logger:     log,
		}),
		ContextBuilder: cb,
		Hints:          hints,
		Bus:            a.bus,
		Logger:         log,
		Metrics:        a.metrics,
		DefaultProfile: general,
		MaxIterations:  cfg.Agent.MaxIterations,
		ParallelTools:  cfg.Agent.ParallelTools,
		Markers:        markersFromConfig(cfg.Agent.ReasoningMarkers),
		Options: domain.GenerateOptions{
			Temperature: cfg.Agent.Temperature,
			MaxTokens:   cfg.Agent.MaxTokens,
		},
		FallbackMessage: cfg.Agent.FallbackMessage,
		TurnTimeout:     cfg.Agent.TurnTimeout,
	}
	if a.matcher != nil {
		agentDeps.Skills = a.matcher
	}
	a.agent = usecase.NewAgent(agentDeps)

	log.Info("runtime ready",
		"llm", gen.Name(),
		"profiles", reg.Len(),
		"skills", len(a.indexedSkills()),
		"store", cfg.Store.Enabled,
	)
	return a, nil
}

func (a *app) buildSkills(ctx context.Context, stats domain.StatsStore) error {
	cfg := a.cfg.Skills
	a.skills = skill.NewFileRegistry(cfg.Dir, a.logger)

	deps := skills.Deps{Registry: a.skills, Store: stats, Logger: a.logger}
	if cfg.Similarity.Enabled {
		provider, err := embedding.NewProvider(cfg.Similarity, cfg.CacheSize*8)
		if err != nil {
			return err
		}
		a.index = embedding.NewSkillIndex(provider, a.skills, a.logger)
		deps.Similarity = a.index
	}
	a.matcher = skills.NewMatcher(deps, skills.Options{
		MaxPerQuery:          cfg.MaxPerQuery,
		CacheSize:            cfg.CacheSize,
		PreferenceConfidence: cfg.PreferenceConfidence,
		MinWordLength:        cfg.MinWordLength,
		SimilarityMinScore:   cfg.Similarity.MinScore,
	})

	// A missing directory leaves the matcher empty; skills are optional.
	if err := a.matcher.Refresh(ctx); err != nil {
		a.logger.Warn("skill registry unavailable", "dir", cfg.Dir, "error", err)
	}
	if err := a.matcher.LoadUsage(ctx); err != nil {
		a.logger.Warn("load skill usage", "error", err)
	}
	return nil
}

// watchSkills reloads the matcher and similarity index on skill file
// changes until ctx is done.
func (a *app) watchSkills(ctx context.Context) {
	if a.skills == nil || !a.cfg.Skills.Watch {
		return
	}
	err := a.skills.Watch(ctx, 0, func() {
		if err := a.reloadSkills(ctx); err != nil {
			a.logger.Warn("reload skills", "error", err)
		}
	})
	if err != nil {
		a.logger.Warn("watch skills", "dir", a.skills.Dir(), "error", err)
		return
	}
	a.closers = append(a.closers, a.skills.Close)
}

func (a *app) reloadSkills(ctx context.Context) error {
	if err := a.matcher.Refresh(ctx); err != nil {
		return err
	}
	if a.index != nil {
		return a.index.Rebuild(ctx)
	}
	return nil
}

// startScheduler runs the configured housekeeping jobs until ctx is done.
// sessions is nil outside the gateway.
func (a *app) startScheduler(ctx context.Context, sessions *gateway.Sessions) error {
	s := scheduling.NewScheduler(0, a.logger)
	if a.matcher != nil && a.cfg.Skills.ReloadSchedule != "" {
		s.RegisterAction(scheduling.ActionSkillsReload, a.reloadSkills)
		if err := s.AddTask(scheduling.Task{
			Name:     "skills-reload",
			Schedule: a.cfg.Skills.ReloadSchedule,
			Action:   scheduling.ActionSkillsReload,
		}); err != nil {
			return err
		}
	}
	if ttl := a.cfg.Gateway.SessionTTL; sessions != nil && ttl > 0 && a.cfg.Gateway.ReapSchedule != "" {
		s.RegisterAction(scheduling.ActionSessionReap, func(context.Context) error {
			if n := sessions.Reap(ttl); n > 0 {
				a.logger.Info("idle sessions dropped", "count", n, "remaining", sessions.Len())
			}
			return nil
		})
		if err := s.AddTask(scheduling.Task{
			Name:     "session-reap",
			Schedule: a.cfg.Gateway.ReapSchedule,
			Action:   scheduling.ActionSessionReap,
		}); err != nil {
			return err
		}
	}
	if len(s.Tasks()) == 0 {
		return nil
	}
	s.Start(ctx)
	a.closers = append(a.closers, s.Stop)
	return nil
}

// toolContext is the host capability set offered to each conversation.
// Documents, code execution and image analysis have no local backend yet.
func (a *app) toolContext(attachments domain.AttachmentStore) domain.ToolContext {
	return domain.ToolContext{Files: a.files, Attachments: attachments}
}

func (a *app) indexedSkills() []domain.SkillMetadata {
	if a.matcher == nil {
		return nil
	}
	return a.matcher.Indexed()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func profilesFromConfig(cfgs []config.ProfileConfig) []domain.AgentProfile {
	if len(cfgs) == 0 {
		return nil
	}
	out := make([]domain.AgentProfile, 0, len(cfgs))
	for _, p := range cfgs {
		out = append(out, domain.AgentProfile{
			ID:              p.ID,
			Name:            p.Name,
			Description:     p.Description,
			Capabilities:    p.Capabilities,
			Pattern:         p.Pattern,
			SystemPrompt:    p.SystemPrompt,
			Priority:        p.Priority,
			PreferredSkills: p.PreferredSkills,
		})
	}
	return out
}

func markersFromConfig(cfgs []config.MarkerConfig) []streamfilter.MarkerPair {
	out := make([]streamfilter.MarkerPair, 0, len(cfgs))
	for _, m := range cfgs {
		out = append(out, streamfilter.MarkerPair{Open: m.Open, Close: m.Close})
	}
	return out
}
