// codeswarm is a multi-agent code generation CLI. Four specialist agents
// (architecture, implementation, security, testing) backed by different
// model providers collaborate on a task, their outputs are scored against
// a quality gate, and qualifying results are stored as reusable patterns
// that seed future runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"codeswarm/pkg/agent"
	"codeswarm/pkg/agent/llm"
	agentmetrics "codeswarm/pkg/agent/middleware/metrics"
	"codeswarm/pkg/config"
	"codeswarm/pkg/demo"
	"codeswarm/pkg/docs"
	"codeswarm/pkg/eval"
	"codeswarm/pkg/eventlog"
	"codeswarm/pkg/learner"
	"codeswarm/pkg/limiter"
	"codeswarm/pkg/logx"
	"codeswarm/pkg/metrics"
	"codeswarm/pkg/output"
	"codeswarm/pkg/patterns"
	"codeswarm/pkg/swarm"
	"codeswarm/pkg/workflow"
)

const (
	eventLogDirName  = "events"
	runTimestampFmt  = "20060102_150405"
	costReportWindow = 24 * time.Hour
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "demo":
		err = runDemo(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "configure":
		err = runConfigure(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `codeswarm - multi-agent code generation

Usage:
  codeswarm generate [flags] <task description>   run the generation pipeline
  codeswarm demo [flags]                          play the scripted walkthrough
  codeswarm history [flags]                       print recent run events as JSON
  codeswarm status [flags]                        show configuration and pattern counts
  codeswarm configure [flags]                     update agent and workflow settings

Run 'codeswarm <command> -h' for command flags.
`)
}

// loadProject initializes the global config from projectDir (default: the
// current directory) and stamps a fresh session ID.
func loadProject(projectDir string) (config.Config, error) {
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to determine working directory: %w", err)
		}
		projectDir = wd
	}
	if err := config.LoadConfig(projectDir); err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	config.SetSessionID(uuid.New().String())
	return config.GetConfig()
}

// services bundles everything a pipeline run needs so it can be torn down
// in one place.
type services struct {
	store         *patterns.Store
	events        *eventlog.Writer
	learn         *learner.Learner
	rateLimiter   *limiter.Limiter
	metricsServer *metrics.Server
	pipeline      *workflow.Pipeline
	logger        *logx.Logger
}

// buildServices assembles the pattern store, learner, event log, LLM
// clients, and pipeline from the loaded config.
func buildServices(cfg config.Config) (*services, error) {
	logger := logx.NewLogger("codeswarm")

	swarmDir, err := config.GetProjectSwarmDir()
	if err != nil {
		return nil, err
	}

	store, err := patterns.NewStore(filepath.Join(swarmDir, config.DatabaseFilename), cfg.Workflow.QualityThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}

	learn, err := learner.New(swarmDir, cfg.Workflow.QualityThreshold)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load learner state: %w", err)
	}

	events, err := eventlog.NewWriter(filepath.Join(swarmDir, eventLogDirName))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	svc := &services{
		store:  store,
		events: events,
		learn:  learn,
		logger: logger,
	}

	var recorder agentmetrics.Recorder
	if cfg.Metrics != nil && cfg.Metrics.Enabled && cfg.Metrics.Exporter == "prometheus" {
		recorder = agentmetrics.NewPrometheusRecorder()
		svc.metricsServer = metrics.NewServer(cfg.Metrics.ListenAddr)
		svc.metricsServer.Start()
		logger.Info("📊 Metrics endpoint listening on %s", cfg.Metrics.ListenAddr)
	}

	svc.rateLimiter = limiter.NewLimiter(&cfg)
	factory := agent.NewClientFactory(cfg, recorder, svc.rateLimiter)
	scorer := eval.NewScorer(&cfg, logger)

	agents, err := buildAgents(factory, scorer, cfg)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.pipeline = workflow.New(agents, store, docs.NewService(&cfg), learn, events, cfg.Workflow)
	return svc, nil
}

// buildAgents creates one middleware-wrapped client per agent role. The
// vision agent is optional and only built when a vision model is configured.
func buildAgents(factory *agent.ClientFactory, scorer eval.Scorer, cfg config.Config) (workflow.Agents, error) {
	mk := func(role string, mc config.AgentModelConfig) (llm.LLMClient, error) {
		runInfo := agentmetrics.StaticRunInfo{RunID: cfg.SessionID, Agent: role, Stage: role}
		client, err := factory.CreateClient(mc.Model, runInfo, logx.NewLogger(role))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client (%s): %w", role, mc.Model, err)
		}
		return client, nil
	}

	ac := cfg.Agents
	archClient, err := mk(swarm.RoleArchitecture, ac.Architecture)
	if err != nil {
		return workflow.Agents{}, err
	}
	implClient, err := mk(swarm.RoleImplementation, ac.Implementation)
	if err != nil {
		return workflow.Agents{}, err
	}
	secClient, err := mk(swarm.RoleSecurity, ac.Security)
	if err != nil {
		return workflow.Agents{}, err
	}
	testClient, err := mk(swarm.RoleTesting, ac.Testing)
	if err != nil {
		return workflow.Agents{}, err
	}

	agents := workflow.Agents{
		Architecture:   swarm.NewArchitectureAgent(archClient, scorer, ac.Architecture, cfg.Workflow),
		Implementation: swarm.NewImplementationAgent(implClient, scorer, ac.Implementation, cfg.Workflow),
		Security:       swarm.NewSecurityAgent(secClient, scorer, ac.Security, cfg.Workflow),
		Testing:        swarm.NewTestingAgent(testClient, scorer, ac.Testing, cfg.Workflow),
	}

	if ac.Vision.Model != "" {
		visionClient, err := mk(swarm.RoleVision, ac.Vision)
		if err != nil {
			return workflow.Agents{}, err
		}
		agents.Vision = swarm.NewVisionAgent(visionClient, ac.Vision)
	}

	return agents, nil
}

// Close releases everything buildServices opened.
func (s *services) Close() {
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warn("Failed to stop metrics server: %v", err)
		}
		cancel()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("Failed to close event log: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close pattern store: %v", err)
		}
	}
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var projectDir, imagePath, userID string
	var offline bool
	fs.StringVar(&projectDir, "project", "", "Project directory (default: current directory)")
	fs.StringVar(&imagePath, "image", "", "Screenshot or mockup image to analyze before generating")
	fs.StringVar(&userID, "user", "", "Owner recorded on stored patterns")
	fs.BoolVar(&offline, "offline", false, "Use local Ollama models instead of cloud APIs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	task := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if task == "" {
		return fmt.Errorf("usage: codeswarm generate [flags] <task description>")
	}

	cfg, err := loadProject(projectDir)
	if err != nil {
		return err
	}
	if offline {
		if err := config.SetOperatingMode(config.OperatingModeOffline); err != nil {
			return err
		}
		cfg, err = config.GetConfig()
		if err != nil {
			return err
		}
	}
	if userID == "" && cfg.Workflow != nil {
		userID = cfg.Workflow.UserID
	}

	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := svc.pipeline.Run(ctx, workflow.Request{
		Task:      task,
		ImagePath: imagePath,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(state.Synthesis)

	writer := output.NewWriter(config.GetProjectDir())
	runDir, saved, err := writer.SaveCodeRun(time.Now().Format(runTimestampFmt), state.Outputs)
	if err != nil {
		return fmt.Errorf("failed to save run artifacts: %w", err)
	}

	fmt.Printf("%s Average score %.1f/100 in %s\n",
		color.GreenString("✓"), state.AvgScore, state.Duration().Round(time.Second))
	if state.PatternID != "" {
		fmt.Printf("%s Stored %s for future retrieval\n", color.GreenString("✓"), state.PatternID)
	} else {
		fmt.Printf("%s Below quality threshold, not stored as a pattern\n", color.YellowString("•"))
	}
	fmt.Printf("%s Saved %d files to %s\n", color.GreenString("✓"), len(saved), runDir)
	return nil
}

func runDemo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	var scenarioPath, outDir string
	var fast, noSave bool
	fs.StringVar(&scenarioPath, "scenario", "", "Scenario YAML file (default: built-in scenario)")
	fs.StringVar(&outDir, "out", ".", "Directory for demo artifacts")
	fs.BoolVar(&fast, "fast", false, "Skip pauses and typing delays")
	fs.BoolVar(&noSave, "no-save", false, "Do not write demo artifacts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scenario := demo.DefaultScenario()
	if scenarioPath != "" {
		loaded, err := demo.LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
		scenario = loaded
	}

	var writer *output.Writer
	if !noSave {
		writer = output.NewWriter(outDir)
	}
	return demo.NewRunner(scenario, writer, fast).Run()
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var projectDir string
	var limit int
	fs.StringVar(&projectDir, "project", "", "Project directory (default: current directory)")
	fs.IntVar(&limit, "limit", 20, "Maximum number of events to print")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := loadProject(projectDir); err != nil {
		return err
	}
	swarmDir, err := config.GetProjectSwarmDir()
	if err != nil {
		return err
	}

	events, err := eventlog.RecentEvents(filepath.Join(swarmDir, eventLogDirName), limit)
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	var projectDir string
	fs.StringVar(&projectDir, "project", "", "Project directory (default: current directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadProject(projectDir)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("CodeSwarm")
	fmt.Printf("  Project:   %s\n", config.GetProjectDir())
	fmt.Printf("  Mode:      %s\n", cfg.OperatingMode)
	if cfg.Workflow != nil {
		fmt.Printf("  Quality:   %.1f/100 threshold, %d iterations max\n",
			cfg.Workflow.QualityThreshold, cfg.Workflow.MaxIterations)
		fmt.Printf("  Retrieval: %d patterns per run, scrape docs: %t\n",
			cfg.Workflow.RetrievalLimit, cfg.Workflow.ScrapeDocs)
	}

	fmt.Println()
	bold.Println("Agents")
	for _, row := range []struct {
		role string
		mc   config.AgentModelConfig
	}{
		{swarm.RoleArchitecture, cfg.Agents.Architecture},
		{swarm.RoleImplementation, cfg.Agents.Implementation},
		{swarm.RoleSecurity, cfg.Agents.Security},
		{swarm.RoleTesting, cfg.Agents.Testing},
		{swarm.RoleVision, cfg.Agents.Vision},
	} {
		if row.mc.Model == "" {
			continue
		}
		fmt.Printf("  %-14s %-20s %s\n", row.role, row.mc.Model, modelStatus(row.mc.Model))
	}

	fmt.Println()
	bold.Println("Patterns")
	swarmDir, err := config.GetProjectSwarmDir()
	if err != nil {
		return err
	}
	store, err := patterns.NewStore(filepath.Join(swarmDir, config.DatabaseFilename), cfg.Workflow.QualityThreshold)
	if err != nil {
		return fmt.Errorf("failed to open pattern store: %w", err)
	}
	defer store.Close()
	count, err := store.Count()
	if err != nil {
		return err
	}
	fmt.Printf("  Stored:    %d\n", count)

	learn, err := learner.New(swarmDir, cfg.Workflow.QualityThreshold)
	if err == nil {
		fmt.Printf("  Runs:      %d recorded, %d strategies extracted\n",
			learn.TotalRuns(), len(learn.Strategies()))
	}

	if cfg.Metrics != nil && cfg.Metrics.PrometheusURL != "" {
		if cost := queryRecentCost(cfg.Metrics.PrometheusURL); cost >= 0 {
			fmt.Printf("  Spend:     $%.4f over the last %s\n", cost, costReportWindow)
		}
	}
	return nil
}

// modelStatus reports whether the model's provider has a usable API key.
func modelStatus(model string) string {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return color.RedString("unknown provider")
	}
	if provider == config.ProviderOllama || config.IsOfflineMode() {
		return color.GreenString("local")
	}
	if _, err := config.GetAPIKeyForProvider(provider); err != nil {
		return color.YellowString("no API key (%s)", provider)
	}
	return color.GreenString("ready (%s)", provider)
}

// queryRecentCost returns total LLM spend over costReportWindow, or -1 when
// Prometheus is unreachable.
func queryRecentCost(prometheusURL string) float64 {
	qs, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return -1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cost, err := qs.GetTotalCost(ctx, costReportWindow)
	if err != nil {
		return -1
	}
	return cost
}

func runConfigure(args []string) error {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	var projectDir string
	var qualityThreshold float64
	var maxIterations, retrievalLimit int
	var scrapeDocs, userID string
	var archModel, implModel, secModel, testModel, visionModel string
	fs.StringVar(&projectDir, "project", "", "Project directory (default: current directory)")
	fs.Float64Var(&qualityThreshold, "quality-threshold", -1, "Minimum average score to persist a pattern")
	fs.IntVar(&maxIterations, "max-iterations", -1, "Regeneration attempts per agent")
	fs.IntVar(&retrievalLimit, "retrieval-limit", -1, "Prior patterns fed into a run")
	fs.StringVar(&scrapeDocs, "scrape-docs", "", "Fetch full documentation pages before generating (true/false)")
	fs.StringVar(&userID, "user", "", "Owner recorded on stored patterns")
	fs.StringVar(&archModel, "architecture-model", "", "Model backing the architecture agent")
	fs.StringVar(&implModel, "implementation-model", "", "Model backing the implementation agent")
	fs.StringVar(&secModel, "security-model", "", "Model backing the security agent")
	fs.StringVar(&testModel, "testing-model", "", "Model backing the testing agent")
	fs.StringVar(&visionModel, "vision-model", "", "Model backing the vision agent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadProject(projectDir)
	if err != nil {
		return err
	}

	wf := *cfg.Workflow
	wfChanged := false
	if qualityThreshold >= 0 {
		wf.QualityThreshold = qualityThreshold
		wfChanged = true
	}
	if maxIterations >= 0 {
		wf.MaxIterations = maxIterations
		wfChanged = true
	}
	if retrievalLimit >= 0 {
		wf.RetrievalLimit = retrievalLimit
		wfChanged = true
	}
	if scrapeDocs != "" {
		wf.ScrapeDocs = scrapeDocs == "true"
		wfChanged = true
	}
	if userID != "" {
		wf.UserID = userID
		wfChanged = true
	}
	if wfChanged {
		if err := config.UpdateWorkflow(&wf); err != nil {
			return fmt.Errorf("failed to update workflow config: %w", err)
		}
	}

	agents := *cfg.Agents
	agentsChanged := false
	for _, m := range []struct {
		value  string
		target *config.AgentModelConfig
	}{
		{archModel, &agents.Architecture},
		{implModel, &agents.Implementation},
		{secModel, &agents.Security},
		{testModel, &agents.Testing},
		{visionModel, &agents.Vision},
	} {
		if m.value == "" {
			continue
		}
		if _, err := config.GetModelProvider(m.value); err != nil {
			return err
		}
		m.target.Model = m.value
		agentsChanged = true
	}
	if agentsChanged {
		if err := config.UpdateAgents(&agents); err != nil {
			return fmt.Errorf("failed to update agent config: %w", err)
		}
	}

	if !wfChanged && !agentsChanged {
		fmt.Println("Nothing to update. Run 'codeswarm configure -h' for available settings.")
		return nil
	}
	fmt.Printf("%s Configuration updated\n", color.GreenString("✓"))
	return nil
}
