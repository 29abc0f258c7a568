package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeswarm/pkg/config"
	"codeswarm/pkg/docs"
	"codeswarm/pkg/eventlog"
	"codeswarm/pkg/learner"
	"codeswarm/pkg/logx"
	"codeswarm/pkg/patterns"
	"codeswarm/pkg/swarm"
)

// Agents bundles the swarm members the pipeline drives.
type Agents struct {
	Architecture   *swarm.Agent
	Implementation *swarm.Agent
	Security       *swarm.Agent
	Testing        *swarm.Agent
	Vision         *swarm.VisionAgent
}

// Pipeline runs generation requests through the stage graph. The
// pattern store, docs service, learner, and event log are optional;
// a nil dependency skips the corresponding work.
type Pipeline struct {
	agents  Agents
	store   *patterns.Store
	docs    *docs.Service
	learner *learner.Learner
	events  *eventlog.Writer
	wf      *config.WorkflowConfig
	logger  *logx.Logger
}

// New assembles a pipeline around the given agents and services.
func New(agents Agents, store *patterns.Store, docsService *docs.Service, l *learner.Learner, events *eventlog.Writer, wf *config.WorkflowConfig) *Pipeline {
	if wf == nil {
		wf = &config.WorkflowConfig{}
	}
	return &Pipeline{
		agents:  agents,
		store:   store,
		docs:    docsService,
		learner: l,
		events:  events,
		wf:      wf,
		logger:  logx.NewLogger("workflow"),
	}
}

// Run executes one request through every stage and returns the final
// run state. The returned state is non-nil even on error so callers
// can inspect partial results.
func (p *Pipeline) Run(ctx context.Context, req Request) (*RunState, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, fmt.Errorf("task cannot be empty")
	}

	state := newRunState(req)
	p.logger.Info("🚀 Run %s started: %s (task type %s)", state.RunID, req.Task, state.TaskType)

	started := eventlog.NewEvent(state.RunID, eventlog.TypeRunStarted)
	started.Task = req.Task
	p.writeEvent(started)

	p.retrieve(state)

	if err := p.transition(ctx, state, StageDocs); err != nil {
		return state, err
	}
	p.fetchDocs(ctx, state)

	if p.agents.Vision != nil && swarm.NeedsVision(req.Task, req.ImagePath) && req.ImagePath != "" {
		if err := p.transition(ctx, state, StageVision); err != nil {
			return state, err
		}
		p.analyzeImage(ctx, state)
	}

	if err := p.transition(ctx, state, StageArchitecture); err != nil {
		return state, err
	}
	if err := p.runArchitecture(ctx, state); err != nil {
		return state, p.fail(state, err)
	}

	if err := p.transition(ctx, state, StageGeneration); err != nil {
		return state, err
	}
	if err := p.runGeneration(ctx, state); err != nil {
		return state, p.fail(state, err)
	}

	if err := p.transition(ctx, state, StageTesting); err != nil {
		return state, err
	}
	if err := p.runTesting(ctx, state); err != nil {
		return state, p.fail(state, err)
	}

	if err := p.transition(ctx, state, StageSynthesis); err != nil {
		return state, err
	}
	p.synthesize(state)

	if err := p.transition(ctx, state, StagePersist); err != nil {
		return state, err
	}
	p.persist(state)

	if err := p.transition(ctx, state, StageDone); err != nil {
		return state, err
	}

	finished := eventlog.NewEvent(state.RunID, eventlog.TypeRunFinished)
	finished.Score = state.AvgScore
	finished.PatternID = state.PatternID
	p.writeEvent(finished)

	p.logger.Info("🏁 Run %s done in %s, average score %.1f/100", state.RunID, state.Duration().Round(time.Millisecond), state.AvgScore)
	return state, nil
}

// transition advances the state machine, honoring cancellation at the
// stage boundary and logging an event per move.
func (p *Pipeline) transition(ctx context.Context, state *RunState, to Stage) error {
	if err := ctx.Err(); err != nil {
		cancelErr := fmt.Errorf("run cancelled before %s: %w", to, err)
		_ = p.fail(state, cancelErr)
		return cancelErr
	}

	from := state.Stage
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	state.Stage = to
	p.logger.Info("🔄 Stage transition: %s → %s", from, to)

	event := eventlog.NewEvent(state.RunID, eventlog.TypeTransition)
	event.FromStage = from.String()
	event.Stage = to.String()
	p.writeEvent(event)

	return nil
}

// fail moves the run to the error stage. The transition table allows
// it from every non-terminal stage.
func (p *Pipeline) fail(state *RunState, err error) error {
	if IsValidTransition(state.Stage, StageError) {
		from := state.Stage
		state.Stage = StageError

		event := eventlog.NewEvent(state.RunID, eventlog.TypeRunFailed)
		event.FromStage = from.String()
		event.Detail = err.Error()
		p.writeEvent(event)
	}
	state.Err = err
	return err
}

func (p *Pipeline) writeEvent(event *eventlog.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Write(event); err != nil {
		p.logger.Warn("failed to write run event: %v", err)
	}
}

func (p *Pipeline) retrieve(state *RunState) {
	if p.store == nil {
		return
	}

	found, err := p.store.Retrieve(state.Request.Task, p.wf.RetrievalLimit, 0)
	if err != nil {
		p.logger.Warn("pattern retrieval failed: %v", err)
		return
	}
	state.Patterns = found
	p.logger.Info("📚 Retrieved %d patterns", len(found))
}

func (p *Pipeline) fetchDocs(ctx context.Context, state *RunState) {
	if p.docs == nil {
		return
	}

	var (
		doc *docs.Documentation
		err error
	)
	if p.wf.ScrapeDocs {
		doc, err = p.docs.FetchFullContext(ctx, state.Request.Task)
	} else {
		doc, err = p.docs.FetchContext(ctx, state.Request.Task)
	}
	if err != nil {
		p.logger.Warn("documentation fetch failed: %v", err)
		return
	}
	state.Docs = doc
	p.logger.Info("📖 Fetched %d documentation results via %s", len(doc.Results), doc.Source)
}

func (p *Pipeline) analyzeImage(ctx context.Context, state *RunState) {
	out, err := p.agents.Vision.Analyze(ctx, state.Request.Task, state.Request.ImagePath)
	if err != nil {
		p.logger.Warn("vision analysis failed, continuing without it: %v", err)
		return
	}
	state.Outputs[swarm.RoleVision] = out
}

func (p *Pipeline) promptContext(state *RunState) *swarm.PromptContext {
	pc := &swarm.PromptContext{Patterns: state.Patterns}
	if state.Docs != nil {
		pc.Docs = state.Docs.Context
	}
	if vision := state.Output(swarm.RoleVision); vision != nil {
		pc.VisionAnalysis = vision.Code
	}
	if arch := state.Output(swarm.RoleArchitecture); arch != nil {
		pc.Architecture = agentText(arch)
	}
	if impl := state.Output(swarm.RoleImplementation); impl != nil {
		pc.Implementation = impl.Code
	}
	if sec := state.Output(swarm.RoleSecurity); sec != nil {
		pc.Security = sec.Code
	}
	return pc
}

// agentText prefers the fenced code but falls back to the reasoning,
// so downstream agents always see a non-empty architecture.
func agentText(out *swarm.Output) string {
	if out.Code != "" {
		return out.Code
	}
	return out.Reasoning
}

func (p *Pipeline) runArchitecture(ctx context.Context, state *RunState) error {
	out, err := p.agents.Architecture.Execute(ctx, state.Request.Task, p.promptContext(state))
	if err != nil {
		return fmt.Errorf("architecture stage failed: %w", err)
	}
	state.Outputs[swarm.RoleArchitecture] = out
	return nil
}

// runGeneration executes the implementation and security agents in
// parallel. Both consume the architecture output.
func (p *Pipeline) runGeneration(ctx context.Context, state *RunState) error {
	pc := p.promptContext(state)

	var (
		wg              sync.WaitGroup
		implOut, secOut *swarm.Output
		implErr, secErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		implOut, implErr = p.agents.Implementation.Execute(ctx, state.Request.Task, pc)
	}()
	go func() {
		defer wg.Done()
		secOut, secErr = p.agents.Security.Execute(ctx, state.Request.Task, pc)
	}()
	wg.Wait()

	if implErr != nil {
		return fmt.Errorf("implementation stage failed: %w", implErr)
	}
	if secErr != nil {
		return fmt.Errorf("security stage failed: %w", secErr)
	}

	state.Outputs[swarm.RoleImplementation] = implOut
	state.Outputs[swarm.RoleSecurity] = secOut
	return nil
}

func (p *Pipeline) runTesting(ctx context.Context, state *RunState) error {
	out, err := p.agents.Testing.Execute(ctx, state.Request.Task, p.promptContext(state))
	if err != nil {
		return fmt.Errorf("testing stage failed: %w", err)
	}
	state.Outputs[swarm.RoleTesting] = out
	return nil
}
