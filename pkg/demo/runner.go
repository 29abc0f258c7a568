package demo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"codeswarm/pkg/output"
)

// agentColors maps agent roles to their narration color.
//
//nolint:gochecknoglobals // Fixed lookup table
var agentColors = map[string]*color.Color{
	"architecture":   color.New(color.FgBlue),
	"implementation": color.New(color.FgGreen),
	"security":       color.New(color.FgRed),
	"testing":        color.New(color.FgCyan),
	"rag":            color.New(color.FgCyan),
	"docs":           color.New(color.FgYellow),
	"evaluator":      color.New(color.FgMagenta),
	"store":          color.New(color.FgGreen),
	"learner":        color.New(color.FgYellow),
}

// Runner replays a scenario to out, writing artifacts through the
// output writer.
type Runner struct {
	scenario *Scenario
	writer   *output.Writer
	out      io.Writer
	in       io.Reader
	fast     bool
	paced    bool
}

// NewRunner builds a runner for the scenario. Fast mode drops all
// delays and ENTER pauses; pacing otherwise requires stdin to be a
// terminal.
func NewRunner(scenario *Scenario, writer *output.Writer, fast bool) *Runner {
	return &Runner{
		scenario: scenario,
		writer:   writer,
		out:      os.Stdout,
		in:       os.Stdin,
		fast:     fast,
		paced:    !fast && term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Run plays the whole scenario and writes the demo artifacts.
func (r *Runner) Run() error {
	r.banner()

	demoDir := ""
	if r.writer != nil {
		dir, err := r.writer.DemoDir(time.Now().Format("20060102_150405"))
		if err != nil {
			return err
		}
		demoDir = dir
	}

	for i := range r.scenario.Requests {
		if i == 0 {
			r.waitForEnter("Press ENTER to start the demo...")
		} else {
			r.waitForEnter(fmt.Sprintf("Press ENTER for request #%d...", i+1))
		}

		if err := r.playRequest(i, demoDir); err != nil {
			return err
		}
	}

	r.summary()
	if demoDir != "" {
		fmt.Fprintf(r.out, "\n%s Artifacts saved to %s\n", color.GreenString("✓"), demoDir)
	}
	return nil
}

func (r *Runner) banner() {
	header := color.New(color.FgMagenta, color.Bold)
	header.Fprintln(r.out, strings.Repeat("=", 70))
	header.Fprintln(r.out, center(r.scenario.Title, 70))
	if r.scenario.Tagline != "" {
		header.Fprintln(r.out, center(r.scenario.Tagline, 70))
	}
	header.Fprintln(r.out, strings.Repeat("=", 70))
	fmt.Fprintln(r.out)
}

func (r *Runner) playRequest(index int, demoDir string) error {
	req := r.scenario.Requests[index]
	num := index + 1

	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(r.out, "\nREQUEST #%d: %s\n", num, req.Task)
	title.Fprintln(r.out, strings.Repeat("-", 70))

	// Pattern retrieval narration.
	r.step(1, "Pattern retrieval")
	if req.PatternsFound == 0 {
		r.say("rag", "Found 0 matching patterns (cold start)")
	} else {
		r.say("rag", fmt.Sprintf("Found %d matching pattern(s)", req.PatternsFound))
		for p := index - req.PatternsFound; p < index; p++ {
			if p >= 0 {
				r.say("rag", fmt.Sprintf("  ✓ pattern_%03d (%.1f/100)", p+1, r.scenario.Requests[p].AvgScore))
			}
		}
	}
	r.pause(500 * time.Millisecond)

	// Documentation narration.
	r.step(2, "Documentation fetch")
	if req.DocsFound > 0 {
		r.say("docs", fmt.Sprintf("Found %d documentation result(s)", req.DocsFound))
	} else {
		r.say("docs", "Using existing pattern knowledge, no fetch needed")
	}
	r.pause(500 * time.Millisecond)

	// Agents.
	r.step(3, "Multi-agent generation")
	for _, step := range req.Agents {
		r.say(step.Agent, fmt.Sprintf("Generating with %s...", step.Model))
		r.pause(800 * time.Millisecond)
		r.sayScore(step.Score)
	}

	// Quality gate.
	r.step(4, "Quality gate and storage")
	r.say("evaluator", fmt.Sprintf("Average score: %.1f/100", req.AvgScore))
	if req.AvgScore >= 90 {
		r.say("store", fmt.Sprintf("Stored pattern_%03d", num))
		if num > 1 {
			r.say("store", fmt.Sprintf("pattern_%03d -> BUILDS_ON -> pattern_%03d", num, num-1))
		}
	} else {
		r.say("evaluator", "Below threshold, pattern not stored")
	}
	if num >= 2 {
		trajectory := make([]string, 0, num)
		for i := 0; i < num; i++ {
			trajectory = append(trajectory, fmt.Sprintf("%.1f", r.scenario.Requests[i].AvgScore))
		}
		r.say("learner", "Quality trajectory: "+strings.Join(trajectory, " -> "))
	}
	r.pause(500 * time.Millisecond)

	if r.writer != nil && demoDir != "" {
		results := map[string]any{
			"request_num":    num,
			"task":           req.Task,
			"avg_score":      req.AvgScore,
			"patterns_found": req.PatternsFound,
			"docs_found":     req.DocsFound,
			"scores":         scoresByAgent(req.Agents),
		}
		if _, err := r.writer.SaveDemoRequest(demoDir, num, req.Architecture, req.Implementation, results); err != nil {
			return err
		}
	}

	done := color.New(color.FgGreen, color.Bold)
	done.Fprintf(r.out, "\nRequest #%d complete: %.1f/100\n", num, req.AvgScore)
	return nil
}

func (r *Runner) summary() {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 70))
	title.Fprintln(r.out, center("DEMO SUMMARY", 70))
	title.Fprintln(r.out, strings.Repeat("=", 70))

	first := r.scenario.Requests[0].AvgScore
	for i, req := range r.scenario.Requests {
		line := fmt.Sprintf("  Request %d: %.1f/100", i+1, req.AvgScore)
		if i > 0 {
			line += color.GreenString(" (+%.1f)", req.AvgScore-first)
		}
		fmt.Fprintln(r.out, line)
	}
	fmt.Fprintln(r.out)
}

func (r *Runner) step(num int, name string) {
	c := color.New(color.FgBlue, color.Bold)
	c.Fprintf(r.out, "\n[STEP %d/4] %s\n", num, name)
}

func (r *Runner) say(agent, message string) {
	c, ok := agentColors[agent]
	if !ok {
		c = color.New(color.Reset)
	}
	fmt.Fprintf(r.out, "%s %s\n", c.Sprintf("[%s]", strings.ToUpper(agent)), message)
}

func (r *Runner) sayScore(score float64) {
	c := color.New(color.FgYellow)
	if score >= 95 {
		c = color.New(color.FgGreen)
	}
	fmt.Fprintf(r.out, "  %s\n", c.Sprintf("Score: %.1f/100", score))
}

func (r *Runner) pause(d time.Duration) {
	if r.fast {
		return
	}
	time.Sleep(d)
}

func (r *Runner) waitForEnter(prompt string) {
	if !r.paced {
		return
	}
	fmt.Fprint(r.out, color.YellowString(prompt))
	reader := bufio.NewReader(r.in)
	_, _ = reader.ReadString('\n')
	fmt.Fprintln(r.out)
}

func scoresByAgent(steps []AgentStep) map[string]float64 {
	scores := make(map[string]float64, len(steps))
	for _, s := range steps {
		scores[s.Agent] = s.Score
	}
	return scores
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}
