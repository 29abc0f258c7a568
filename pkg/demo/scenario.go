// Package demo replays a scripted generation session for live
// presentations. All numbers are fixed by the scenario; no network
// calls are made.
package demo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"codeswarm/pkg/config"
)

// AgentStep is one agent's scripted result in a demo request.
type AgentStep struct {
	Agent string  `yaml:"agent"`
	Model string  `yaml:"model"`
	Score float64 `yaml:"score"`
}

// DemoRequest is one scripted request: a task, fixed per-agent scores,
// and the retrieval numbers the narration reports.
type DemoRequest struct {
	Task           string      `yaml:"task"`
	Agents         []AgentStep `yaml:"agents"`
	AvgScore       float64     `yaml:"avg_score"`
	PatternsFound  int         `yaml:"patterns_found"`
	DocsFound      int         `yaml:"docs_found"`
	Architecture   string      `yaml:"architecture"`
	Implementation string      `yaml:"implementation"`
}

// Scenario is a full scripted session.
type Scenario struct {
	Title    string        `yaml:"title"`
	Tagline  string        `yaml:"tagline"`
	Requests []DemoRequest `yaml:"requests"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario is playable.
func (s *Scenario) Validate() error {
	if len(s.Requests) == 0 {
		return fmt.Errorf("scenario has no requests")
	}
	for i, req := range s.Requests {
		if req.Task == "" {
			return fmt.Errorf("request %d has no task", i+1)
		}
		if len(req.Agents) == 0 {
			return fmt.Errorf("request %d has no agents", i+1)
		}
	}
	return nil
}

// DefaultScenario is the built-in three-request session: a cold start,
// a second request that retrieves the first pattern, and a third that
// builds on both.
func DefaultScenario() *Scenario {
	return &Scenario{
		Title:   "CODESWARM PRESENTATION DEMO",
		Tagline: "The AI coding team that gets smarter over time",
		Requests: []DemoRequest{
			{
				Task: "Build FastAPI user authentication endpoint with password hashing",
				Agents: []AgentStep{
					{Agent: "architecture", Model: config.ModelClaudeSonnet45, Score: 92.5},
					{Agent: "implementation", Model: config.ModelGPT5Pro, Score: 91.0},
					{Agent: "security", Model: config.ModelClaudeOpus41, Score: 94.0},
					{Agent: "testing", Model: config.ModelGemini25Pro, Score: 93.0},
				},
				AvgScore:      93.5,
				PatternsFound: 0,
				DocsFound:     12,
				Architecture: "# Authentication Service Architecture\n\n" +
					"- POST /auth/register and POST /auth/login endpoints\n" +
					"- bcrypt password hashing with per-user salt\n" +
					"- SQLAlchemy user model, unique email constraint\n",
				Implementation: "from fastapi import FastAPI, HTTPException\n" +
					"from passlib.hash import bcrypt\n\n" +
					"app = FastAPI()\n\n" +
					"@app.post(\"/auth/register\")\n" +
					"async def register(email: str, password: str):\n" +
					"    hashed = bcrypt.hash(password)\n" +
					"    return {\"email\": email}\n",
			},
			{
				Task: "Build authentication API with JWT tokens and refresh tokens",
				Agents: []AgentStep{
					{Agent: "architecture", Model: config.ModelClaudeSonnet45, Score: 95.0},
					{Agent: "implementation", Model: config.ModelGPT5Pro, Score: 94.5},
					{Agent: "security", Model: config.ModelClaudeOpus41, Score: 96.0},
					{Agent: "testing", Model: config.ModelGemini25Pro, Score: 95.5},
				},
				AvgScore:      95.5,
				PatternsFound: 1,
				DocsFound:     8,
				Architecture: "# JWT Authentication Architecture\n\n" +
					"- Builds on the stored password-hashing pattern\n" +
					"- Short-lived access tokens, rotating refresh tokens\n" +
					"- Token revocation list keyed by jti\n",
				Implementation: "import jwt\n" +
					"from datetime import datetime, timedelta\n\n" +
					"def issue_tokens(user_id: str) -> dict:\n" +
					"    access = jwt.encode({\"sub\": user_id, \"exp\": datetime.utcnow() + timedelta(minutes=15)}, SECRET)\n" +
					"    refresh = jwt.encode({\"sub\": user_id, \"type\": \"refresh\"}, SECRET)\n" +
					"    return {\"access\": access, \"refresh\": refresh}\n",
			},
			{
				Task: "Build production-ready auth API with refresh tokens, rate limiting, and account lockout",
				Agents: []AgentStep{
					{Agent: "architecture", Model: config.ModelClaudeSonnet45, Score: 97.5},
					{Agent: "implementation", Model: config.ModelGPT5Pro, Score: 96.0},
					{Agent: "security", Model: config.ModelClaudeOpus41, Score: 98.0},
					{Agent: "testing", Model: config.ModelGemini25Pro, Score: 97.0},
				},
				AvgScore:      97.2,
				PatternsFound: 2,
				DocsFound:     5,
				Architecture: "# Production Auth Architecture\n\n" +
					"- Builds on both stored auth patterns\n" +
					"- Redis sliding-window rate limiting on /auth/login\n" +
					"- Account lockout after 5 failed attempts\n",
				Implementation: "from fastapi import FastAPI, Request\n\n" +
					"LOCKOUT_THRESHOLD = 5\n\n" +
					"async def check_lockout(redis, email: str) -> bool:\n" +
					"    failures = int(await redis.get(f\"fail:{email}\") or 0)\n" +
					"    return failures >= LOCKOUT_THRESHOLD\n",
			},
		},
	}
}
