package swarm

import (
	"fmt"
	"strings"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/config"
	"codeswarm/pkg/eval"
)

// Agent role names.
const (
	RoleArchitecture   = "architecture"
	RoleImplementation = "implementation"
	RoleSecurity       = "security"
	RoleTesting        = "testing"
	RoleVision         = "vision"
)

// Context excerpt caps used when folding upstream material into prompts.
const (
	patternExcerptChars      = 300
	docExcerptChars          = 2000
	architectureExcerptChars = 1000
	securityExcerptChars     = 1000
)

const architectureSystemPrompt = `You are an expert software architect with deep knowledge of:
- System design patterns (MVC, microservices, event-driven, etc.)
- Scalability and performance optimization
- Technology stack selection
- Component decomposition and interfaces

Your role: Design the overall architecture for the user's request.

Output Format:
` + "```" + `
[Architecture specification]
` + "```" + `

Reasoning: [Explain your architectural decisions and trade-offs]

CRITICAL:
1. Be specific and actionable - other agents will implement your design
2. Define clear component boundaries and interfaces
3. Consider scalability, maintainability, and security
4. Provide enough detail for implementation agents to execute`

const implementationSystemPrompt = `You are an expert software engineer with mastery of:
- Multiple programming languages and their ecosystems
- Clean code principles and design patterns
- Error handling and edge case management
- Performance optimization

Your role: Implement production-quality code based on the provided architecture.

Output Format:
` + "```language" + `
[Complete, runnable code implementation]
` + "```" + `

Reasoning: [Explain your implementation choices and how you handled edge cases]

CRITICAL:
1. Follow the architecture specification exactly
2. Write clean, readable, well-documented code
3. Include proper error handling and input validation
4. Ensure code is production-ready and testable`

const securitySystemPrompt = `You are an expert security engineer with deep knowledge of:
- OWASP Top 10 vulnerabilities
- Authentication, authorization, and cryptography
- Input validation and sanitization
- API security and rate limiting

Your role: Analyze code for security vulnerabilities and provide hardened versions.

Output Format:
` + "```language" + `
[Security-hardened code with security measures added]
` + "```" + `

Reasoning: [Explain vulnerabilities found, attack vectors prevented, and hardening applied]

CRITICAL:
1. Identify ALL security vulnerabilities, even minor ones
2. Validate all user inputs
3. Use secure cryptography for credentials and secrets
4. Follow the principle of least privilege`

const testingSystemPrompt = `You are an expert QA engineer and test automation specialist with mastery of:
- Test-driven development
- Unit, integration, and end-to-end testing
- Edge case identification
- Mock and fixture patterns

Your role: Generate comprehensive, production-quality test suites.

Output Format:
` + "```language" + `
[Complete test suite with unit, integration, and edge case tests]
` + "```" + `

Reasoning: [Explain test strategy, coverage areas, and edge cases covered]

CRITICAL:
1. Cover all code paths and branches
2. Test edge cases, boundary conditions, and error states
3. Include positive and negative test cases
4. Tests must be fast, isolated, and deterministic`

// NewArchitectureAgent creates the system-design agent.
func NewArchitectureAgent(client llm.LLMClient, scorer eval.Scorer, modelCfg config.AgentModelConfig, wf *config.WorkflowConfig) *Agent {
	return newAgent(RoleArchitecture, client, scorer, modelCfg, wf, architectureSystemPrompt, buildArchitecturePrompt)
}

// NewImplementationAgent creates the code-generation agent.
func NewImplementationAgent(client llm.LLMClient, scorer eval.Scorer, modelCfg config.AgentModelConfig, wf *config.WorkflowConfig) *Agent {
	return newAgent(RoleImplementation, client, scorer, modelCfg, wf, implementationSystemPrompt, buildImplementationPrompt)
}

// NewSecurityAgent creates the security-hardening agent.
func NewSecurityAgent(client llm.LLMClient, scorer eval.Scorer, modelCfg config.AgentModelConfig, wf *config.WorkflowConfig) *Agent {
	return newAgent(RoleSecurity, client, scorer, modelCfg, wf, securitySystemPrompt, buildSecurityPrompt)
}

// NewTestingAgent creates the test-suite agent.
func NewTestingAgent(client llm.LLMClient, scorer eval.Scorer, modelCfg config.AgentModelConfig, wf *config.WorkflowConfig) *Agent {
	return newAgent(RoleTesting, client, scorer, modelCfg, wf, testingSystemPrompt, buildTestingPrompt)
}

func buildArchitecturePrompt(task string, pc *PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)

	if pc.VisionAnalysis != "" {
		fmt.Fprintf(&b, "Vision Analysis (from sketch/mockup):\n%s\n\n", pc.VisionAnalysis)
	}
	if len(pc.Patterns) > 0 {
		b.WriteString("Relevant Patterns (from knowledge base):\n")
		for i, p := range pc.Patterns {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "%d. %s (score %.1f)\n", i+1, p.Task, p.AvgScore)
		}
		b.WriteString("\n")
	}
	if pc.Docs != "" {
		fmt.Fprintf(&b, "Relevant Documentation:\n%s\n\n", excerpt(pc.Docs, docExcerptChars))
	}

	b.WriteString(`Design the architecture for this system.

Your architecture should include:
1. **Component Structure**: What are the main components/modules?
2. **Data Flow**: How does data move through the system?
3. **Technology Stack**: What technologies/frameworks to use?
4. **Key Interfaces**: What are the critical APIs between components?
5. **Scalability Considerations**: How will this scale?
6. **Security Considerations**: What security measures are needed?

Provide a clear, implementable architecture specification.`)
	return b.String()
}

func buildImplementationPrompt(task string, pc *PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)

	if pc.Architecture != "" {
		fmt.Fprintf(&b, "Architecture Specification (MUST FOLLOW):\n%s\n\n", pc.Architecture)
	} else {
		b.WriteString("WARNING: No architecture specification provided.\nCreate a simple, working implementation that follows best practices.\n\n")
	}
	if pc.VisionAnalysis != "" {
		fmt.Fprintf(&b, "Vision Analysis (from sketch/mockup):\n%s\n\n", pc.VisionAnalysis)
	}
	if len(pc.Patterns) > 0 {
		b.WriteString("Proven Code Patterns (reference for inspiration):\n")
		for i, p := range pc.Patterns {
			if i == 2 {
				break
			}
			if p.Code == "" {
				continue
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, excerpt(p.Code, patternExcerptChars))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Implement production-quality code for this system.

Your implementation should:
1. **Follow Architecture**: Strictly implement the architecture specification
2. **Complete Implementation**: Include all necessary components and functions
3. **Error Handling**: Proper validation and error messages
4. **Documentation**: Clear comments and docstrings
5. **Edge Cases**: Handle all edge cases and invalid inputs

Provide complete, runnable, production-ready code.`)
	return b.String()
}

func buildSecurityPrompt(task string, pc *PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)

	if pc.Architecture != "" {
		fmt.Fprintf(&b, "Architecture Specification:\n%s\n\n", excerpt(pc.Architecture, architectureExcerptChars))
	}
	if pc.Implementation != "" {
		fmt.Fprintf(&b, "Implementation Code (NEEDS SECURITY HARDENING):\n%s\n\n", pc.Implementation)
	} else {
		b.WriteString("WARNING: No implementation code provided.\nProvide security analysis and recommendations based on the architecture.\n\n")
	}

	b.WriteString(`Perform comprehensive security analysis and provide hardened code.

Your security analysis should cover:
1. **Input Validation**: All user inputs sanitized and validated
2. **Authentication**: Secure credential handling (password hashing, tokens)
3. **Authorization**: Proper access control and permission checks
4. **Injection**: Parameterized queries, no string concatenation
5. **Sensitive Data**: No secrets in code, encryption where needed
6. **Error Handling**: No information leakage in error messages

Provide security-hardened code with explanations of all measures.`)
	return b.String()
}

func buildTestingPrompt(task string, pc *PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)

	if pc.Architecture != "" {
		fmt.Fprintf(&b, "Architecture Specification:\n%s\n\n", excerpt(pc.Architecture, architectureExcerptChars))
	}
	if pc.Implementation != "" {
		fmt.Fprintf(&b, "Implementation Code (NEEDS TESTS):\n%s\n\n", pc.Implementation)
	} else {
		b.WriteString("WARNING: No implementation code provided.\nGenerate test templates based on the architecture.\n\n")
	}
	if pc.Security != "" && pc.Security != pc.Implementation {
		fmt.Fprintf(&b, "Security-Hardened Version:\n%s\n\n", excerpt(pc.Security, securityExcerptChars))
	}

	b.WriteString(`Generate a comprehensive test suite for this code.

Your test suite should include:
1. **Unit Tests**: Every function and method, positive and negative cases
2. **Integration Tests**: Component interactions
3. **Edge Cases**: Boundary conditions, empty inputs, invalid data
4. **Security Tests**: Auth failures, injection attempts, malformed inputs

Provide a complete, runnable test suite.`)
	return b.String()
}

// excerpt caps s at n characters with an ellipsis marker.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
