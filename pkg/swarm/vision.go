package swarm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/config"
	"codeswarm/pkg/logx"
)

const visionSystemPrompt = `You are an expert UI/UX analyst with vision capabilities and deep knowledge of:
- Web and mobile UI design patterns
- Layout structures (grid, flexbox, responsive design)
- Component hierarchies and composition
- Design systems and accessibility standards

Your role: Analyze visual designs (sketches, mockups, screenshots) and provide detailed technical specifications.

CRITICAL:
1. Identify ALL UI components visible in the image, and nothing more
2. Describe layout structure, spacing, and exact positioning
3. Extract colors (hex codes where possible) and typography
4. Identify user interactions shown in the design
5. Recommend the simplest tech stack that can achieve the design`

// VisionAgent analyzes sketches, mockups, and screenshots into
// technical specifications for the other agents. Unlike the text
// agents it runs a single pass per image.
type VisionAgent struct {
	client      llm.LLMClient
	temperature float32
	maxTokens   int
	logger      *logx.Logger
}

// NewVisionAgent creates the image-analysis agent.
func NewVisionAgent(client llm.LLMClient, modelCfg config.AgentModelConfig) *VisionAgent {
	return &VisionAgent{
		client:      client,
		temperature: modelCfg.Temperature,
		maxTokens:   modelCfg.MaxTokens,
		logger:      logx.NewLogger(RoleVision),
	}
}

// Model returns the backing model name.
func (v *VisionAgent) Model() string {
	return v.client.GetModelName()
}

// Analyze reads the image at imagePath and produces a technical
// specification of the design it shows.
func (v *VisionAgent) Analyze(ctx context.Context, task, imagePath string) (*Output, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}
	mimeType := imageMimeType(imagePath)
	if mimeType == "" {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(imagePath))
	}
	v.logger.Info("👁 Analyzing image: %s (%d bytes)", imagePath, len(data))

	prompt := fmt.Sprintf(`Task: %s

Analyze the provided image (sketch/mockup/screenshot) and provide a precise technical specification that will be used to build the design shown.

Your analysis must include:
1. **Layout**: Overall structure, spacing values, element positioning
2. **Visual Elements**: Only components visible in the image, with exact text content
3. **Colors**: Background, text, and border colors (hex codes where discernible)
4. **Typography**: Font sizes, weights, and alignment per text element
5. **Implementation Approach**: The simplest stack that achieves this design

Avoid vague terms. Use exact values wherever possible.`, task)

	start := time.Now()
	resp, err := v.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(visionSystemPrompt),
			llm.NewUserMessage(prompt),
		},
		Images: []llm.ImageAttachment{
			{MimeType: mimeType, Data: data},
		},
		MaxTokens:   v.maxTokens,
		Temperature: v.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("vision analysis failed: %w", err)
	}
	latency := time.Since(start)
	v.logger.Info("👁 Vision analysis complete (%d chars, %v)", len(resp.Content), latency)

	// The whole response is the analysis; there is no code block to split.
	return &Output{
		Agent:            RoleVision,
		Model:            v.client.GetModelName(),
		Code:             resp.Content,
		Reasoning:        "Vision analysis of uploaded image",
		Confidence:       baseConfidence,
		Score:            fallbackScore,
		Iterations:       1,
		Latency:          latency,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// visualKeywords trigger the vision stage when they appear as words in
// the task text.
//
//nolint:gochecknoglobals // Fixed word list
var visualKeywords = map[string]bool{
	"sketch": true, "mockup": true, "wireframe": true,
	"screenshot": true, "design": true, "ui": true, "layout": true,
	"figma": true, "drawing": true, "diagram": true,
}

// NeedsVision reports whether the vision stage should run: an image
// was attached, or the task mentions visual design work.
func NeedsVision(task, imagePath string) bool {
	if imagePath != "" {
		return true
	}
	for _, word := range strings.Fields(strings.ToLower(task)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if visualKeywords[word] {
			return true
		}
	}
	return false
}

// imageMimeType maps an image file extension to its MIME type.
func imageMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
