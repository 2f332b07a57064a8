// Package answer builds the grounded prompt from routed, re-ranked chunks
// and drives the LLM to produce a cited, conversational answer.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"campusqa/internal/llmclient"
	"campusqa/internal/store/convstore"
)

// Chunk is the minimal shape Answer needs from a ranked retrieval hit,
// kept independent of the retrieve package so answer has no upward
// dependency on it.
type Chunk struct {
	ChunkID     string
	Corpus      string
	Text        string
	Title       string
	PublishedAt string
	URL         string
}

// Citation is one display-ready source line.
type Citation struct {
	Title       string
	PublishedAt string
	URL         string
}

// Result is what Answer returns to the HTTP layer.
type Result struct {
	Answer    string
	Citations []Citation
	Route     []string
	Sources   []string
}

// Orchestrator builds prompts and calls the LLM.
type Orchestrator struct {
	LLM       llmclient.Client
	Conv      convstore.Store
	Assistant string // persona name used in the system prompt, e.g. "동똑이"

	MaxContextLength int
	MaxHistory       int
}

const noContextSentinel = "[컨텍스트 없음: 질문에 답할 관련 자료를 찾지 못했습니다. 일반적인 안내로 대답하거나 재검색을 유도하세요.]"

var (
	boldMarkdown = regexp.MustCompile(`\*\*`)
	htmlTag      = regexp.MustCompile(`(?is)<[^>]*>`)
)

// Answer builds the grounded prompt from chunks, loads conversation history
// for sessionID, calls the LLM, and appends the new turn to the
// conversation store.
func (o *Orchestrator) Answer(ctx context.Context, query string, chunks []Chunk, sessionID, currentDate string, route []string) (Result, error) {
	contextBlock := noContextSentinel
	if len(chunks) > 0 {
		contextBlock = buildContext(chunks, o.maxContextLength())
	}

	history, err := o.loadHistory(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("answer: load history: %w", err)
	}

	systemPrompt := buildSystemPrompt(o.assistant(), currentDate, contextBlock)
	raw, err := o.LLM.Complete(ctx, systemPrompt, history, query)
	if err != nil {
		return Result{}, fmt.Errorf("answer: llm call: %w", err)
	}
	cleaned := stripDisallowedFormatting(raw)

	if o.Conv != nil && sessionID != "" {
		if err := o.Conv.Append(ctx, sessionID, convstore.Message{Role: "user", Content: query}); err != nil {
			return Result{}, fmt.Errorf("answer: append user turn: %w", err)
		}
		if err := o.Conv.Append(ctx, sessionID, convstore.Message{Role: "assistant", Content: cleaned}); err != nil {
			return Result{}, fmt.Errorf("answer: append assistant turn: %w", err)
		}
	}

	sources := make([]string, len(chunks))
	for i, c := range chunks {
		sources[i] = c.ChunkID
	}

	return Result{
		Answer:    cleaned,
		Citations: formatCitations(chunks),
		Route:     route,
		Sources:   sources,
	}, nil
}

func (o *Orchestrator) maxContextLength() int {
	if o.MaxContextLength > 0 {
		return o.MaxContextLength
	}
	return 8000
}

func (o *Orchestrator) assistant() string {
	if o.Assistant != "" {
		return o.Assistant
	}
	return "AI 어시스턴트"
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) ([]llmclient.Message, error) {
	if o.Conv == nil || sessionID == "" {
		return nil, nil
	}
	limit := o.MaxHistory
	if limit <= 0 {
		limit = 10
	}
	msgs, err := o.Conv.Get(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]llmclient.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llmclient.Message{Role: m.Role, Content: m.Content}
	}
	return out, nil
}

// buildContext renders each chunk under a fixed numbered template and joins
// them with a triple-dash separator, truncating to maxRunes.
func buildContext(chunks []Chunk, maxRunes int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "문서 %d [출처: %s]:\n제목: %s\n게시일: %s\nURL: %s\n내용: %s\n",
			i+1, c.Corpus, c.Title, c.PublishedAt, c.URL, c.Text)
	}
	runes := []rune(b.String())
	if maxRunes > 0 && len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return string(runes)
}

func buildSystemPrompt(assistant, currentDate, contextBlock string) string {
	return fmt.Sprintf(`당신은 대학교 AI 어시스턴트 '%s'입니다.
오늘 날짜: %s

[지침]
1. [컨텍스트] 내용만으로 답변하세요. 없는 정보는 지어내지 마세요.
2. 답변에서 특정 정보를 언급할 때, 그 정보의 출처 URL이 [컨텍스트]에 있다면 해당 설명 바로 아래에 "URL: (링크주소)" 형식으로 적어주세요. 절대 마크다운 링크([텍스트](URL))로 변환하지 말고 주소만 그대로 쓰세요. 주소가 없다면 URL에 대해 쓰지 마세요.
3. 친절한 한국어(해요체)로 답변하세요.
4. 절차나 방법은 번호를 매겨 단계별로 설명하세요.
5. 정보가 없으면 정중히 사과하고 재검색을 유도하세요.
6. %s 기준 최신 정보를 우선하세요.
7. 답변에 볼드체(**) 등 마크다운 서식을 절대 사용하지 마세요.
8. 이전 대화 맥락을 고려하되, 현재 질문이 주제가 바뀌었다면 이전 내용은 무시하고 현재 질문에 집중하세요.
9. 질문에 '최근', '어제' 등 시간 표현이 있다면, 제공된 [컨텍스트] 내 문서의 '게시일'과 현재 날짜(%s)를 비교하여 정확히 계산하고 답변하세요.

[컨텍스트]
%s`, assistant, currentDate, currentDate, currentDate, contextBlock)
}

func stripDisallowedFormatting(s string) string {
	s = htmlTag.ReplaceAllString(s, "")
	s = boldMarkdown.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractTitle prefers a leading "[...]" marker, else the first line capped
// at 120 runes.
func extractTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if strings.HasPrefix(text, "[") {
		if closing := strings.Index(text, "]"); closing > 1 {
			return strings.TrimSpace(text[1:closing])
		}
	}
	line := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > 120 {
		runes = runes[:120]
	}
	return string(runes)
}

func formatCitations(chunks []Chunk) []Citation {
	out := make([]Citation, 0, len(chunks))
	for _, c := range chunks {
		title := c.Title
		if title == "" {
			title = extractTitle(c.Text)
		}
		out = append(out, Citation{Title: title, PublishedAt: c.PublishedAt, URL: c.URL})
	}
	return out
}
