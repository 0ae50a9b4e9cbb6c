package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/fabfab/stakeholder-rag/llm"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
)

const (
	contextRunes  = 400
	fallbackRunes = 300

	fallbackWithSources    = 60.0
	fallbackWithoutSources = 30.0

	unavailableNotice = "[Note: LLM service temporarily unavailable. Please check that the generation service is running.]"
)

// rolePrefixes are stripped when a generated answer opens with one of them.
var rolePrefixes = []string{
	"As a Product Lead, ",
	"As a Technical Lead, ",
	"As a Compliance Lead, ",
	"As a Bank Alliance Lead, ",
	"From a product perspective, ",
	"From a technical standpoint, ",
	"From a compliance perspective, ",
	"From a partnership perspective, ",
}

// Assembler turns retrieved chunks into a role-specific answer. It always produces an
// answer: generation failures fall back to a deterministic one.
type Assembler struct {
	llm     llm.Client
	catalog *profile.Catalog
	timeout time.Duration
	logger  *slog.Logger
}

func NewAssembler(client llm.Client, catalog *profile.Catalog, timeout time.Duration, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{llm: client, catalog: catalog, timeout: timeout, logger: logger}
}

// Generate answers question from docs as role. When stream is non-nil and the client can
// stream, partial output is passed to it as it arrives.
func (a *Assembler) Generate(ctx context.Context, question string, docs []retrieval.SearchResult, role profile.Role, stream func(string) error) Assembled {
	out := Assembled{
		Sources:     retrieval.Previews(docs),
		ContextUsed: len(docs),
		Confidence:  Confidence(docs),
	}

	answer, err := a.generate(ctx, a.Prompt(question, docs, role), stream)
	if err != nil {
		a.logger.Warn("generation failed, using fallback answer", "role", role, "docs", len(docs), "error", err)
		out.Answer, out.Confidence = Fallback(docs)
		return out
	}

	out.Answer = CleanAnswer(answer)
	out.Generated = true
	return out
}

func (a *Assembler) generate(ctx context.Context, messages []llm.Message, stream func(string) error) (string, error) {
	if a.llm == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if stream != nil {
		if s, ok := a.llm.(llm.Streamer); ok {
			var b strings.Builder
			gate := &prefixGate{next: stream}
			err := s.GenerateStream(ctx, messages, func(chunk string) error {
				if chunk == "" {
					return nil
				}
				b.WriteString(chunk)
				return gate.write(chunk)
			})
			if err != nil {
				return "", fmt.Errorf("llm stream generate: %w", err)
			}
			if strings.TrimSpace(b.String()) == "" {
				return "", fmt.Errorf("llm streamed an empty answer")
			}
			if err := gate.flush(); err != nil {
				return "", fmt.Errorf("llm stream generate: %w", err)
			}
			return b.String(), nil
		}
	}

	answer, err := a.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("llm returned an empty answer")
	}
	return answer, nil
}

// Prompt builds the messages sent to the generation service.
func (a *Assembler) Prompt(question string, docs []retrieval.SearchResult, role profile.Role) []llm.Message {
	var b strings.Builder
	b.WriteString("Context from documents:\n")
	b.WriteString(contextBlock(docs))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nProvide a clear, natural answer based on the context. Be conversational and helpful.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: a.catalog.MustRole(role).AnswerPreamble},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func contextBlock(docs []retrieval.SearchResult) string {
	if len(docs) == 0 {
		return "No relevant documents found."
	}
	parts := make([]string, 0, len(docs)*4)
	for i, d := range docs {
		docType := string(d.DocType)
		if docType == "" {
			docType = "Unknown"
		}
		parts = append(parts,
			fmt.Sprintf("[Document %d]", i+1),
			"Type: "+docType,
			"Content: "+truncateRunes(d.Text, contextRunes),
			"",
		)
	}
	return strings.Join(parts, "\n")
}

// Confidence is the mean similarity of docs as a percentage, capped at 100.
func Confidence(docs []retrieval.SearchResult) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range docs {
		sum += d.Score
	}
	return min(sum/float64(len(docs))*100, 100)
}

// CleanAnswer strips role-revealing openers from a generated answer.
func CleanAnswer(answer string) string {
	return strings.TrimSpace(trimRolePrefixes(answer))
}

func trimRolePrefixes(s string) string {
	for _, p := range rolePrefixes {
		s = strings.TrimPrefix(s, p)
	}
	return s
}

// prefixGate holds streamed output back while it could still be the start of a role
// prefix, so streamed text matches CleanAnswer.
type prefixGate struct {
	next func(string) error
	buf  strings.Builder
	open bool
}

func (g *prefixGate) write(chunk string) error {
	if g.open {
		return g.next(chunk)
	}
	g.buf.WriteString(chunk)
	rest := strings.TrimLeftFunc(trimRolePrefixes(g.buf.String()), unicode.IsSpace)
	if partialPrefix(rest) {
		return nil
	}
	g.open = true
	return g.next(rest)
}

// flush forwards whatever is still held once the stream ends.
func (g *prefixGate) flush() error {
	if g.open {
		return nil
	}
	g.open = true
	if rest := CleanAnswer(g.buf.String()); rest != "" {
		return g.next(rest)
	}
	return nil
}

func partialPrefix(s string) bool {
	if s == "" {
		return true
	}
	for _, p := range rolePrefixes {
		if len(s) < len(p) && strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// Fallback returns the deterministic answer used when generation is unavailable.
func Fallback(docs []retrieval.SearchResult) (string, float64) {
	if len(docs) == 0 {
		return "I don't have enough context to answer this question. Please try rephrasing or provide more details.\n\n" + unavailableNotice,
			fallbackWithoutSources
	}
	preview := truncateRunes(docs[0].Text, fallbackRunes)
	return "Based on the available documentation:\n\n" + preview + "...\n\n" + unavailableNotice, fallbackWithSources
}

func truncateRunes(s string, limit int) string {
	if r := []rune(s); len(r) > limit {
		return string(r[:limit])
	}
	return s
}
