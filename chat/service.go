// Package chat answers questions through a stakeholder lens: it routes the question, retrieves
// role-visible chunks, generates an answer and checks it against the role's boundaries.
package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fabfab/stakeholder-rag/boundary"
	"github.com/fabfab/stakeholder-rag/errs"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
	"github.com/fabfab/stakeholder-rag/router"
)

const errorAnswer = "I encountered an error processing your question. Please try rephrasing or contact support."

// Retriever finds chunks relevant to a question.
type Retriever interface {
	Query(ctx context.Context, req retrieval.QueryRequest) ([]retrieval.SearchResult, error)
}

type Service struct {
	router    *router.Router
	retriever Retriever
	validator *boundary.Validator
	assembler *Assembler
	logger    *slog.Logger
}

func NewService(r *router.Router, retriever Retriever, validator *boundary.Validator, assembler *Assembler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		router:    r,
		retriever: retriever,
		validator: validator,
		assembler: assembler,
		logger:    logger,
	}
}

// Chat answers req. The returned answer is always populated; on failure Success is false,
// Answer carries an apology and the error is also returned.
func (s *Service) Chat(ctx context.Context, req Request) (RoutedAnswer, error) {
	return s.chat(ctx, req, nil)
}

// ChatStream is Chat with generated text passed to fn as it arrives. When the client cannot
// stream, fn is not called and the answer is only in the result.
func (s *Service) ChatStream(ctx context.Context, req Request, fn func(string) error) (RoutedAnswer, error) {
	return s.chat(ctx, req, fn)
}

func (s *Service) chat(ctx context.Context, req Request, stream func(string) error) (RoutedAnswer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		err := errs.Validation("question cannot be empty")
		return s.failure(req.Role, err), err
	}

	role := s.router.Route(question, req.Role)
	log := s.logger.With("role", role)
	log.Debug("role context", "priorities", s.router.DocTypePriority(role))

	docs, err := s.retriever.Query(ctx, retrieval.QueryRequest{
		Question:  question,
		Role:      role,
		TopK:      req.TopK,
		Namespace: req.Namespace,
	})
	if err != nil {
		log.Error("retrieval failed", "error", err)
		return s.failure(role, err), err
	}
	docs = s.validator.FilterAndPriority(docs, role)
	log.Info("retrieved documents", "count", len(docs))

	enhanced := s.validator.EnhanceQuery(question, role)
	assembled := s.assembler.Generate(ctx, enhanced, docs, role, stream)
	formatted := s.validator.FormatResponse(assembled.Answer, assembled.Sources, role)

	log.Info("answer ready",
		"confidence", assembled.Confidence,
		"role_adherence", formatted.RoleAdherence,
		"generated", assembled.Generated,
	)
	return RoutedAnswer{
		Success:       true,
		Answer:        formatted.Answer,
		Role:          role,
		Confidence:    assembled.Confidence,
		Sources:       formatted.Sources,
		ContextUsed:   assembled.ContextUsed,
		RoleAdherence: formatted.RoleAdherence,
		RoleContext:   s.router.RoleContext(role),
		Generated:     assembled.Generated,
	}, nil
}

// failure builds the apology answer. An unknown role resolves to the default role.
func (s *Service) failure(role profile.Role, err error) RoutedAnswer {
	role = s.router.Route("", role)
	return RoutedAnswer{
		Success:     false,
		Answer:      errorAnswer,
		Role:        role,
		Sources:     []retrieval.Preview{},
		RoleContext: s.router.RoleContext(role),
		Error:       err.Error(),
	}
}
