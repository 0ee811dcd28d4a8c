// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/vectorstore"
)

// DefaultScoreThreshold filters out weakly relevant hits. Candidates
// the store returned without a score pass the filter.
const DefaultScoreThreshold = 0.25

// DefaultMaxFragmentLength caps fragment text handed to the model.
const DefaultMaxFragmentLength = 3500

// Response is the outcome of one question.
type Response struct {
	Answer         string
	Sources        []core.SourceRef
	Query          string
	TokensUsed     int
	Conversational bool
}

// Agent routes questions between a conversational path and a grounded
// retrieval path, and assembles the final answer with citations.
type Agent struct {
	store     vectorstore.Store
	completer ai.Completer

	k           int
	fetchK      int
	lambda      float64
	threshold   float32
	maxFragment int
	useMMR      bool
	classifier  ClassifierConfig
	logger      *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithSearchK sets how many fragments ground an answer.
func WithSearchK(k int) Option {
	return func(a *Agent) {
		if k > 0 {
			a.k = k
		}
	}
}

// WithFetchK sets the candidate pool size for diversity reranking.
func WithFetchK(fetchK int) Option {
	return func(a *Agent) {
		if fetchK > 0 {
			a.fetchK = fetchK
		}
	}
}

// WithLambda sets the relevance-diversity tradeoff for reranking.
func WithLambda(lambda float64) Option {
	return func(a *Agent) {
		a.lambda = lambda
	}
}

// WithScoreThreshold sets the minimum relevance score a scored hit
// needs to ground an answer.
func WithScoreThreshold(threshold float32) Option {
	return func(a *Agent) {
		a.threshold = threshold
	}
}

// WithPlainSearch disables diversity reranking in favor of plain
// nearest-neighbor search.
func WithPlainSearch() Option {
	return func(a *Agent) {
		a.useMMR = false
	}
}

// WithMaxFragmentLength caps fragment text length in the prompt.
func WithMaxFragmentLength(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxFragment = n
		}
	}
}

// WithClassifier replaces the routing pattern tables.
func WithClassifier(cfg ClassifierConfig) Option {
	return func(a *Agent) {
		a.classifier = cfg.withDefaults()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an answering agent over the given store and completer.
func New(store vectorstore.Store, completer ai.Completer, opts ...Option) *Agent {
	a := &Agent{
		store:       store,
		completer:   completer,
		k:           vectorstore.DefaultK,
		fetchK:      vectorstore.DefaultFetchK,
		lambda:      vectorstore.DefaultLambda,
		threshold:   DefaultScoreThreshold,
		maxFragment: DefaultMaxFragmentLength,
		useMMR:      true,
		classifier:  DefaultClassifierConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer responds to a question. Conversational questions are answered
// directly; domain questions are grounded in retrieved fragments with
// a deduplicated citation list. Provider failures are returned to the
// caller untouched.
func (a *Agent) Answer(ctx context.Context, question string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.ErrEmptyQuestion
	}

	kind := Classify(question, a.classifier)
	a.logger.Debug("question classified", "kind", kind.String())
	if kind == KindConversational {
		return a.answerConversational(ctx, question)
	}

	hits, err := a.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	relevant := a.filterByScore(hits)
	a.logger.Debug("retrieval finished",
		"candidates", len(hits),
		"relevant", len(relevant))

	if len(relevant) == 0 {
		// A question full of domain vocabulary with nothing behind it in
		// the index is a distinct outcome from smalltalk.
		if containsDomainStem(strings.ToLower(question), a.classifier.withDefaults().DomainStems) {
			return &Response{Answer: NoInfoAnswer, Query: question}, nil
		}
		return a.answerConversational(ctx, question)
	}

	return a.answerGrounded(ctx, question, relevant)
}

func (a *Agent) retrieve(ctx context.Context, question string) ([]core.SearchHit, error) {
	if a.useMMR {
		return a.store.MMRSearch(ctx, question, a.k, a.fetchK, a.lambda)
	}
	return a.store.Search(ctx, question, a.k)
}

// filterByScore drops hits scoring under the threshold. Unscored hits
// are kept; absence of a score is not evidence of irrelevance.
func (a *Agent) filterByScore(hits []core.SearchHit) []core.SearchHit {
	kept := make([]core.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Scored && hit.Score < a.threshold {
			continue
		}
		kept = append(kept, hit)
	}
	return kept
}

func (a *Agent) answerConversational(ctx context.Context, question string) (*Response, error) {
	messages := []ai.Message{
		{Role: ai.RoleSystem, Text: conversationalSystemPrompt},
		{Role: ai.RoleUser, Text: question},
	}
	completion, err := a.completer.Complete(ctx, messages, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Response{
		Answer:         completion.Text,
		Query:          question,
		TokensUsed:     completion.TotalTokens(),
		Conversational: true,
	}, nil
}

func (a *Agent) answerGrounded(ctx context.Context, question string, hits []core.SearchHit) (*Response, error) {
	prompt := strings.TrimSpace(
		formatPrompt(formatContext(hits, a.maxFragment), question))
	messages := []ai.Message{
		{Role: ai.RoleSystem, Text: legalSystemPrompt},
		{Role: ai.RoleUser, Text: prompt},
	}
	completion, err := a.completer.Complete(ctx, messages, 0, 0)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Answer:     completion.Text,
		Query:      question,
		TokensUsed: completion.TotalTokens(),
	}
	if !declaresNoInfo(completion.Text) {
		refs := make([]core.SourceRef, 0, len(hits))
		for _, hit := range hits {
			refs = append(refs, core.SourceRefFromHit(hit))
		}
		resp.Sources = core.DedupSourceRefs(refs)
	}
	return resp, nil
}
