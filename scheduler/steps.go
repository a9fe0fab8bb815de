package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/zhfg/refly-sub011/contextfilter"
	"github.com/zhfg/refly-sub011/internal/json"
	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/model"
	"github.com/zhfg/refly-sub011/tools"
)

func (t *turn) contextFilter(ctx context.Context) State {
	for _, item := range t.req.Items {
		if !item.Type.Valid() {
			t.err = fmt.Errorf("%w: %q", ErrUnknownItemType, item.Type)
			return StateError
		}
	}
	items, violations := contextfilter.Assemble(t.req.Items, t.req.Filter)
	if violations.HasErrors() {
		if err := t.root.StructuredData(model.KeyFilterErrorInfo, violations); err != nil {
			t.log.WithError(err).Error("failed to emit filter errors")
		}
		t.err = ErrContextRejected
		return StateError
	}
	t.items = t.hydrate(ctx, items)
	return StateIntentMatch
}

// hydrate fills content pointers through the fetcher. Items that cannot be
// fetched are kept without content.
func (t *turn) hydrate(ctx context.Context, items []model.ContextItem) []model.ContextItem {
	f := t.s.fetcher
	if f == nil {
		return items
	}
	out := make([]model.ContextItem, len(items))
	copy(out, items)
	for i := range out {
		item := &out[i]
		if item.ID == "" || item.Content != "" {
			continue
		}
		var err error
		switch item.Type {
		case model.ContextDocument:
			var doc model.Document
			if doc, err = f.GetDocument(ctx, item.ID); err == nil {
				item.Content = doc.Content
				if item.Title == "" {
					item.Title = doc.Title
				}
			}
		case model.ContextResource:
			var res model.Resource
			if res, err = f.GetResource(ctx, item.ID); err == nil {
				item.Content = res.Content
				if item.Title == "" {
					item.Title = res.Title
				}
				if item.URL == "" {
					item.URL = res.URL
				}
			}
		default:
			continue
		}
		if err != nil {
			t.log.WithError(err).WithField("item_id", item.ID).Warn("failed to hydrate context item")
			t.root.Log("Context item %s could not be loaded", item.ID)
		}
	}
	return out
}

func (t *turn) intentMatch(ctx context.Context) State {
	if name := t.req.Skill; name != "" {
		kind, ok := model.ParseSkillKind(name)
		switch {
		case !ok:
			t.root.Log("Selected skill %s not found. Fallback to scheduler.", name)
		case skills[kind].needsDocument && t.req.CurrentDocument == nil:
			t.root.Log("Selected skill %s requires a current document. Fallback to scheduler.", name)
		default:
			return t.selectSkill(kind)
		}
	}

	res := t.s.matcher.Match(ctx, t.req.Query, t.req.CurrentDocument, t.req.EditConfig, t.req.ProjectID)
	t.usage.Add(res.Usage)
	recordTokens(res.Usage)
	t.log.WithFields(logging.Fields{
		"intent":     res.Intent.String(),
		"confidence": res.Confidence,
	}).Info("intent matched")
	return t.selectSkill(res.Intent.Skill())
}

func (t *turn) selectSkill(kind model.SkillKind) State {
	sk, ok := skills[kind]
	if !ok {
		t.err = fmt.Errorf("no handler for skill %s", kind)
		return StateError
	}
	t.kind = kind
	t.skill = sk
	t.root.Log("Decide to call skill: %s", kind)
	t.skillSpan = t.root.Child(model.SkillMeta{Name: kind.String(), Kind: model.SpanSkill})
	return StateToolInvocation
}

// toolInvocation fans out the independent adapter calls of the skill and
// fans back in before reranking. Adapters never fail the turn.
func (t *turn) toolInvocation(ctx context.Context) State {
	s := t.s
	span := t.skillSpan
	query := t.req.Query.Text

	var searched, read []model.Source
	items := t.items

	g, gctx := errgroup.WithContext(ctx)
	if t.skill.webSearch && s.search != nil {
		g.Go(func() error {
			searched = s.search.Search(gctx, span, query)
			return nil
		})
	}
	if urls := tools.ExtractURLs(query, tools.MaxQueryURLs); len(urls) > 0 && s.reader != nil {
		g.Go(func() error {
			read = s.reader.Read(gctx, span, urls)
			return nil
		})
	}
	g.Go(func() error {
		items = t.budget(gctx, items)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		t.err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		return StateError
	}

	t.items = items
	sources := append(read, searched...)
	if len(sources) > 1 {
		sources = s.reranker.Rerank(ctx, span, query, sources)
	}
	t.sources = tools.CapSources(sources, s.opts.MaxSources)
	return StateModelInvocation
}

// budget trims items to the context budget, preferring items most similar
// to the query when embeddings are available.
func (t *turn) budget(ctx context.Context, items []model.ContextItem) []model.ContextItem {
	limit := t.s.opts.ContextBudget
	if limit <= 0 || contextfilter.Estimate(items) <= limit {
		return items
	}

	var scores []float64
	texts := make([]string, 0, len(items)+1)
	texts = append(texts, t.req.Query.Text)
	for _, item := range items {
		texts = append(texts, item.Title+"\n"+item.Content)
	}
	if vectors := t.s.embeddings.Embed(ctx, t.skillSpan, texts); len(vectors) == len(texts) {
		scores = make([]float64, len(items))
		for i := range items {
			scores[i] = tools.CosineSimilarity(vectors[0], vectors[i+1])
		}
	}

	kept := contextfilter.FitBudget(items, scores, limit)
	t.skillSpan.Log("Context trimmed from %d to %d item(s) to fit %d tokens", len(items), len(kept), limit)
	return kept
}

// modelInvocation streams the main model under its own span. Failure is
// fatal for the turn.
func (t *turn) modelInvocation(ctx context.Context) State {
	chat := t.s.chat
	span := t.skillSpan.Child(model.SkillMeta{Name: chat.Model(), Kind: model.SpanModel})

	chunks := make(chan string, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for chunk := range chunks {
			span.Stream(chunk)
			t.answer.WriteString(chunk)
		}
	}()

	usage, err := streamTo(ctx, chat, t.skill.prompt(t), chunks)
	<-drained

	if err != nil {
		if ctx.Err() != nil {
			span.Cancel()
			t.err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			return StateError
		}
		span.Fail(err)
		t.err = fmt.Errorf("%w: %v", ErrModel, err)
		return StateError
	}

	item := chat.UsageItem(usage)
	t.usage.Add(item)
	recordTokens(item)
	span.End()
	return StateAggregate
}

// streamTo closes chunks when the provider returns, including by panic.
func streamTo(ctx context.Context, p llm.Provider, msgs []llm.ChatMessage, chunks chan string) (*llm.TokenUsage, error) {
	defer close(chunks)
	return p.StreamChat(ctx, msgs, chunks)
}

// aggregate emits follow-up questions, sources and token usage.
func (t *turn) aggregate(ctx context.Context) State {
	if t.skill.relatedQuestions {
		t.relatedQuestions(ctx)
	}

	if len(t.sources) > 0 {
		if err := t.skillSpan.StructuredData(model.KeySources, t.sources); err != nil {
			t.log.WithError(err).Error("failed to emit sources")
		}
	}
	t.skillSpan.End()

	usage := t.usage.Aggregate()
	if usage == nil {
		usage = []model.TokenUsageItem{}
	}
	if err := t.root.StructuredData(model.KeyTokenUsage, usage); err != nil {
		t.log.WithError(err).Error("failed to emit token usage")
	}
	return StateDone
}

const relatedQuestionsPrompt = `You suggest follow-up questions. Given a question and its answer, propose up to %d short questions the user is likely to ask next.
Respond with a single JSON object: {"questions": ["...", "..."]}`

// relatedQuestions runs the light model in its own span. Failures only
// end that span.
func (t *turn) relatedQuestions(ctx context.Context) {
	light := t.s.light
	limit := t.s.opts.MaxRelatedQuestions
	span := t.skillSpan.Child(model.SkillMeta{Name: model.KeyRelatedQuestions, Kind: model.SpanModel})

	resp, err := light.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(fmt.Sprintf(relatedQuestionsPrompt, limit)),
		llm.UserMessage(fmt.Sprintf("Question: %s\n\nAnswer: %s", t.req.Query.Text, t.answer.String())),
	}, llm.NewJSONObjectFormat())
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			span.Cancel()
			return
		}
		span.Log("Related questions unavailable: %v", err)
		span.Fail(err)
		return
	}
	item := light.UsageItem(resp.Usage)
	t.usage.Add(item)
	recordTokens(item)

	questions, err := json.Strings(resp.Content, "questions")
	if err != nil {
		span.Log("Related questions unavailable: %v", err)
		span.Fail(err)
		return
	}
	cleaned := make([]string, 0, limit)
	for _, q := range questions {
		if len(cleaned) == limit {
			break
		}
		if q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if err := span.StructuredData(model.KeyRelatedQuestions, cleaned); err != nil {
		t.log.WithError(err).Error("failed to emit related questions")
	}
	span.End()
}
