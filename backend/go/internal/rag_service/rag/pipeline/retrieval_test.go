package pipeline

import (
	"context"
	"strings"
	"testing"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(id, text string, score float32) schema.QueryMatch {
	return schema.QueryMatch{ID: id, Score: score, Metadata: schema.RecordMetadata{Text: text}}
}

func TestAnswerStuffsMatchesInScoreOrder(t *testing.T) {
	idx := newRecordingIndex()
	idx.matches = []schema.QueryMatch{match("x_0", "a", 0.9), match("x_1", "b", 0.8), match("y_0", "c", 0.7)}
	gen := &recordingGenerator{answer: "X is a b c"}

	p := NewRetrievalPipeline(&fakeEmbedder{}, idx, gen, RetrievalOptions{IndexName: testIndex}, nil)
	ans, err := p.Answer(context.Background(), "what is X")
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, interfaces.GenerateRequest{ContextDocument: "a b c", Question: "what is X"}, gen.requests[0])
	assert.Equal(t, "X is a b c", ans.Text)
	assert.False(t, ans.NoMatches)
	assert.Len(t, ans.Sources, 3)
}

func TestAnswerNoMatchesSkipsGenerator(t *testing.T) {
	idx := newRecordingIndex()
	require.NoError(t, idx.CreateIndex(context.Background(), testDesc))
	gen := &recordingGenerator{answer: "made up"}

	p := NewRetrievalPipeline(&fakeEmbedder{}, idx, gen, RetrievalOptions{IndexName: testIndex}, nil)
	ans, err := p.Answer(context.Background(), "anything")
	require.NoError(t, err)

	assert.True(t, ans.NoMatches)
	assert.Empty(t, ans.Text)
	assert.Empty(t, gen.requests)
}

func TestAnswerUsesTopK(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex()
	require.NoError(t, idx.CreateIndex(ctx, testDesc))
	var records []schema.VectorRecord
	for _, text := range []string{"alpha", "beta", "gamma", "delta"} {
		records = append(records, schema.VectorRecord{ID: text, Vector: vectorFor(text), Metadata: schema.RecordMetadata{Text: text}})
	}
	require.NoError(t, idx.Upsert(ctx, testIndex, records))
	gen := &recordingGenerator{answer: "ok"}

	p := NewRetrievalPipeline(&fakeEmbedder{}, idx, gen, RetrievalOptions{IndexName: testIndex, TopK: 2, IncludeValues: true}, nil)
	ans, err := p.Answer(ctx, "gamma")
	require.NoError(t, err)

	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "gamma", ans.Sources[0].ID)
	assert.Equal(t, vectorFor("gamma"), ans.Sources[0].Values)
	assert.True(t, strings.HasPrefix(gen.requests[0].ContextDocument, "gamma "))
}

// reverseReranker reverses the matches and keeps at most keep of them.
type reverseReranker struct {
	keep  int
	query string
	err   error
}

func (r *reverseReranker) Rerank(_ context.Context, query string, matches []schema.QueryMatch) ([]schema.QueryMatch, error) {
	r.query = query
	if r.err != nil {
		return nil, r.err
	}
	out := make([]schema.QueryMatch, 0, len(matches))
	for i := len(matches) - 1; i >= 0 && len(out) < r.keep; i-- {
		out = append(out, matches[i])
	}
	return out, nil
}

func TestAnswerAppliesReranker(t *testing.T) {
	idx := newRecordingIndex()
	idx.matches = []schema.QueryMatch{match("x_0", "a", 0.9), match("x_1", "b", 0.8), match("y_0", "c", 0.7)}
	gen := &recordingGenerator{answer: "ok"}
	rr := &reverseReranker{keep: 2}

	p := NewRetrievalPipeline(&fakeEmbedder{}, idx, gen, RetrievalOptions{IndexName: testIndex, Reranker: rr}, nil)
	ans, err := p.Answer(context.Background(), "  what is X ")
	require.NoError(t, err)

	assert.Equal(t, "what is X", rr.query)
	assert.Equal(t, "c b", gen.requests[0].ContextDocument)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "y_0", ans.Sources[0].ID)
}

func TestAnswerRerankerDroppingAllIsNoMatches(t *testing.T) {
	idx := newRecordingIndex()
	idx.matches = []schema.QueryMatch{match("x_0", "a", 0.9)}
	gen := &recordingGenerator{answer: "made up"}

	p := NewRetrievalPipeline(&fakeEmbedder{}, idx, gen, RetrievalOptions{IndexName: testIndex, Reranker: &reverseReranker{}}, nil)
	ans, err := p.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, ans.NoMatches)
	assert.Empty(t, gen.requests)
}

func TestAnswerRerankerErrorIsReturned(t *testing.T) {
	idx := newRecordingIndex()
	idx.matches = []schema.QueryMatch{match("x_0", "a", 0.9)}
	rr := &reverseReranker{err: errUpstream}

	p := NewRetrievalPipeline(&fakeEmbedder{}, idx, &recordingGenerator{}, RetrievalOptions{IndexName: testIndex, Reranker: rr}, nil)
	_, err := p.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, errUpstream)
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	emb := &fakeEmbedder{}
	gen := &recordingGenerator{}
	p := NewRetrievalPipeline(emb, newRecordingIndex(), gen, RetrievalOptions{IndexName: testIndex}, nil)

	_, err := p.Answer(context.Background(), "  \n\t")
	assert.ErrorIs(t, err, schema.ErrEmptyQuestion)
	assert.Zero(t, emb.Calls())
	assert.Empty(t, gen.requests)
}

func TestAnswerPropagatesProviderErrors(t *testing.T) {
	providerErr := &schema.ProviderError{Op: "embed", Entity: "m", Err: errUpstream}
	gen := &recordingGenerator{}
	p := NewRetrievalPipeline(&fakeEmbedder{err: providerErr}, newRecordingIndex(), gen, RetrievalOptions{IndexName: testIndex}, nil)

	_, err := p.Answer(context.Background(), "q")
	assert.Same(t, providerErr, err)
	assert.Empty(t, gen.requests)

	idx := newRecordingIndex()
	idx.matches = []schema.QueryMatch{match("a_0", "a", 1)}
	gen = &recordingGenerator{err: &schema.ProviderError{Op: "generate", Entity: "llm", Err: errUpstream}}
	p = NewRetrievalPipeline(&fakeEmbedder{}, idx, gen, RetrievalOptions{IndexName: testIndex}, nil)

	_, err = p.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, schema.ErrProviderUnavailable)
}

func TestStuffGeneratorPrompt(t *testing.T) {
	llm := &stubLLM{out: "  forty-two \n"}
	g := NewStuffGenerator(llm, nil)

	out, err := g.Generate(context.Background(), interfaces.GenerateRequest{ContextDocument: "a b c", Question: "what?"})
	require.NoError(t, err)

	assert.Equal(t, "forty-two", out)
	assert.Equal(t, "Use the following pieces of context to answer the question at the end. "+
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n"+
		"a b c\n\nQuestion: what?\nHelpful Answer:", llm.prompt)
}
