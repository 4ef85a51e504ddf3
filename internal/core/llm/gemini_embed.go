package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/studybuddy/internal/core"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "text-embedding-004"

// geminiDims are the fixed output sizes of the Gemini embedding models we know.
var geminiDims = map[string]int{
	"text-embedding-004":   768,
	"embedding-001":        768,
	"gemini-embedding-001": 3072,
}

// GeminiDimensions reports the output size of a known Gemini model, or 0.
func GeminiDimensions(model string) int {
	return geminiDims[strings.TrimPrefix(model, "models/")]
}

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

// geminiDimension resolves the vector size for model. The API cannot ask these
// models for another size, so a configured dim that differs is an error.
// dim 0 takes the model's own size.
func geminiDimension(model string, dim int) (int, error) {
	native := GeminiDimensions(model)
	switch {
	case native == 0:
		return dim, nil
	case dim == 0:
		return native, nil
	case dim != native:
		return 0, fmt.Errorf("gemini model %s produces %d-dim vectors, configured %d", model, native, dim)
	}
	return dim, nil
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	dim, err := geminiDimension(modelName, dim)
	if err != nil {
		return nil, err
	}

	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dim }

// EmbedTexts batches all texts in one request via EmbeddingBatch.
// The response preserves request order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini batch embed: %v", core.ErrEmbedding, err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
