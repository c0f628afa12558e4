package openai

import (
	"sync"

	"github.com/OFFIS-RIT/moa/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// SolverOpenAIClient implements ai.SolverAIClient against OpenAI-compatible
// endpoints. It manages separate clients for embeddings and chat tasks so
// both can point at different providers.
//
// A SolverOpenAIClient should be created using NewSolverOpenAIClient.
type SolverOpenAIClient struct {
	embeddingModel  string
	chatModel       string
	extractionModel string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	embeddingLock *semaphore.Weighted
	timeoutMin    int

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewSolverOpenAIClientParams defines the configuration for creating a new
// SolverOpenAIClient.
//
// ChatModel is used for free-form generation and final answers.
// ExtractionModel is used for schema-constrained calls (entity extraction,
// predicate arbitration, deduction verdicts).
// EmbeddingModel together with EmbeddingURL/EmbeddingKey configures the
// embedding endpoint; ChatURL/ChatKey configure the chat endpoint.
type NewSolverOpenAIClientParams struct {
	EmbeddingModel  string
	ChatModel       string
	ExtractionModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentEmbeddings int64
	TimeoutMin              int
}

// NewSolverOpenAIClient creates and returns a new SolverOpenAIClient
// configured with the provided parameters.
func NewSolverOpenAIClient(
	params NewSolverOpenAIClientParams,
) *SolverOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxEmbed := params.MaxConcurrentEmbeddings
	if maxEmbed <= 0 {
		maxEmbed = 4
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}

	return &SolverOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		chatModel:       params.ChatModel,
		extractionModel: params.ExtractionModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		embeddingLock: semaphore.NewWeighted(maxEmbed),
		timeoutMin:    timeoutMin,

		metricsLock: sync.Mutex{},
		metrics: ai.ModelMetrics{
			InputTokens:  0,
			OutputTokens: 0,
			TotalTokens:  0,
			DurationMs:   0,
		},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
