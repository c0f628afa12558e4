package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/moa/backend/internal/db"
	"github.com/OFFIS-RIT/moa/backend/internal/util"
	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/cache"
	"github.com/OFFIS-RIT/moa/backend/pkg/chunk"
	"github.com/OFFIS-RIT/moa/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
	"github.com/OFFIS-RIT/moa/backend/pkg/match"
	"github.com/OFFIS-RIT/moa/backend/pkg/solver"

	pgxstore "github.com/OFFIS-RIT/moa/backend/pkg/graphstore/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// SolveStep is one planned sub-query with its logic-form expression.
type SolveStep struct {
	SubQuery  string `json:"sub_query"`
	LogicForm string `json:"logic_form"`
}

// QueueSolveMsg is the payload published to the solve queue.
type QueueSolveMsg struct {
	QuestionID string      `json:"question_id"`
	Question   string      `json:"question"`
	Steps      []SolveStep `json:"steps"`
	ForceChunk bool        `json:"force_chunk"`
}

// SolvePipeline holds the long-lived pieces of the solve flow: the graph
// store, the matchers, the chunk retriever and the shared advisory caches.
// Caches are shared across questions; identical keys may race, which is
// harmless because recomputation is idempotent.
type SolvePipeline struct {
	conn     *pgxpool.Pool
	ch       *amqp091.Channel
	aiClient ai.SolverAIClient

	exact     match.Matcher
	fuzzy     match.Matcher
	retriever *chunk.Retriever
	locks     *leaselock.Client
}

// NewSolvePipeline builds the pipeline once per process. When REDIS_URL is
// set the caches are shared across workers, otherwise they stay in-process.
func NewSolvePipeline(conn *pgxpool.Pool, ch *amqp091.Channel, aiClient ai.SolverAIClient) *SolvePipeline {
	store := pgxstore.NewStore(conn)

	var nerCache, simCache, predicateCache cache.Cache
	if redisURL := util.GetEnv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "err", err)
		}
		client := redis.NewClient(opts)
		nerCache = cache.NewRedisCache(client, "solve", time.Hour)
		simCache = cache.NewRedisCache(client, "solve", 30*time.Minute)
		predicateCache = cache.NewRedisCache(client, "solve", time.Hour)
	} else {
		nerCache = cache.NewMemoryCache(2048, time.Hour)
		simCache = cache.NewMemoryCache(2048, 30*time.Minute)
		predicateCache = cache.NewMemoryCache(2048, time.Hour)
	}

	return &SolvePipeline{
		conn:     conn,
		ch:       ch,
		aiClient: aiClient,
		exact:    match.NewExactMatcher(store),
		fuzzy:    match.NewFuzzyMatcher(store, aiClient, predicateCache),
		locks:    leaselock.New(conn),
		retriever: chunk.NewRetriever(chunk.RetrieverParams{
			Store:           store,
			Search:          store,
			AIClient:        aiClient,
			NERCache:        nerCache,
			SimilarityCache: simCache,
			RecallNum:       int(util.GetEnvNumeric("SOLVE_RECALL_NUM", 10)),
		}),
	}
}

// ProcessSolveMessage answers one queued question and persists the outcome.
// A lease on the question id keeps a redelivered message from running the
// same question on two workers at once.
func (p *SolvePipeline) ProcessSolveMessage(ctx context.Context, msg string) error {
	data := new(QueueSolveMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	err := p.locks.WithLease(ctx, "question:"+data.QuestionID, leaselock.Options{
		TTL:         10 * time.Minute,
		TokenPrefix: "solver-",
	}, func(ctx context.Context) error {
		return p.solveQuestion(ctx, data)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Skipping question: another worker holds the lease", "question_id", data.QuestionID)
		return nil
	}
	return err
}

func (p *SolvePipeline) solveQuestion(ctx context.Context, data *QueueSolveMsg) (err error) {
	q := db.New(p.conn)
	if err = q.TryStartQuestion(ctx, data.QuestionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Info("[Queue] Skipping question: already claimed or not pending", "question_id", data.QuestionID)
			return nil
		}
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if updateErr := q.SetQuestionFailed(updateCtx, data.QuestionID, err.Error()); updateErr != nil {
			logger.Warn("[Queue] Failed to mark question as failed", "question_id", data.QuestionID, "err", updateErr)
		}
	}()

	tracer := &topicTracer{ch: p.ch, questionID: data.QuestionID}
	result, err := p.Solve(ctx, data.Question, data.Steps, data.ForceChunk, tracer)
	if err != nil {
		return fmt.Errorf("failed to execute question %s: %w", data.QuestionID, err)
	}

	subResults, err := marshalSubResults(result.SubResults)
	if err != nil {
		return err
	}
	if err = q.SetQuestionAnswer(ctx, data.QuestionID, result.Answer, subResults); err != nil {
		return fmt.Errorf("failed to persist answer for question %s: %w", data.QuestionID, err)
	}

	logger.Info("[Queue] Question answered", "question_id", data.QuestionID, "steps", len(result.SubResults))
	return nil
}

// Solve parses the planned steps and runs the executor over them. Shared
// between the queue consumer and the synchronous solve route.
func (p *SolvePipeline) Solve(ctx context.Context, question string, steps []SolveStep, forceChunk bool, tracer solver.Tracer) (*solver.LFExecuteResult, error) {
	plans := parsePlans(steps)
	if len(plans) == 0 {
		return nil, errors.New("no parseable steps in plan")
	}

	executor := solver.NewExecutor(solver.ExecutorParams{
		Exact:     p.exact,
		Fuzzy:     p.fuzzy,
		Retriever: p.retriever,
		AIClient:  p.aiClient,
		Runner: solver.NewPythonRunner(
			util.GetEnvString("MATH_INTERPRETER", "python3"),
			time.Duration(util.GetEnvNumeric("MATH_TIMEOUT_SEC", 10))*time.Second,
		),
		Tracer:         tracer,
		ForceChunk:     forceChunk || util.GetEnvBool("FORCE_CHUNK_RETRIEVER", false),
		VoteStrategies: int(util.GetEnvNumeric("MATH_VOTE_STRATEGIES", 1)),
	})

	return executor.Execute(ctx, question, plans)
}

// parsePlans parses every step, dropping malformed ones. Planner output is
// LLM-generated and occasionally malformed; dropping a step is preferable
// to failing the whole question.
func parsePlans(steps []SolveStep) []solver.LFPlan {
	parser := logicform.NewParser()
	plans := make([]solver.LFPlan, 0, len(steps))
	for _, step := range steps {
		node, err := parser.Parse(step.LogicForm)
		if err != nil {
			logger.Warn("[Queue] Dropping malformed step", "sub_query", step.SubQuery, "err", err)
			continue
		}
		plans = append(plans, solver.LFPlan{SubQuery: step.SubQuery, Node: node})
	}
	return plans
}

func marshalSubResults(results []*solver.SubQueryResult) (json.RawMessage, error) {
	raws := make([]json.RawMessage, 0, len(results))
	for _, r := range results {
		raw, err := r.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize sub result: %w", err)
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

// topicTracer publishes step progress to the pubsub exchange so clients can
// follow a long-running question.
type topicTracer struct {
	ch         *amqp091.Channel
	questionID string
}

func (t *topicTracer) Record(event solver.TraceEvent) {
	if t.ch == nil || event.Kind != solver.TraceEventStepState {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"question_id": t.questionID,
		"sub_query":   event.SubQuery,
		"state":       event.State,
		"match_type":  event.MatchType,
		"duration_ms": event.DurationMs,
	})
	if err != nil {
		return
	}
	if err := PublishTopic(t.ch, "solve."+t.questionID, payload); err != nil {
		logger.Debug("[Queue] Failed to publish progress", "question_id", t.questionID, "err", err)
	}
}
