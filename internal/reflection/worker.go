// Package reflection implements the background reflection worker
// (component F): it drains the durable task queue, asks the oracle to
// analyze each interaction against the memory store's existing knowledge,
// and applies the resulting NEW/UPDATE/KEPT decision back to the store.
// Grounded on original_source/src/ace_rm/workers/background.py's
// BackgroundWorker, restructured around a ticker rather than a sleep loop
// to match the donor's own reflection-worker idiom
// (internal/store/reflection_worker.go's Start/Stop channel protocol).
package reflection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"acemem/internal/config"
	"acemem/internal/logging"
	"acemem/internal/memstore"
	"acemem/internal/oracle"
	"acemem/internal/queue"
)

// Worker runs the ticker-driven reflection loop against one memory store
// and task queue pair.
type Worker struct {
	memory *memstore.Memory
	queue  *queue.Queue
	oracle oracle.Client
	cfg    config.ReflectionConfig
	lang   string

	stop chan struct{}
	done chan struct{}
}

// New builds a Worker. lang selects the oracle prompt language ("en" or
// "ja"; anything else falls back to English).
func New(memory *memstore.Memory, q *queue.Queue, client oracle.Client, cfg config.ReflectionConfig, lang string) *Worker {
	return &Worker{
		memory: memory,
		queue:  q,
		oracle: client,
		cfg:    cfg,
		lang:   lang,
	}
}

// Start launches the worker loop in a background goroutine. Calling Start
// while already running is a no-op.
func (w *Worker) Start() {
	if w.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop = stop
	w.done = done
	go w.run(stop, done)
}

// Stop signals the loop to exit and waits for it to finish, up to 5s.
func (w *Worker) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
	}
	w.stop = nil
	w.done = nil
}

func (w *Worker) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := w.cfg.PollIntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var recoveryC <-chan time.Time
	if w.cfg.RecoveryEnabled {
		recoveryTicker := time.NewTicker(w.cfg.RecoveryMaxAgeDuration())
		defer recoveryTicker.Stop()
		recoveryC = recoveryTicker.C
	}

	logging.Reflection("reflection worker started, poll_interval=%s", interval)

	w.drain()
	for {
		select {
		case <-stop:
			logging.Reflection("reflection worker stopping")
			return
		case <-ticker.C:
			w.drain()
		case <-recoveryC:
			w.recoverStale()
		}
	}
}

// drain processes pending tasks back-to-back until the queue reports none
// left, so a backlog doesn't wait a full poll interval per task - the
// ticker-driven equivalent of the original's fetch-or-sleep loop.
func (w *Worker) drain() {
	ctx := context.Background()
	for {
		task, err := w.queue.FetchPending(ctx)
		if err != nil {
			logging.ReflectionError("fetch pending task: %v", err)
			return
		}
		if task == nil {
			return
		}
		w.process(ctx, task)
	}
}

func (w *Worker) recoverStale() {
	ctx := context.Background()
	recovered, failed, err := w.queue.RecoverStale(ctx, w.cfg.RecoveryMaxAgeDuration(), w.cfg.RecoveryMaxRetries)
	if err != nil {
		logging.ReflectionError("stale task recovery: %v", err)
		return
	}
	if recovered > 0 || failed > 0 {
		logging.Reflection("stale recovery: reset=%d failed=%d", recovered, failed)
	}
}

// process runs the unified-analysis pipeline for a single task: a locality
// probe against existing documents, one oracle round-trip deciding
// should_store/action, then a NEW/UPDATE/KEPT dispatch against the memory
// store. Matches process_task's control flow exactly, including its error
// classification: a locality-probe or oracle call failure marks the task
// failed (MarkFailed; failed tasks are not retried automatically), while an
// empty or unparseable response marks it done (MarkDone, so the same bad
// output is not processed again).
func (w *Worker) process(ctx context.Context, task *queue.Task) {
	logging.ReflectionDebug("processing task %d", task.ID)

	searchQuery := task.UserInput + "\n" + truncate(task.AgentOutput, 200)
	similar, err := w.memory.FindSimilar(ctx, searchQuery, w.cfg.LooseThreshold)
	if err != nil {
		logging.ReflectionError("task %d: locality probe failed: %v", task.ID, err)
		if markErr := w.queue.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			logging.ReflectionError("task %d: mark failed: %v", task.ID, markErr)
		}
		return
	}

	var docs []string
	for i, d := range similar {
		if i >= 3 {
			break
		}
		docs = append(docs, fmt.Sprintf("ID: %d\nContent: %s", d.ID, d.Content))
	}

	prompt := oracle.BuildUnifiedAnalysisPrompt(w.lang, task.UserInput, task.AgentOutput, docs)
	raw, err := w.oracle.Invoke(ctx, prompt)
	if err != nil {
		logging.ReflectionError("task %d: oracle invoke failed: %v", task.ID, err)
		if markErr := w.queue.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			logging.ReflectionError("task %d: mark failed: %v", task.ID, markErr)
		}
		return
	}

	analysis, err := oracle.ParseUnifiedAnalysis(raw)
	if err != nil {
		if errors.Is(err, oracle.ErrEmptyResponse) {
			logging.ReflectionDebug("task %d: empty oracle response, skipping", task.ID)
		} else {
			logging.ReflectionWarn("task %d: unparseable oracle response: %v", task.ID, err)
		}
		if markErr := w.queue.MarkDone(ctx, task.ID); markErr != nil {
			logging.ReflectionError("task %d: mark done: %v", task.ID, markErr)
		}
		return
	}

	if !analysis.ShouldStore {
		logging.ReflectionDebug("task %d: ignored (should_store=false)", task.ID)
		if err := w.queue.MarkDone(ctx, task.ID); err != nil {
			logging.ReflectionError("task %d: mark done: %v", task.ID, err)
		}
		return
	}

	structured := w.structureAsKnowledgeModel(ctx, task.UserInput, task.AgentOutput, analysis.Analysis)

	switch strings.ToUpper(analysis.Action) {
	case oracle.ActionUpdate:
		if analysis.TargetDocID == nil {
			logging.ReflectionWarn("task %d: action=UPDATE with no target_doc_id, treating as NEW", task.ID)
			if err := w.addDocument(ctx, task.ID, structured, analysis); err != nil {
				if markErr := w.queue.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
					logging.ReflectionError("task %d: mark failed: %v", task.ID, markErr)
				}
				return
			}
			break
		}
		if err := w.memory.UpdateDocument(ctx, *analysis.TargetDocID, structured, analysis.Entities, analysis.ProblemClass); err != nil {
			logging.ReflectionError("task %d: update document %d: %v", task.ID, *analysis.TargetDocID, err)
			if markErr := w.queue.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
				logging.ReflectionError("task %d: mark failed: %v", task.ID, markErr)
			}
			return
		}
		logging.Reflection("task %d: updated document %d", task.ID, *analysis.TargetDocID)
	case oracle.ActionKept:
		logging.ReflectionDebug("task %d: knowledge kept (redundant)", task.ID)
	default: // NEW, and any action the oracle didn't format as expected
		if err := w.addDocument(ctx, task.ID, structured, analysis); err != nil {
			if markErr := w.queue.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
				logging.ReflectionError("task %d: mark failed: %v", task.ID, markErr)
			}
			return
		}
	}

	if err := w.queue.MarkDone(ctx, task.ID); err != nil {
		logging.ReflectionError("task %d: mark done: %v", task.ID, err)
	}
}

func (w *Worker) addDocument(ctx context.Context, taskID int64, content string, analysis *oracle.UnifiedAnalysis) error {
	id, err := w.memory.Add(ctx, content, analysis.Entities, analysis.ProblemClass)
	if err != nil {
		logging.ReflectionError("task %d: add document: %v", taskID, err)
		return err
	}
	logging.Reflection("task %d: added new document %d", taskID, id)
	return nil
}

// structureAsKnowledgeModel applies the knowledge-model structuring prompt
// to turn raw analysis text into a standalone, reusable entry, falling
// back to the raw analysis on any failure or empty result - matching
// _structure_as_knowledge_model's fallback behavior exactly.
func (w *Worker) structureAsKnowledgeModel(ctx context.Context, userInput, agentOutput, rawAnalysis string) string {
	prompt := oracle.BuildKnowledgeModelPrompt(w.lang, userInput, agentOutput, rawAnalysis)
	result, err := w.oracle.Invoke(ctx, prompt)
	if err != nil {
		logging.ReflectionWarn("knowledge model structuring failed, using raw analysis: %v", err)
		return rawAnalysis
	}
	result = strings.TrimSpace(result)
	if result == "" {
		logging.ReflectionDebug("knowledge model structuring: empty response, using raw analysis")
		return rawAnalysis
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
