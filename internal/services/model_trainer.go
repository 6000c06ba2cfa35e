package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// ModelTrainer owns background retraining. It checks the retraining policy
// on a fixed interval and whenever a request reports stale models, so the
// inference path never waits for training.
type ModelTrainer struct {
	engine        *RecommendationEngine
	checkInterval time.Duration
	logger        *logrus.Logger

	triggerChan chan struct{}
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mutex      sync.RWMutex
	lastResult *models.TrainingResult
}

func NewModelTrainer(engine *RecommendationEngine, checkInterval time.Duration, logger *logrus.Logger) *ModelTrainer {
	if checkInterval <= 0 {
		checkInterval = 15 * time.Minute
	}
	t := &ModelTrainer{
		engine:        engine,
		checkInterval: checkInterval,
		logger:        logger,
		triggerChan:   make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
	engine.SetRetrainTrigger(t.Trigger)
	return t
}

// Start launches the worker. The first policy check runs immediately.
func (t *ModelTrainer) Start() {
	t.wg.Add(1)
	go t.trainingWorker()
	t.Trigger()
}

// Stop waits for an in-flight training run to finish.
func (t *ModelTrainer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.wg.Wait()
}

// Trigger requests a policy check without blocking. Requests coalesce while
// one is pending.
func (t *ModelTrainer) Trigger() {
	select {
	case t.triggerChan <- struct{}{}:
	default:
	}
}

// LastResult returns the outcome of the most recent background run.
func (t *ModelTrainer) LastResult() *models.TrainingResult {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lastResult
}

func (t *ModelTrainer) trainingWorker() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.triggerChan:
			t.run()
		case <-ticker.C:
			t.run()
		case <-t.stopChan:
			return
		}
	}
}

func (t *ModelTrainer) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-t.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	result := t.engine.TrainModels(ctx, false)

	t.mutex.Lock()
	t.lastResult = result
	t.mutex.Unlock()

	if result.Status != models.TrainingSkipped {
		t.logger.WithFields(logrus.Fields{
			"status":        result.Status,
			"model_version": result.ModelVersion,
		}).Info("Background training finished")
	}
}
