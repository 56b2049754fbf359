package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subwave-io/subwave/notify"
	"github.com/subwave-io/subwave/rooms"
	"github.com/subwave-io/subwave/telemetry"
)

const (
	// Default initial retry delay after a source error
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
)

// WorkerConfig configures the feed worker
type WorkerConfig struct {
	Source          Source         // Change-event source
	Decoder         Decoder        // Payload decoder
	Service         *rooms.Service // Match path + name resolution
	Hub             *notify.Hub    // Delivery fan-out
	RetryInitial    time.Duration  // Initial retry delay
	RetryMax        time.Duration  // Max retry delay
	RetryMultiplier float64        // Backoff multiplier
}

// Worker consumes change events from the source, matches them against
// the filter index and signals the delivery hub.
type Worker struct {
	config      WorkerConfig
	stopCh      chan struct{}
	doneCh      chan struct{}
	cancel      context.CancelFunc
	running     atomic.Bool
	lifecycleMu sync.Mutex // Protects Start/Stop lifecycle operations
}

// NewWorker creates a new feed worker
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if config.Decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if config.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if config.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}

	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}

	return &Worker{config: config}, nil
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return // Already running
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	log.Info().Msg("Starting feed worker")

	go w.consumeLoop(ctx)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return // Not running
	}

	log.Info().Msg("Stopping feed worker")

	close(w.stopCh)
	w.cancel()
	<-w.doneCh // Wait for goroutine to finish
	w.running.Store(false)

	if err := w.config.Source.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close feed source")
	}

	log.Info().Msg("Feed worker stopped")
}

// consumeLoop is the main worker loop
func (w *Worker) consumeLoop(ctx context.Context) {
	defer close(w.doneCh)

	backoff := w.config.RetryInitial
	for {
		select {
		case <-w.stopCh:
			return
		default:
			payload, err := w.config.Source.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to read from feed source")
				w.sleep(backoff)
				backoff = nextBackoff(backoff, w.config.RetryMultiplier, w.config.RetryMax)
				continue
			}
			backoff = w.config.RetryInitial
			w.processPayload(payload)
		}
	}
}

// processPayload decodes one payload and pushes matches to the hub.
func (w *Worker) processPayload(payload []byte) {
	event, err := w.config.Decoder(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping undecodable change event")
		telemetry.EventsTotal.With("decode_error").Inc()
		return
	}

	ids := w.config.Service.MatchRooms(event.Collection, event.Document)
	if len(ids) == 0 {
		telemetry.EventsTotal.With("unmatched").Inc()
		return
	}

	names := w.config.Service.ResolveRoomNames(ids)
	w.config.Hub.Signal(notify.Signal{
		Collection: event.Collection,
		Rooms:      ids,
		Names:      names,
		Document:   event.Document,
	})
	telemetry.EventsTotal.With("matched").Inc()
}

func (w *Worker) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.stopCh:
	}
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}
