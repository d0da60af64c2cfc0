package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-settings/internal/protocol"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// Bridge operation constants.
const (
	// defaultCommandTimeout bounds how long a remote command waits for the
	// registry queue. A command that has started always runs to completion.
	defaultCommandTimeout = 5 * time.Second

	// breakerFailures is the number of consecutive publish failures that
	// open the circuit.
	breakerFailures = 5

	// breakerTimeout is how long the circuit stays open before a trial publish.
	breakerTimeout = 10 * time.Second
)

// Bridge exposes a settings registry to remote peers over MQTT.
// It handles:
//   - Receiving command frames on the node's command topic and running them
//     through a protocol.Executor on the registry queue
//   - Publishing response records and a status message per command
//   - Publishing every value change and recording it in the change log
//
// Thread Safety: All exported methods are safe for concurrent use, except
// WithSource, which must run on the registry queue.
type Bridge struct {
	node     string
	topics   mqtt.Topics
	qos      byte
	timeout  time.Duration
	reg      *settings.Registry
	queue    Runner
	mqtt     MQTTClient
	exec     *protocol.Executor
	changes  ChangeLog // Optional change log
	recorder Recorder  // Optional telemetry
	onChange ChangeFunc
	breaker  *gobreaker.CircuitBreaker[struct{}]

	// source attributes value changes to a surface. Only touched on the queue.
	source string

	commandsRx     atomic.Uint64
	commandsFailed atomic.Uint64
	changesTx      atomic.Uint64

	// Shutdown coordination. doneMu orders wg.Add against close(done).
	doneMu    sync.Mutex
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a fake.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Runner serializes access to the registry. *settings.Queue implements it.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChangeLog records which surface changed a setting.
// *settings.SQLiteChangeLog implements it.
type ChangeLog interface {
	Record(ctx context.Context, id uint16, key, source string) error
}

// Recorder receives command and change telemetry.
// *influxdb.Client implements it.
type Recorder interface {
	WriteCommand(command string, status byte, duration time.Duration)
	WriteSettingChange(id uint16, key, typ string, size int)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// StatusMessage is published to the status topic after every command.
type StatusMessage struct {
	Command   string    `json:"command"`
	Status    byte      `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options holds configuration for creating a bridge.
type Options struct {
	// NodeID selects the glsettings/{node}/... topics.
	NodeID string

	// Registry is the loaded settings registry.
	Registry *settings.Registry

	// Queue runs every registry call. The registry's owner must submit all
	// other work to the same queue.
	Queue Runner

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// QoS for the command subscription and all publishes.
	QoS byte

	// CommandTimeout bounds the wait for the queue. Zero uses 5s.
	CommandTimeout time.Duration

	// ResponseBufferSize is passed to the executor. Zero keeps its default.
	ResponseBufferSize int

	// ChangeLog is optional. If nil, changes are published but not recorded.
	ChangeLog ChangeLog

	// Recorder is optional telemetry.
	Recorder Recorder

	// OnChange is optional. It runs on the queue after every value change,
	// once the change is published and recorded.
	OnChange ChangeFunc

	// Logger is optional structured logger.
	Logger Logger
}

// ChangeFunc observes a value change and the surface it came from.
type ChangeFunc func(id uint16, key, source string)

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.NodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		node:      opts.NodeID,
		qos:       opts.QoS,
		timeout:   timeout,
		reg:       opts.Registry,
		queue:     opts.Queue,
		mqtt:      opts.MQTTClient,
		changes:   opts.ChangeLog,
		recorder:  opts.Recorder,
		onChange:  opts.OnChange,
		source:    settings.ChangeSourceRemote,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logWarn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	execOpts := []protocol.ExecutorOption{}
	if opts.ResponseBufferSize > 0 {
		execOpts = append(execOpts, protocol.WithResponseBufferSize(opts.ResponseBufferSize))
	}
	if opts.Logger != nil {
		execOpts = append(execOpts, protocol.WithLogger(opts.Logger))
	}
	b.exec = protocol.NewExecutor(opts.Registry, protocol.Binary{},
		protocol.ResponseWriterFunc(b.writeResponse), execOpts...)

	return b, nil
}

// Start installs the change hook and subscribes to the command topic.
func (b *Bridge) Start(ctx context.Context) error {
	err := b.queue.Do(ctx, func(context.Context) error {
		b.reg.SetGlobalChangeFunc(b.handleChange)
		return nil
	})
	if err != nil {
		return fmt.Errorf("installing change hook: %w", err)
	}

	commandTopic := b.topics.Command(b.node)
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.logInfo("bridge started",
		"node", b.node,
		"settings", b.reg.Len())

	return nil
}

// Stop unsubscribes and waits for in-flight commands.
// The change hook is removed if the queue is still running.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.doneMu.Lock()
		close(b.done)
		b.doneMu.Unlock()

		if err := b.mqtt.Unsubscribe(b.topics.Command(b.node)); err != nil {
			b.logDebug("unsubscribe failed", "error", err)
		}

		// Cancel bridge context to abort commands waiting for the queue
		b.ctxCancel()

		b.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		err := b.queue.Do(ctx, func(context.Context) error {
			b.reg.SetGlobalChangeFunc(nil)
			return nil
		})
		if err != nil {
			b.logDebug("change hook not removed", "error", err)
		}

		b.logInfo("bridge stopped")
	})
}

// WithSource runs fn with value changes attributed to source in the change
// log. It must be called on the registry queue, for example from a console
// command wrapper.
func (b *Bridge) WithSource(source string, fn func() error) error {
	prev := b.source
	b.source = source
	defer func() { b.source = prev }()
	return fn()
}

// handleCommand runs one command frame received from MQTT.
//
// The status message is published only after the command has finished, so
// it always follows the last response record.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	if !b.enter() {
		return nil
	}
	defer b.wg.Done()

	b.commandsRx.Add(1)
	name := commandName(payload)
	start := time.Now()

	err := b.run(payload)

	status := protocol.StatusCode(err)
	if err != nil {
		b.commandsFailed.Add(1)
		b.logDebug("command failed", "command", name, "status", status, "error", err)
	}
	if b.recorder != nil {
		b.recorder.WriteCommand(name, status, time.Since(start))
	}

	b.publishStatus(name, status, err)
	return nil
}

// enter registers an in-flight command. It reports false once Stop has begun.
func (b *Bridge) enter() bool {
	b.doneMu.Lock()
	defer b.doneMu.Unlock()
	select {
	case <-b.done:
		return false
	default:
	}
	b.wg.Add(1)
	return true
}

// run executes payload on the queue. The timeout applies until the job is
// picked up; after that run waits for the job's own result.
func (b *Bridge) run(payload []byte) error {
	var claimed atomic.Bool
	result := make(chan error, 1)

	waitCtx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	err := b.queue.Do(waitCtx, func(context.Context) error {
		if !claimed.CompareAndSwap(false, true) {
			return waitCtx.Err()
		}
		err := b.WithSource(settings.ChangeSourceRemote, func() error {
			return b.exec.ParseAndExecute(b.ctx, payload)
		})
		result <- err
		return err
	})
	if err == nil {
		return nil
	}
	if claimed.CompareAndSwap(false, true) {
		// Never started and never will.
		return err
	}
	return <-result
}

// writeResponse publishes one response record. Publish waits for the
// broker, so the executor may reuse frame once it returns.
func (b *Bridge) writeResponse(_ context.Context, frame []byte) error {
	return b.publish(b.topics.Response(b.node), frame)
}

// publishStatus publishes the outcome of a command.
func (b *Bridge) publishStatus(command string, status byte, cmdErr error) {
	msg := StatusMessage{
		Command:   command,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if cmdErr != nil {
		msg.Error = cmdErr.Error()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal status", err)
		return
	}
	if err := b.publish(b.topics.Status(b.node), payload); err != nil {
		b.logError("failed to publish status", err)
	}
}

// handleChange is the registry's global change callback. It runs on the queue.
func (b *Bridge) handleChange(id uint16, key string) {
	s, ok := b.reg.Lookup(id)
	if !ok {
		return
	}

	frame := make([]byte, protocol.EncodedLen(s))
	n, err := protocol.Encode(s, frame)
	if err != nil {
		b.logError("failed to encode change", err)
	} else if err := b.publish(b.topics.Changed(b.node), frame[:n]); err != nil {
		b.logError("failed to publish change", err)
	} else {
		b.changesTx.Add(1)
	}

	if b.changes != nil {
		if err := b.changes.Record(b.ctx, id, key, b.source); err != nil {
			b.logError("failed to record change", err)
		}
	}
	if b.recorder != nil {
		b.recorder.WriteSettingChange(id, key, s.Type().String(), s.ValueLen())
	}
	if b.onChange != nil {
		b.onChange(id, key, b.source)
	}

	b.logDebug("setting changed", "id", id, "key", key, "source", b.source)
}

// publish sends payload through the circuit breaker.
func (b *Bridge) publish(topic string, payload []byte) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.mqtt.Publish(topic, payload, b.qos, false)
	})
	return err
}

// commandName names a frame for logs and metrics without decoding it.
func commandName(frame []byte) string {
	if len(frame) == 0 {
		return "empty"
	}
	return protocol.CommandType(frame[0]).String()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains bridge counters for health checks and logs.
type BridgeMetrics struct {
	Connected      bool
	Status         string
	Breaker        string
	CommandsRx     uint64
	CommandsFailed uint64
	ChangesTx      uint64
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	connected := b.mqtt.IsConnected()
	status := "disconnected"
	if connected {
		status = "healthy"
	}
	return BridgeMetrics{
		Connected:      connected,
		Status:         status,
		Breaker:        b.breaker.State().String(),
		CommandsRx:     b.commandsRx.Load(),
		CommandsFailed: b.commandsFailed.Load(),
		ChangesTx:      b.changesTx.Load(),
	}
}
