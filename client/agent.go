// Package client implements the client side of a federated training run:
// an agent that registers with the coordinator, waits for rounds it is
// chosen for, trains locally and reports its parameters back.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/google/uuid"
)

type State string

const (
	Idle        State = "idle"
	Registering State = "registering"
	Polling     State = "polling"
	Training    State = "training"
	Uploading   State = "uploading"
	Reporting   State = "reporting"
	Terminated  State = "terminated"
)

// ErrReport is returned when a trained update could not be published. The
// round is retried on the next broadcast for the same epoch.
var ErrReport = errors.New("failed to report update")

var errAnnounce = errors.New("failed to repeat registration")

type Snapshot struct {
	ID          string  `json:"id"`
	Prefix      string  `json:"prefix"`
	State       State   `json:"state"`
	Registered  bool    `json:"registered"`
	ClientEpoch int     `json:"client_epoch"`
	Acc         float64 `json:"acc"`
	Loss        float64 `json:"loss"`
}

type Agent struct {
	id               string
	prefix           string
	pollInterval     time.Duration
	registerInterval time.Duration
	channel          channel.Channel
	store            artifact.Store
	trainer          Trainer
	logger           *slog.Logger

	mu           sync.Mutex
	state        State
	registered   bool
	acknowledged bool
	registeredAt time.Time
	clientEpoch  int
	// lastRound is the current_epoch of the last round reported. It keeps a
	// client that skipped rounds from retraining on a repeated broadcast.
	lastRound    int
	acc          float64
	loss         float64
}

func NewAgent(cfg Config, ch channel.Channel, store artifact.Store, trainer Trainer, logger *slog.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = uuid.NewString()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RegisterInterval == 0 {
		cfg.RegisterInterval = defaultRegisterInterval
	}
	wk, _ := artifact.ClientKeys(cfg.Prefix, cfg.ID)
	if err := artifact.ValidateKey(wk); err != nil {
		return nil, fmt.Errorf("invalid client id or prefix: %w", err)
	}
	if err := channel.ValidateKey(channel.InboxKey(cfg.ID)); err != nil {
		return nil, fmt.Errorf("invalid client id: %w", err)
	}

	return &Agent{
		id:               cfg.ID,
		prefix:           cfg.Prefix,
		pollInterval:     cfg.PollInterval,
		registerInterval: cfg.RegisterInterval,
		channel:          ch,
		store:            store,
		trainer:          trainer,
		logger:           logger.With(slog.String("client_id", cfg.ID)),
		state:            Idle,
	}, nil
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) Prefix() string {
	return a.prefix
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		ID:          a.id,
		Prefix:      a.prefix,
		State:       a.state,
		Registered:  a.registered,
		ClientEpoch: a.clientEpoch,
		Acc:         a.acc,
		Loss:        a.loss,
	}
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) currentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// Register announces the agent to the coordinator. It subscribes the
// agent's inbox first so no broadcast sent in reply is missed. Once it has
// succeeded, further calls do nothing.
func (a *Agent) Register(ctx context.Context) error {
	a.mu.Lock()
	if a.registered || a.state == Terminated {
		a.mu.Unlock()

		return nil
	}
	a.state = Registering
	a.mu.Unlock()

	if err := a.register(ctx); err != nil {
		a.setState(Idle)

		return err
	}

	a.mu.Lock()
	a.registered = true
	a.registeredAt = time.Now()
	a.state = Polling
	a.mu.Unlock()
	a.logger.Info("registered with coordinator")

	return nil
}

func (a *Agent) register(ctx context.Context) error {
	if err := channel.Subscribe(ctx, a.channel, channel.InboxKey(a.id)); err != nil {
		return fmt.Errorf("failed to subscribe inbox: %w", err)
	}

	return a.announce(ctx)
}

func (a *Agent) announce(ctx context.Context) error {
	payload, err := fl.EncodeRegistration(a.id)
	if err != nil {
		return err
	}
	if err := a.channel.Publish(ctx, channel.RegisterKey, payload); err != nil {
		return fmt.Errorf("failed to publish registration: %w", err)
	}

	return nil
}

// Step performs one poll of the inbox and, when the received message asks
// for it, one complete training round. It returns the state the agent is
// left in. A nil error with Polling means nothing actionable arrived.
func (a *Agent) Step(ctx context.Context) (State, error) {
	s, _, err := a.step(ctx)

	return s, err
}

func (a *Agent) step(ctx context.Context) (State, bool, error) {
	if a.currentState() == Terminated {
		return Terminated, false, nil
	}
	if err := a.Register(ctx); err != nil {
		return a.currentState(), false, err
	}

	payload, err := a.channel.Poll(ctx, channel.InboxKey(a.id))
	if err != nil {
		return Polling, false, fmt.Errorf("failed to poll inbox: %w", err)
	}
	if payload == nil {
		return Polling, false, a.reannounce(ctx)
	}
	a.mu.Lock()
	a.acknowledged = true
	a.mu.Unlock()

	msg, err := fl.DecodeGlobal(payload)
	if err != nil {
		return Polling, true, err
	}

	if msg.Terminal() {
		a.terminate(ctx, msg)

		return Terminated, true, nil
	}

	a.mu.Lock()
	epoch, last := a.clientEpoch, a.lastRound
	a.mu.Unlock()
	if epoch >= msg.CurrentEpoch || last >= msg.CurrentEpoch || !msg.IsChosen(a.id) {
		a.logger.Debug("skipping round",
			slog.Int("current_epoch", msg.CurrentEpoch),
			slog.Int("client_epoch", epoch),
			slog.Bool("chosen", msg.IsChosen(a.id)),
		)

		return Polling, true, nil
	}

	if err := a.runRound(ctx, msg, epoch); err != nil {
		a.setState(Polling)

		return Polling, true, err
	}

	return Polling, true, nil
}

// reannounce repeats the registration while the coordinator has not
// written to the inbox yet and RegisterInterval has passed since the last
// attempt.
func (a *Agent) reannounce(ctx context.Context) error {
	a.mu.Lock()
	due := !a.acknowledged && time.Since(a.registeredAt) >= a.registerInterval
	if due {
		a.registeredAt = time.Now()
	}
	a.mu.Unlock()
	if !due {
		return nil
	}

	a.logger.Debug("coordinator has not answered, registering again")
	if err := a.announce(ctx); err != nil {
		return fmt.Errorf("%w: %w", errAnnounce, err)
	}

	return nil
}

func (a *Agent) terminate(ctx context.Context, msg fl.GlobalRoundMessage) {
	a.setState(Terminated)
	if err := a.channel.Close(ctx); err != nil {
		a.logger.Warn("failed to close channel", slog.Any("error", err))
	}
	a.logger.Info("run finished",
		slog.Int("n_epochs", msg.NEpochs),
		slog.Int("client_epoch", a.Snapshot().ClientEpoch),
	)
}

func (a *Agent) runRound(ctx context.Context, msg fl.GlobalRoundMessage, epoch int) error {
	start := time.Now()
	a.setState(Training)
	a.logger.Info("starting round", slog.Int("current_epoch", msg.CurrentEpoch), slog.Int("client_epoch", epoch))

	params, metrics, err := a.train(ctx, msg)
	if err != nil {
		return err
	}

	a.setState(Uploading)
	wk, bk := artifact.ClientKeys(a.prefix, a.id)
	if err := a.upload(ctx, wk, bk, params); err != nil {
		return err
	}

	a.setState(Reporting)
	update := fl.ClientUpdateMessage{
		ClientID:    a.id,
		Epoch:       epoch,
		GlobalEpoch: msg.CurrentEpoch,
		WeightFile:  wk,
		BiasFile:    bk,
		Acc:         metrics.Acc,
		Loss:        metrics.Loss,
		NumSamples:  metrics.NumSamples,
		Start:       fl.Timestamp(start),
	}
	payload, err := fl.EncodeUpdate(update)
	if err != nil {
		return err
	}
	if err := a.channel.Publish(ctx, channel.UpdateKey, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrReport, err)
	}

	a.mu.Lock()
	a.clientEpoch = epoch + 1
	a.lastRound = msg.CurrentEpoch
	a.acc = metrics.Acc
	a.loss = metrics.Loss
	a.state = Polling
	a.mu.Unlock()

	a.logger.Info("reported update",
		slog.Int("epoch", epoch),
		slog.Int("global_epoch", msg.CurrentEpoch),
		slog.Float64("acc", metrics.Acc),
		slog.Float64("loss", metrics.Loss),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

func (a *Agent) train(ctx context.Context, msg fl.GlobalRoundMessage) (fl.ParamSet, fl.Metrics, error) {
	if err := a.store.Download(ctx, msg.WeightFile); err != nil {
		return fl.ParamSet{}, fl.Metrics{}, err
	}
	if err := a.store.Download(ctx, msg.BiasFile); err != nil {
		return fl.ParamSet{}, fl.Metrics{}, err
	}
	global, err := a.store.Scratch().ReadParams(msg.WeightFile, msg.BiasFile)
	if err != nil {
		return fl.ParamSet{}, fl.Metrics{}, fmt.Errorf("%w: %w", fl.ErrTransfer, err)
	}

	model, err := a.trainer.CreateModel(ctx)
	if err != nil {
		return fl.ParamSet{}, fl.Metrics{}, trainingErr("create model", err)
	}
	if err := model.SetWeights(global); err != nil {
		return fl.ParamSet{}, fl.Metrics{}, trainingErr("set weights", err)
	}
	if err := a.trainer.PreprocessData(ctx); err != nil {
		return fl.ParamSet{}, fl.Metrics{}, trainingErr("preprocess data", err)
	}
	if err := a.trainer.Fit(ctx); err != nil {
		return fl.ParamSet{}, fl.Metrics{}, trainingErr("fit", err)
	}
	metrics, err := a.trainer.Evaluate(ctx)
	if err != nil {
		return fl.ParamSet{}, fl.Metrics{}, trainingErr("evaluate", err)
	}
	params, err := a.trainer.GetParams(ctx)
	if err != nil {
		return fl.ParamSet{}, fl.Metrics{}, trainingErr("get params", err)
	}

	return params, metrics, nil
}

func (a *Agent) upload(ctx context.Context, wk, bk string, params fl.ParamSet) error {
	if err := a.store.Scratch().WriteParams(wk, bk, params); err != nil {
		return fmt.Errorf("%w: %w", fl.ErrTransfer, err)
	}
	if err := a.store.Upload(ctx, wk); err != nil {
		return err
	}

	return a.store.Upload(ctx, bk)
}

func trainingErr(step string, err error) error {
	if errors.Is(err, fl.ErrTraining) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", fl.ErrTraining, step, err)
}

// Run registers the agent and polls until the run terminates or ctx is
// cancelled. Round-scoped failures are logged and polling continues;
// failures of the channel itself end Run. The channel is closed whenever
// Run returns.
func (a *Agent) Run(ctx context.Context) error {
	defer a.release()

	if err := a.Register(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		state, consumed, err := a.step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, fl.ErrMalformedMessage):
			a.logger.Warn("dropped malformed message", slog.Any("error", err))
		case roundScoped(err):
			a.logger.Error("round failed", slog.Any("error", err))
		default:
			return err
		}
		if state == Terminated {
			return nil
		}
		if consumed && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			a.logger.Info("stopping client agent")

			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// release closes the channel unless termination already did.
func (a *Agent) release() {
	if a.currentState() == Terminated {
		return
	}
	if err := a.channel.Close(context.Background()); err != nil && !errors.Is(err, channel.ErrClosed) {
		a.logger.Warn("failed to close channel", slog.Any("error", err))
	}
}

func roundScoped(err error) bool {
	switch {
	case errors.Is(err, fl.ErrTransfer),
		errors.Is(err, fl.ErrTraining),
		errors.Is(err, ErrReport),
		errors.Is(err, errAnnounce):
		return true
	default:
		return false
	}
}
