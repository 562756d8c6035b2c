package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/google/uuid"
)

const resumePageSize = 100

var (
	errEmptyInitial   = errors.New("initial parameters are empty")
	errAlreadyStarted = errors.New("coordinator already started")
)

var _ Service = (*service)(nil)

type service struct {
	cfg        Config
	channel    channel.Channel
	store      artifact.Store
	clients    storage.ClientRepository
	rounds     storage.RoundRepository
	selector   scheduler.Selector
	aggregator fl.Aggregator
	converged  fl.ConvergenceCheck
	initial    fl.ParamSet
	logger     *slog.Logger

	mu       sync.Mutex
	phase    Phase
	registry []string
	known    map[string]struct{}
	epoch    int
	chosen   []string
	buffer   []fl.ClientUpdateMessage
	received map[string]time.Time
	openedAt time.Time
	deadline time.Time
	// weightKey and biasKey name the latest global state.
	weightKey string
	biasKey   string
	last      *fl.Metrics
	done      bool
}

func NewService(
	cfg Config,
	ch channel.Channel,
	store artifact.Store,
	clients storage.ClientRepository,
	rounds storage.RoundRepository,
	selector scheduler.Selector,
	aggregator fl.Aggregator,
	initial fl.ParamSet,
	logger *slog.Logger,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	check, err := fl.NewConvergenceCheck(cfg.Convergence, cfg.ConvergentValue)
	if err != nil {
		return nil, err
	}
	if initial.Weights.Len() == 0 || initial.Bias.Len() == 0 {
		return nil, errEmptyInitial
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	wk, _ := artifact.GlobalKeys(cfg.RunID, cfg.NEpochs)
	if err := artifact.ValidateKey(wk); err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}

	return &service{
		cfg:        cfg,
		channel:    ch,
		store:      store,
		clients:    clients,
		rounds:     rounds,
		selector:   selector,
		aggregator: aggregator,
		converged:  check,
		initial:    initial.Clone(),
		logger:     logger.With(slog.String("run_id", cfg.RunID)),
		phase:      Waiting,
		known:      make(map[string]struct{}),
		received:   make(map[string]time.Time),
	}, nil
}

func (svc *service) Register(ctx context.Context, clientID string) error {
	if err := channel.ValidateKey(channel.InboxKey(clientID)); err != nil {
		return fmt.Errorf("%w: invalid client id: %w", fl.ErrMalformedMessage, err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	now := time.Now()
	if _, ok := svc.known[clientID]; ok {
		svc.touch(ctx, clientID, now)

		return svc.sendCurrent(ctx, clientID)
	}

	if err := svc.clients.Save(ctx, fl.Client{ID: clientID, RegisteredAt: now, LastSeen: now}); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	svc.known[clientID] = struct{}{}
	svc.registry = append(svc.registry, clientID)
	svc.logger.Info("client registered",
		slog.String("client_id", clientID),
		slog.Int("registered", len(svc.registry)),
	)

	if svc.phase == Waiting {
		if len(svc.registry) >= svc.cfg.MinFitClients {
			return svc.start(ctx)
		}

		return nil
	}

	return svc.sendCurrent(ctx, clientID)
}

func (svc *service) HandleUpdate(ctx context.Context, u fl.ClientUpdateMessage) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	switch svc.phase {
	case Finished:
		return fl.ErrTerminated
	case Waiting:
		return fmt.Errorf("%w: no round is open", fl.ErrStaleUpdate)
	}
	if u.GlobalEpoch != svc.epoch {
		return fmt.Errorf("%w: got %d, current %d", fl.ErrStaleUpdate, u.GlobalEpoch, svc.epoch)
	}
	if !slices.Contains(svc.chosen, u.ClientID) {
		return fmt.Errorf("%w: %s", fl.ErrNotChosen, u.ClientID)
	}
	if _, ok := svc.received[u.ClientID]; ok {
		return fmt.Errorf("%w: %s", fl.ErrDuplicateUpdate, u.ClientID)
	}

	svc.buffer = append(svc.buffer, u)
	svc.received[u.ClientID] = time.Now()
	svc.logger.Info("update admitted",
		slog.String("client_id", u.ClientID),
		slog.Int("epoch", svc.epoch),
		slog.Int("buffered", len(svc.buffer)),
		slog.Int("quorum", svc.quorum()),
	)

	if len(svc.buffer) >= svc.quorum() {
		return svc.aggregate(ctx, false)
	}

	return nil
}

func (svc *service) Tick(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	switch svc.phase {
	case Waiting:
		if len(svc.registry) >= svc.cfg.MinFitClients {
			return svc.start(ctx)
		}

		return nil
	case Finished:
		return nil
	}

	// A quorum can still be buffered when a previous aggregation failed.
	if len(svc.buffer) >= svc.quorum() {
		return svc.aggregate(ctx, false)
	}
	if time.Now().Before(svc.deadline) {
		return nil
	}
	if len(svc.buffer) > 0 && svc.cfg.DegradedPolicy == AggregatePolicy {
		return svc.aggregate(ctx, true)
	}

	return svc.extend(ctx)
}

func (svc *service) Resume(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.phase != Waiting || len(svc.registry) > 0 {
		return errAlreadyStarted
	}

	for offset := uint64(0); ; offset += resumePageSize {
		page, total, err := svc.clients.List(ctx, offset, resumePageSize)
		if err != nil {
			return fmt.Errorf("failed to load clients: %w", err)
		}
		for _, c := range page {
			if _, ok := svc.known[c.ID]; ok {
				continue
			}
			svc.known[c.ID] = struct{}{}
			svc.registry = append(svc.registry, c.ID)
		}
		if len(page) == 0 || offset+uint64(len(page)) >= total {
			break
		}
	}

	last, err := svc.rounds.Last(ctx, svc.cfg.RunID)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		svc.logger.Info("no completed rounds to resume", slog.Int("registered", len(svc.registry)))
		if len(svc.registry) >= svc.cfg.MinFitClients {
			return svc.start(ctx)
		}

		return nil
	case err != nil:
		return fmt.Errorf("failed to load last round: %w", err)
	}

	metrics := last.Metrics
	svc.last = &metrics
	svc.weightKey, svc.biasKey = last.WeightFile, last.BiasFile
	svc.done = last.Converged
	svc.epoch = min(last.Epoch+1, svc.cfg.NEpochs)
	if svc.done {
		svc.epoch = svc.cfg.NEpochs
	}
	svc.logger.Info("resumed run",
		slog.Int("last_epoch", last.Epoch),
		slog.Int("current_epoch", svc.epoch),
		slog.Int("registered", len(svc.registry)),
	)

	if svc.epoch >= svc.cfg.NEpochs {
		return svc.finish(ctx)
	}
	if len(svc.registry) >= svc.cfg.MinFitClients {
		return svc.start(ctx)
	}

	return nil
}

func (svc *service) Status(ctx context.Context) (Status, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	st := Status{
		RunID:        svc.cfg.RunID,
		Phase:        svc.phase,
		NEpochs:      svc.cfg.NEpochs,
		CurrentEpoch: svc.epoch,
		Chosen:       slices.Clone(svc.chosen),
		Buffered:     len(svc.buffer),
		Registered:   len(svc.registry),
		Converged:    svc.done,
	}
	if svc.phase == Training {
		st.Quorum = svc.quorum()
		st.Deadline = svc.deadline
	}
	if svc.last != nil {
		m := *svc.last
		st.LastMetrics = &m
	}

	return st, nil
}

func (svc *service) ListClients(ctx context.Context, offset, limit uint64) (ClientPage, error) {
	clients, total, err := svc.clients.List(ctx, offset, limit)
	if err != nil {
		return ClientPage{}, err
	}

	return ClientPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Clients: clients,
	}, nil
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error) {
	rounds, total, err := svc.rounds.List(ctx, svc.cfg.RunID, offset, limit)
	if err != nil {
		return RoundPage{}, err
	}

	return RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: rounds,
	}, nil
}

// start opens the first round of the run, or the round following a resumed
// one. The initial parameters are published as the state of epoch 0.
func (svc *service) start(ctx context.Context) error {
	if svc.weightKey == "" {
		wk, bk := artifact.GlobalKeys(svc.cfg.RunID, 0)
		if err := svc.publishParams(ctx, wk, bk, svc.initial); err != nil {
			return fmt.Errorf("failed to publish initial parameters: %w", err)
		}
		svc.weightKey, svc.biasKey = wk, bk
	}
	if svc.epoch == 0 {
		svc.epoch = 1
	}
	if svc.epoch >= svc.cfg.NEpochs {
		return svc.finish(ctx)
	}
	svc.phase = Training
	svc.logger.Info("run started",
		slog.Int("n_epochs", svc.cfg.NEpochs),
		slog.Int("current_epoch", svc.epoch),
		slog.Int("registered", len(svc.registry)),
	)

	return svc.openRound(ctx)
}

func (svc *service) openRound(ctx context.Context) error {
	chosen, err := svc.selector.Select(slices.Clone(svc.registry), svc.epoch)
	if err != nil {
		return fmt.Errorf("failed to select clients: %w", err)
	}
	now := time.Now()
	svc.chosen = chosen
	svc.buffer = nil
	clear(svc.received)
	svc.openedAt = now
	svc.deadline = now.Add(svc.cfg.RoundTimeout)

	return svc.broadcast(ctx)
}

// extend keeps the round open for another timeout, widens the chosen set
// with a fresh selection and announces the round again.
func (svc *service) extend(ctx context.Context) error {
	svc.logger.Warn("round deadline passed without quorum, extending",
		slog.Int("epoch", svc.epoch),
		slog.Int("buffered", len(svc.buffer)),
		slog.Int("quorum", svc.quorum()),
	)
	selection, err := svc.selector.Select(slices.Clone(svc.registry), svc.epoch)
	if err != nil {
		return fmt.Errorf("failed to select clients: %w", err)
	}
	for _, id := range selection {
		if !slices.Contains(svc.chosen, id) {
			svc.chosen = append(svc.chosen, id)
		}
	}
	svc.deadline = time.Now().Add(svc.cfg.RoundTimeout)

	return svc.broadcast(ctx)
}

func (svc *service) finish(ctx context.Context) error {
	svc.phase = Finished
	svc.epoch = svc.cfg.NEpochs
	svc.chosen = nil
	svc.buffer = nil
	clear(svc.received)
	svc.logger.Info("run finished", slog.Bool("converged", svc.done), slog.Int("n_epochs", svc.cfg.NEpochs))

	return svc.broadcast(ctx)
}

func (svc *service) aggregate(ctx context.Context, degraded bool) error {
	epoch := svc.epoch
	updates, lagging, pending := svc.collect(ctx)
	if len(updates) == 0 {
		// Pending updates stay buffered for Tick to retry. Their senders
		// will not report this round again.
		svc.logger.Error("no usable updates in round",
			slog.Int("epoch", epoch),
			slog.Int("pending", len(pending)),
		)

		return fmt.Errorf("%w: no usable updates for round %d", fl.ErrTransfer, epoch)
	}

	result, err := svc.aggregator.Aggregate(ctx, updates)
	if err == nil && !result.Params.SameShape(svc.initial) {
		err = fmt.Errorf("%w: aggregated parameters", fl.ErrShapeMismatch)
	}
	if err != nil {
		svc.logger.Error("aggregation failed, keeping updates for retry",
			slog.Int("epoch", epoch),
			slog.Int("buffered", len(svc.buffer)),
			slog.Any("error", err),
		)

		return fmt.Errorf("aggregation failed: %w", err)
	}

	wk, bk := artifact.GlobalKeys(svc.cfg.RunID, epoch)
	if err := svc.publishParams(ctx, wk, bk, result.Params); err != nil {
		return fmt.Errorf("failed to publish global parameters: %w", err)
	}

	converged := svc.converged(svc.last, result.Metrics)
	contributors := make([]string, len(updates))
	for i, u := range updates {
		contributors[i] = u.ClientID
	}
	round := fl.Round{
		RunID:        svc.cfg.RunID,
		Epoch:        epoch,
		Chosen:       slices.Clone(svc.chosen),
		Contributors: contributors,
		Lagging:      lagging,
		WeightFile:   wk,
		BiasFile:     bk,
		Metrics:      result.Metrics,
		Degraded:     degraded,
		Converged:    converged,
		StartedAt:    svc.openedAt,
		FinishedAt:   time.Now(),
	}
	if err := svc.rounds.Create(ctx, round); err != nil {
		svc.logger.Error("failed to record round", slog.Int("epoch", epoch), slog.Any("error", err))
	}
	svc.credit(ctx, updates)

	metrics := result.Metrics
	svc.last = &metrics
	svc.weightKey, svc.biasKey = wk, bk
	svc.logger.Info("round aggregated",
		slog.Int("epoch", epoch),
		slog.Int("contributors", len(updates)),
		slog.Bool("degraded", degraded),
		slog.Bool("converged", converged),
		slog.Float64("acc", metrics.Acc),
		slog.Float64("loss", metrics.Loss),
	)

	svc.epoch = epoch + 1
	if converged {
		svc.done = true
		svc.epoch = svc.cfg.NEpochs
	}
	if svc.epoch >= svc.cfg.NEpochs {
		return svc.finish(ctx)
	}

	return svc.openRound(ctx)
}

// collect materializes the buffered updates. An update that cannot be
// materialized is left out of the result. Updates that can never be used
// are also removed from the buffer; the others are returned as pending.
func (svc *service) collect(ctx context.Context) ([]fl.Update, []string, []fl.ClientUpdateMessage) {
	var (
		updates []fl.Update
		lagging []string
		pending []fl.ClientUpdateMessage
		kept    []fl.ClientUpdateMessage
	)
	scratch := svc.store.Scratch()
	for _, u := range svc.buffer {
		params, err := svc.fetch(ctx, scratch, u)
		if err != nil {
			unusable := permanent(err)
			svc.logger.Error("excluding update",
				slog.String("client_id", u.ClientID),
				slog.Int("epoch", u.GlobalEpoch),
				slog.Bool("discarded", unusable),
				slog.Any("error", err),
			)
			if unusable {
				delete(svc.received, u.ClientID)

				continue
			}
			pending = append(pending, u)
			kept = append(kept, u)

			continue
		}
		kept = append(kept, u)
		updates = append(updates, fl.Update{
			ClientID:   u.ClientID,
			Epoch:      u.Epoch,
			Params:     params,
			Metrics:    fl.Metrics{Acc: u.Acc, Loss: u.Loss, NumSamples: u.NumSamples},
			ReceivedAt: svc.received[u.ClientID],
		})
		if u.Epoch < u.GlobalEpoch-1 {
			lagging = append(lagging, u.ClientID)
		}
	}
	svc.buffer = kept

	return updates, lagging, pending
}

// permanent reports whether retrying the fetch of an update cannot help.
func permanent(err error) bool {
	return errors.Is(err, fl.ErrShapeMismatch) || errors.Is(err, artifact.ErrInvalidKey)
}

func (svc *service) fetch(ctx context.Context, scratch *artifact.Scratch, u fl.ClientUpdateMessage) (fl.ParamSet, error) {
	if err := svc.store.Download(ctx, u.WeightFile); err != nil {
		return fl.ParamSet{}, err
	}
	if err := svc.store.Download(ctx, u.BiasFile); err != nil {
		return fl.ParamSet{}, err
	}
	params, err := scratch.ReadParams(u.WeightFile, u.BiasFile)
	if err != nil {
		return fl.ParamSet{}, fmt.Errorf("%w: %w", fl.ErrTransfer, err)
	}
	if !params.SameShape(svc.initial) {
		return fl.ParamSet{}, fl.ErrShapeMismatch
	}

	return params, nil
}

func (svc *service) publishParams(ctx context.Context, wk, bk string, p fl.ParamSet) error {
	if err := svc.store.Scratch().WriteParams(wk, bk, p); err != nil {
		return fmt.Errorf("%w: %w", fl.ErrTransfer, err)
	}
	if err := svc.store.Upload(ctx, wk); err != nil {
		return err
	}

	return svc.store.Upload(ctx, bk)
}

func (svc *service) message() fl.GlobalRoundMessage {
	return fl.GlobalRoundMessage{
		NEpochs:      svc.cfg.NEpochs,
		CurrentEpoch: svc.epoch,
		ChosenID:     fl.ChosenSet(svc.chosen),
		WeightFile:   svc.weightKey,
		BiasFile:     svc.biasKey,
	}
}

// broadcast sends the current round to every registered client.
func (svc *service) broadcast(ctx context.Context) error {
	payload, err := fl.EncodeGlobal(svc.message())
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range svc.registry {
		if err := svc.channel.Publish(ctx, channel.InboxKey(id), payload); err != nil {
			errs = append(errs, fmt.Errorf("failed to notify %s: %w", id, err))
		}
	}
	svc.logger.Info("round announced",
		slog.Int("current_epoch", svc.epoch),
		slog.Int("chosen", len(svc.chosen)),
		slog.Int("recipients", len(svc.registry)-len(errs)),
	)

	return errors.Join(errs...)
}

func (svc *service) sendCurrent(ctx context.Context, clientID string) error {
	if svc.phase == Waiting {
		return nil
	}
	payload, err := fl.EncodeGlobal(svc.message())
	if err != nil {
		return err
	}

	return svc.channel.Publish(ctx, channel.InboxKey(clientID), payload)
}

func (svc *service) touch(ctx context.Context, clientID string, now time.Time) {
	c, err := svc.clients.Get(ctx, clientID)
	if err != nil {
		svc.logger.Warn("failed to load client", slog.String("client_id", clientID), slog.Any("error", err))

		return
	}
	c.LastSeen = now
	if err := svc.clients.Save(ctx, c); err != nil {
		svc.logger.Warn("failed to save client", slog.String("client_id", clientID), slog.Any("error", err))
	}
}

func (svc *service) credit(ctx context.Context, updates []fl.Update) {
	for _, u := range updates {
		c, err := svc.clients.Get(ctx, u.ClientID)
		if err != nil {
			svc.logger.Warn("failed to load client", slog.String("client_id", u.ClientID), slog.Any("error", err))

			continue
		}
		c.Updates++
		c.LastSeen = u.ReceivedAt
		if err := svc.clients.Save(ctx, c); err != nil {
			svc.logger.Warn("failed to save client", slog.String("client_id", u.ClientID), slog.Any("error", err))
		}
	}
}

// quorum is the number of updates that closes the current round.
func (svc *service) quorum() int {
	return max(1, min(svc.cfg.MinUpdateClients, len(svc.chosen)))
}
