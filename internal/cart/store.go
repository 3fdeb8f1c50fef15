// Package cart хранит клиентское состояние корзины и синхронизирует его
// с удалённой корзиной.
package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Recorder принимает метрики хранилища.
type Recorder interface {
	RecordMutation(kind, result string)
	RecordSuperseded(kind string)
	RecordNotification()
	SetPending(n int)
	SetItemCount(n int)
}

// StoreOptions задаёт параметры Store.
type StoreOptions struct {
	Logger   *log.Entry
	Recorder Recorder
	Clock    func() time.Time
}

// Option настраивает Store.
type Option func(*StoreOptions)

// WithLogger задаёт logger хранилища.
func WithLogger(logger *log.Entry) Option {
	return func(opts *StoreOptions) {
		opts.Logger = logger
	}
}

// WithRecorder подключает метрики.
func WithRecorder(recorder Recorder) Option {
	return func(opts *StoreOptions) {
		opts.Recorder = recorder
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *StoreOptions) {
		opts.Clock = clock
	}
}

type subscription struct {
	id       uint64
	listener Listener
}

type delivery struct {
	state State
	// to: id единственного получателя; 0 означает всех подписчиков.
	to     uint64
	ticket uint64
}

// Store: единственный владелец снимка корзины и pending-маркеров.
// Создаётся явно и передаётся каждому виджету.
type Store struct {
	client   domain.CartClient
	logger   *log.Entry
	recorder Recorder
	now      func() time.Time

	mu        sync.Mutex
	snapshot  *domain.CartSnapshot
	updatedAt time.Time
	version   uint64
	// epoch растёт при каждой установке снимка; загрузка, начатая до установки,
	// устарела.
	epoch uint64
	// seq: последний выданный номер запроса по каждой цели; записи не удаляются,
	// иначе номер мог бы повториться для запоздавшего ответа.
	seq     map[domain.TargetKey]uint64
	pending map[domain.TargetKey]domain.PendingMutation

	subs      []subscription
	nextSub   uint64
	queue     []delivery
	draining  bool
	queued    uint64
	delivered uint64
	drained   *sync.Cond
}

// NewStore создаёт хранилище поверх удалённой корзины. Снимок пуст до Initialize.
func NewStore(client domain.CartClient, options ...Option) *Store {
	opts := StoreOptions{}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Store{
		client:   client,
		logger:   logger,
		recorder: opts.Recorder,
		now:      clock,
		seq:      make(map[domain.TargetKey]uint64),
		pending:  make(map[domain.TargetKey]domain.PendingMutation),
	}
	s.drained = sync.NewCond(&s.mu)
	return s
}

// Initialize загружает корзину. При отказе снимок остаётся nil, а подписчики
// получают уведомление об ошибке.
func (s *Store) Initialize(ctx context.Context) error {
	return s.load(ctx, NoticeSourceInitialize)
}

// Refresh перечитывает корзину и заменяет снимок целиком.
// При отказе последний известный снимок сохраняется. Если пока шёл запрос
// был установлен другой снимок (например, ответ мутации), результат
// отбрасывается молча, как вытесненный ответ.
func (s *Store) Refresh(ctx context.Context) error {
	return s.load(ctx, NoticeSourceRefresh)
}

func (s *Store) load(ctx context.Context, source NoticeSource) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	snapshot, err := s.client.FetchCart(ctx)

	s.mu.Lock()
	if s.epoch != epoch {
		current := s.epoch
		s.mu.Unlock()
		if s.recorder != nil {
			s.recorder.RecordSuperseded(supersededFetch)
		}
		s.logger.WithFields(log.Fields{
			"source": source,
			"epoch":  epoch,
			"latest": current,
		}).Debug("discarding stale cart fetch")
		return nil
	}
	var notice *Notice
	if err != nil {
		notice = s.newNotice(source, nil, err)
	} else {
		s.installLocked(snapshot)
	}
	ticket := s.publishLocked(notice)
	s.mu.Unlock()
	s.flush(ticket)

	if err != nil {
		s.logger.WithError(err).WithField("source", source).Warn("cart load failed")
		return err
	}
	s.logger.WithFields(log.Fields{
		"source":     source,
		"item_count": snapshot.ItemCount,
	}).Debug("cart loaded")
	return nil
}

// Add добавляет quantity единиц варианта. Pending-маркер привязан к variant:<id>;
// повторный вызов для того же варианта вытесняет предыдущий.
// Возвращает ошибку применённого отказа; вытесненный результат даёт nil.
func (s *Store) Add(ctx context.Context, variantID domain.VariantID, quantity int) error {
	return s.mutate(ctx, domain.MutationAdd, domain.VariantTarget(variantID), quantity,
		func(ctx context.Context) (domain.CartSnapshot, error) {
			return s.client.AddItem(ctx, variantID, quantity)
		})
}

// SetQuantity задаёт количество в строке line; 0 удаляет строку.
// Из нескольких быстрых вызовов для одной строки применяется только последний.
func (s *Store) SetQuantity(ctx context.Context, line int, quantity int) error {
	return s.mutate(ctx, domain.MutationSetQuantity, domain.LineTarget(line), quantity,
		func(ctx context.Context) (domain.CartSnapshot, error) {
			return s.client.SetLineQuantity(ctx, line, quantity)
		})
}

func (s *Store) mutate(
	ctx context.Context,
	kind domain.MutationKind,
	key domain.TargetKey,
	quantity int,
	call func(context.Context) (domain.CartSnapshot, error),
) error {
	s.mu.Lock()
	s.seq[key]++
	seq := s.seq[key]
	s.pending[key] = domain.PendingMutation{
		Kind:              kind,
		Target:            key,
		RequestedQuantity: quantity,
		Seq:               seq,
		StartedAt:         s.now(),
	}
	ticket := s.publishLocked(nil)
	s.mu.Unlock()
	s.flush(ticket)

	snapshot, err := call(ctx)

	s.mu.Lock()
	if latest := s.seq[key]; latest != seq {
		s.mu.Unlock()
		if s.recorder != nil {
			s.recorder.RecordSuperseded(string(kind))
		}
		s.logger.WithFields(log.Fields{
			"target": key.String(),
			"seq":    seq,
			"latest": latest,
		}).Debug("discarding superseded cart response")
		return nil
	}

	delete(s.pending, key)
	var notice *Notice
	if err != nil {
		notice = s.newNotice(noticeSource(kind), &key, err)
	} else {
		s.installLocked(snapshot)
	}
	ticket = s.publishLocked(notice)
	s.mu.Unlock()
	s.flush(ticket)

	if s.recorder != nil {
		s.recorder.RecordMutation(string(kind), resultLabel(err))
	}
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"target":   key.String(),
			"quantity": quantity,
		}).Warn("cart mutation failed")
		return err
	}
	return nil
}

// Subscribe регистрирует слушателя. Слушатель сразу получает текущее состояние,
// затем каждое изменение. Возвращает функцию отписки.
func (s *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, listener: listener})
	ticket := s.enqueueLocked(delivery{state: s.stateLocked(nil), to: id})
	s.mu.Unlock()
	s.flush(ticket)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// State возвращает текущее состояние без уведомления.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(nil)
}

// Snapshot возвращает копию текущего снимка; false, если корзина неизвестна.
func (s *Store) Snapshot() (domain.CartSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return domain.CartSnapshot{}, false
	}
	return s.snapshot.Clone(), true
}

// Known сообщает, загружена ли корзина хотя бы раз.
func (s *Store) Known() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil
}

// RequestedQuantity возвращает последнее запрошенное количество для строки:
// из незавершённой мутации, иначе из снимка.
func (s *Store) RequestedQuantity(line int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[domain.LineTarget(line)]; ok {
		return p.RequestedQuantity, true
	}
	if s.snapshot == nil {
		return 0, false
	}
	l, ok := s.snapshot.Line(line)
	if !ok {
		return 0, false
	}
	return l.Quantity, true
}

func (s *Store) installLocked(snapshot domain.CartSnapshot) {
	installed := snapshot.Clone()
	s.snapshot = &installed
	s.updatedAt = s.now()
	s.epoch++
	if s.recorder != nil {
		s.recorder.SetItemCount(installed.ItemCount)
	}
}

// publishLocked ставит новое состояние в очередь рассылки. Вызывается под s.mu;
// доставка происходит в flush после снятия блокировки.
func (s *Store) publishLocked(notice *Notice) uint64 {
	s.version++
	if s.recorder != nil {
		s.recorder.SetPending(len(s.pending))
	}
	return s.enqueueLocked(delivery{state: s.stateLocked(notice)})
}

func (s *Store) enqueueLocked(d delivery) uint64 {
	s.queued++
	d.ticket = s.queued
	s.queue = append(s.queue, d)
	return d.ticket
}

func (s *Store) stateLocked(notice *Notice) State {
	state := State{
		Notice:    notice,
		Version:   s.version,
		UpdatedAt: s.updatedAt,
	}
	if s.snapshot != nil {
		snapshot := s.snapshot.Clone()
		state.Snapshot = &snapshot
	}
	if len(s.pending) > 0 {
		state.Pending = make([]domain.PendingMutation, 0, len(s.pending))
		for _, p := range s.pending {
			state.Pending = append(state.Pending, p)
		}
		sort.Slice(state.Pending, func(i, j int) bool {
			return state.Pending[i].Target.String() < state.Pending[j].Target.String()
		})
	}
	return state
}

// flush доставляет очередь в порядке постановки. Одновременно работает
// только один доставщик; остальные ждут, пока доставщик не разошлёт
// их состояние (ticket), и только потом возвращаются.
func (s *Store) flush(ticket uint64) {
	s.mu.Lock()
	for s.draining && s.delivered < ticket {
		s.drained.Wait()
	}
	if s.delivered >= ticket {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		batch := s.queue
		s.queue = nil
		subs := make([]subscription, len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, d := range batch {
			for _, sub := range subs {
				if d.to != 0 && d.to != sub.id {
					continue
				}
				s.deliver(sub, d.state)
			}
			if d.to == 0 && s.recorder != nil {
				s.recorder.RecordNotification()
			}
		}

		s.mu.Lock()
		s.delivered = batch[len(batch)-1].ticket
		s.drained.Broadcast()
	}
	s.draining = false
	s.drained.Broadcast()
	s.mu.Unlock()
}

func (s *Store) deliver(sub subscription, state State) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(log.Fields{
				"subscription": sub.id,
				"panic":        r,
			}).Error("cart listener panicked")
		}
	}()
	sub.listener(state)
}

func (s *Store) newNotice(source NoticeSource, target *domain.TargetKey, err error) *Notice {
	kind := domain.ErrorKindTransport
	var cartErr *domain.CartError
	if errors.As(err, &cartErr) {
		kind = cartErr.Kind
	}
	return &Notice{
		ID:      uuid.NewString(),
		Source:  source,
		Target:  target,
		Kind:    kind,
		Message: domain.Describe(err),
		Err:     err,
		At:      s.now(),
	}
}

// supersededFetch: метка вытесненной загрузки в RecordSuperseded.
const supersededFetch = "fetch"

func noticeSource(kind domain.MutationKind) NoticeSource {
	if kind == domain.MutationAdd {
		return NoticeSourceAdd
	}
	return NoticeSourceSetQuantity
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return string(domain.ErrorKindValidation)
	case errors.Is(err, domain.ErrBackend):
		return string(domain.ErrorKindBackend)
	default:
		return string(domain.ErrorKindTransport)
	}
}
