package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/learnloop/internal/analytics"
	"github.com/abhisek/learnloop/internal/auth"
	"github.com/abhisek/learnloop/internal/fsrs"
	"github.com/abhisek/learnloop/internal/profile"
	"github.com/abhisek/learnloop/internal/scoring"
	"github.com/abhisek/learnloop/internal/session"
	"github.com/abhisek/learnloop/internal/store"
)

// Service is the session lifecycle orchestrator. It composes the
// scheduler, selector and state machine with the store, and serialises
// all operations per user so concurrent requests for the same learner
// cannot interleave their transactions.
type Service struct {
	store   *store.Store
	auth    auth.Authenticator
	scorer  *scoring.Service
	emitter analytics.Emitter
	logger  *zap.Logger
	cfg     session.Config
	risk    profile.RiskThresholds
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options carries the optional collaborators. Zero values fall back to
// safe defaults: no LLM scoring, a no-op emitter, a nop logger, the
// default stage gates and the wall clock.
type Options struct {
	Scorer         *scoring.Service
	Emitter        analytics.Emitter
	Logger         *zap.Logger
	SessionConfig  *session.Config
	RiskThresholds *profile.RiskThresholds
	Clock          func() time.Time
}

// NewService wires the orchestrator. store and authn are required.
func NewService(st *store.Store, authn auth.Authenticator, opts Options) *Service {
	s := &Service{
		store:   st,
		auth:    authn,
		scorer:  opts.Scorer,
		emitter: opts.Emitter,
		logger:  opts.Logger,
		cfg:     session.DefaultConfig(),
		risk:    profile.DefaultRiskThresholds(),
		now:     opts.Clock,
		locks:   make(map[string]*sync.Mutex),
	}
	if s.emitter == nil {
		s.emitter = analytics.NopEmitter{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.SessionConfig != nil {
		s.cfg = *opts.SessionConfig
	}
	if opts.RiskThresholds != nil {
		s.risk = *opts.RiskThresholds
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// userLock returns the per-user mutex, creating it on first use.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// authenticate resolves the bearer credential. Inactive users and
// unknown credentials both surface as forbidden.
func (s *Service) authenticate(ctx context.Context, bearer string) (auth.Identity, error) {
	id, err := s.auth.Authenticate(ctx, bearer)
	if errors.Is(err, auth.ErrInactiveUser) {
		return auth.Identity{}, errf(KindForbidden, "user account is inactive")
	}
	if err != nil {
		return auth.Identity{}, errf(KindForbidden, "invalid credential")
	}
	return id, nil
}

// loadOwnedSession fetches a session row and checks ownership.
func (s *Service) loadOwnedSession(ctx context.Context, userID, sessionID string) (*store.Session, error) {
	row, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errf(KindNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, internalErr("load session", err)
	}
	if row.UserID != userID {
		return nil, errf(KindForbidden, "session belongs to another user")
	}
	return row, nil
}

func decodeState(snapshot string) (session.State, error) {
	var st session.State
	if err := json.Unmarshal([]byte(snapshot), &st); err != nil {
		return session.State{}, internalErr("decode session state", err)
	}
	return st, nil
}

func encodeState(st session.State) (string, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return "", internalErr("encode session state", err)
	}
	return string(b), nil
}

// cardFromRow converts a persisted memory row to the scheduler's shape.
func cardFromRow(r store.FsrsMemoryRow) fsrs.Card {
	return fsrs.Card{
		Stability:      r.Stability,
		Difficulty:     r.Difficulty,
		Retrievability: r.Retrievability,
		State:          fsrs.State(r.State),
		LastReview:     r.LastReview,
		ReviewCount:    r.ReviewCount,
		LapseCount:     r.LapseCount,
	}
}

// paramsFor returns the learner's tuned FSRS parameters, or the global
// defaults when no override row exists or the override is malformed.
func (s *Service) paramsFor(ctx context.Context, userID string) (fsrs.Params, error) {
	row, err := s.store.GetFsrsParameters(ctx, userID)
	if err != nil {
		return fsrs.Params{}, internalErr("load fsrs parameters", err)
	}
	if row == nil {
		return fsrs.DefaultParams(), nil
	}
	p := fsrs.Params{Weights: row.Weights, TargetRetention: row.TargetRetention}
	if !p.Valid() {
		s.logger.Warn("ignoring invalid fsrs parameter override", zap.String("user_id", userID))
		return fsrs.DefaultParams(), nil
	}
	return p, nil
}

// itemsByID bulk-loads content items into a lookup map.
func (s *Service) itemsByID(ctx context.Context, ids []string) (map[string]store.ContentItem, error) {
	items, err := s.store.ItemsByIDs(ctx, ids)
	if err != nil {
		return nil, internalErr("load content items", err)
	}
	out := make(map[string]store.ContentItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// orderedItems resolves ids to items preserving the given order,
// skipping ids that no longer resolve.
func orderedItems(byID map[string]store.ContentItem, ids []string) []store.ContentItem {
	out := make([]store.ContentItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

func (s *Service) emit(ctx context.Context, ev analytics.Event) {
	s.emitter.Emit(ctx, ev)
}
