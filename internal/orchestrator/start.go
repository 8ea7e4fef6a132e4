package orchestrator

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/learnloop/internal/adaptive"
	"github.com/abhisek/learnloop/internal/analytics"
	"github.com/abhisek/learnloop/internal/fsrs"
	"github.com/abhisek/learnloop/internal/session"
	"github.com/abhisek/learnloop/internal/store"
)

// ActiveView describes the learner's current in-flight session, if any.
type ActiveView struct {
	Active           bool                `json:"active"`
	SessionID        string              `json:"sessionId,omitempty"`
	TopicID          string              `json:"topicId,omitempty"`
	SessionType      session.Type        `json:"sessionType,omitempty"`
	Stage            session.Stage       `json:"stage,omitempty"`
	CurrentItemIndex int                 `json:"currentItemIndex,omitempty"`
	StartedAt        *time.Time          `json:"startedAt,omitempty"`
	Items            []store.ContentItem `json:"items,omitempty"`
}

// StartResult is the payload returned to the client after planning.
type StartResult struct {
	SessionID       string                   `json:"sessionId"`
	Stage           session.Stage            `json:"stage"`
	SessionType     session.Type             `json:"sessionType"`
	StageBalance    adaptive.StageBalance    `json:"stageBalance"`
	Level           int                      `json:"level"`
	NextLevel       int                      `json:"nextLevel"`
	Protocol        adaptive.LearnerProtocol `json:"protocol"`
	Rationale       []string                 `json:"rationale,omitempty"`
	TargetDurationS int                      `json:"targetDurationS"`
	Items           []store.ContentItem      `json:"items"`
}

// Per-stage item counts taken from the topic pools at planning time.
// Quick sessions bracket the analysis plan with a single encounter item
// and a single reflection; longer sessions take two of each.
func stageTakeFor(sessionType session.Type) int {
	if sessionType == session.TypeQuick {
		return 1
	}
	return 2
}

func targetDurationFor(sessionType session.Type) int {
	switch sessionType {
	case session.TypeQuick:
		return 480
	case session.TypeExtended:
		return 1680
	default:
		return 960
	}
}

// GetActive returns the most recently started in_progress session for
// the authenticated user, with the item queue rehydrated in order.
func (s *Service) GetActive(ctx context.Context, bearer string) (*ActiveView, error) {
	id, err := s.authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	row, err := s.store.ActiveSession(ctx, id.UserID)
	if err != nil {
		return nil, internalErr("load active session", err)
	}
	if row == nil {
		return &ActiveView{}, nil
	}

	st, err := decodeState(row.AdaptiveDecisions)
	if err != nil {
		return nil, err
	}
	byID, err := s.itemsByID(ctx, st.ItemQueue)
	if err != nil {
		return nil, err
	}

	return &ActiveView{
		Active:           true,
		SessionID:        row.ID,
		TopicID:          row.TopicID,
		SessionType:      st.SessionType,
		Stage:            st.CurrentStage,
		CurrentItemIndex: st.CurrentItemIndex,
		StartedAt:        st.StartedAt,
		Items:            orderedItems(byID, st.ItemQueue),
	}, nil
}

// StartSession plans and persists a new session for (user, topic).
// An existing in_progress session on the same topic is a conflict; the
// response carries the existing session id so clients can resume it.
func (s *Service) StartSession(ctx context.Context, bearer, topicID string, sessionType session.Type) (*StartResult, error) {
	id, err := s.authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(id.UserID)
	lock.Lock()
	defer lock.Unlock()

	if topicID == "" {
		return nil, errf(KindValidation, "topicId is required")
	}
	switch sessionType {
	case session.TypeQuick, session.TypeStandard, session.TypeExtended:
	default:
		return nil, errf(KindValidation, "unknown session type %q", sessionType)
	}

	if _, err := s.store.GetTopic(ctx, topicID); errors.Is(err, store.ErrNotFound) {
		return nil, errf(KindNotFound, "topic %s not found", topicID)
	} else if err != nil {
		return nil, internalErr("load topic", err)
	}

	if existing, err := s.store.ActiveSessionForTopic(ctx, id.UserID, topicID); err != nil {
		return nil, internalErr("check active session", err)
	} else if existing != nil {
		return nil, &Error{
			Kind:    KindConflict,
			Message: "an active session already exists for this topic",
			Details: map[string]string{"sessionId": existing.ID},
		}
	}

	now := s.now()

	pool, err := s.store.ListActiveItems(ctx)
	if err != nil {
		return nil, internalErr("load content pool", err)
	}
	encounterIDs, returnIDs, topicPools, analysisIDs := partitionPool(pool, topicID, stageTakeFor(sessionType))
	if len(encounterIDs)+len(analysisIDs)+len(returnIDs) == 0 {
		return nil, errf(KindValidation, "topic %s has no active content", topicID)
	}

	memRows, err := s.store.MemoryRows(ctx, id.UserID, analysisIDs)
	if err != nil {
		return nil, internalErr("load memory rows", err)
	}
	cards := make(map[string]fsrs.Card, len(memRows))
	for itemID, r := range memRows {
		cards[itemID] = cardFromRow(r)
	}

	kcStates, err := s.store.KcStatesForTopic(ctx, id.UserID, topicID)
	if err != nil {
		return nil, internalErr("load kc states", err)
	}
	hbs, level := learnerPosition(kcStates)

	decision, err := s.detectProtocol(ctx, id.UserID, len(memRows) == 0)
	if err != nil {
		return nil, err
	}

	planInput := adaptive.PlanInput{
		PrimaryTopicID:    topicID,
		AvailableTopics:   topicPools,
		MemoryStates:      cards,
		CurrentLevel:      level,
		SessionType:       sessionType,
		HemisphereBalance: hbs,
		Now:               now,
	}
	if decision.Protocol == adaptive.ProtocolColdStart {
		planInput.AnalysisItemBudget = decision.ColdStartBudget
	}
	plan := adaptive.BuildPlan(planInput)

	planned := plan.ItemIDs()
	if len(planned) == 0 {
		// Fall back to the raw primary analysis pool sliced to budget.
		budget := adaptive.AnalysisBudgetFor(sessionType, planInput.AnalysisItemBudget)
		planned = primaryAnalysisFallback(topicPools, topicID, budget)
	}

	queue := adaptive.ComposeQueue(encounterIDs, planned, returnIDs)
	if len(queue) == 0 {
		return nil, errf(KindValidation, "topic %s has no schedulable items", topicID)
	}

	sessionID := uuid.NewString()
	st := session.NewState(sessionID, id.UserID, topicID, sessionType, queue)
	st.PlannedBalance = plannedBalance(plan)

	res := session.Reduce(st, session.Event{Kind: session.EventStartSession, Timestamp: now}, s.cfg)
	if !res.OK {
		return nil, errf(KindInternal, "session could not start: %s", res.Reason)
	}
	snapshot, err := encodeState(res.State)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertSession(ctx, store.Session{
		ID:                sessionID,
		UserID:            id.UserID,
		TopicID:           topicID,
		SessionType:       string(sessionType),
		Status:            string(session.StatusInProgress),
		StartedAt:         now,
		AdaptiveDecisions: snapshot,
	}); err != nil {
		return nil, internalErr("persist session", err)
	}

	s.emit(ctx, analytics.SessionPlanned{
		UserID:         id.UserID,
		SessionID:      sessionID,
		TopicID:        topicID,
		Level:          plan.Level,
		NextLevel:      plan.NextLevel,
		CountsByReason: plan.CountByReason(),
		StageBalance:   plan.StageBalance,
		Rationale:      plan.Rationale,
		PlannedAt:      now,
	})
	for i, sel := range plan.SelectedItems {
		s.emit(ctx, analytics.ItemSelected{
			UserID:         id.UserID,
			SessionID:      sessionID,
			ItemID:         sel.Item.ID,
			Reason:         sel.Reason,
			Score:          sel.Score,
			Retrievability: sel.Retrievability,
			QueuePosition:  i,
		})
	}

	s.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("user_id", id.UserID),
		zap.String("topic_id", topicID),
		zap.String("session_type", string(sessionType)),
		zap.String("protocol", string(decision.Protocol)),
		zap.Int("queue_len", len(queue)),
	)

	byID, err := s.itemsByID(ctx, encounterIDs)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		SessionID:       sessionID,
		Stage:           session.StageEncounter,
		SessionType:     sessionType,
		StageBalance:    plan.StageBalance,
		Level:           plan.Level,
		NextLevel:       plan.NextLevel,
		Protocol:        decision.Protocol,
		Rationale:       plan.Rationale,
		TargetDurationS: targetDurationFor(sessionType),
		Items:           orderedItems(byID, encounterIDs),
	}, nil
}

// partitionPool splits the active content pool into the encounter and
// return picks for the primary topic, the per-topic analysis pools, and
// the flat analysis id list.
func partitionPool(pool []store.ContentItem, topicID string, take int) (encounterIDs, returnIDs []string, topicPools []adaptive.TopicPool, analysisIDs []string) {
	byTopic := make(map[string]*adaptive.TopicPool)
	var topicOrder []string

	for _, it := range pool {
		switch it.Stage {
		case string(session.StageEncounter):
			if it.TopicID == topicID && len(encounterIDs) < take {
				encounterIDs = append(encounterIDs, it.ID)
			}
		case string(session.StageReturn):
			if it.TopicID == topicID && len(returnIDs) < take {
				returnIDs = append(returnIDs, it.ID)
			}
		case string(session.StageAnalysis):
			tp, ok := byTopic[it.TopicID]
			if !ok {
				tp = &adaptive.TopicPool{TopicID: it.TopicID}
				byTopic[it.TopicID] = tp
				topicOrder = append(topicOrder, it.TopicID)
			}
			tp.Items = append(tp.Items, adaptive.AnalysisItem{
				ID:                 it.ID,
				TopicID:            it.TopicID,
				DifficultyLevel:    it.DifficultyLevel,
				IsReviewable:       it.IsReviewable,
				InterleaveEligible: it.InterleaveEligible,
				SimilarityTags:     it.SimilarityTags,
			})
			analysisIDs = append(analysisIDs, it.ID)
		}
	}

	for _, tid := range topicOrder {
		topicPools = append(topicPools, *byTopic[tid])
	}
	return encounterIDs, returnIDs, topicPools, analysisIDs
}

// learnerPosition derives the hemisphere balance score and difficulty
// level from the per-KC state rows. A fresh learner is neutral at L1.
func learnerPosition(kcStates []store.LearnerKcState) (hbs float64, level int) {
	if len(kcStates) == 0 {
		return 0, 1
	}
	var balance, tiers float64
	for _, st := range kcStates {
		balance += st.RhScore - st.LhAccuracy
		tiers += float64(st.DifficultyTier)
	}
	hbs = balance / float64(len(kcStates))
	level = int(math.Round(tiers / float64(len(kcStates))))
	if level < 1 {
		level = 1
	}
	if level > 4 {
		level = 4
	}
	return hbs, level
}

// detectProtocol classifies the learner's recent trajectory from their
// session and event history.
func (s *Service) detectProtocol(ctx context.Context, userID string, allUnseen bool) (adaptive.ProtocolDecision, error) {
	count, err := s.store.CountSessions(ctx, userID)
	if err != nil {
		return adaptive.ProtocolDecision{}, internalErr("count sessions", err)
	}

	events, err := s.store.RecentUserEvents(ctx, userID, 100)
	if err != nil {
		return adaptive.ProtocolDecision{}, internalErr("load recent events", err)
	}
	var scoreSum float64
	var scored int
	sessions := make(map[string]bool)
	for _, e := range events {
		sessions[e.SessionID] = true
		if e.Score != nil {
			scoreSum += *e.Score
			scored++
		}
	}
	var avgScore, perSession float64
	if scored > 0 {
		avgScore = scoreSum / float64(scored)
	}
	if len(sessions) > 0 {
		perSession = float64(len(events)) / float64(len(sessions))
	}

	return adaptive.DetectLearnerProtocol(adaptive.ProtocolInput{
		SessionCount:           count,
		AllAssignedItemsUnseen: allUnseen,
		RecentAverageScore:     avgScore,
		RecentItemsPerSession:  perSession,
	}), nil
}

func primaryAnalysisFallback(pools []adaptive.TopicPool, topicID string, budget int) []string {
	for _, p := range pools {
		if p.TopicID != topicID {
			continue
		}
		n := len(p.Items)
		if n > budget {
			n = budget
		}
		ids := make([]string, 0, n)
		for _, it := range p.Items[:n] {
			ids = append(ids, it.ID)
		}
		return ids
	}
	return nil
}

func plannedBalance(plan adaptive.Plan) session.PlannedBalance {
	counts := plan.CountByReason()
	return session.PlannedBalance{
		New:         counts[adaptive.ReasonNewPrimary],
		Review:      counts[adaptive.ReasonOverdue] + counts[adaptive.ReasonDue] + counts[adaptive.ReasonFill],
		Interleaved: counts[adaptive.ReasonInterleaved],
	}
}
