package orchestrator

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/learnloop/internal/adaptive"
	"github.com/abhisek/learnloop/internal/analytics"
	"github.com/abhisek/learnloop/internal/fsrs"
	"github.com/abhisek/learnloop/internal/profile"
	"github.com/abhisek/learnloop/internal/session"
	"github.com/abhisek/learnloop/internal/store"
)

// Summary is the completion payload.
type Summary struct {
	TotalItems      int      `json:"totalItems"`
	Correct         int      `json:"correct"`
	Accuracy        *float64 `json:"accuracy,omitempty"`
	KcsUpdated      int      `json:"kcsUpdated"`
	FsrsRowsUpdated int      `json:"fsrsRowsUpdated"`
	DurationS       int      `json:"durationS"`
}

// kcAggregate accumulates one session's responses against a KC.
type kcAggregate struct {
	attempts    int
	correct     int
	scoreSum    float64
	scoredCount int
}

// reschedule is one pending FSRS update.
type reschedule struct {
	memoryItemID string
	kcID         string
	stageType    string
	rating       fsrs.Rating
}

// returnMemoryID keys the concept-level return row for a KC, so every
// reflection prompt for the concept shares one decay curve.
func returnMemoryID(kcID string) string {
	return "return:" + kcID
}

// CompleteSession aggregates the session's assessment events into
// per-KC mastery, reschedules every touched memory item, marks the
// session completed and refreshes the learner profile, all within one
// transaction. A second call returns Conflict: completion commits once.
func (s *Service) CompleteSession(ctx context.Context, bearer, sessionID string) (*Summary, error) {
	id, err := s.authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(id.UserID)
	lock.Lock()
	defer lock.Unlock()

	row, err := s.loadOwnedSession(ctx, id.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	if row.Status != string(session.StatusInProgress) {
		return nil, errf(KindConflict, "session is already %s", row.Status)
	}

	st, err := decodeState(row.AdaptiveDecisions)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if st.Status != session.StatusCompleted {
		// Administrative completion: the client is closing out a session
		// whose state machine never reached COMPLETE_SESSION.
		t := now
		st.Status = session.StatusCompleted
		st.CurrentStage = ""
		st.SegmentStartedAt = nil
		st.CompletedAt = &t
		st.TotalDurationMs = st.EncounterDurationMs + st.AnalysisDurationMs + st.ReturnDurationMs
	}

	events, err := s.store.SessionEvents(ctx, sessionID)
	if err != nil {
		return nil, internalErr("load session events", err)
	}

	totalItems := len(events)
	correct := 0
	for _, e := range events {
		if e.IsCorrect != nil && *e.IsCorrect {
			correct++
		}
	}
	var accuracy *float64
	if totalItems > 0 {
		a := float64(correct) / float64(totalItems)
		accuracy = &a
	}

	aggregates, kcIDs := aggregateByKC(events)
	prevStates, err := s.store.KcStates(ctx, id.UserID, kcIDs)
	if err != nil {
		return nil, internalErr("load kc states", err)
	}
	newStates, masteryDelta := nextKcStates(id.UserID, aggregates, kcIDs, prevStates, now)

	params, err := s.paramsFor(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	reschedules := collectReschedules(events)
	memoryRows, outcomes, remediations, avgPostR, err := s.runReschedules(ctx, id.UserID, reschedules, params, now)
	if err != nil {
		return nil, err
	}

	durationS := int(math.Round(now.Sub(row.StartedAt).Seconds()))

	// Hemisphere balance and level move with the updated KC states.
	topicBefore, err := s.store.KcStatesForTopic(ctx, id.UserID, row.TopicID)
	if err != nil {
		return nil, internalErr("load topic kc states", err)
	}
	prevHbs, prevLevel := learnerPosition(topicBefore)
	topicAfter := overlayKcStates(topicBefore, newStates)
	newHbs, newLevel := learnerPosition(topicAfter)

	proficiency, err := s.topicProficiency(ctx, id.UserID, row.TopicID, topicAfter, now)
	if err != nil {
		return nil, err
	}

	profileRow, obsErr := s.buildProfileRow(ctx, id.UserID, row, st, events, newHbs, newLevel, masteryDelta, durationS, accuracy, now)
	if obsErr != nil {
		return nil, obsErr
	}

	snapshot, err := encodeState(st)
	if err != nil {
		return nil, err
	}
	outcome := *row
	outcome.Status = string(session.StatusCompleted)
	outcome.CompletedAt = &now
	outcome.DurationS = durationS
	outcome.Accuracy = accuracy
	outcome.AdaptiveDecisions = snapshot

	err = s.store.InTx(ctx, func(q *store.Queries) error {
		for _, kc := range newStates {
			if err := q.UpsertKcState(ctx, kc); err != nil {
				return err
			}
		}
		for _, m := range memoryRows {
			if err := q.UpsertMemoryRow(ctx, m); err != nil {
				return err
			}
		}
		if err := q.UpdateSessionOutcome(ctx, outcome); err != nil {
			return err
		}
		if err := q.UpsertTopicProficiency(ctx, proficiency); err != nil {
			return err
		}
		return q.UpsertProfile(ctx, profileRow)
	})
	if err != nil {
		return nil, internalErr("commit session completion", err)
	}

	for _, o := range outcomes {
		s.emit(ctx, o)
	}
	for _, r := range remediations {
		s.emit(ctx, r)
	}
	if newHbs != prevHbs {
		s.emit(ctx, analytics.HemisphereScoreUpdated{
			UserID:   id.UserID,
			TopicID:  row.TopicID,
			Previous: prevHbs,
			Current:  newHbs,
		})
	}
	if newLevel != prevLevel {
		trigger := "promotion"
		if newLevel < prevLevel {
			trigger = "demotion"
		}
		s.emit(ctx, analytics.LevelChanged{
			UserID:            id.UserID,
			TopicID:           row.TopicID,
			FromLevel:         prevLevel,
			ToLevel:           newLevel,
			AvgRetrievability: avgPostR,
			Trigger:           trigger,
		})
	}
	s.emit(ctx, analytics.SessionCompleted{
		UserID:     id.UserID,
		SessionID:  sessionID,
		TopicID:    row.TopicID,
		TotalItems: totalItems,
		Correct:    correct,
		Accuracy:   accuracy,
		DurationS:  durationS,
		KcsUpdated: len(newStates),
		When:       now,
	})

	s.logger.Info("session completed",
		zap.String("session_id", sessionID),
		zap.String("user_id", id.UserID),
		zap.Int("total_items", totalItems),
		zap.Int("correct", correct),
		zap.Int("kcs_updated", len(newStates)),
		zap.Int("fsrs_rows", len(memoryRows)),
	)

	return &Summary{
		TotalItems:      totalItems,
		Correct:         correct,
		Accuracy:        accuracy,
		KcsUpdated:      len(newStates),
		FsrsRowsUpdated: len(memoryRows),
		DurationS:       durationS,
	}, nil
}

// aggregateByKC buckets events under their KC. Events without a KC do
// not contribute to mastery.
func aggregateByKC(events []store.AssessmentEvent) (map[string]*kcAggregate, []string) {
	aggregates := make(map[string]*kcAggregate)
	var kcIDs []string
	for _, e := range events {
		if e.KcID == nil {
			continue
		}
		agg, ok := aggregates[*e.KcID]
		if !ok {
			agg = &kcAggregate{}
			aggregates[*e.KcID] = agg
			kcIDs = append(kcIDs, *e.KcID)
		}
		agg.attempts++
		if e.IsCorrect != nil && *e.IsCorrect {
			agg.correct++
		}
		if e.Score != nil {
			agg.scoreSum += *e.Score
			agg.scoredCount++
		}
	}
	sort.Strings(kcIDs)
	return aggregates, kcIDs
}

// nextKcStates applies the weighted-mean mastery update per KC and
// returns the mean mastery movement for the profile observation.
func nextKcStates(userID string, aggregates map[string]*kcAggregate, kcIDs []string, prev map[string]store.LearnerKcState, now time.Time) ([]store.LearnerKcState, float64) {
	var out []store.LearnerKcState
	var deltaSum float64

	for _, kcID := range kcIDs {
		agg := aggregates[kcID]
		sessAcc := float64(agg.correct) / float64(agg.attempts)
		sessAvgScore := sessAcc
		if agg.scoredCount > 0 {
			sessAvgScore = agg.scoreSum / float64(agg.scoredCount)
		}
		performance := clamp01((sessAcc + sessAvgScore) / 2)

		state, existed := prev[kcID]
		if !existed {
			state = store.LearnerKcState{
				UserID:           userID,
				KcID:             kcID,
				DifficultyTier:   1,
				FirstEncountered: &now,
			}
		}

		lhAttempts := state.LhAttempts + agg.attempts
		rhAttempts := state.RhAttempts + agg.attempts
		state.LhAccuracy = (state.LhAccuracy*float64(state.LhAttempts) + float64(agg.correct)) / float64(lhAttempts)
		state.RhScore = (state.RhScore*float64(state.RhAttempts) + agg.scoreSum) / float64(rhAttempts)
		state.LhAttempts = lhAttempts
		state.RhAttempts = rhAttempts
		state.LhLastAccuracy = sessAcc
		state.RhLastScore = sessAvgScore
		state.IntegratedScore = clamp01((state.LhAccuracy + state.RhScore) / 2)

		prevMastery := state.MasteryLevel
		if existed {
			state.MasteryLevel = clamp01(0.8*state.MasteryLevel + 0.2*performance)
		} else {
			state.MasteryLevel = performance
		}
		deltaSum += state.MasteryLevel - prevMastery

		switch {
		case performance >= 0.85 && lhAttempts >= 8:
			state.DifficultyTier++
		case performance < 0.4 && agg.attempts >= 3:
			state.DifficultyTier--
		}
		if state.DifficultyTier < 1 {
			state.DifficultyTier = 1
		}
		if state.DifficultyTier > 4 {
			state.DifficultyTier = 4
		}

		if state.FirstEncountered == nil {
			state.FirstEncountered = &now
		}
		state.LastPracticed = &now
		state.UpdatedAt = now
		out = append(out, state)
	}

	if len(out) == 0 {
		return out, 0
	}
	return out, deltaSum / float64(len(out))
}

// collectReschedules groups events into FSRS updates: per item for
// encounter/analysis stages, per KC for return. Items with no KC are
// skipped; return scheduling dedupes on the KC.
func collectReschedules(events []store.AssessmentEvent) []reschedule {
	type group struct {
		reschedule
		scoreSum float64
		scored   int
	}
	groups := make(map[string]*group)
	var order []string

	for _, e := range events {
		if e.KcID == nil {
			continue
		}
		var key string
		var r reschedule
		if e.Stage == string(session.StageReturn) {
			key = returnMemoryID(*e.KcID)
			r = reschedule{memoryItemID: key, kcID: *e.KcID, stageType: e.Stage}
		} else {
			key = e.ContentItemID
			r = reschedule{memoryItemID: e.ContentItemID, kcID: *e.KcID, stageType: e.Stage}
		}
		g, ok := groups[key]
		if !ok {
			g = &group{reschedule: r}
			groups[key] = g
			order = append(order, key)
		}
		if e.Score != nil {
			g.scoreSum += *e.Score
			g.scored++
		}
	}

	out := make([]reschedule, 0, len(order))
	for _, key := range order {
		g := groups[key]
		var score *float64
		if g.scored > 0 {
			mean := g.scoreSum / float64(g.scored)
			score = &mean
		}
		g.rating = ratingForScore(score)
		out = append(out, g.reschedule)
	}
	return out
}

// ratingForScore maps a derived score onto an FSRS grade. Unscored
// responses rate Good: absence of evidence is not a lapse.
func ratingForScore(score *float64) fsrs.Rating {
	if score == nil {
		return fsrs.RatingGood
	}
	switch {
	case *score >= 0.9:
		return fsrs.RatingEasy
	case *score >= 0.7:
		return fsrs.RatingGood
	case *score >= 0.4:
		return fsrs.RatingHard
	default:
		return fsrs.RatingAgain
	}
}

// runReschedules loads each touched card, rates it and produces the
// rows to persist plus the review-outcome and remediation events to
// emit. Again ratings extend the item's failure streak; anything else
// resets it.
func (s *Service) runReschedules(ctx context.Context, userID string, reschedules []reschedule, params fsrs.Params, now time.Time) ([]store.FsrsMemoryRow, []analytics.ReviewOutcome, []analytics.RemediationPlanned, float64, error) {
	var itemIDs, kcIDs []string
	for _, r := range reschedules {
		if r.stageType == string(session.StageReturn) {
			kcIDs = append(kcIDs, r.kcID)
		} else {
			itemIDs = append(itemIDs, r.memoryItemID)
		}
	}

	itemRows, err := s.store.MemoryRows(ctx, userID, itemIDs)
	if err != nil {
		return nil, nil, nil, 0, internalErr("load memory rows", err)
	}
	returnRows, err := s.store.ReturnMemoryRows(ctx, userID, kcIDs)
	if err != nil {
		return nil, nil, nil, 0, internalErr("load return memory rows", err)
	}

	var rows []store.FsrsMemoryRow
	var outcomes []analytics.ReviewOutcome
	var remediations []analytics.RemediationPlanned
	var rSum float64

	for _, r := range reschedules {
		card := fsrs.NewCard()
		var prevStreak int
		if r.stageType == string(session.StageReturn) {
			if existing, ok := returnRows[r.kcID]; ok {
				card = cardFromRow(existing)
				prevStreak = existing.ConsecutiveAgain
			}
		} else if existing, ok := itemRows[r.memoryItemID]; ok {
			card = cardFromRow(existing)
			prevStreak = existing.ConsecutiveAgain
		}

		sched, err := fsrs.ComputeSchedule(card, r.rating, now, params)
		if err != nil {
			return nil, nil, nil, 0, internalErr("compute schedule", err)
		}
		applied := fsrs.Apply(card, sched, r.rating, now)
		rSum += sched.Retrievability

		streak := 0
		if r.rating == fsrs.RatingAgain {
			streak = prevStreak + 1
		}
		if health := adaptive.ClassifyItemHealth(streak, sched.Retrievability); health == adaptive.HealthZombie {
			plan := adaptive.PlanRemediation(streak, sched.Retrievability)
			remediations = append(remediations, analytics.RemediationPlanned{
				UserID:           userID,
				MemoryItemID:     r.memoryItemID,
				KcID:             r.kcID,
				Health:           health,
				Strategy:         plan.Strategy,
				RestDays:         plan.RestDays,
				ConsecutiveAgain: streak,
				Retrievability:   sched.Retrievability,
			})
		}

		kcID := r.kcID
		nextDue := sched.NextDue
		rows = append(rows, store.FsrsMemoryRow{
			UserID:           userID,
			MemoryItemID:     r.memoryItemID,
			KcID:             &kcID,
			StageType:        r.stageType,
			Stability:        applied.Stability,
			Difficulty:       applied.Difficulty,
			Retrievability:   applied.Retrievability,
			State:            string(applied.State),
			LastReview:       applied.LastReview,
			NextReview:       &nextDue,
			ReviewCount:      applied.ReviewCount,
			LapseCount:       applied.LapseCount,
			ConsecutiveAgain: streak,
		})

		var elapsedDays float64
		if card.LastReview != nil {
			elapsedDays = now.Sub(*card.LastReview).Hours() / 24
		}
		outcomes = append(outcomes, analytics.ReviewOutcome{
			UserID:        userID,
			MemoryItemID:  r.memoryItemID,
			KcID:          r.kcID,
			Rating:        r.rating,
			PreState:      card.State,
			PostState:     applied.State,
			PreR:          sched.Retrievability,
			PostR:         fsrs.CurrentRetrievability(applied, now),
			ElapsedDays:   elapsedDays,
			ScheduledDays: sched.IntervalDays,
		})
	}

	avgR := 0.0
	if len(reschedules) > 0 {
		avgR = rSum / float64(len(reschedules))
	}
	return rows, outcomes, remediations, avgR, nil
}

// overlayKcStates merges the freshly computed KC states over the
// pre-session topic rows, appending KCs practiced for the first time.
func overlayKcStates(topicRows []store.LearnerKcState, updated []store.LearnerKcState) []store.LearnerKcState {
	byKc := make(map[string]store.LearnerKcState, len(updated))
	for _, u := range updated {
		byKc[u.KcID] = u
	}
	out := make([]store.LearnerKcState, 0, len(topicRows))
	seen := make(map[string]bool, len(topicRows))
	for _, r := range topicRows {
		seen[r.KcID] = true
		if u, ok := byKc[r.KcID]; ok {
			out = append(out, u)
		} else {
			out = append(out, r)
		}
	}
	for _, u := range updated {
		if !seen[u.KcID] {
			out = append(out, u)
		}
	}
	return out
}

// topicProficiency summarises mastery across the topic's KCs.
func (s *Service) topicProficiency(ctx context.Context, userID, topicID string, states []store.LearnerKcState, now time.Time) (store.TopicProficiency, error) {
	kcs, err := s.store.KcsByTopic(ctx, topicID)
	if err != nil {
		return store.TopicProficiency{}, internalErr("load topic kcs", err)
	}
	topicKcs := make(map[string]bool, len(kcs))
	for _, kc := range kcs {
		topicKcs[kc.ID] = true
	}

	var sum float64
	var counted, mastered, inProgress int
	for _, st := range states {
		if !topicKcs[st.KcID] {
			continue
		}
		sum += st.MasteryLevel
		counted++
		switch {
		case st.MasteryLevel >= 0.8:
			mastered++
		case st.MasteryLevel > 0:
			inProgress++
		}
	}

	p := store.TopicProficiency{
		UserID:        userID,
		TopicID:       topicID,
		KcsMastered:   mastered,
		KcsInProgress: inProgress,
		KcsNotStarted: len(kcs) - mastered - inProgress,
		UpdatedAt:     now,
	}
	if counted > 0 {
		p.Proficiency = sum / float64(counted)
	}
	if p.KcsNotStarted < 0 {
		p.KcsNotStarted = 0
	}
	return p, nil
}

// buildProfileRow folds this session into the four-layer profile.
func (s *Service) buildProfileRow(ctx context.Context, userID string, row *store.Session, st session.State, events []store.AssessmentEvent, hbs float64, level int, masteryDelta float64, durationS int, accuracy *float64, now time.Time) (store.LearnerProfile, error) {
	prev := profile.NewProfile()
	if existing, err := s.store.GetProfile(ctx, userID); err != nil {
		return store.LearnerProfile{}, internalErr("load profile", err)
	} else if existing != nil {
		// Malformed blobs reset the affected layer rather than failing
		// the completion.
		_ = json.Unmarshal([]byte(existing.Behavioral), &prev.Behavioral)
		_ = json.Unmarshal([]byte(existing.Cognitive), &prev.Cognitive)
		_ = json.Unmarshal([]byte(existing.Motivational), &prev.Motivational)
	}

	obs, err := s.buildObservation(ctx, userID, row, st, events, hbs, level, masteryDelta, durationS, accuracy, now)
	if err != nil {
		return store.LearnerProfile{}, err
	}
	next := profile.UpdateWith(prev, obs, s.risk)

	behavioral, err := json.Marshal(next.Behavioral)
	if err != nil {
		return store.LearnerProfile{}, internalErr("encode behavioral profile", err)
	}
	cognitive, err := json.Marshal(next.Cognitive)
	if err != nil {
		return store.LearnerProfile{}, internalErr("encode cognitive profile", err)
	}
	motivational, err := json.Marshal(next.Motivational)
	if err != nil {
		return store.LearnerProfile{}, internalErr("encode motivational profile", err)
	}

	return store.LearnerProfile{
		UserID:       userID,
		Behavioral:   string(behavioral),
		Cognitive:    string(cognitive),
		Motivational: string(motivational),
		UpdatedAt:    now,
	}, nil
}

func (s *Service) buildObservation(ctx context.Context, userID string, row *store.Session, st session.State, events []store.AssessmentEvent, hbs float64, level int, masteryDelta float64, durationS int, accuracy *float64, now time.Time) (profile.Observation, error) {
	byID, err := s.itemsByID(ctx, st.ItemQueue)
	if err != nil {
		return profile.Observation{}, err
	}

	var latencySum float64
	var helpRequests int
	var scoreSum float64
	var scored int
	modality := make(map[string]float64)
	typeScores := make(map[string][]float64)
	var pairs []profile.ConfidencePair

	for _, e := range events {
		latencySum += float64(e.LatencyMs)
		if e.HelpRequested {
			helpRequests++
		}
		if e.Score != nil {
			scoreSum += *e.Score
			scored++
			typeScores[e.ResponseType] = append(typeScores[e.ResponseType], *e.Score)
		}
		if e.ConfidenceRating != nil && e.IsCorrect != nil {
			pairs = append(pairs, profile.ConfidencePair{
				Confidence: *e.ConfidenceRating,
				Correct:    *e.IsCorrect,
			})
		}
		if it, ok := byID[e.ContentItemID]; ok && it.HemisphereMode != "" {
			modality[it.HemisphereMode]++
		}
	}

	var avgScore float64
	if scored > 0 {
		avgScore = scoreSum / float64(scored)
	} else if accuracy != nil {
		avgScore = *accuracy
	}
	var latencyMean float64
	if len(events) > 0 {
		latencyMean = latencySum / float64(len(events))
	}
	assessmentTypes := make(map[string]float64, len(typeScores))
	for rt, scores := range typeScores {
		var sum float64
		for _, v := range scores {
			sum += v
		}
		assessmentTypes[rt] = sum / float64(len(scores))
	}

	recent, err := s.store.RecentSessions(ctx, userID, 100)
	if err != nil {
		return profile.Observation{}, internalErr("load recent sessions", err)
	}
	var last7d, last30d int
	for _, sess := range recent {
		age := now.Sub(sess.StartedAt)
		if age <= 7*24*time.Hour {
			last7d++
		}
		if age <= 30*24*time.Hour {
			last30d++
		}
	}

	return profile.Observation{
		CompletedAt:   now,
		DurationS:     durationS,
		Accuracy:      accuracy,
		AvgScore:      avgScore,
		LatencyMeanMs: latencyMean,
		HelpRequests:  helpRequests,
		Responses:     len(events),
		StageDurationsMs: map[string]int64{
			string(session.StageEncounter): st.EncounterDurationMs,
			string(session.StageAnalysis):  st.AnalysisDurationMs,
			string(session.StageReturn):    st.ReturnDurationMs,
		},
		ConfidencePairs: pairs,
		Hbs:             hbs,
		ModalityCounts:  modality,
		DifficultyTier:  level,
		MasteryDelta:    masteryDelta,
		TopicID:         row.TopicID,
		AssessmentTypes: assessmentTypes,
		SessionsLast7d:  last7d,
		SessionsLast30d: last30d,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
