package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBase(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", DisplayName: "Ada", Role: "learner", IsActive: true, CreatedAt: now}))
	require.NoError(t, s.CreateTopic(ctx, Topic{ID: "algebra", Name: "Algebra"}))
	require.NoError(t, s.CreateKc(ctx, KnowledgeComponent{ID: "kc1", TopicID: "algebra", Name: "Linear equations"}))
	require.NoError(t, s.CreateContentItem(ctx, ContentItem{
		ID: "a1", TopicID: "algebra", Stage: "analysis", ItemType: "exercise",
		DifficultyLevel: 1, HemisphereMode: "balanced", EstimatedDurationS: 90,
		IsActive: true, IsReviewable: true, InterleaveEligible: true,
		SimilarityTags: JSONStrings{"equations", "solving"}, Body: `{"prompt":"solve"}`,
	}))
	require.NoError(t, s.LinkItemKc(ctx, "a1", "kc1", true))
}

func TestUserAndTopicLookup(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)
	assert.True(t, u.IsActive)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	topic, err := s.GetTopic(ctx, "algebra")
	require.NoError(t, err)
	assert.Equal(t, "Algebra", topic.Name)
}

func TestContentItemsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()

	items, err := s.ListActiveItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, JSONStrings{"equations", "solving"}, items[0].SimilarityTags)
	assert.True(t, items[0].InterleaveEligible)

	kcs, err := s.PrimaryKcs(ctx, []string{"a1", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a1": "kc1"}, kcs)
}

func TestSessionLifecyclePersistence(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()
	started := time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC)

	sess := Session{
		ID: "s1", UserID: "u1", TopicID: "algebra", SessionType: "standard",
		Status: "in_progress", StartedAt: started, AdaptiveDecisions: `{"status":"in_progress"}`,
	}
	require.NoError(t, s.InsertSession(ctx, sess))

	active, err := s.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "s1", active.ID)

	byTopic, err := s.ActiveSessionForTopic(ctx, "u1", "algebra")
	require.NoError(t, err)
	require.NotNil(t, byTopic)

	require.NoError(t, s.UpdateSessionState(ctx, "s1", `{"status":"in_progress","currentStage":"analysis"}`))

	done := started.Add(18 * time.Minute)
	acc := 0.75
	sess.Status = "completed"
	sess.CompletedAt = &done
	sess.DurationS = 1080
	sess.Accuracy = &acc
	sess.AdaptiveDecisions = `{"status":"completed"}`
	require.NoError(t, s.UpdateSessionOutcome(ctx, sess))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	require.NotNil(t, got.Accuracy)
	assert.InDelta(t, 0.75, *got.Accuracy, 1e-9)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	none, err := s.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAssessmentEvents(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()
	started := time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertSession(ctx, Session{
		ID: "s1", UserID: "u1", TopicID: "algebra", SessionType: "standard",
		Status: "in_progress", StartedAt: started, AdaptiveDecisions: "{}",
	}))

	correct := true
	score := 1.0
	kc := "kc1"
	require.NoError(t, s.InsertAssessmentEvent(ctx, AssessmentEvent{
		ID: "e1", UserID: "u1", SessionID: "s1", ContentItemID: "a1", KcID: &kc,
		Stage: "analysis", ResponseType: "answer", Payload: `{"answer":"x=2"}`,
		IsCorrect: &correct, Score: &score, ScoringMethod: "auto",
		PresentedAt: started, RespondedAt: started.Add(20 * time.Second),
		LatencyMs: 20000, DifficultyLevel: 1,
	}))
	require.NoError(t, s.InsertAssessmentEvent(ctx, AssessmentEvent{
		ID: "e2", UserID: "u1", SessionID: "s1", ContentItemID: "a1", KcID: &kc,
		Stage: "analysis", ResponseType: "answer", Payload: "{}",
		ScoringMethod: "pending",
		PresentedAt:   started.Add(30 * time.Second),
		RespondedAt:   started.Add(50 * time.Second),
		LatencyMs:     20000, DifficultyLevel: 1,
	}))

	events, err := s.SessionEvents(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID, "ordered by responded_at")
	require.NotNil(t, events[0].IsCorrect)
	assert.True(t, *events[0].IsCorrect)
	assert.Nil(t, events[1].IsCorrect)
	assert.Nil(t, events[1].Score)
}

func TestMemoryRowUpsert(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	next := now.AddDate(0, 0, 3)
	kc := "kc1"

	row := FsrsMemoryRow{
		UserID: "u1", MemoryItemID: "a1", KcID: &kc, StageType: "analysis",
		Stability: 3.1262, Difficulty: 5.3146, Retrievability: 1,
		State: "review", LastReview: &now, NextReview: &next, ReviewCount: 1,
	}
	require.NoError(t, s.UpsertMemoryRow(ctx, row))

	// Second write replaces, not duplicates.
	row.Stability = 8.5
	row.ReviewCount = 2
	row.ConsecutiveAgain = 1
	require.NoError(t, s.UpsertMemoryRow(ctx, row))

	rows, err := s.MemoryRows(ctx, "u1", []string{"a1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 8.5, rows["a1"].Stability, 1e-9)
	assert.Equal(t, 2, rows["a1"].ReviewCount)
	assert.Equal(t, 1, rows["a1"].ConsecutiveAgain)

	// Concept-level return row keyed by KC.
	require.NoError(t, s.UpsertMemoryRow(ctx, FsrsMemoryRow{
		UserID: "u1", MemoryItemID: "return:kc1", KcID: &kc, StageType: "return",
		Stability: 2, Difficulty: 5, Retrievability: 1, State: "review",
		LastReview: &now, ReviewCount: 1,
	}))
	returns, err := s.ReturnMemoryRows(ctx, "u1", []string{"kc1"})
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "return:kc1", returns["kc1"].MemoryItemID)

	users, err := s.UsersWithReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestKcStateAndProfile(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	st := LearnerKcState{
		UserID: "u1", KcID: "kc1", LhAccuracy: 0.8, LhAttempts: 5,
		RhScore: 0.6, RhAttempts: 5, MasteryLevel: 0.7, IntegratedScore: 0.7,
		DifficultyTier: 2, FirstEncountered: &now, LastPracticed: &now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertKcState(ctx, st))

	st.MasteryLevel = 0.75
	require.NoError(t, s.UpsertKcState(ctx, st))

	states, err := s.KcStates(ctx, "u1", []string{"kc1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, states["kc1"].MasteryLevel, 1e-9)

	byTopic, err := s.KcStatesForTopic(ctx, "u1", "algebra")
	require.NoError(t, err)
	require.Len(t, byTopic, 1)
	assert.Equal(t, "kc1", byTopic[0].KcID)

	require.NoError(t, s.UpsertTopicProficiency(ctx, TopicProficiency{
		UserID: "u1", TopicID: "algebra", Proficiency: 0.75, KcsMastered: 0,
		KcsInProgress: 1, UpdatedAt: now,
	}))
	prof, err := s.GetTopicProficiency(ctx, "u1", "algebra")
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.InDelta(t, 0.75, prof.Proficiency, 1e-9)

	require.NoError(t, s.UpsertProfile(ctx, LearnerProfile{
		UserID: "u1", Behavioral: `{"totalSessions":1}`, Cognitive: "{}",
		Motivational: "{}", UpdatedAt: now,
	}))
	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Contains(t, p.Behavioral, "totalSessions")
}

func TestFsrsParameters(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	none, err := s.GetFsrsParameters(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none, "no override means global defaults")

	weights := make(JSONFloats, 19)
	for i := range weights {
		weights[i] = float64(i) / 10
	}
	require.NoError(t, s.UpsertFsrsParameters(ctx, FsrsParameters{
		UserID: "u1", Weights: weights, TargetRetention: 0.88, UpdatedAt: now,
	}))

	p, err := s.GetFsrsParameters(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Len(t, p.Weights, 19)
	assert.InDelta(t, 0.88, p.TargetRetention, 1e-9)

	require.NoError(t, s.DeleteFsrsParameters(ctx, "u1"))
	gone, err := s.GetFsrsParameters(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	seedBase(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q *Queries) error {
		if err := q.InsertSession(ctx, Session{
			ID: "s1", UserID: "u1", TopicID: "algebra", SessionType: "quick",
			Status: "in_progress", StartedAt: time.Now().UTC(), AdaptiveDecisions: "{}",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}
