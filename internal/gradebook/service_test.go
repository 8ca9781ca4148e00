package gradebook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grades/internal/cache"
	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/internal/rollup"
)

var (
	aRollups = []rollup.Record{
		{OutcomeID: "o1", Average: 3.5},
		{OutcomeID: "o2", Average: 3.5},
		{OutcomeID: "o3", Average: 3.5},
		{OutcomeID: "o4", Average: 3.0},
	}
	bRollups = []rollup.Record{
		{OutcomeID: "o1", Average: 3.5},
		{OutcomeID: "o2", Average: 3.5},
		{OutcomeID: "o3", Average: 3.5},
		{OutcomeID: "o4", Average: 2.0, DidDropWorstComponent: true},
	}
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	clock := time.Unix(1700000000, 0)
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { clock = clock.Add(time.Minute); return clock }),
	}, opts...)
	return NewService(grading.NewCalculator(), rollup.NewMemoryStore(), NewMemorySnapshots(), opts...)
}

func TestCourseGrade_NoRollups(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CourseGrade(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, rollup.ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestCourseGrade_TrendAcrossVersions(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(time.Hour)
	svc := newTestService(t, WithCache(mem))

	_, err := svc.ReplaceRollups(ctx, "s1", "c1", aRollups)
	require.NoError(t, err)

	rep, err := svc.CourseGrade(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "A", rep.Result.Grade)
	assert.Equal(t, int64(1), rep.RollupVersion)
	assert.Empty(t, rep.Previous)
	assert.Equal(t, grading.NoTrend, rep.Trend)

	// same version again: served from cache, no new snapshot
	rep, err = svc.CourseGrade(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "A", rep.Result.Grade)
	assert.Equal(t, grading.NoTrend, rep.Trend)
	assert.Equal(t, 1, mem.Len())
	hist, err := svc.History(ctx, "s1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	_, err = svc.ReplaceRollups(ctx, "s1", "c1", bRollups)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		rep, err = svc.CourseGrade(ctx, "s1", "c1")
		require.NoError(t, err)
		assert.Equal(t, "B", rep.Result.Grade)
		assert.Equal(t, "A", rep.Previous)
		assert.Equal(t, grading.Declined, rep.Trend)
		require.NotNil(t, rep.Result.LowestOutcome)
		assert.Equal(t, "o4", rep.Result.LowestOutcome.OutcomeID)
		assert.True(t, rep.Result.LowestOutcome.DidDropWorstComponent)
	}

	hist, err = svc.History(ctx, "s1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "B", hist[0].Grade)
	assert.Equal(t, int64(2), hist[0].RollupVersion)
	assert.Equal(t, "A", hist[1].Grade)
	assert.NotEmpty(t, hist[0].ID)
	assert.NotEqual(t, hist[0].ID, hist[1].ID)

	hist, err = svc.History(ctx, "s1", "c1", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "B", hist[0].Grade)
}

func TestExplain(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.ReplaceRollups(ctx, "s1", "c1", bRollups)
	require.NoError(t, err)

	gap, err := svc.Explain(ctx, "s1", "c1", "A")
	require.NoError(t, err)
	assert.Equal(t, "B", gap.Current)
	assert.False(t, gap.Qualifies)
	assert.InDelta(t, 1.0, gap.AllDeficit, 1e-9)
	assert.Zero(t, gap.CountedDeficit)
	assert.Equal(t, 1, gap.AllBelow)

	_, err = svc.Explain(ctx, "s1", "c1", "Z")
	assert.ErrorIs(t, err, grading.ErrUnknownGrade)

	_, err = svc.Explain(ctx, "s2", "c1", "A")
	assert.ErrorIs(t, err, rollup.ErrNotFound)
}

func TestExplain_EmptySet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.ReplaceRollups(ctx, "s1", "c1", nil)
	require.NoError(t, err)

	rep, err := svc.CourseGrade(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, grading.NoGrade, rep.Result.Grade)

	_, err = svc.Explain(ctx, "s1", "c1", "A")
	assert.ErrorIs(t, err, grading.ErrNoOutcomes)
}

func TestCompute_ValidatesInput(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Compute(aRollups)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Grade)

	_, err = svc.Compute([]rollup.Record{{OutcomeID: "", Average: -1}})
	var verr *rollup.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	_, err = svc.ReplaceRollups(context.Background(), "s1", "c1", []rollup.Record{{OutcomeID: "o1", Average: -1}})
	require.ErrorAs(t, err, &verr)
	_, err = svc.CourseGrade(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, rollup.ErrNotFound)
}

type brokenCache struct{ sets int }

func (b *brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (b *brokenCache) Set(context.Context, string, []byte) error {
	b.sets++
	return errors.New("cache down")
}
func (b *brokenCache) Delete(context.Context, string) error { return nil }

func TestCourseGrade_CacheFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	bc := &brokenCache{}
	svc := newTestService(t, WithCache(bc))
	_, err := svc.ReplaceRollups(ctx, "s1", "c1", aRollups)
	require.NoError(t, err)

	rep, err := svc.CourseGrade(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "A", rep.Result.Grade)
	assert.Equal(t, 1, bc.sets)
}

func TestCourseGrade_ScaleChangedSinceSnapshot(t *testing.T) {
	ctx := context.Background()
	rollups := rollup.NewMemoryStore()
	snaps := NewMemorySnapshots()
	require.NoError(t, snaps.Append(ctx, Snapshot{ID: "x", StudentID: "s1", CourseID: "c1", Grade: "E", RollupVersion: 0}))

	svc := NewService(grading.NewCalculator(), rollups, snaps, WithLogger(quietLogger()))
	_, err := svc.ReplaceRollups(ctx, "s1", "c1", aRollups)
	require.NoError(t, err)

	rep, err := svc.CourseGrade(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "E", rep.Previous)
	assert.Equal(t, grading.NoTrend, rep.Trend)
}

func TestCourseGrade_SeparatorInIDsDoesNotShareCache(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithCache(cache.NewMemory(time.Hour)))

	high := []rollup.Record{{OutcomeID: "o1", Average: 4}, {OutcomeID: "o2", Average: 4}, {OutcomeID: "o3", Average: 4}, {OutcomeID: "o4", Average: 4}}
	low := []rollup.Record{{OutcomeID: "o1", Average: 0.5}, {OutcomeID: "o2", Average: 0.5}, {OutcomeID: "o3", Average: 0.5}, {OutcomeID: "o4", Average: 0.5}}
	_, err := svc.ReplaceRollups(ctx, "a:b", "c", high)
	require.NoError(t, err)
	_, err = svc.ReplaceRollups(ctx, "a", "b:c", low)
	require.NoError(t, err)

	rep, err := svc.CourseGrade(ctx, "a:b", "c")
	require.NoError(t, err)
	assert.Equal(t, "A", rep.Result.Grade)

	rep, err = svc.CourseGrade(ctx, "a", "b:c")
	require.NoError(t, err)
	assert.Equal(t, grading.FallbackLetter, rep.Result.Grade)

	hist, err := svc.History(ctx, "a", "b:c", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, grading.FallbackLetter, hist[0].Grade)
}

func TestCacheKey_Injective(t *testing.T) {
	assert.NotEqual(t,
		cacheKey(rollup.Set{StudentID: "a:b", CourseID: "c", Version: 1}),
		cacheKey(rollup.Set{StudentID: "a", CourseID: "b:c", Version: 1}))
	assert.NotEqual(t,
		cacheKey(rollup.Set{StudentID: "a", CourseID: "b:v1", Version: 2}),
		cacheKey(rollup.Set{StudentID: "a", CourseID: "b", Version: 1}))
}
