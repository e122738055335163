package deadletter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlens/features/deadletter"
	"chatlens/internal/testutils"
)

func TestDeadletterRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := deadletter.NewPostgresRepo(s.DB)
	ctx := context.Background()

	f1 := &deadletter.Failure{
		ChatID:     "c1",
		MessageID:  "m1",
		Reason:     "tesseract timed out",
		EnqueuedAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, repo.Save(ctx, f1))
	assert.NotEmpty(t, f1.ID)

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, repo.RecordFailure(ctx, "c1", "m2", "decode failure", time.Time{}))

	failures, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "m2", failures[0].MessageID, "newest failure should be first")
	assert.True(t, failures[0].EnqueuedAt.IsZero(), "zero enqueue time round-trips as NULL")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
