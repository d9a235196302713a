package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/councilgen/internal/domain"
)

func townHall(specID string) domain.ImageSpecification {
	return domain.ImageSpecification{
		Type:          domain.ImageTypeHero,
		Prompt:        "a stone town hall",
		Dimensions:    "1200x630",
		Style:         domain.ImageStylePhoto,
		ContentSpecID: specID,
	}
}

func TestCollectorEnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := NewCollector(store)

	first, err := c.Enqueue(ctx, "content-1", townHall("about"))
	require.NoError(t, err)
	second, err := c.Enqueue(ctx, "content-2", townHall("contact"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.Pending)

	queue, err := c.Queue(ctx)
	require.NoError(t, err)
	dups := queue.DuplicatesOf(first)
	require.Len(t, dups, 1)
	assert.Equal(t, first+"#1", dups[0].ID)
	assert.Equal(t, "content-2", dups[0].ContentID)
	assert.Equal(t, domain.DefaultImageField, dups[0].FieldName)

	// persisted after every mutation
	fresh := NewCollector(store)
	stats, err = fresh.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestCollectorEnqueueSameTargetIsNoop(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(newMemStore())

	_, err := c.Enqueue(ctx, "content-1", townHall("about"))
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, "content-1", townHall("about"))
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, "content-2", townHall("contact"))
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, "content-2", townHall("contact"))
	require.NoError(t, err)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestCollectorDistinctRequests(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(newMemStore())

	base := townHall("about")
	variants := []domain.ImageSpecification{base}

	otherSize := base
	otherSize.Dimensions = "800x600"
	variants = append(variants, otherSize)

	otherStyle := base
	otherStyle.Style = domain.ImageStyleIllustration
	variants = append(variants, otherStyle)

	otherPrompt := base
	otherPrompt.Prompt = "a brick library"
	variants = append(variants, otherPrompt)

	// whitespace and case do not make a request distinct
	sameAgain := base
	sameAgain.Prompt = "  A Stone   town hall "
	variants = append(variants, sameAgain)

	for i, v := range variants {
		_, err := c.Enqueue(ctx, "content-"+string(rune('a'+i)), v)
		require.NoError(t, err)
	}

	queue, err := c.Queue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, queue.UniqueCount())
	assert.Equal(t, 1, queue.DuplicateCount())
	assert.Len(t, queue.PendingIDs(), 4)
}

func TestCollectorCollectAllSkipsUnrenderable(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(newMemStore())

	sp := withImage(spec("about", 1), "the {{council_name}} offices")
	sp = withImage(sp, "the {{unknown_thing}}")

	ids, err := c.CollectAll(ctx, "content-1", sp, testIdentity())
	require.NoError(t, err)
	require.Len(t, ids, 1)

	queue, err := c.Queue(ctx)
	require.NoError(t, err)
	item, ok := queue.Item(ids[0])
	require.True(t, ok)
	assert.Equal(t, "the Testbury Borough Council offices", item.Spec.Prompt)
	assert.Equal(t, "about", item.ContentSpecID)
	assert.Equal(t, "content-1", item.ContentID)
}

func TestCollectorResetFailed(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(newMemStore())

	id, err := c.Enqueue(ctx, "content-1", townHall("about"))
	require.NoError(t, err)
	queue, err := c.Queue(ctx)
	require.NoError(t, err)
	item, _ := queue.Item(id)
	require.NoError(t, item.MarkProcessing())
	require.NoError(t, item.MarkFailed("boom", item.CreatedAt))

	n, err := c.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.QueueItemPending, item.Status)

	n, err = c.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCollectorSnapshotReadsPersistedQueue(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := NewCollector(store)

	_, err := c.Enqueue(ctx, "content-1", townHall("about"))
	require.NoError(t, err)

	stats, err := NewCollector(store).Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	require.NoError(t, c.Clear(ctx))
	stats, err = c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}
