package omr

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"testing"

	"omr-scanner/internal/page"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// digitPages returns sheets whose first identification digit is the page index mod 10.
func digitPages(n int) []page.Source {
	sources := make([]page.Source, n)
	for i := range sources {
		sheet := fullSheet()
		markDigit(sheet, 0, i%10, 0)
		sources[i] = page.Source{Number: i + 1, Image: toPage(sheet), Path: "batch.pdf"}
	}
	return sources
}

func TestProcessBatchKeepsInputOrder(t *testing.T) {
	sources := digitPages(7)
	sources[4].Image = page.Image{Width: 3, Height: 3, Channels: 5}

	p := newTestProcessor(t, testSettings())

	var pages []int
	var failures int
	for result, err := range p.ProcessBatch(context.Background(), slices.Values(sources), 3) {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, ErrInvalidImage)
			assert.Contains(t, err.Error(), "batch.pdf page 5")
			pages = append(pages, 5)
			continue
		}
		require.NotNil(t, result)
		assert.Equal(t, "batch.pdf", result.Source)
		assert.Equal(t, fmt.Sprintf("%d???????", (result.Page-1)%10), result.Identification)
		pages = append(pages, result.Page)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, pages)
	assert.Equal(t, 1, failures)
}

func TestProcessBatchStopsWhenConsumerBreaks(t *testing.T) {
	p := newTestProcessor(t, testSettings())

	count := 0
	for result, err := range p.ProcessBatch(context.Background(), slices.Values(digitPages(6)), 2) {
		require.NoError(t, err)
		assert.Equal(t, 1, result.Page)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestProcessBatchCancelledContext(t *testing.T) {
	p := newTestProcessor(t, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var lastErr error
	for _, err := range p.ProcessBatch(ctx, slices.Values(digitPages(4)), 0) {
		lastErr = err
	}
	assert.ErrorIs(t, lastErr, context.Canceled)
}

func TestProcessBatchCancelMidway(t *testing.T) {
	p := newTestProcessor(t, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The source stops producing once cancelled so the batch can only end via ctx.
	sources := digitPages(3)
	var pages iter.Seq[page.Source] = func(yield func(page.Source) bool) {
		for i := 0; ; i++ {
			if !yield(sources[i%len(sources)]) {
				return
			}
		}
	}

	seen := 0
	var lastErr error
	for result, err := range p.ProcessBatch(ctx, pages, 2) {
		if err != nil {
			lastErr = err
			continue
		}
		require.NotNil(t, result)
		seen++
		if seen == 2 {
			cancel()
		}
	}
	assert.GreaterOrEqual(t, seen, 2)
	assert.ErrorIs(t, lastErr, context.Canceled)
}

func TestProcessBatchEmpty(t *testing.T) {
	p := newTestProcessor(t, testSettings())
	for range p.ProcessBatch(context.Background(), slices.Values([]page.Source(nil)), 4) {
		t.Fatal("unexpected result")
	}
}
