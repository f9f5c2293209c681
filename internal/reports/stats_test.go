package reports

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/medvoyage/content-service/internal/queue"
)

func TestBuildStatsWorkbook(t *testing.T) {
	stats := []queue.DayStats{
		{
			Day: "2026-03-14",
			Counters: map[string]int64{
				"content_generation:enqueued":  7,
				"content_generation:completed": 5,
				"translation:dead":             1,
			},
		},
		{
			Day:      "2026-03-15",
			Counters: map[string]int64{},
		},
	}

	f, err := BuildStatsWorkbook(stats)
	require.NoError(t, err)

	rows, err := f.GetRows("Daily")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Day", rows[0][0])
	assert.Contains(t, rows[0], "content_generation:enqueued")
	assert.Len(t, rows[0], 1+len(StatsColumns()))

	assert.Equal(t, "2026-03-14", rows[1][0])
	assert.Equal(t, "2026-03-15", rows[2][0])

	enqueuedCol := 0
	for i, name := range rows[0] {
		if name == "content_generation:enqueued" {
			enqueuedCol = i
		}
	}
	assert.Equal(t, "7", rows[1][enqueuedCol])
}

func TestWriteStatsWorkbookProducesReadableFile(t *testing.T) {
	var buf bytes.Buffer
	err := WriteStatsWorkbook(&buf, []queue.DayStats{
		{Day: "2026-03-15", Counters: map[string]int64{"seo_optimization:retried": 2}},
	})
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows("Daily")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStatsColumnsCoversEveryTypeAndEvent(t *testing.T) {
	cols := StatsColumns()
	assert.Len(t, cols, len(queue.AllTypes)*5)
	assert.Contains(t, cols, "image_generation:dead")
	assert.Contains(t, cols, "translation:processing")
}
