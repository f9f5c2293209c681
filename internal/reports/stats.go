// Package reports renders operator-facing exports of queue statistics.
package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/medvoyage/content-service/internal/queue"
)

const statsSheet = "Daily"

// StatsColumns fixes the workbook column order: one column per type/event
// pair, types in dispatch order.
func StatsColumns() []string {
	events := []queue.Event{
		queue.EventEnqueued, queue.EventProcessing, queue.EventCompleted,
		queue.EventRetried, queue.EventDead,
	}
	var cols []string
	for _, t := range queue.AllTypes {
		for _, ev := range events {
			cols = append(cols, string(t)+":"+string(ev))
		}
	}
	return cols
}

// BuildStatsWorkbook renders per-day counters as an XLSX workbook, one row
// per day, oldest first.
func BuildStatsWorkbook(stats []queue.DayStats) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", statsSheet); err != nil {
		return nil, err
	}

	cols := StatsColumns()
	header := append([]string{"Day"}, cols...)
	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(statsSheet, cell, name); err != nil {
			return nil, err
		}
	}

	for row, day := range stats {
		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(statsSheet, cell, day.Day); err != nil {
			return nil, err
		}
		for i, col := range cols {
			cell, err := excelize.CoordinatesToCellName(i+2, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(statsSheet, cell, day.Counters[col]); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(statsSheet, "A", "A", 12); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	return f, nil
}

// WriteStatsWorkbook renders and streams the workbook in one step.
func WriteStatsWorkbook(w io.Writer, stats []queue.DayStats) error {
	f, err := BuildStatsWorkbook(stats)
	if err != nil {
		return err
	}
	return f.Write(w)
}
