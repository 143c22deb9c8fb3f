package pipeline

import (
	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

// StatsTable renders per level statistics as a table with a totals footer.
func StatsTable(stats []LevelStats) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"LOD", "Reduced", "Kept", "Blocks", "Buckets", "Size"})
	for _, s := range stats {
		t.AppendRow(table.Row{s.Level, s.Reduced, s.Kept, s.Blocks, s.Buckets, units.HumanSize(float64(s.Bytes))})
	}
	t.AppendFooter(table.Row{
		"Total",
		lo.SumBy(stats, func(s LevelStats) int { return s.Reduced }),
		lo.SumBy(stats, func(s LevelStats) int { return s.Kept }),
		lo.SumBy(stats, func(s LevelStats) int { return s.Blocks }),
		lo.SumBy(stats, func(s LevelStats) int { return s.Buckets }),
		units.HumanSize(float64(lo.SumBy(stats, func(s LevelStats) int { return s.Bytes }))),
	})
	return t.Render()
}
