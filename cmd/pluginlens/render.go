// file: cmd/pluginlens/render.go

package main

import (
	"PluginLens/internal/core/domain"
	"fmt"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const notAvailable = "n/a"

func renderQueryResult(res *domain.QueryResult) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"#", "SLUG", "NAME", "INSTALLS", "RATING", "USABILITY", "HEALTH", "UPDATED"})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 3, WidthMax: 36},
	})
	for i, p := range res.Plugins {
		w.AppendRow(table.Row{
			i + 1,
			p.Slug,
			p.Name,
			p.ActiveInstalls,
			formatRating(p.PluginRecord),
			formatUsability(p),
			formatHealth(p),
			formatUpdated(p.PluginRecord),
		})
	}

	footer := fmt.Sprintf("第 %d/%d 页，上游返回 %d 条，筛选后 %d 条，配置版本 %d",
		res.Pagination.Page, res.Pagination.Pages, res.Fetched, len(res.Plugins), res.ConfigRevision)
	switch {
	case res.Degraded && res.Stale:
		footer += "（上游不可用，使用过期缓存）"
	case res.Degraded:
		footer += "（上游不可用）"
	case res.FromCache:
		footer += "（缓存）"
	}
	w.SetCaption(footer)
	return w.Render()
}

func formatRating(p domain.PluginRecord) string {
	if !p.HasRating() {
		return notAvailable
	}
	return fmt.Sprintf("%.1f (%d)", *p.Rating, p.NumRatings)
}

func formatUsability(p domain.AnnotatedPlugin) string {
	v, ok := p.UsabilityRating()
	if !ok {
		return notAvailable
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatHealth(p domain.AnnotatedPlugin) string {
	v, ok := p.HealthScore()
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%d %s", v, p.HealthBand())
}

func formatUpdated(p domain.PluginRecord) string {
	if p.LastUpdated == nil {
		return notAvailable
	}
	return p.LastUpdated.Format("2006-01-02")
}

func renderCacheStats(stats domain.CacheStats) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.SetTitle("backend: " + stats.Backend)
	w.AppendHeader(table.Row{"KIND", "HITS", "MISSES", "STALE", "WRITES"})
	for _, kind := range domain.AllCacheKinds() {
		s := stats.Kinds[kind]
		w.AppendRow(table.Row{kind, s.Hits, s.Misses, s.StaleHits, s.Writes})
	}
	return w.Render()
}

func renderWeights(title string, weights domain.WeightMap, order []string) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.SetTitle(title)
	w.AppendHeader(table.Row{"COMPONENT", "WEIGHT"})
	for _, name := range order {
		w.AppendRow(table.Row{name, weights[name]})
	}
	w.AppendFooter(table.Row{"TOTAL", weights.Sum()})
	return w.Render()
}

func renderAlgorithmConfig(cfg domain.AlgorithmConfig) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendRow(table.Row{"REVISION", cfg.Revision})
	w.AppendRow(table.Row{"PLATFORM VERSION", cfg.PlatformVersion})
	if !cfg.UpdatedAt.IsZero() {
		w.AppendRow(table.Row{"UPDATED AT", cfg.UpdatedAt.Format("2006-01-02 15:04:05 MST")})
	}
	kinds := domain.AllCacheKinds()
	slices.Sort(kinds)
	for _, k := range kinds {
		w.AppendRow(table.Row{"TTL " + string(k), cfg.TTL(k).String()})
	}

	return w.Render() + "\n" +
		renderWeights("usability", cfg.UsabilityWeights, domain.UsabilityComponents()) + "\n" +
		renderWeights("health", cfg.HealthWeights, domain.HealthComponents())
}
