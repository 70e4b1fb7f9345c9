// file: internal/service/scoring/scorer.go
package scoring

import (
	"PluginLens/internal/core/domain"
	"time"
)

// Scorer 绑定一份评分配置快照。一次查询只创建一个 Scorer，
// 保证整批记录使用同一组权重，配置在中途更新也不会影响已开始的计算。
type Scorer struct {
	cfg domain.AlgorithmConfig
	env HealthEnv
}

// NewScorer 基于配置快照创建评分器；cfg 会被深拷贝
func NewScorer(cfg domain.AlgorithmConfig, now time.Time) *Scorer {
	return &Scorer{
		cfg: cfg.Clone(),
		env: HealthEnv{Now: now, PlatformVersion: cfg.PlatformVersion},
	}
}

// Revision 快照对应的配置版本
func (s *Scorer) Revision() uint64 { return s.cfg.Revision }

// Day 评分所依据的日期 (UTC)。recency 分项按天计算，同一天内的评分可以复用。
func (s *Scorer) Day() string { return s.env.Now.UTC().Format(time.DateOnly) }

// Annotate 为一条记录计算两项评分，返回新的 AnnotatedPlugin，不修改输入
func (s *Scorer) Annotate(rec domain.PluginRecord, rank int) domain.AnnotatedPlugin {
	return domain.AnnotatedPlugin{
		PluginRecord: rec.Clone(),
		Rank:         rank,
		Usability:    Usability(rec, s.cfg.UsabilityWeights, s.cfg.Thresholds),
		Health:       Health(rec, s.cfg.HealthWeights, s.cfg.Thresholds, s.env),
	}
}

// AnnotateAll 按上游顺序逐条评分，rank 从 0 开始
func (s *Scorer) AnnotateAll(records []domain.PluginRecord) []domain.AnnotatedPlugin {
	out := make([]domain.AnnotatedPlugin, 0, len(records))
	for i, rec := range records {
		out = append(out, s.Annotate(rec, i))
	}
	return out
}
