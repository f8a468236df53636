package intent

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/wwwzy/SalesAgent/internal/convo"
)

// Scores 为每个 Agent 的置信度 ∈ [0,1]。
type Scores map[convo.AgentKind]float64

// Ranked 为按分数降序排列的一项。
type Ranked struct {
	Agent convo.AgentKind
	Score float64
}

// Sorted 按分数降序返回；同分按注册顺序。
func (s Scores) Sorted() []Ranked {
	out := make([]Ranked, 0, len(s))
	for _, k := range convo.Kinds() {
		if v, ok := s[k]; ok {
			out = append(out, Ranked{Agent: k, Score: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Best 返回最高分的 Agent。
func (s Scores) Best() (convo.AgentKind, float64) {
	ranked := s.Sorted()
	if len(ranked) == 0 {
		return "", 0
	}
	return ranked[0].Agent, ranked[0].Score
}

// Terms 为消息中检测到的领域词类别。
type Terms struct {
	Technical  bool
	Sales      bool
	Quote      bool
	Contact    bool
	CallCenter bool
}

// DetectTerms 检测消息中的领域词。
func DetectTerms(message string) Terms {
	n := Normalize(message)
	w := Words(n)
	return Terms{
		Technical:  anyIn(technicalTerms, w),
		Sales:      anyIn(salesTerms, w),
		Quote:      anySubstring(quoteTerms, n),
		Contact:    anyIn(contactTerms, w),
		CallCenter: anyIn(callCenterTerms, w),
	}
}

// HasDomain 表示是否出现技术或销售词。
func (t Terms) HasDomain() bool {
	return t.Technical || t.Sales
}

// Classifier 为基于关键词、短语与上下文规则的意图分类器，无内部状态。
type Classifier struct {
	rules  []Rule
	logger *slog.Logger
}

// Option 配置 Classifier。
type Option func(*Classifier)

// WithLogger 设置日志。
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRules 替换上下文规则表。
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = rules
	}
}

// NewClassifier 使用默认规则表创建分类器。
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{rules: DefaultRules(), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify 计算每个 Agent 的置信度。相同消息与上下文总是得到相同结果。
func (c *Classifier) Classify(message string, cc *convo.Context) Scores {
	normalized := Normalize(message)
	words := Words(normalized)

	scores := make(Scores, len(baseScores))
	for k, v := range baseScores {
		scores[k] = v
	}

	// 1. 服务/公司信息问题直接交给 GeneralAgent
	if strings.ContainsAny(message, "?¿") && anySubstring(serviceQuestions, normalized) {
		scores[convo.General] = serviceQuestionGA
		c.logger.Debug("service question fast path", "message", message)
		return clampAll(scores)
	}

	// 2. 关键词：每个不同的关键词计一次
	for _, k := range convo.Kinds() {
		for _, kw := range keywords[k] {
			if !kw.in(words) {
				continue
			}
			if k == convo.Sales && highValueSales[kw.text] {
				scores[k] += salesKeywordStep
			} else {
				scores[k] += keywordStep
			}
		}
	}

	// 3. 短语：子串匹配
	for _, k := range convo.Kinds() {
		for _, p := range phrases[k] {
			if !strings.Contains(normalized, p.text) {
				continue
			}
			if k == convo.Sales {
				scores[k] += salesPhraseStep
			} else {
				scores[k] += phraseStep
			}
		}
	}

	// 4. 上下文规则
	if cc != nil {
		in := newInput(message, normalized, words, cc)
		for _, r := range c.rules {
			if !r.When(in) {
				continue
			}
			for _, e := range r.Effects {
				e.apply(scores, in)
			}
			if r.Stop {
				break
			}
		}
	}

	return clampAll(scores)
}

// DetectExplicitAgent 检测显式切换到某个 Agent 的表达。
// 多词短语按子串匹配，单词按整词匹配。
func DetectExplicitAgent(message string) (convo.AgentKind, bool) {
	n := Normalize(message)
	w := Words(n)
	for _, k := range explicitOrder {
		for _, p := range explicitKeywords[k] {
			if len(p.words) > 1 {
				if strings.Contains(n, p.text) {
					return k, true
				}
				continue
			}
			if p.in(w) {
				return k, true
			}
		}
	}
	return "", false
}

// HasKeyword 表示消息是否命中某个 Agent 的关键词表（整词匹配）。
func HasKeyword(k convo.AgentKind, message string) bool {
	return anyIn(keywords[k], Words(Normalize(message)))
}

// Explain 生成用于日志的选择说明。
func Explain(scores Scores, selected convo.AgentKind) string {
	parts := make([]string, 0, len(scores))
	for _, r := range scores.Sorted() {
		parts = append(parts, fmt.Sprintf("%s: %.2f", r.Agent, r.Score))
	}
	return fmt.Sprintf("Agente seleccionado: %s con confianza %.2f. Todas las puntuaciones: %s",
		selected, scores[selected], strings.Join(parts, ", "))
}

func clampAll(s Scores) Scores {
	for k, v := range s {
		switch {
		case v < 0:
			s[k] = 0
		case v > 1:
			s[k] = 1
		}
	}
	return s
}
