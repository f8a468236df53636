package intent

import (
	"strings"

	"github.com/wwwzy/SalesAgent/internal/convo"
)

// Input 为上下文规则的判定输入。
type Input struct {
	Message    string
	Normalized string
	Words      []string
	WordCount  int
	Terms      Terms
	Context    *convo.Context
	// Interrogative 表示消息以疑问词开头。
	Interrogative bool
}

func newInput(message, normalized string, words []string, cc *convo.Context) *Input {
	return &Input{
		Message:       message,
		Normalized:    normalized,
		Words:         words,
		WordCount:     len(strings.Fields(message)),
		Terms:         DetectTerms(message),
		Context:       cc,
		Interrogative: startsWithInterrogative(words),
	}
}

// Current 返回当前 Agent，空字符串表示没有。
func (in *Input) Current() convo.AgentKind {
	if in.Context == nil {
		return ""
	}
	return in.Context.CurrentAgent
}

// Effect 为一次分数调整。Agent 为空表示作用于当前 Agent；Factor 非零时按倍数缩放。
type Effect struct {
	Agent  convo.AgentKind
	Delta  float64
	Factor float64
}

func (e Effect) apply(s Scores, in *Input) {
	target := e.Agent
	if target == "" {
		target = in.Current()
	}
	if _, ok := s[target]; !ok {
		return
	}
	if e.Factor != 0 {
		s[target] *= e.Factor
	}
	s[target] += e.Delta
}

// Rule 为一条按优先级顺序执行的上下文规则；Stop 为 true 时命中后不再执行后续规则。
type Rule struct {
	Name    string
	When    func(*Input) bool
	Effects []Effect
	Stop    bool
}

func current(delta float64) Effect { return Effect{Delta: delta} }

func add(k convo.AgentKind, delta float64) Effect { return Effect{Agent: k, Delta: delta} }

func scale(k convo.AgentKind, factor float64) Effect { return Effect{Agent: k, Factor: factor} }

func engineerContinuity(in *Input) bool {
	return in.Current() == convo.Engineer && in.Terms.Technical
}

func salesContinuity(in *Input) bool {
	return in.Current() == convo.Sales && in.Terms.Sales
}

// DefaultRules 返回默认上下文规则表。
func DefaultRules() []Rule {
	return []Rule{
		{
			// DataCollectionAgent 只应通过明确的联系信号或未完成表单胜出
			Name:    "dampen_data_collection",
			When:    func(*Input) bool { return true },
			Effects: []Effect{scale(convo.DataCollection, 0.5)},
		},
		{
			Name: "trivial_ack",
			When: func(in *Input) bool {
				return in.WordCount <= 2 && in.Current() != "" && !in.Terms.HasDomain()
			},
			Effects: []Effect{current(1.0)},
			Stop:    true,
		},
		{
			Name:    "technical_terms",
			When:    func(in *Input) bool { return in.Terms.Technical },
			Effects: []Effect{add(convo.Engineer, 0.4), add(convo.General, -0.15), add(convo.Sales, -0.15)},
		},
		{
			Name:    "sales_terms",
			When:    func(in *Input) bool { return in.Terms.Sales },
			Effects: []Effect{add(convo.Sales, 0.4), add(convo.General, -0.15), add(convo.Engineer, -0.15)},
		},
		{
			Name: "general_question",
			When: func(in *Input) bool {
				return in.Interrogative && in.WordCount < 15 && !in.Terms.HasDomain()
			},
			Effects: []Effect{add(convo.General, 0.2), add(convo.DataCollection, -0.1)},
		},
		{
			Name: "short_continuity",
			When: func(in *Input) bool {
				return in.WordCount <= 3 && !in.Terms.HasDomain() && in.Current() != ""
			},
			Effects: []Effect{current(0.5)},
			Stop:    true,
		},
		{
			Name: "short_general",
			When: func(in *Input) bool {
				return in.WordCount <= 3 && !in.Terms.HasDomain() && in.Current() == ""
			},
			Effects: []Effect{add(convo.General, 0.2)},
		},
		{
			Name:    "quote_terms",
			When:    func(in *Input) bool { return in.Terms.Quote },
			Effects: []Effect{add(convo.Sales, 0.25), add(convo.DataCollection, -0.2)},
		},
		{
			Name:    "call_center_pricing",
			When:    func(in *Input) bool { return in.Terms.CallCenter && in.Terms.Quote },
			Effects: []Effect{add(convo.Sales, 0.3), add(convo.DataCollection, -0.15)},
		},
		{
			Name:    "contact_terms",
			When:    func(in *Input) bool { return in.Terms.Contact },
			Effects: []Effect{add(convo.DataCollection, 0.5)},
		},
		{
			Name:    "engineer_continuity",
			When:    engineerContinuity,
			Effects: []Effect{add(convo.Engineer, 0.3)},
		},
		{
			Name:    "sales_continuity",
			When:    salesContinuity,
			Effects: []Effect{add(convo.Sales, 0.3)},
		},
		{
			Name: "short_follow_up",
			When: func(in *Input) bool {
				return in.WordCount <= 5 && in.Current() != "" && !engineerContinuity(in) && !salesContinuity(in)
			},
			Effects: []Effect{current(0.15)},
		},
		{
			Name:    "early_conversation",
			When:    func(in *Input) bool { return in.Context.MessageCount <= 2 },
			Effects: []Effect{add(convo.General, 0.1)},
		},
		{
			Name: "form_pending",
			When: func(in *Input) bool {
				return in.Context.FormShown && !in.Context.FormCompleted
			},
			Effects: []Effect{add(convo.DataCollection, 0.2)},
		},
		{
			Name: "partial_user_info",
			When: func(in *Input) bool {
				return in.Context.HasUserInfo() && !in.Context.FormCompleted
			},
			Effects: []Effect{add(convo.DataCollection, 0.15)},
		},
	}
}

func startsWithInterrogative(words []string) bool {
	for _, q := range interrogatives {
		if len(q.words) > len(words) {
			continue
		}
		match := true
		for i, w := range q.words {
			if words[i] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
