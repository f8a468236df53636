package router

import (
	"errors"
	"io"
	"strings"

	"github.com/wwwzy/SalesAgent/internal/agent"
	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
)

const maxFollowUpWords = 5

// 以这些前缀开头的消息视为切换请求。
var switchPrefixes = []string{"con el agente", "quiero hablar con", "hablar con", "cambiar a"}

var (
	forceEngineerWords = []string{"tecnico", "ingeniero"}
	forceSalesWords    = []string{"ventas", "comercial", "precios"}
)

// sniffForceFlags 识别 "hablar con ventas" 之类的切换请求并设置单轮强制标记。
func sniffForceFlags(message string, c *convo.Context) {
	n := intent.Normalize(strings.TrimSpace(message))
	prefixed := false
	for _, p := range switchPrefixes {
		if strings.HasPrefix(n, p) {
			prefixed = true
			break
		}
	}
	if !prefixed {
		return
	}
	words := intent.Words(n)
	switch {
	case hasAnyWord(words, forceEngineerWords):
		c.ForceEngineer = true
	case hasAnyWord(words, forceSalesWords):
		c.ForceSales = true
	}
}

// selectAgent 依次检查强制标记、显式切换、短追问，最后按各自门槛取最高分。
func (r *Router) selectAgent(message string, c *convo.Context) (agent.Agent, float64, string) {
	if a, ok := r.byKind[convo.Engineer]; ok && c.ForceEngineer {
		return a, 1.0, ReasonForceEngineer
	}
	if a, ok := r.byKind[convo.Sales]; ok && c.ForceSales {
		return a, 1.0, ReasonForceSales
	}
	if kind, ok := intent.DetectExplicitAgent(message); ok {
		if a, ok := r.byKind[kind]; ok {
			return a, 1.0, ReasonExplicit
		}
	}
	if r.isFollowUp(message, c) {
		a := r.byKind[c.CurrentAgent]
		return a, a.CanHandle(message, c), ReasonFollowUp
	}

	var (
		best     agent.Agent
		bestConf float64
	)
	for _, a := range r.agents {
		conf := a.CanHandle(message, c)
		r.logger.Debug("agent confidence", "agent", a.Kind(), "confidence", conf, "threshold", r.threshold(a.Kind()))
		if conf < r.threshold(a.Kind()) {
			continue
		}
		if best == nil || conf > bestConf {
			best, bestConf = a, conf
		}
	}
	if best != nil {
		return best, bestConf, ReasonBestScore
	}

	fallback := r.fallback()
	return fallback, fallback.CanHandle(message, c), ReasonFallback
}

// isFollowUp 在连续的技术/销售对话中，不带领域词与联系方式的短消息留在当前 Agent。
func (r *Router) isFollowUp(message string, c *convo.Context) bool {
	cur := c.CurrentAgent
	if cur != convo.Engineer && cur != convo.Sales {
		return false
	}
	if _, ok := r.byKind[cur]; !ok {
		return false
	}
	n := len(c.SelectionHistory)
	if n < 2 || c.SelectionHistory[n-1].Agent != cur || c.SelectionHistory[n-2].Agent != cur {
		return false
	}
	if len(strings.Fields(message)) > maxFollowUpWords {
		return false
	}
	terms := intent.DetectTerms(message)
	return !terms.HasDomain() && !terms.Contact && !agent.ContainsContactData(message)
}

func (r *Router) threshold(k convo.AgentKind) float64 {
	if v, ok := r.thresholds[k]; ok {
		return v
	}
	return 0
}

// fallback 返回默认 Agent；未注册时退回最后注册的 Agent。
func (r *Router) fallback() agent.Agent {
	if a, ok := r.byKind[r.defaultAgent]; ok {
		return a
	}
	return r.agents[len(r.agents)-1]
}

func hasAnyWord(words, list []string) bool {
	for _, w := range words {
		for _, l := range list {
			if w == l {
				return true
			}
		}
	}
	return false
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
