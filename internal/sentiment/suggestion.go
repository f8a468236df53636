package sentiment

// Suggestion 为根据情感分析给出的回复建议，会被写入 Agent 的系统提示。
type Suggestion struct {
	// Tone 为建议语气：neutral/alegre/empático/calmado/tranquilizador/informativo。
	Tone string `json:"tone"`
	// Priority 为处理优先级：normal/media/alta。
	Priority string `json:"priority"`
	// Focus 为回复中需要强调的方面。
	Focus []string `json:"focus,omitempty"`
}

// Suggest 将分析结果映射为回复建议。
func Suggest(a Analysis) Suggestion {
	s := Suggestion{Tone: "neutral", Priority: "normal"}

	switch {
	case a.Dominant == Alegria || a.Polarity > 0.5:
		s.Tone = "alegre"
	case a.Dominant == Tristeza || a.Polarity < -0.3:
		s.Tone = "empático"
	case a.Dominant == Enojo && a.Polarity < -0.2:
		s.Tone = "calmado"
	case a.Dominant == Miedo || a.Dominant == Confusion:
		s.Tone = "tranquilizador"
	case a.Dominant == Sorpresa:
		s.Tone = "informativo"
	}

	switch {
	case a.Urgency > 0.7:
		s.Priority = "alta"
	case a.Urgency > 0.3:
		s.Priority = "media"
	}

	if a.Dominant == Confusion {
		s.Focus = append(s.Focus, "claridad")
	}
	if a.Dominant == Miedo {
		s.Focus = append(s.Focus, "seguridad")
	}
	if a.Polarity < -0.5 {
		s.Focus = append(s.Focus, "solución")
	}
	if a.Dominant == Enojo {
		s.Focus = append(s.Focus, "disculpa")
	}
	return s
}
