package sentiment

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Emotion 为情绪类别名称（西语词根，去掉重音，便于在上下文中持久化）。
type Emotion string

const (
	Alegria   Emotion = "alegria"
	Tristeza  Emotion = "tristeza"
	Enojo     Emotion = "enojo"
	Miedo     Emotion = "miedo"
	Sorpresa  Emotion = "sorpresa"
	Confusion Emotion = "confusion"
)

// Emotions 返回固定顺序的情绪列表；主导情绪并列时按此顺序取第一个。
func Emotions() []Emotion {
	return []Emotion{Alegria, Tristeza, Enojo, Miedo, Sorpresa, Confusion}
}

// Analysis 为单条消息的情感分析结果。
type Analysis struct {
	// Polarity ∈ [-1,1]，正为积极。
	Polarity float64 `json:"polarity"`
	// Emotions 每种情绪的归一化得分 ∈ [0,1]。
	Emotions map[Emotion]float64 `json:"emotions"`
	// Dominant 为主导情绪，空字符串表示没有。
	Dominant Emotion `json:"dominant_emotion,omitempty"`
	// Urgency ∈ [0,1]。
	Urgency float64 `json:"urgency"`
	// Confidence ∈ [0,1]。
	Confidence float64 `json:"confidence"`
}

const (
	negationWindow    = 3
	minDominantScore  = 0.2
	negatedOpposite   = 0.5
	negatedPenalty    = 0.3
	triggerScore      = 1.0
	intensifierBonus  = 0.5
	polarityStep      = 0.5
	urgencyWordScore  = 0.2
	urgencyBoostScore = 0.1
)

var lexicon = map[Emotion][]string{
	Alegria: {
		"feliz", "contento", "encantado", "satisfecho", "maravilloso",
		"excelente", "genial", "fantástico", "alegre", "entusiasmado",
		"gustar", "encantar", "amar", "perfecto", "gracias",
	},
	Tristeza: {
		"triste", "decepcionado", "desanimado", "infeliz", "pena",
		"melancolía", "melancolico", "lástima", "lastima", "desilusión",
		"desilusionado", "mal", "horrible", "terrible", "peor",
	},
	Enojo: {
		"enojado", "enfadado", "molesto", "irritado", "furioso", "rabia",
		"indignado", "frustrado", "harto", "abandonar", "inútil", "ineficiente",
		"incompetente", "absurdo", "ridículo", "estúpido",
	},
	Miedo: {
		"asustado", "preocupado", "nervioso", "inseguro", "temeroso",
		"alarmado", "ansiedad", "pánico", "panico", "terror", "inquieto",
		"intranquilo", "miedo", "temor", "incertidumbre",
	},
	Sorpresa: {
		"sorprendido", "asombrado", "impresionado", "perplejo", "impactado",
		"increíble", "increible", "inesperado", "extraordinario", "impresionante",
		"inusual", "raro", "extraño", "wow", "dios mío",
	},
	Confusion: {
		"confundido", "perdido", "desorientado", "complicado", "complejo",
		"confuso", "lío", "desorden", "caos", "no entiendo", "difícil",
		"difícil de entender", "qué", "cómo", "por qué", "no comprendo",
	},
}

// 取反时情绪转移的目标；sorpresa 没有对立情绪。
var opposites = map[Emotion]Emotion{
	Alegria:   Tristeza,
	Tristeza:  Alegria,
	Enojo:     Alegria,
	Miedo:     Alegria,
	Confusion: Alegria,
}

var intensifiers = toSet(
	"muy", "extremadamente", "absolutamente", "completamente", "totalmente",
	"bastante", "demasiado", "super", "realmente", "verdaderamente",
)

var negations = toSet("no", "ni", "nunca", "jamás", "tampoco", "ningún", "ninguno", "nada")

var urgencyWords = []string{
	"urgente", "inmediato", "rápido", "prisa", "ahora", "emergencia",
	"crítico", "crítica", "grave", "importante", "pronto", "ya",
}

var (
	positivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(me gusta|excelente|perfecto|bien|bueno|genial|gracias)\b`),
		regexp.MustCompile(`(:\)|😊|😄|👍|❤️|♥|👏)`),
	}
	negativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(no funciona|error|problema|falla|malo|pésimo|terrible)\b`),
		regexp.MustCompile(`(:\(|😞|😢|👎|😠|😡|🤬)`),
	}
)

type urgencyPattern struct {
	re    *regexp.Regexp
	score float64
}

// 作用于原始文本：大写字母串在小写化后无法识别。
var urgencyPatterns = []urgencyPattern{
	{re: regexp.MustCompile(`!{2,}`), score: 0.3},
	{re: regexp.MustCompile(`\?{2,}`), score: 0.2},
	{re: regexp.MustCompile(`[A-ZÁÉÍÓÚÑ]{3,}`), score: 0.2},
}

// Analyzer 是基于词典与规则的西语情感分析器，无内部状态，可并发使用。
type Analyzer struct {
	lexicon map[Emotion][][]string
}

// NewAnalyzer 预先把多词触发词切分为词序列。
func NewAnalyzer() *Analyzer {
	a := &Analyzer{lexicon: make(map[Emotion][][]string, len(lexicon))}
	for emotion, words := range lexicon {
		for _, w := range words {
			a.lexicon[emotion] = append(a.lexicon[emotion], Tokenize(w))
		}
	}
	return a
}

// Analyze 对任意字符串返回结构完整的结果；空串得到中性结果。
func (a *Analyzer) Analyze(text string) Analysis {
	lowered := strings.ToLower(text)
	tokens := Tokenize(lowered)

	emotions := a.detectEmotions(tokens)
	polarity := analyzePolarity(lowered)

	return Analysis{
		Polarity:   polarity,
		Emotions:   emotions,
		Dominant:   dominant(emotions),
		Urgency:    detectUrgency(text, tokens),
		Confidence: confidence(emotions, polarity),
	}
}

func (a *Analyzer) detectEmotions(tokens []string) map[Emotion]float64 {
	raw := make(map[Emotion]float64, len(lexicon))
	for _, e := range Emotions() {
		raw[e] = 0
	}

	for _, emotion := range Emotions() {
		for _, trigger := range a.lexicon[emotion] {
			for _, idx := range findSequence(tokens, trigger) {
				if negatedAt(tokens, idx) {
					if opp, ok := opposites[emotion]; ok {
						raw[opp] += negatedOpposite
					} else {
						raw[emotion] -= negatedPenalty
					}
					continue
				}
				raw[emotion] += triggerScore
				if idx > 0 && intensifiers[tokens[idx-1]] {
					raw[emotion] += intensifierBonus
				}
			}
		}
	}

	total := 0.0
	for _, e := range Emotions() {
		if raw[e] < 0 {
			raw[e] = 0
		}
		total += raw[e]
	}
	if total <= 0 {
		return raw
	}
	denom := total
	if denom < 1 {
		denom = 1
	}
	for _, e := range Emotions() {
		raw[e] = clamp(raw[e]/denom, 0, 1)
	}
	return raw
}

func negatedAt(tokens []string, idx int) bool {
	for j := idx - 1; j >= 0 && idx-j <= negationWindow; j-- {
		if negations[tokens[j]] {
			return true
		}
	}
	return false
}

func analyzePolarity(lowered string) float64 {
	score := 0.0
	matches := 0
	for _, re := range positivePatterns {
		n := len(re.FindAllStringIndex(lowered, -1))
		matches += n
		score += float64(n) * polarityStep
	}
	for _, re := range negativePatterns {
		n := len(re.FindAllStringIndex(lowered, -1))
		matches += n
		score -= float64(n) * polarityStep
	}
	if matches == 0 {
		return 0
	}
	return clamp(score, -1, 1)
}

func detectUrgency(raw string, tokens []string) float64 {
	score := 0.0
	for _, w := range urgencyWords {
		hits := findSequence(tokens, []string{w})
		if len(hits) == 0 {
			continue
		}
		score += urgencyWordScore
		for _, idx := range hits {
			if idx > 0 && intensifiers[tokens[idx-1]] {
				score += urgencyBoostScore
				break
			}
		}
	}
	for _, p := range urgencyPatterns {
		if p.re.MatchString(raw) {
			score += p.score
		}
	}
	return clamp(score, 0, 1)
}

func dominant(emotions map[Emotion]float64) Emotion {
	var best Emotion
	bestScore := 0.0
	for _, e := range Emotions() {
		v := emotions[e]
		if v >= minDominantScore && v > bestScore {
			best, bestScore = e, v
		}
	}
	return best
}

func confidence(emotions map[Emotion]float64, polarity float64) float64 {
	values := make([]float64, 0, len(emotions))
	for _, v := range emotions {
		values = append(values, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	clarity := 0.0
	switch {
	case len(values) >= 2:
		clarity = values[0] - values[1]
	case len(values) == 1:
		clarity = values[0]
	}
	p := polarity
	if p < 0 {
		p = -p
	}
	return clamp(clarity*0.6+p*0.4, 0, 1)
}

// Tokenize 按字母/数字切分为小写词序列。
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// findSequence 返回 seq 在 tokens 中每次出现的起始下标。
func findSequence(tokens, seq []string) []int {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return nil
	}
	var out []int
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j := range seq {
			if tokens[i+j] != seq[j] {
				continue outer
			}
		}
		out = append(out, i)
	}
	return out
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
