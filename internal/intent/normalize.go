package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize 转小写并去掉重音符号（NFD 分解后删除 Mn 类字符）。
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Words 将已归一化文本切分为词序列。
func Words(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// phrase 为预先归一化并切分的词组。
type phrase struct {
	text  string
	words []string
}

func compile(list ...string) []phrase {
	seen := make(map[string]bool, len(list))
	out := make([]phrase, 0, len(list))
	for _, p := range list {
		n := Normalize(p)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, phrase{text: n, words: Words(n)})
	}
	return out
}

// in 按整词序列匹配。
func (p phrase) in(words []string) bool {
	if len(p.words) == 0 || len(p.words) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(p.words) <= len(words); i++ {
		for j, w := range p.words {
			if words[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

func anyIn(list []phrase, words []string) bool {
	for _, p := range list {
		if p.in(words) {
			return true
		}
	}
	return false
}

func anySubstring(list []phrase, normalized string) bool {
	for _, p := range list {
		if strings.Contains(normalized, p.text) {
			return true
		}
	}
	return false
}
