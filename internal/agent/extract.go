package agent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
)

// 名字与公司名只取字母、空格（公司名另允许数字与 & .），遇到逗号等标点即停止。
// 无冒号标签时公司名必须是专有名词形式，每个词以大写字母或数字开头。
const (
	nameChars        = `[\p{L}]+(?:[ \t]+[\p{L}]+)*`
	companyChars     = `[\p{L}\d&.]+(?:[ \t]+[\p{L}\d&.]+)*`
	companyNameChars = `[\p{Lu}\d][\p{L}\d&.]*(?:[ \t]+(?:&|[\p{Lu}\d][\p{L}\d&.]*))*`
	phoneChars       = `\+?[\d\s().-]{7,20}`
	emailChars       = `[\w.+-]+@[\w.-]+\.\w+`
)

// 无标签电话号码的位数范围，小数点不算分隔符，避免匹配 1.500.000 之类的金额。
const (
	minPhoneDigits = 9
	maxPhoneDigits = 13
)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:mi nombre es|me llamo)\s+(` + nameChars + `)`),
		regexp.MustCompile(`(?i)nombre\s*:\s*(` + nameChars + `)`),
		regexp.MustCompile(`(?i)(` + nameChars + `)\s+es mi nombre`),
	}
	// "soy X" 只接受大写开头，避免 "soy de Madrid" 之类
	soyPattern = regexp.MustCompile(`(?:^|[\s,.;:¡!¿?])(?i:soy)\s+(\p{Lu}` + `[\p{L}]*(?:[ \t]+\p{Lu}[\p{L}]*)*)`)

	emailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:mi correo|mi email|mi e-mail|correo electr[oó]nico)(?:\s+es)?\s*:?\s*(` + emailChars + `)`),
		regexp.MustCompile(`(` + emailChars + `)`),
	}

	labeledPhonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:mi tel[eé]fono|mi n[uú]mero|mi celular|mi m[oó]vil)(?:\s+es)?\s*:?\s*(` + phoneChars + `)`),
		regexp.MustCompile(`(?i)tel[eé]fono\s*:?\s*(` + phoneChars + `)`),
	}
	phoneCandidate = regexp.MustCompile(`\+?\(?\d[\d ()-]{7,18}\d`)

	companyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[\s,.;:¡!¿?])(?i:mi empresa|mi compa[nñ][ií]a|mi organizaci[oó]n|trabajo para|trabajo en)(?:\s+(?i:es|se llama))?\s+(` + companyNameChars + `)`),
		regexp.MustCompile(`(?i)(?:empresa|compa[nñ][ií]a)\s*:\s*(` + companyChars + `)`),
		regexp.MustCompile(`(` + companyNameChars + `)\s+(?i:es mi (?:empresa|compa[nñ][ií]a|organizaci[oó]n))`),
	}

	emailDetect = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	nonDigit    = regexp.MustCompile(`\D`)

	confirmPatterns = []*regexp.Regexp{
		regexp.MustCompile(`ya\s+(?:lo\s+|te\s+lo\s+)?(?:he\s+)?(?:proporcionad[oa]|dad[oa]|dicho|mencionad[oa])`),
		regexp.MustCompile(`ya\s+(?:lo\s+|te\s+lo\s+)?sabes`),
		regexp.MustCompile(`ya\s+te\s+(?:lo\s+)?dije`),
	}
)

var nameIndicators = []string{"me llamo", "mi nombre es", "soy ", "nombre:", "nombre "}

// 短消息名字猜测时排除的常见回复（已归一化）。
var commonReplies = map[string]bool{
	"si": true, "no": true, "ok": true, "okay": true, "vale": true, "bien": true,
	"gracias": true, "hola": true, "adios": true, "hasta luego": true, "por favor": true,
	"claro": true, "perfecto": true, "de acuerdo": true, "buenos dias": true, "buenas tardes": true,
}

// 连接词之后的内容不属于名字/公司名。
var conjunctions = map[string]bool{"y": true, "e": true}

var nameParticles = map[string]bool{"de": true, "del": true, "la": true, "las": true, "los": true}

// ExtractContact 从消息中提取尚未填写的联系字段，已有非空值的字段不会出现在结果中。
// 先匹配带标签的表达，再匹配通用的邮箱/电话格式，最后才对短消息做名字猜测。
func ExtractContact(message string, known map[string]string) map[string]string {
	out := map[string]string{}
	missing := func(field string) bool {
		return strings.TrimSpace(known[field]) == ""
	}

	if missing(convo.FieldName) {
		if v := extractName(message); v != "" {
			out[convo.FieldName] = v
		}
	}
	if missing(convo.FieldEmail) {
		for _, re := range emailPatterns {
			if m := re.FindStringSubmatch(message); m != nil {
				out[convo.FieldEmail] = strings.TrimRight(m[1], ".")
				break
			}
		}
	}
	if missing(convo.FieldPhone) {
		if v := extractPhone(message); v != "" {
			out[convo.FieldPhone] = v
		}
	}
	if missing(convo.FieldCompany) {
		for _, re := range companyPatterns {
			m := re.FindStringSubmatch(message)
			if m == nil {
				continue
			}
			company := strings.TrimRight(cutAtConjunction(m[1]), " .")
			if len([]rune(company)) > 2 {
				out[convo.FieldCompany] = company
				break
			}
		}
	}

	if len(out) == 0 && missing(convo.FieldName) {
		if v := guessName(message); v != "" {
			out[convo.FieldName] = v
		}
	}
	return out
}

func extractName(message string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			if name := cutAtConjunction(m[1]); len([]rune(name)) > 2 {
				return name
			}
		}
	}
	if m := soyPattern.FindStringSubmatch(message); m != nil {
		if name := cutAtConjunction(m[1]); len([]rune(name)) > 2 {
			return name
		}
	}
	return ""
}

var currencyWords = []string{"€", "$", "%", "eur", "euros", "usd", "dolares", "dólares", "mil", "millones"}

// extractPhone 优先取带标签且至少 7 位数字的号码，否则取格式完整的号码。
func extractPhone(message string) string {
	for _, re := range labeledPhonePatterns {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			phone := strings.Trim(m[1], " \t\n.-")
			if len(nonDigit.ReplaceAllString(phone, "")) >= 7 {
				return phone
			}
		}
	}
	return findPhone(message)
}

// findPhone 查找无标签的电话号码：9-13 位数字，前面不是数字或小数点，后面不跟金额单位。
func findPhone(message string) string {
	for _, loc := range phoneCandidate.FindAllStringIndex(message, -1) {
		phone := strings.TrimRight(message[loc[0]:loc[1]], " -")
		digits := len(nonDigit.ReplaceAllString(phone, ""))
		if digits < minPhoneDigits || digits > maxPhoneDigits {
			continue
		}
		before, after := message[:loc[0]], message[loc[1]:]
		if strings.HasSuffix(before, ".") || strings.HasSuffix(before, ",") ||
			strings.HasSuffix(strings.TrimRight(before, " "), "$") ||
			strings.HasSuffix(strings.TrimRight(before, " "), "€") {
			continue
		}
		if len(after) > 1 && (after[0] == '.' || after[0] == ',') && unicode.IsDigit(rune(after[1])) {
			continue
		}
		if followedByAmount(after) {
			continue
		}
		return phone
	}
	return ""
}

func followedByAmount(rest string) bool {
	rest = strings.ToLower(strings.TrimSpace(rest))
	for _, w := range currencyWords {
		if !strings.HasPrefix(rest, w) {
			continue
		}
		tail := rest[len(w):]
		if tail == "" || !unicode.IsLetter([]rune(tail)[0]) {
			return true
		}
	}
	return false
}

// cutAtConjunction 截断到第一个 "y"/"e" 之前，最多保留 4 个词。
func cutAtConjunction(s string) string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if conjunctions[strings.ToLower(f)] || len(out) == 4 {
			break
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// guessName 对 1-4 个纯字母词、首字母大写的短消息猜测为名字。
func guessName(message string) string {
	msg := strings.TrimSpace(strings.Trim(message, ".!¡"))
	fields := strings.Fields(msg)
	if len(fields) == 0 || len(fields) > 4 {
		return ""
	}
	if commonReplies[intent.Normalize(msg)] {
		return ""
	}
	for i, f := range fields {
		for _, r := range f {
			if !unicode.IsLetter(r) {
				return ""
			}
		}
		if unicode.IsUpper([]rune(f)[0]) {
			continue
		}
		// "María de la Cruz" 中的小写连接词
		if i == 0 || !nameParticles[f] {
			return ""
		}
	}
	return msg
}

// ContainsContactData 判断消息是否包含邮箱、电话或自我介绍等联系数据。
func ContainsContactData(message string) bool {
	if emailDetect.MatchString(message) || findPhone(message) != "" {
		return true
	}
	lower := strings.ToLower(message)
	for _, ind := range nameIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return guessName(message) != ""
}

// confirmsPreviousInfo 判断用户是否在说"之前已经提供过"。
func confirmsPreviousInfo(message string) bool {
	lower := strings.ToLower(message)
	for _, re := range confirmPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
