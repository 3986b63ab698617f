package textgen

import (
	"fmt"
	"strings"
)

// Per-fortune-key focus hints for the narrative prompt. Unknown keys fall
// back to the result-type hint, then to a generic line.
var fortunePromptHints = map[string]string{
	"today_free":         "今日の運勢として、全体の流れと1日の過ごし方に焦点を当てる。",
	"today_deep_love":    "今日の恋愛運として、相手との距離感や行動のヒントに焦点を当てる。",
	"today_deep_work":    "今日の仕事運として、仕事の進め方や注意点に焦点を当てる。",
	"today_deep_money":   "今日の金運として、支出・収入のバランスと行動の指針に焦点を当てる。",
	"today_deep_trouble": "今日のトラブル運として、回避策と心構えに焦点を当てる。",
	"week_one":           "今週の運勢として、序盤から終盤の流れと対策に焦点を当てる。",
	"no_desc_draw":       "カードから読み取れるテーマのみを簡潔に示す。",
	"compatibility":      "相性占いとして、関係性の強みと改善点に焦点を当てる。",
	"hexagram_love":      "恋愛の悩みに対する指針と注意点に焦点を当てる。",
	"hexagram_reunion":   "復縁の可能性や取るべき行動に焦点を当てる。",
	"hexagram_unreq":     "片思いの進め方と距離の取り方に焦点を当てる。",
	"hexagram_marriage":  "結婚に向けた現実的な視点と心構えに焦点を当てる。",
	"celtic_work":        "仕事の現状・障害・結果の流れを明確にする。",
	"celtic_startup":     "起業のリスクとチャンス、具体的な一歩に焦点を当てる。",
	"celtic_job":         "転職のタイミングと準備、選択の軸に焦点を当てる。",
	"flower_timing":      "行動の最適な時期と注意点に焦点を当てる。",
	"triangle_crime":     "警戒すべき点と回避のための行動に焦点を当てる。",
	"partner_sexual":     "相手の性的傾向の見立てと、関係性への影響に焦点を当てる。",
}

var fortuneQuestionText = map[string]string{
	"today_free":         "今日の運勢",
	"today_deep_love":    "今日の恋愛運",
	"today_deep_work":    "今日の仕事運",
	"today_deep_money":   "今日の金運",
	"today_deep_trouble": "今日のトラブル運",
	"week_one":           "今週の運勢",
	"no_desc_draw":       "カードの示すテーマ",
	"compatibility":      "相性占い",
	"hexagram_love":      "恋愛の悩み",
	"hexagram_reunion":   "復縁の悩み",
	"hexagram_unreq":     "片思いの悩み",
	"hexagram_marriage":  "結婚の悩み",
	"celtic_work":        "仕事の悩み",
	"celtic_startup":     "起業の悩み",
	"celtic_job":         "転職の悩み",
	"flower_timing":      "行動の時期",
	"triangle_crime":     "警戒すべき点",
	"partner_sexual":     "相手の性的傾向",
}

var typeFallbackHints = map[string]string{
	"today_deep":       "今日の運勢の深掘りとして、具体的な行動のヒントに焦点を当てる。",
	"today_free":       "今日の運勢として、全体の流れと1日の過ごし方に焦点を当てる。",
	"week_one":         "今週の運勢として、序盤から終盤の流れと対策に焦点を当てる。",
	"compatibility":    "相性占いとして、関係性の強みと改善点に焦点を当てる。",
	"hexagram":         "悩みに対する指針と注意点に焦点を当てる。",
	"celtic_cross":     "現状・障害・結果の流れを明確にする。",
	"flower_timing":    "行動の最適な時期と注意点に焦点を当てる。",
	"triangle_warning": "警戒すべき点と回避のための行動に焦点を当てる。",
	"partner_sexual":   "相手の性的傾向の見立てと、関係性への影響に焦点を当てる。",
}

// BuildPrompt renders the narrative prompt from interpretation input.
// The input carries the reading's type, key, cards, and optional
// question/context from the client.
func BuildPrompt(input map[string]any) string {
	if input == nil {
		return "No input provided."
	}

	kind := stringField(input, "type")
	if kind == "" {
		kind = "reading"
	}
	fortuneKey := stringField(input, "fortune_type_key")
	question := stringField(input, "question")
	contextText := stringField(input, "context")

	hint := fortunePromptHints[fortuneKey]
	if hint == "" {
		hint = typeFallbackHints[kind]
	}
	if hint == "" {
		hint = "カードの配置に沿って簡潔に解釈する。"
	}

	keyLine := "Fortune key: -"
	if fortuneKey != "" {
		keyLine = "Fortune key: " + fortuneKey
	}

	lines := []string{
		"You are a professional tarot reader.",
		"Write a concise Japanese interpretation.",
		"Tone: warm, honest, and practical.",
		"Output: 6-10 sentences, no bullet points.",
		"",
		"Fortune type: " + kind,
		keyLine,
		"Focus: " + hint,
		"Cards:",
	}

	if rawCards, ok := input["cards"].([]any); ok {
		for _, raw := range rawCards {
			card, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			orient := "neutral"
			if upright, ok := card["upright"].(bool); ok {
				if upright {
					orient = "upright"
				} else {
					orient = "reversed"
				}
			}
			var keywords []string
			if raw, ok := card["keywords"].([]any); ok {
				for _, kw := range raw {
					if s, ok := kw.(string); ok {
						keywords = append(keywords, s)
					}
				}
			}
			lines = append(lines, fmt.Sprintf("- %s: %s (%s) | %s | %s",
				stringField(card, "position"),
				stringField(card, "card_name"),
				orient,
				stringField(card, "meaning_short"),
				strings.Join(keywords, ", "),
			))
		}
	}

	defaultQuestion := fortuneQuestionText[fortuneKey]
	if question != "" || contextText != "" || defaultQuestion != "" {
		lines = append(lines, "")
		switch {
		case question != "":
			lines = append(lines, "Question: "+question)
		case defaultQuestion != "":
			lines = append(lines, "Question: "+defaultQuestion)
		}
		if contextText != "" {
			lines = append(lines, "Context: "+contextText)
		}
	}

	lines = append(lines,
		"",
		"Focus on the positions (past/present/future or given labels).",
		"Avoid claiming certainty; offer guidance.",
	)
	return strings.Join(lines, "\n")
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
