// Package cards holds the immutable card-meaning catalog used to enrich
// interpretation input. Lookups fail soft: an unknown card or
// orientation falls back to a generic meaning instead of erroring.
package cards

// Meaning is a short reading hint for one card orientation.
type Meaning struct {
	Short    string
	Keywords []string
}

var defaultMeaning = Meaning{
	Short:    "カードの示す流れに沿って柔軟に判断する。",
	Keywords: []string{"流れ", "変化"},
}

// meanings keys are "name|upright" / "name|reversed" / "name|none".
var meanings = map[string]Meaning{
	"The Fool|upright":            {Short: "新しい始まり、自由な一歩。", Keywords: []string{"始まり", "自由", "冒険"}},
	"The Fool|reversed":           {Short: "無計画さへの注意、足元の確認。", Keywords: []string{"軽率", "迷い"}},
	"The Magician|upright":        {Short: "意志と創造力が形になる。", Keywords: []string{"創造", "集中", "手腕"}},
	"The Magician|reversed":       {Short: "準備不足、空回りへの注意。", Keywords: []string{"停滞", "未熟"}},
	"The High Priestess|upright":  {Short: "直感と静かな観察が鍵。", Keywords: []string{"直感", "知恵"}},
	"The High Priestess|reversed": {Short: "感情の揺れ、判断の曇り。", Keywords: []string{"不安定", "秘密"}},
	"The Empress|upright":         {Short: "豊かさと受容、実りの時期。", Keywords: []string{"豊穣", "愛情"}},
	"The Emperor|upright":         {Short: "安定した基盤と決断力。", Keywords: []string{"安定", "責任"}},
	"The Lovers|upright":          {Short: "選択と調和、心の一致。", Keywords: []string{"愛", "選択"}},
	"The Lovers|reversed":         {Short: "すれ違い、優柔不断への注意。", Keywords: []string{"不一致", "迷い"}},
	"The Chariot|upright":         {Short: "前進と勝利、勢いに乗る。", Keywords: []string{"前進", "意志"}},
	"Wheel of Fortune|upright":    {Short: "流れの転換、好機の到来。", Keywords: []string{"転機", "運"}},
	"Death|upright":               {Short: "区切りと再生、手放す勇気。", Keywords: []string{"終わり", "再生"}},
	"The Tower|upright":           {Short: "急変への備え、前提の見直し。", Keywords: []string{"崩壊", "転換"}},
	"The Star|upright":            {Short: "希望と回復、素直な願い。", Keywords: []string{"希望", "癒し"}},
	"The Moon|upright":            {Short: "不確かさの中の模索。", Keywords: []string{"不安", "幻想"}},
	"The Sun|upright":             {Short: "成功と活力、明るい見通し。", Keywords: []string{"成功", "活力"}},
	"The World|upright":           {Short: "完成と到達、次の段階へ。", Keywords: []string{"完成", "達成"}},
}

// Lookup returns the meaning for a card name and orientation. upright nil
// means no orientation was assigned.
func Lookup(name string, upright *bool) Meaning {
	orient := "none"
	if upright != nil {
		if *upright {
			orient = "upright"
		} else {
			orient = "reversed"
		}
	}
	if m, ok := meanings[name+"|"+orient]; ok {
		return m
	}
	// Orientation-specific entry missing: try upright as the canonical
	// text before giving up.
	if m, ok := meanings[name+"|upright"]; ok {
		return m
	}
	return defaultMeaning
}
