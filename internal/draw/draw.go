// Package draw produces card draws for reading variants. Draws are
// reproducible from their seed string: the seed hashes to a PRNG state,
// so a client or auditor can recompute the identical result.
package draw

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mrand "math/rand"
)

// ErrDeckExhausted reports a request for more cards than the restricted
// pool holds. This is a contract violation between resolver and
// generator, not a user error; it never silently truncates.
var ErrDeckExhausted = errors.New("requested more cards than available in deck")

// Card is one drawn card. Upright is nil for variants that do not assign
// orientation.
type Card struct {
	Name    string `json:"name"`
	Arcana  string `json:"arcana"`
	Suit    string `json:"suit,omitempty"`
	Rank    string `json:"rank,omitempty"`
	Upright *bool  `json:"upright"`
}

// Slot binds a drawn card to its spread position label.
type Slot struct {
	Position string `json:"position"`
	Card     Card   `json:"card"`
}

// Result is a tagged draw record. It carries the literal seed string so
// the draw can be recomputed.
type Result struct {
	Type           string         `json:"type"`
	FortuneTypeKey string         `json:"fortune_type_key"`
	Cards          []Card         `json:"cards,omitempty"`
	BaseCard       *Card          `json:"base_card,omitempty"`
	ExtraCards     []Card         `json:"extra_cards,omitempty"`
	Slots          []Slot         `json:"slots"`
	Seed           string         `json:"seed"`
	DeepSeed       string         `json:"deep_seed,omitempty"`
	Input          map[string]any `json:"input,omitempty"`
}

// variant describes how one fortune-type family draws. Deterministic
// families reuse the day's seeded generator; the two non-deterministic
// families (no_desc_draw, compatibility) intentionally use fresh
// randomness on every call.
type variant struct {
	resultType    string
	count         int
	majorsOnly    bool
	orientation   bool
	deterministic bool
	deep          bool
	carriesInput  bool
	slots         []string
}

var exactVariants = map[string]variant{
	"flower_timing": {
		resultType:    "flower_timing",
		count:         12,
		majorsOnly:    true,
		deterministic: true,
		slots:         numberedSlots(12),
	},
	"triangle_crime": {
		resultType:    "triangle_warning",
		count:         3,
		orientation:   true,
		deterministic: true,
		slots:         []string{"動機", "機会", "自己正当化"},
	},
	"no_desc_draw": {
		resultType:  "no_desc_draw",
		count:       2,
		orientation: true,
		slots:       []string{"カード", "カード"},
	},
	"compatibility": {
		resultType:   "compatibility",
		count:        3,
		orientation:  true,
		carriesInput: true,
		slots:        []string{"相手", "相性", "自分"},
	},
	"today_free": {
		resultType:    "today_free",
		count:         1,
		orientation:   true,
		deterministic: true,
		slots:         []string{"今日"},
	},
	"week_one": {
		resultType:    "week_one",
		count:         5,
		orientation:   true,
		deterministic: true,
		slots:         []string{"総合", "恋愛", "仕事", "金運", "トラブル"},
	},
	"partner_sexual": {
		resultType:    "partner_sexual",
		count:         3,
		orientation:   true,
		deterministic: true,
		slots:         []string{"動機", "チャンス", "正当化"},
	},
}

func variantFor(key string) variant {
	if v, ok := exactVariants[key]; ok {
		return v
	}
	switch {
	case strings.HasPrefix(key, "hexagram_"):
		return variant{
			resultType:    "hexagram",
			count:         7,
			orientation:   true,
			deterministic: true,
			slots:         numberedSlots(7),
		}
	case strings.HasPrefix(key, "celtic_"):
		return variant{
			resultType:    "celtic_cross",
			count:         10,
			orientation:   true,
			deterministic: true,
			slots: []string{
				"現状", "キー", "表層", "過去", "未来",
				"深層", "総合", "希望と恐れ", "周囲", "立場",
			},
		}
	case strings.HasPrefix(key, "today_deep_"):
		return variant{
			resultType:    "today_deep",
			count:         4,
			orientation:   true,
			deterministic: true,
			deep:          true,
			slots:         []string{"恋愛", "仕事", "金運", "トラブル"},
		}
	default:
		return variant{
			resultType:    "single_draw",
			count:         1,
			orientation:   true,
			deterministic: true,
			slots:         []string{"カード"},
		}
	}
}

// BuildSeed derives the deterministic seed string for a draw. Deep
// variants normalize to their base daily key so the shared first card
// stays consistent across the family within the same day.
func BuildSeed(userID, fortuneTypeKey, date string) string {
	baseKey := fortuneTypeKey
	if strings.HasPrefix(fortuneTypeKey, "today_deep_") {
		baseKey = "today_free"
	}
	return fmt.Sprintf("%s:%s:%s", userID, date, baseKey)
}

// seedToInt hashes a seed string and truncates the digest to a PRNG
// source value, matching the seed-recomputation contract.
func seedToInt(seed string) int64 {
	digest := sha256.Sum256([]byte(seed))
	hexDigest := fmt.Sprintf("%x", digest)
	v, err := strconv.ParseUint(hexDigest[:16], 16, 64)
	if err != nil {
		// Unreachable: the input is always 16 hex characters.
		panic(fmt.Sprintf("draw: bad seed digest: %v", err))
	}
	return int64(v)
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("draw: crypto seed failed: %v", err))
	}
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// Generate draws cards for the given fortune type. date is the daily
// window's civil date (YYYY-MM-DD); input is carried through for variants
// that record it.
func Generate(userID, fortuneTypeKey, date string, input map[string]any) (*Result, error) {
	seed := BuildSeed(userID, fortuneTypeKey, date)
	v := variantFor(fortuneTypeKey)

	baseRNG := mrand.New(mrand.NewSource(seedToInt(seed)))
	if !v.deterministic {
		baseRNG = mrand.New(mrand.NewSource(cryptoSeed()))
	}

	if v.deep {
		return generateDeep(baseRNG, seed, fortuneTypeKey, v)
	}

	cards, err := drawCards(baseRNG, v.count, v.majorsOnly, v.orientation, "")
	if err != nil {
		return nil, err
	}

	res := &Result{
		Type:           v.resultType,
		FortuneTypeKey: fortuneTypeKey,
		Cards:          cards,
		Slots:          makeSlots(cards, v.slots),
		Seed:           seed,
	}
	if v.carriesInput {
		if input == nil {
			input = map[string]any{}
		}
		res.Input = input
	}
	return res, nil
}

// generateDeep draws one shared base card from the day's generator, then
// the extra cards from an independently seeded generator keyed by the
// variant, excluding the base card from the second pool.
func generateDeep(baseRNG *mrand.Rand, seed, fortuneTypeKey string, v variant) (*Result, error) {
	base, err := drawCards(baseRNG, 1, false, true, "")
	if err != nil {
		return nil, err
	}
	baseCard := base[0]

	deepSeed := seed + ":" + fortuneTypeKey
	deepRNG := mrand.New(mrand.NewSource(seedToInt(deepSeed)))
	extras, err := drawCards(deepRNG, v.count, false, true, baseCard.Name)
	if err != nil {
		return nil, err
	}

	return &Result{
		Type:           v.resultType,
		FortuneTypeKey: fortuneTypeKey,
		BaseCard:       &baseCard,
		ExtraCards:     extras,
		Slots:          makeSlots(extras, v.slots),
		Seed:           seed,
		DeepSeed:       deepSeed,
	}, nil
}

// drawCards samples count cards without replacement from the full deck
// or the majors-only restriction, skipping excludeName if set.
func drawCards(rng *mrand.Rand, count int, majorsOnly, orientation bool, excludeName string) ([]Card, error) {
	deck := fullDeck
	if majorsOnly {
		deck = majorDeck
	}

	available := deck
	if excludeName != "" {
		available = make([]Card, 0, len(deck))
		for _, c := range deck {
			if c.Name != excludeName {
				available = append(available, c)
			}
		}
	}

	if count > len(available) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrDeckExhausted, count, len(available))
	}

	indices := rng.Perm(len(available))[:count]
	cards := make([]Card, 0, count)
	for _, idx := range indices {
		card := available[idx]
		if orientation {
			upright := rng.Intn(2) == 0
			card.Upright = &upright
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func makeSlots(cards []Card, positions []string) []Slot {
	slots := make([]Slot, 0, len(cards))
	for i, card := range cards {
		position := fmt.Sprintf("位置%d", i+1)
		if i < len(positions) {
			position = positions[i]
		}
		slots = append(slots, Slot{Position: position, Card: card})
	}
	return slots
}

func numberedSlots(n int) []string {
	slots := make([]string, n)
	for i := range slots {
		slots[i] = strconv.Itoa(i + 1)
	}
	return slots
}

// Deterministic reports whether a fortune-type family replays the same
// draw for the same seed. Exposed so callers can document cacheability.
func Deterministic(fortuneTypeKey string) bool {
	return variantFor(fortuneTypeKey).deterministic
}
