package draw

// The draw universe: 22 major arcana plus 56 minor arcana
// (4 suits x 14 ranks), 78 cards total.

var majorArcana = []string{
	"The Fool",
	"The Magician",
	"The High Priestess",
	"The Empress",
	"The Emperor",
	"The Hierophant",
	"The Lovers",
	"The Chariot",
	"Strength",
	"The Hermit",
	"Wheel of Fortune",
	"Justice",
	"The Hanged Man",
	"Death",
	"Temperance",
	"The Devil",
	"The Tower",
	"The Star",
	"The Moon",
	"The Sun",
	"Judgement",
	"The World",
}

var minorSuits = []string{"Wands", "Cups", "Swords", "Pentacles"}

var minorRanks = []string{
	"Ace", "Two", "Three", "Four", "Five", "Six", "Seven",
	"Eight", "Nine", "Ten", "Page", "Knight", "Queen", "King",
}

// Arcana values.
const (
	ArcanaMajor = "major"
	ArcanaMinor = "minor"
)

var (
	majorDeck []Card
	fullDeck  []Card
)

func init() {
	for _, name := range majorArcana {
		majorDeck = append(majorDeck, Card{Name: name, Arcana: ArcanaMajor})
	}
	fullDeck = append(fullDeck, majorDeck...)
	for _, suit := range minorSuits {
		for _, rank := range minorRanks {
			fullDeck = append(fullDeck, Card{
				Name:   rank + " of " + suit,
				Arcana: ArcanaMinor,
				Suit:   suit,
				Rank:   rank,
			})
		}
	}
}
