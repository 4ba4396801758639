// Package economy provides commodities, price-ordered order books and the
// match engine that clears bounded purchases against them.
package economy

import "fmt"

// GoodType enumerates physical goods traded between agents.
type GoodType uint8

const (
	GoodGrain GoodType = iota // Food staple
	GoodFish                  // Food
	GoodTimber                // Construction
	GoodIronOre               // Raw material
	GoodCoal                  // Energy
	GoodTools                 // Capital good
	GoodClothing              // Consumer good
	GoodMedicine              // Consumer good
	GoodLabour                // Hours of work
	goodCount
)

var goodNames = [goodCount]string{
	GoodGrain:    "grain",
	GoodFish:     "fish",
	GoodTimber:   "timber",
	GoodIronOre:  "iron_ore",
	GoodCoal:     "coal",
	GoodTools:    "tools",
	GoodClothing: "clothing",
	GoodMedicine: "medicine",
	GoodLabour:   "labour",
}

// basePrices are reference prices used to seed agent price beliefs.
var basePrices = [goodCount]float64{
	GoodGrain:    2,
	GoodFish:     2,
	GoodTimber:   3,
	GoodIronOre:  4,
	GoodCoal:     4,
	GoodTools:    10,
	GoodClothing: 8,
	GoodMedicine: 12,
	GoodLabour:   5,
}

func (g GoodType) String() string {
	if g < goodCount {
		return goodNames[g]
	}
	return fmt.Sprintf("good(%d)", uint8(g))
}

// BasePrice returns the reference price of a good, or 1 for unknown goods.
func (g GoodType) BasePrice() float64 {
	if g < goodCount {
		return basePrices[g]
	}
	return 1
}

// AllGoods lists every known good type.
func AllGoods() []GoodType {
	out := make([]GoodType, 0, goodCount)
	for g := GoodType(0); g < goodCount; g++ {
		out = append(out, g)
	}
	return out
}

// GoodTypeFromString maps a good name to its GoodType.
func GoodTypeFromString(name string) (GoodType, bool) {
	for g, n := range goodNames {
		if n == name {
			return GoodType(g), true
		}
	}
	return 0, false
}
