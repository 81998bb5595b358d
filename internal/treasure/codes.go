package treasure

import "strings"

const (
	// FullRejuvenation is the item every lesser potion is turned into.
	FullRejuvenation = "rvl"
	Rejuvenation     = "rvs"

	// MaxPotionPicks caps picks on rows that only drop potions.
	MaxPotionPicks = 5
)

var potionPrefixes = []string{"hp", "mp", "potion", "hpotion", "mpotion"}

var potionCodes = map[string]bool{
	Rejuvenation:     true,
	FullRejuvenation: true,
}

// Item codes of nested treasure classes start with one of these.
var tcPrefixes = []string{"act", "armo", "weap", "junk", "good", "magic", "rare", "uni", "set", "rune", "gem"}

// DefaultClutter are the items removed by the clutter rule.
var DefaultClutter = []string{
	"key", // key
	"tbk", // tome of town portal
	"ibk", // tome of identify
	"tsc", // scroll of town portal
	"isc", // scroll of identify
	"aqv", // arrows
	"cqv", // bolts
	"yps", // antidote potion
	"wms", // thawing potion
	"vps", // stamina potion
	"gps", // rancid gas potion
	"ops", // strangling gas potion
	"gpm", "opm", "gpl", "opl", // gas potions
	"ear", // ear
}

func hasPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// IsPotion reports whether code names a healing, mana or rejuvenation potion,
// either directly (hp3, rvs) or through a potion treasure class (Hpotion 4).
func IsPotion(code string) bool {
	code = strings.ToLower(code)
	return potionCodes[code] || hasPrefix(code, potionPrefixes)
}

// IsTCReference reports whether code looks like the name of another treasure
// class. This is a prefix heuristic and will flag some real item codes.
func IsTCReference(code string) bool {
	return hasPrefix(strings.ToLower(code), tcPrefixes)
}
