package registry

// extraction lists, per query variant, the response message holding the
// data and the elements picked from it.
type extraction struct {
	message  string
	elements []string
}

var extractions = map[Variant]extraction{
	VariantHistory: {
		message: "historia",
		elements: []string{
			"ajoneuvonTiedot",
			"omistajatHaltijat",
			"luovutusilmoitukset",
			"vakuutustiedot",
			"tunnushistoria",
			"poistohistoria",
			"katsastushistoria",
			"kayttohistoria",
			"kilometrilukemahistoria",
		},
	},
	VariantLimited: {
		message:  "suppea",
		elements: []string{"ajoneuvonTiedot"},
	},
	VariantExtended: {
		message: "laaja",
		elements: []string{
			"tunnus",
			"ajoneuvonPerustiedot",
			"erikoisehdot",
			"rajoitustiedot",
			"rakenne",
			"moottori",
			"massa",
			"mitat",
			"kori",
			"jarrut",
			"kevyenKytkenta",
			"turvavarusteet",
			"muutoskatsastukset",
		},
	},
}

// extractionFor returns the table entry for v. Unknown variants use the
// extended field set.
func extractionFor(v Variant) extraction {
	if e, ok := extractions[v]; ok {
		return e
	}
	return extractions[VariantExtended]
}

const (
	errorCodePath = "kehys.yleinen.virhe.virhekoodi"
	dataRootPath  = "kehys.sanoma.ajoneuvontiedot"
)
