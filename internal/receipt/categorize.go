package receipt

import "strings"

// Receipt categories.
const (
	CategoryGroceries   = "groceries"
	CategoryFuel        = "fuel"
	CategorySupplies    = "supplies"
	CategoryCleaning    = "cleaning"
	CategoryRepairs     = "repairs"
	CategoryUtilities   = "utilities"
	CategoryFurnishings = "furnishings"
	CategoryServices    = "services"
	CategoryOther       = "other"
)

// Categories lists the accepted receipt categories.
var Categories = []string{
	CategoryGroceries, CategoryFuel, CategorySupplies, CategoryCleaning, CategoryRepairs,
	CategoryUtilities, CategoryFurnishings, CategoryServices, CategoryOther,
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Categorize returns the category for a receipt description. It matches
// case-insensitively: whole description first, then keywords.
func Categorize(description string) string {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return CategoryOther
	}

	if cat, ok := exactMatch[desc]; ok {
		return cat
	}
	for _, entry := range keywordMatches {
		if strings.Contains(desc, entry.keyword) {
			return entry.category
		}
	}
	return CategoryOther
}

var exactMatch = map[string]string{
	"groceries":    CategoryGroceries,
	"food":         CategoryGroceries,
	"propane":      CategoryFuel,
	"firewood":     CategoryFuel,
	"gas":          CategoryFuel,
	"heating oil":  CategoryFuel,
	"kerosene":     CategoryFuel,
	"paper towels": CategorySupplies,
	"toilet paper": CategorySupplies,
	"batteries":    CategorySupplies,
	"light bulbs":  CategorySupplies,
	"bleach":       CategoryCleaning,
	"dish soap":    CategoryCleaning,
	"cleaning":     CategoryCleaning,
	"electric":     CategoryUtilities,
	"electricity":  CategoryUtilities,
	"internet":     CategoryUtilities,
	"water":        CategoryUtilities,
	"trash":        CategoryUtilities,
	"plumber":      CategoryRepairs,
	"electrician":  CategoryRepairs,
	"mattress":     CategoryFurnishings,
	"linens":       CategoryFurnishings,
	"towels":       CategoryFurnishings,
	"snow removal": CategoryServices,
	"lawn care":    CategoryServices,
}

type keywordEntry struct {
	keyword  string
	category string
}

// Ordered with longer/more-specific keywords first.
var keywordMatches = []keywordEntry{
	{"cleaning service", CategoryServices},
	{"septic pump", CategoryServices},
	{"snow plow", CategoryServices},
	{"dock install", CategoryServices},
	{"dock removal", CategoryServices},
	{"chimney sweep", CategoryServices},
	{"pest control", CategoryServices},
	{"landscap", CategoryServices},
	{"mowing", CategoryServices},
	{"plowing", CategoryServices},

	{"paper towel", CategorySupplies},
	{"toilet paper", CategorySupplies},
	{"trash bag", CategorySupplies},
	{"light bulb", CategorySupplies},
	{"smoke detector", CategorySupplies},
	{"battery", CategorySupplies},
	{"batteries", CategorySupplies},
	{"hardware", CategorySupplies},

	{"dish soap", CategoryCleaning},
	{"detergent", CategoryCleaning},
	{"cleaner", CategoryCleaning},
	{"disinfect", CategoryCleaning},
	{"sponge", CategoryCleaning},
	{"mop", CategoryCleaning},

	{"propane", CategoryFuel},
	{"firewood", CategoryFuel},
	{"heating oil", CategoryFuel},
	{"gasoline", CategoryFuel},
	{"boat gas", CategoryFuel},
	{"fuel", CategoryFuel},
	{"wood", CategoryFuel},

	{"electric bill", CategoryUtilities},
	{"water bill", CategoryUtilities},
	{"internet", CategoryUtilities},
	{"utility", CategoryUtilities},
	{"utilities", CategoryUtilities},

	{"plumb", CategoryRepairs},
	{"repair", CategoryRepairs},
	{"roof", CategoryRepairs},
	{"fix", CategoryRepairs},
	{"replace", CategoryRepairs},
	{"lumber", CategoryRepairs},
	{"paint", CategoryRepairs},

	{"mattress", CategoryFurnishings},
	{"furniture", CategoryFurnishings},
	{"linen", CategoryFurnishings},
	{"sheets", CategoryFurnishings},
	{"towel", CategoryFurnishings},
	{"chair", CategoryFurnishings},
	{"couch", CategoryFurnishings},
	{"lamp", CategoryFurnishings},

	{"grocer", CategoryGroceries},
	{"supermarket", CategoryGroceries},
	{"market", CategoryGroceries},
	{"coffee", CategoryGroceries},
	{"snacks", CategoryGroceries},
	{"food", CategoryGroceries},
}
