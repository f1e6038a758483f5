package receipt

import "testing"

func TestCategorize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Propane", CategoryFuel},
		{"  groceries ", CategoryGroceries},
		{"Electric", CategoryUtilities},
		{"Propane refill 100 gal", CategoryFuel},
		{"Septic pumping", CategoryServices},
		{"Kitchen faucet repair", CategoryRepairs},
		{"Costco paper towels", CategorySupplies},
		{"New bunk bed mattress", CategoryFurnishings},
		{"Weekend supermarket run", CategoryGroceries},
		{"Cleaning service after July 4", CategoryServices},
		{"", CategoryOther},
		{"Souvenir", CategoryOther},
	}
	for _, tt := range tests {
		if got := Categorize(tt.input); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidCategory(t *testing.T) {
	if !ValidCategory(CategoryFuel) {
		t.Error("fuel should be valid")
	}
	if ValidCategory("Produce") {
		t.Error("Produce should be invalid")
	}
}

func TestCategorizeReturnsKnownCategory(t *testing.T) {
	for _, e := range keywordMatches {
		if !ValidCategory(e.category) {
			t.Errorf("keyword %q maps to unknown category %q", e.keyword, e.category)
		}
	}
	for k, c := range exactMatch {
		if !ValidCategory(c) {
			t.Errorf("exact %q maps to unknown category %q", k, c)
		}
	}
}
