package constants

import "strings"

// Store identifies a retail chain with a dedicated parsing strategy.
type Store string

const (
	Lidl      Store = "LIDL"
	Biedronka Store = "BIEDRONKA"
	Kaufland  Store = "KAUFLAND"
	Auchan    Store = "AUCHAN"
	Generic   Store = "GENERIC"
)

var allStores = []Store{Lidl, Biedronka, Kaufland, Auchan, Generic}

// storeTokens maps header substrings to stores. Order matters: first match wins.
// "jeronimo" covers Biedronka receipts that only print the parent company name
// (Jeronimo Martins Polska).
var storeTokens = []struct {
	token string
	store Store
}{
	{"lidl", Lidl},
	{"biedronka", Biedronka},
	{"jeronimo", Biedronka},
	{"kaufland", Kaufland},
	{"auchan", Auchan},
}

// DetectStore matches a receipt header snippet against known store tokens.
// It is total: unknown headers fall through to Generic.
func DetectStore(headerText string) Store {
	h := strings.ToLower(headerText)
	for _, st := range storeTokens {
		if strings.Contains(h, st.token) {
			return st.store
		}
	}
	return Generic
}

func AsStringSlice() []string {
	result := make([]string, len(allStores))
	for i, s := range allStores {
		result[i] = string(s)
	}
	return result
}
