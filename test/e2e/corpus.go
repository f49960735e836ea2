// Package e2e provides end-to-end tests over a generated advisory workbook.
package e2e

import "fmt"

// Header is the header row of the generated workbook, in the advisory export's column names.
var Header = []string{"Customer_id", "County", "About", "Category", "Description_Clean", "Responses_Clean", "Response"}

// Entry is one advisory row: a farmer question and the stored answer.
type Entry struct {
	Key        string // stable name used by test cases
	CustomerID string
	County     string
	About      string
	Category   string
	Question   string
	Answer     string
}

// AskTestCase is a farmer question and the entry whose answer it must get back.
type AskTestCase struct {
	Query       string
	ExpectedKey string
	Description string
}

// Corpus holds the rows and ask test cases for E2E tests.
type Corpus struct {
	Entries      []Entry
	TestCases    []AskTestCase
	TotalEntries int
	TotalQueries int
}

var topics = []struct {
	key      string
	county   string
	about    string
	category string
	question string
	answer   string
	query    string
}{
	{"armyworm", "Nakuru", "crops", "maize", "how to control fall armyworm in maize", "Scout weekly and spray an approved insecticide into the funnel.", "armyworm attack"},
	{"napier", "Kiambu", "livestock", "dairy", "best napier grass variety for dairy cows", "Plant Kakamega 1 or Bana grass and chop before feeding.", "napier variety"},
	{"blight", "Meru", "crops", "potato", "potatoes leaves have late blight spots", "Spray a copper based fungicide and rotate with non-solanaceous crops.", "blight spots"},
	{"newcastle", "Kakamega", "livestock", "poultry", "chickens dying from newcastle disease", "Vaccinate the flock against Newcastle every three months.", "newcastle outbreak"},
	{"tick", "Narok", "livestock", "beef", "ticks on cattle what acaricide to use", "Dip or spray with an acaricide every week during the rainy season.", "acaricide ticks"},
	{"avocado", "Murang'a", "crops", "avocado", "when do hass avocado trees start fruiting", "Grafted Hass trees start fruiting in the third year.", "hass fruiting"},
	{"tomato", "Kirinyaga", "crops", "tomato", "tomato fruits have blossom end rot", "Water regularly and add calcium to the soil.", "blossom rot"},
	{"mastitis", "Nyandarua", "livestock", "dairy", "cow udder swollen with clots in milk mastitis", "Treat with intramammary antibiotics and keep the milking area clean.", "udder clots"},
	{"beans", "Bungoma", "crops", "beans", "which fertilizer for beans at planting", "Use DAP at planting, about 50kg per acre.", "beans fertilizer dap"},
	{"kale", "Kisumu", "crops", "vegetables", "aphids on sukuma wiki kale", "Spray soapy water or a registered aphicide.", "aphids sukuma"},
	{"goat", "Kajiado", "livestock", "goats", "goats coughing and nasal discharge", "Isolate the sick goats and consult a vet for antibiotics.", "nasal discharge"},
	{"coffee", "Nyeri", "crops", "coffee", "coffee berry disease control", "Spray copper fungicide before the long rains and prune old branches.", "coffee berry"},
	{"tea", "Kericho", "crops", "tea", "how often should tea bushes be plucked", "Pluck every 7 to 10 days, two leaves and a bud.", "plucked bushes"},
	{"fish", "Homa Bay", "aquaculture", "fish", "tilapia pond stocking density", "Stock about three fingerlings per square metre.", "tilapia stocking"},
	{"bees", "Baringo", "livestock", "bees", "langstroth beehive siting", "Place hives in shade near water, away from homes.", "langstroth hive"},
	{"sorghum", "Machakos", "crops", "sorghum", "birds eating sorghum heads", "Plant bird resistant varieties and scare birds early in the morning.", "sorghum birds"},
	{"rabbit", "Nairobi", "livestock", "rabbits", "rabbits with mange scratching ears", "Treat mange with ivermectin and clean the hutch.", "mange ears"},
	{"banana", "Kisii", "crops", "banana", "banana weevil damage on corms", "Use clean suckers and trap weevils with split pseudostems.", "weevil corms"},
	{"pig", "Busia", "livestock", "pigs", "piglets diarrhoea after weaning", "Give oral rehydration and improve hygiene in the pen.", "piglets diarrhoea"},
	{"cassava", "Kilifi", "crops", "cassava", "cassava mosaic virus resistant varieties", "Plant tolerant varieties and remove infected plants.", "mosaic cassava"},
}

// BuildCorpus returns the advisory rows and one ask test case per topic. Each
// query shares only its topic's distinctive words with the question column.
func BuildCorpus() *Corpus {
	entries := make([]Entry, 0, len(topics))
	cases := make([]AskTestCase, 0, len(topics))
	for i, tp := range topics {
		entries = append(entries, Entry{
			Key:        tp.key,
			CustomerID: fmt.Sprintf("F%04d", i%7),
			County:     tp.county,
			About:      tp.about,
			Category:   tp.category,
			Question:   tp.question,
			Answer:     tp.answer,
		})
		cases = append(cases, AskTestCase{
			Query:       tp.query,
			ExpectedKey: tp.key,
			Description: tp.key,
		})
	}
	return &Corpus{
		Entries:      entries,
		TestCases:    cases,
		TotalEntries: len(entries),
		TotalQueries: len(cases),
	}
}

// Rows returns the workbook rows, header first. After every third entry a row
// with a blank question is inserted, as happens in real exports, so that sheet
// positions and corpus positions diverge.
func (c *Corpus) Rows() [][]string {
	rows := [][]string{Header}
	for i, e := range c.Entries {
		rows = append(rows, []string{e.CustomerID, e.County, e.About, e.Category, e.Question, e.Answer, e.Answer})
		if i%3 == 2 {
			rows = append(rows, []string{e.CustomerID, e.County, e.About, e.Category, "", "orphan response without a question", ""})
		}
	}
	return rows
}

// Entry returns the entry with key.
func (c *Corpus) Entry(key string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}
