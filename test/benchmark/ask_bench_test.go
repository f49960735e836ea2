package benchmark

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/matcher"
)

var vocabulary = strings.Fields(`maize beans potato tomato kale cabbage dairy cows goats chickens
	pigs rabbits fish bees coffee tea avocado banana cassava sorghum plant harvest spray
	feed fertilizer manure seed disease pest armyworm blight aphids ticks mastitis rain
	drought irrigation soil market price storage weevil vaccine`)

func buildDocs(n int) []matcher.Document {
	r := rand.New(rand.NewPCG(1, 2))
	docs := make([]matcher.Document, n)
	for i := range docs {
		words := make([]string, 6+r.IntN(6))
		for j := range words {
			words[j] = vocabulary[r.IntN(len(vocabulary))]
		}
		docs[i] = matcher.Document{
			ID:       fmt.Sprintf("row:%d", i),
			Question: strings.Join(words, " "),
			Answer:   "answer " + words[0],
		}
	}
	return docs
}

func BenchmarkBuild(b *testing.B) {
	docs := buildDocs(5000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := matcher.Build(docs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkQuery(b *testing.B) {
	state, err := matcher.Build(buildDocs(5000))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = state.Query("when should i spray my maize against armyworm")
	}
}

func BenchmarkTopK(b *testing.B) {
	state, err := matcher.Build(buildDocs(5000))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = state.TopK("dairy cows feed napier", 5)
	}
}

func BenchmarkFromRows(b *testing.B) {
	docs := buildDocs(5000)
	rows := [][]string{{"Description_Clean", "Responses_Clean", "County"}}
	for _, d := range docs {
		rows = append(rows, []string{d.Question, d.Answer, "Nakuru"})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dataset.FromRows("bench.csv", rows, dataset.Columns{}); err != nil {
			b.Fatal(err)
		}
	}
}
