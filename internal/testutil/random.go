package testutil

import (
	"fmt"
	"lodgemirror/internal/lodge"
	"math/rand"
)

// RandomSwitch returns a function that will output various integers at different weights.
//
// Ex. RandomSwitch(2, 3, 5) will return a function that will output:
//   - `0` 20% of the time
//   - `1` 30% of the time
//   - `2` 50% of the time
func RandomSwitch(weights ...int) func(rndm *rand.Rand) int {
	if len(weights) == 0 {
		panic("a random switch must have at least 1 probability")
	}

	var sum int
	for _, p := range weights {
		if p == 0 {
			panic("cannot have weight that is 0")
		}
		sum += p
	}

	return func(rndm *rand.Rand) int {
		value := rndm.Intn(sum)

		threshold := 0
		for i := 0; i < len(weights); i++ {
			threshold += weights[i]
			if value < threshold {
				return i
			}
		}

		panic(fmt.Sprintf("random value generated was out of bounds: %d", value))
	}
}

// RandomString generates a random lowercase string given the pseudo random source.
func RandomString(rndm *rand.Rand, length int) string {
	str := make([]rune, length)
	for i := range length {
		str[i] = 'a' + rune(rndm.Intn(26))
	}
	return string(str)
}

// RandomRecord generates a record that respects the parser's invariants: every
// tier holds at least one category, categories may be empty.
func RandomRecord(rndm *rand.Rand, name string) lodge.Record {
	record := lodge.NewRecord(name)
	for _, tier := range lodge.Tiers() {
		if rndm.Intn(3) == 0 {
			continue
		}
		categories := lodge.Categories{}
		for range 1 + rndm.Intn(3) {
			topics := []string{}
			for range rndm.Intn(4) {
				topics = append(topics, RandomString(rndm, 1+rndm.Intn(3)))
			}
			categories[RandomString(rndm, 2)] = topics
		}
		record.Tiers[tier] = categories
	}
	return record
}

// RandomDataset generates a dataset of up to `maxTrainers` random records.
func RandomDataset(rndm *rand.Rand, maxTrainers int) lodge.Dataset {
	dataset := lodge.Dataset{}
	for range rndm.Intn(maxTrainers + 1) {
		name := RandomString(rndm, 1+rndm.Intn(2))
		dataset[name] = RandomRecord(rndm, name)
	}
	return dataset
}
