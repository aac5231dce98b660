// Package lodge holds the data model mirrored from the Trainer Lodge wiki pages.
package lodge

import (
	"sort"
)

// Tier is one of the closed set of trainer lodge friendship tiers, it is the
// top level section of a trainer's page.
type Tier string

const (
	TierInteresting   Tier = "Interesting"
	TierExciting      Tier = "Exciting"
	TierSuperExciting Tier = "Super Exciting"
)

var tiers = []Tier{TierInteresting, TierExciting, TierSuperExciting}

// Tiers returns the tier vocabulary in the order the wiki lists them.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// ParseTier validates a section label against the tier vocabulary, the
// comparison is exact and case-sensitive.
func ParseTier(label string) (Tier, bool) {
	for _, t := range tiers {
		if string(t) == label {
			return t, true
		}
	}
	return "", false
}

// Categories maps a category name to its ordered list of topics.
type Categories map[string][]string

// TopicCount is the number of topics over all categories.
func (c Categories) TopicCount() int {
	count := 0
	for _, topics := range c {
		count += len(topics)
	}
	return count
}

// Record is everything scraped off a single trainer's page.
//
// A tier is only present if at least one category header was found in it,
// a category is present once its header was seen even if it has no topics.
type Record struct {
	Name  string              `json:"name"`
	Tiers map[Tier]Categories `json:"tiers"`
}

func NewRecord(name string) Record {
	return Record{Name: name, Tiers: map[Tier]Categories{}}
}

func (r Record) TopicCount() int {
	count := 0
	for _, categories := range r.Tiers {
		count += categories.TopicCount()
	}
	return count
}

// Dataset maps a trainer name to its record.
type Dataset map[string]Record

// Names returns the trainer names sorted alphabetically.
func (d Dataset) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d Dataset) TopicCount() int {
	count := 0
	for _, record := range d {
		count += record.TopicCount()
	}
	return count
}
