// Package changes computes what changed between two generations of the mirrored dataset.
package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"lodgemirror/internal/lodge"
	"sort"
	"strings"
)

type Kind string

const (
	KindNew      Kind = "new_trainer"
	KindRemoved  Kind = "removed_trainer"
	KindModified Kind = "modified_trainer"
)

// Change is a single trainer level difference.
//
// Summary is only set for KindNew, Details only for KindModified.
type Change struct {
	Kind    Kind
	Trainer string
	Summary string
	Details []string
}

const detailSeparator = "; "

type changeJSON struct {
	Type    Kind   `json:"type"`
	Trainer string `json:"trainer"`
	Details string `json:"details,omitempty"`
}

// MarshalJSON writes the flat form consumers of changelog.json read, where details
// is a single string.
func (c Change) MarshalJSON() ([]byte, error) {
	out := changeJSON{Type: c.Kind, Trainer: c.Trainer, Details: c.Detail()}

	// topics routinely contain "&", keep them readable
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(out)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var in changeJSON
	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}
	*c = Change{Kind: in.Type, Trainer: in.Trainer}
	switch in.Type {
	case KindNew:
		c.Summary = in.Details
	case KindModified:
		if in.Details != "" {
			c.Details = strings.Split(in.Details, detailSeparator)
		}
	}
	return nil
}

// Label is the kind in the upper case form used in run logs, ex. "NEW TRAINER".
func (c Change) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(c.Kind), "_", " "))
}

// Detail is the single line form of the summary or details, it is what
// changelog.json stores under "details".
func (c Change) Detail() string {
	if c.Kind == KindModified {
		return strings.Join(c.Details, detailSeparator)
	}
	return c.Summary
}

// String renders the change the way it is shown in run logs.
func (c Change) String() string {
	label := c.Label()
	detail := c.Detail()
	if detail == "" {
		return fmt.Sprintf("[%s] %s", label, c.Trainer)
	}
	return fmt.Sprintf("[%s] %s - %s", label, c.Trainer, detail)
}

// Diff compares two datasets. New trainers come first, then removed trainers,
// then modified trainers, each group sorted by name.
//
// Topics are compared as sets, a trainer whose topics were only reordered is
// not reported.
func Diff(old, current lodge.Dataset) []Change {
	var added, removed, kept []string
	for name := range current {
		if _, ok := old[name]; ok {
			kept = append(kept, name)
		} else {
			added = append(added, name)
		}
	}
	for name := range old {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(kept)

	var out []Change
	for _, name := range added {
		record := current[name]
		out = append(out, Change{
			Kind:    KindNew,
			Trainer: name,
			Summary: fmt.Sprintf("%d tiers, %d topics", len(record.Tiers), record.TopicCount()),
		})
	}
	for _, name := range removed {
		out = append(out, Change{Kind: KindRemoved, Trainer: name})
	}
	for _, name := range kept {
		oldTiers := old[name].Tiers
		newTiers := current[name].Tiers
		if sameTiers(oldTiers, newTiers) {
			continue
		}
		details := tierDetails(oldTiers, newTiers)
		if len(details) == 0 {
			continue
		}
		out = append(out, Change{Kind: KindModified, Trainer: name, Details: details})
	}
	return out
}

// sameTiers checks the tier and category keys exactly and topic lists
// regardless of order.
func sameTiers(a, b map[lodge.Tier]lodge.Categories) bool {
	if len(a) != len(b) {
		return false
	}
	for tier, aCategories := range a {
		bCategories, ok := b[tier]
		if !ok || len(aCategories) != len(bCategories) {
			return false
		}
		for name, aTopics := range aCategories {
			bTopics, ok := bCategories[name]
			if !ok || !sameTopics(aTopics, bTopics) {
				return false
			}
		}
	}
	return true
}

func sameTopics(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}

func tierDetails(old, current map[lodge.Tier]lodge.Categories) []string {
	tierSet := map[lodge.Tier]struct{}{}
	for tier := range old {
		tierSet[tier] = struct{}{}
	}
	for tier := range current {
		tierSet[tier] = struct{}{}
	}
	tiers := make([]string, 0, len(tierSet))
	for tier := range tierSet {
		tiers = append(tiers, string(tier))
	}
	sort.Strings(tiers)

	var details []string
	for _, tier := range tiers {
		oldCategories := old[lodge.Tier(tier)]
		newCategories := current[lodge.Tier(tier)]

		for _, category := range unionKeys(oldCategories, newCategories) {
			oldTopics := oldCategories[category]
			newTopics := newCategories[category]

			path := fmt.Sprintf("[%s/%s]", tier, category)
			if plus := difference(newTopics, oldTopics); len(plus) > 0 {
				details = append(details, fmt.Sprintf("+%s: %s", path, strings.Join(plus, ", ")))
			}
			if minus := difference(oldTopics, newTopics); len(minus) > 0 {
				details = append(details, fmt.Sprintf("-%s: %s", path, strings.Join(minus, ", ")))
			}
		}
	}
	return details
}

func unionKeys(a, b lodge.Categories) []string {
	set := map[string]struct{}{}
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// difference returns the distinct topics of `a` that are not in `b`, sorted.
func difference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, topic := range b {
		exclude[topic] = struct{}{}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, topic := range a {
		if _, ok := exclude[topic]; ok {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
