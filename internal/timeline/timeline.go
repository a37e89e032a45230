// Package timeline derives read-only views over communications and
// questions. Nothing here holds state; every view is recomputed from the
// collections passed in.
package timeline

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

type ItemType string

const (
	ItemCommunication ItemType = "communication"
	ItemQuestion      ItemType = "qa"
)

// FilterAll and FilterQA are the non-communication type filters.
const (
	FilterAll = "all"
	FilterQA  = "qa"
)

type Item struct {
	Type          ItemType              `json:"type"`
	Date          time.Time             `json:"date"`
	Provider      string                `json:"provider"`
	Communication *models.Communication `json:"communication,omitempty"`
	Question      *models.Question      `json:"question,omitempty"`
}

type Filter struct {
	// Provider restricts items to one provider; empty means all.
	Provider string
	// Type is FilterAll, FilterQA or a communication type; empty means all.
	Type string
}

// NormalizeProvider reduces a provider name to its comparison key: letters
// and digits only, upper-cased.
func NormalizeProvider(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

type ranked struct {
	item  Item
	order int
}

// Aggregate merges communications and questions into one sequence, newest
// first. Items with equal dates keep their source order, communications
// before questions.
func Aggregate(comms []models.Communication, questions []models.Question, f Filter) []Item {
	typeFilter := strings.ToLower(strings.TrimSpace(f.Type))
	if typeFilter == "" {
		typeFilter = FilterAll
	}
	providerKey := NormalizeProvider(f.Provider)

	includeComms := typeFilter != FilterQA
	includeQuestions := typeFilter == FilterAll || typeFilter == FilterQA
	commType := models.CommunicationType("")
	if typeFilter != FilterAll && typeFilter != FilterQA {
		commType = models.CommunicationType(typeFilter)
	}

	items := make([]ranked, 0, len(comms)+len(questions))
	order := 0

	if includeComms {
		for i := range comms {
			c := comms[i]
			if commType != "" && c.Type != commType {
				continue
			}
			if providerKey != "" && NormalizeProvider(c.Provider) != providerKey {
				continue
			}
			items = append(items, ranked{
				item: Item{
					Type:          ItemCommunication,
					Date:          c.SortDate(),
					Provider:      c.Provider,
					Communication: &c,
				},
				order: order,
			})
			order++
		}
	}

	if includeQuestions {
		for i := range questions {
			q := questions[i]
			if providerKey != "" && NormalizeProvider(q.Provider) != providerKey {
				continue
			}
			items = append(items, ranked{
				item: Item{
					Type:     ItemQuestion,
					Date:     q.CreatedAt,
					Provider: q.Provider,
					Question: &q,
				},
				order: order,
			})
			order++
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].item.Date.Equal(items[j].item.Date) {
			return items[i].item.Date.After(items[j].item.Date)
		}
		return items[i].order < items[j].order
	})

	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].item
	}
	return out
}

// Provider is one counterparty as it appears across both sources.
type Provider struct {
	Key   string   `json:"key"`
	Names []string `json:"names"`
}

// Providers groups every provider spelling by its normalized key, sorted by
// key. Names keep their first-seen order.
func Providers(comms []models.Communication, questions []models.Question) []Provider {
	index := make(map[string]int)
	var out []Provider

	add := func(name string) {
		name = strings.TrimSpace(name)
		key := NormalizeProvider(name)
		if key == "" {
			return
		}
		idx, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, Provider{Key: key, Names: []string{name}})
			return
		}
		for _, existing := range out[idx].Names {
			if existing == name {
				return
			}
		}
		out[idx].Names = append(out[idx].Names, name)
	}

	for _, c := range comms {
		add(c.Provider)
	}
	for _, q := range questions {
		add(q.Provider)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
