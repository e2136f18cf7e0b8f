// Package search implements the in-memory filter and sort engine behind the
// property and agent browse pages. It is deliberately pure: callers fetch
// records from the database and hand them to the engine, so the same
// semantics apply to live data, cached data and test fixtures.
package search

import (
	"sort"
	"strings"

	"github.com/alb1nut/homebase/internal/models"
)

// Any matches everything for a criterion and is the zero-filter sentinel.
// An empty string is treated the same way.
const Any = "all"

// Price range bucket keys. Sale prices are totals, rent prices are monthly;
// the two families never overlap on the same browse page.
const (
	PriceUnder500k = "under-500k"
	Price500kTo1m  = "500k-1m"
	Price1mTo2m    = "1m-2m"
	PriceOver2m    = "over-2m"
	PriceUnder3k   = "under-3k"
	Price3kTo5k    = "3k-5k"
	PriceOver5k    = "over-5k"
)

// Agent sort keys. All sort descending; ties keep their input order.
const (
	SortByRating     = "rating"
	SortByReviews    = "reviews"
	SortByProperties = "properties"
	SortByExperience = "experience"
)

// PropertyCriteria is the set of filters applied to a property list.
// All active criteria must match (conjunction); zero values are inactive.
type PropertyCriteria struct {
	Query        string // Case-insensitive substring on title and location
	PropertyType string // Exact match on the property type, or Any
	Location     string // Case-insensitive substring on location, or Any
	PriceRange   string // Bucket key, or Any
}

// AgentCriteria is the set of filters and the ordering applied to the agent
// directory. All active filters must match; SortBy defaults to rating.
type AgentCriteria struct {
	Query     string // Case-insensitive substring on name and company
	Location  string // Case-insensitive substring on location, or Any
	Specialty string // Exact membership in the specialties list, or Any
	SortBy    string
}

func active(v string) bool {
	return v != "" && v != Any
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// MatchesPriceRange reports whether a price falls inside a bucket.
// Buckets are half-open on the right: 500000 belongs to "500k-1m".
func MatchesPriceRange(price float64, bucket string) bool {
	switch bucket {
	case "", Any:
		return true
	case PriceUnder500k:
		return price < 500000
	case Price500kTo1m:
		return price >= 500000 && price < 1000000
	case Price1mTo2m:
		return price >= 1000000 && price < 2000000
	case PriceOver2m:
		return price >= 2000000
	case PriceUnder3k:
		return price < 3000
	case Price3kTo5k:
		return price >= 3000 && price < 5000
	case PriceOver5k:
		return price >= 5000
	default:
		// Unknown bucket keys filter nothing rather than everything.
		return true
	}
}

func matchesProperty(p *models.Property, c PropertyCriteria) bool {
	if active(c.Query) && !containsFold(p.Title, c.Query) && !containsFold(p.Location, c.Query) {
		return false
	}
	if active(c.PropertyType) && string(p.PropertyType) != c.PropertyType {
		return false
	}
	if active(c.Location) && !containsFold(p.Location, c.Location) {
		return false
	}
	if !MatchesPriceRange(p.Price, c.PriceRange) {
		return false
	}
	return true
}

// FilterProperties returns the properties matching every active criterion,
// in their input order. The input slice is never modified.
func FilterProperties(props []models.Property, c PropertyCriteria) []models.Property {
	result := make([]models.Property, 0, len(props))
	for i := range props {
		if matchesProperty(&props[i], c) {
			result = append(result, props[i])
		}
	}
	return result
}

func matchesAgent(a *models.Agent, c AgentCriteria) bool {
	if active(c.Query) && !containsFold(a.Name, c.Query) && !containsFold(a.Company, c.Query) {
		return false
	}
	if active(c.Location) && !containsFold(a.Location, c.Location) {
		return false
	}
	if active(c.Specialty) {
		found := false
		for _, s := range a.Specialties {
			if s == c.Specialty {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func agentSortValue(a *models.Agent, sortBy string) float64 {
	switch sortBy {
	case SortByReviews:
		return float64(a.Reviews)
	case SortByProperties:
		return float64(a.PropertiesCount)
	case SortByExperience:
		return float64(a.ExperienceYears)
	default:
		return a.Rating
	}
}

// FilterAgents returns the agents matching every active criterion, sorted
// descending by the requested key (rating when unset). The sort is stable:
// equal keys keep their input order. The input slice is never modified.
func FilterAgents(agents []models.Agent, c AgentCriteria) []models.Agent {
	result := make([]models.Agent, 0, len(agents))
	for i := range agents {
		if matchesAgent(&agents[i], c) {
			result = append(result, agents[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return agentSortValue(&result[i], c.SortBy) > agentSortValue(&result[j], c.SortBy)
	})
	return result
}
