package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/metrics"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/rs/zerolog"
)

// Route request outcomes, used as the result metric label
const (
	ResultRouted     = "routed"
	ResultPreferred  = "preferred"
	ResultNoEligible = "no_eligible"
)

// Category names produced by Categorize
const (
	CategoryExtraction    = "extraction"
	CategoryAnalytics     = "analytics"
	CategoryNotifications = "notifications"
	CategoryWeb           = "web"
	CategoryStorage       = "storage"
	CategoryGeneral       = "general"
)

// categoryKeywords is checked in order; the first matching keyword wins
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryExtraction, []string{"extract", "ocr", "parse", "pdf", "scan", "document"}},
	{CategoryAnalytics, []string{"analytic", "report", "stat", "metric", "forecast", "chart"}},
	{CategoryNotifications, []string{"notif", "email", "mail", "sms", "message", "alert"}},
	{CategoryWeb, []string{"web", "scrape", "crawl", "http", "browse", "search"}},
	{CategoryStorage, []string{"storage", "file", "backup", "archive", "upload"}},
}

// Router picks a worker for a capability. It names the worker; it does not
// perform the call.
type Router struct {
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	logger     zerolog.Logger
}

// Decision is the outcome of a successful Route
type Decision struct {
	Capability string   `json:"capability"`
	Worker     string   `json:"worker"`
	Eligible   []string `json:"eligible"`
}

// Capability describes one advertised capability
type Capability struct {
	Name      string   `json:"name"`
	Servers   []string `json:"servers"`
	Category  string   `json:"category"`
	Available bool     `json:"available"`
}

// NewRouter creates a router over the registry and supervisor
func NewRouter(reg *registry.Registry, sup *supervisor.Supervisor) (*Router, error) {
	if reg == nil || sup == nil {
		return nil, fmt.Errorf("registry and supervisor are required")
	}
	return &Router{
		registry:   reg,
		supervisor: sup,
		logger:     log.WithComponent("router"),
	}, nil
}

type candidate struct {
	name     string
	priority int
}

// Eligible returns the running and healthy advertisers of capability,
// sorted by (priority, name).
func (r *Router) Eligible(capability string) []string {
	var cands []candidate
	for _, def := range r.registry.List() {
		if !def.HasCapability(capability) {
			continue
		}
		h, err := r.supervisor.Handle(def.Name)
		if err != nil || !h.Routable() {
			continue
		}
		cands = append(cands, candidate{name: def.Name, priority: def.Priority})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].priority != cands[j].priority {
			return cands[i].priority < cands[j].priority
		}
		return cands[i].name < cands[j].name
	})

	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names
}

// Route chooses a worker for capability. preferred wins when it is
// eligible; otherwise the best (priority, name) worker is chosen.
func (r *Router) Route(capability, preferred string) (*Decision, error) {
	if capability == "" {
		return nil, types.NewError(types.KindConfig, "route", "", "capability is required")
	}

	eligible := r.Eligible(capability)
	if len(eligible) == 0 {
		metrics.RouteRequestsTotal.WithLabelValues(capability, ResultNoEligible).Inc()
		r.logger.Warn().Str("capability", capability).Msg("No eligible worker")
		return nil, types.NewError(types.KindNoEligibleWorker, "route", "", "no healthy server available for capability: %s", capability)
	}

	chosen, result := eligible[0], ResultRouted
	if preferred != "" {
		for _, name := range eligible {
			if name == preferred {
				chosen, result = name, ResultPreferred
				break
			}
		}
	}

	metrics.RouteRequestsTotal.WithLabelValues(capability, result).Inc()
	r.logger.Debug().
		Str("capability", capability).
		Str("preferred", preferred).
		Str("worker", chosen).
		Strs("eligible", eligible).
		Msg("Request routed")

	return &Decision{Capability: capability, Worker: chosen, Eligible: eligible}, nil
}

// Capabilities lists every advertised capability sorted by name.
// A non-empty category keeps only capabilities in that category.
func (r *Router) Capabilities(category string) []Capability {
	defs := r.registry.List()
	index := types.BuildCapabilityIndex(defs)

	hints := make(map[string]string, len(defs))
	for _, d := range defs {
		hints[d.Name] = d.Category
	}

	routable := make(map[string]bool)
	for _, h := range r.supervisor.Handles() {
		routable[h.Name] = h.Routable()
	}

	out := make([]Capability, 0, len(index))
	for _, name := range index.Names() {
		servers := index[name]

		cat := Categorize(name)
		if cat == CategoryGeneral {
			for _, s := range servers {
				if hints[s] != "" {
					cat = strings.ToLower(hints[s])
					break
				}
			}
		}
		if category != "" && !strings.EqualFold(cat, category) {
			continue
		}

		available := false
		for _, s := range servers {
			if routable[s] {
				available = true
				break
			}
		}

		out = append(out, Capability{
			Name:      name,
			Servers:   append([]string(nil), servers...),
			Category:  cat,
			Available: available,
		})
	}
	return out
}

// Categorize classifies a capability name by substring. The result is a
// hint for display, not an authoritative taxonomy.
func Categorize(capability string) string {
	lower := strings.ToLower(capability)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return CategoryGeneral
}
