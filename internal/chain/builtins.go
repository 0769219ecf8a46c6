package chain

import (
	"log/slog"
	"regexp"

	"prizmagent/internal/domain"
)

var urlPattern = regexp.MustCompile(`^https?://`)

// RegisterBuiltins registers the built-in chains. Tools are resolved by name
// so the built-ins follow whatever tool set was registered at bootstrap.
func RegisterBuiltins(tools toolSource, chains *Registry, logger *slog.Logger) {
	register := func(c domain.Executable, err error) {
		if err != nil {
			logger.Warn("skipping builtin chain", "err", err)
			return
		}
		if err := chains.Register(c); err != nil {
			logger.Warn("cannot register builtin chain", "name", c.Name(), "err", err)
		}
	}

	search, searchErr := tools.Get("web_search")
	fetch, fetchErr := tools.Get("web_fetch")
	dt, dtErr := tools.Get("datetime")

	if searchErr == nil {
		register(New("research",
			"Research a topic using web search.",
			NewToolStep(search, nil, "query"),
		))
	}

	if searchErr == nil && fetchErr == nil {
		searchBody, _ := New("lookup.search", "", NewToolStep(search, nil, "query"))
		fetchBody, _ := New("lookup.url", "", NewToolStep(fetch, nil, "url"))
		register(NewBranching("lookup",
			"Fetch the page when the input is a URL, otherwise search the web.",
			[]Branch{
				{Name: "url", When: MatchesPattern(urlPattern), Exec: fetchBody},
				{Name: "search", When: Always(), Exec: searchBody},
			},
			"search",
		))
	}

	if dtErr == nil {
		register(NewConditional("current_time",
			"Answer date/time questions; skipped when the input is not about time.",
			ContainsAny("time", "date", "today", "tomorrow", "clock"),
			NewToolStep(dt, nil, ""),
		))
	}
}

// toolSource is the slice of the tool registry the builtin bootstrap needs.
type toolSource interface {
	Get(name string) (domain.Tool, error)
}
