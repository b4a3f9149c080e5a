package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/arkime/httppool/theme"
)

var (
	Name        = "httppool"
	Authors     = "Arkime Go Tooling"
	Description = "Asynchronous priority-aware HTTP client pool for capture engines"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/arkime/httppool"
	GithubHomeUri   = "https://github.com/arkime/httppool"
	GithubLatestUri = "https://github.com/arkime/httppool/releases/latest"
)

// PrintVersionInfo writes a short banner plus, when extendedInfo is set,
// build provenance (commit, build date, builder) to vlog.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)
	padLatest := fmt.Sprintf("%*s", 1-len(Version), "")
	padBuffer := fmt.Sprintf("%*s", 2, "")

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔────────────────────────────────────────────────────────╗
│   http pool :: async priority dispatch for capture      │
│   engines talking to Elasticsearch-shaped backends       │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(padLatest)
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(padBuffer)
	b.WriteString(theme.ColourSplash("│\n"))
	b.WriteString(theme.ColourSplash("╚────────────────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
