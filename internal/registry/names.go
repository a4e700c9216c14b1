package registry

import (
	"math/rand"
	"strings"
)

// Two naming strategies, picked per project by a coin flip:
//   - template style:  "web-auth", "cli-deploy", ...
//   - company style:   "nimbus-labs-api", "vertex-forge-web", ...
//
// Both feed through sanitizeName so the remote service only ever sees
// [A-Za-z0-9_-] names of at most maxNameLen characters.

const maxNameLen = 50

var projectTemplates = []string{
	"web-%s", "api-%s", "mobile-%s", "backend-%s", "frontend-%s",
	"service-%s", "app-%s", "platform-%s", "cli-%s", "worker-%s",
}

var techWords = []string{
	"auth", "user", "payment", "notification", "analytics", "search",
	"admin", "dashboard", "core", "gateway", "proxy", "cache", "queue",
	"monitor", "logger", "config", "deploy", "build", "test", "docs",
}

var companyAdjectives = []string{
	"nimbus", "vertex", "quantum", "stellar", "apex", "cobalt", "ember",
	"lumen", "orbit", "prism", "zenith", "atlas", "delta", "echo", "flux",
}

var companyNouns = []string{
	"labs", "systems", "works", "forge", "dynamics", "software", "digital",
	"solutions", "industries", "networks", "technologies", "data",
}

var productSuffixes = []string{"web", "api", "app"}

func templateName(rng *rand.Rand) string {
	tpl := projectTemplates[rng.Intn(len(projectTemplates))]
	word := techWords[rng.Intn(len(techWords))]
	return strings.Replace(tpl, "%s", word, 1)
}

func companyName(rng *rand.Rand) string {
	parts := []string{
		companyAdjectives[rng.Intn(len(companyAdjectives))],
		companyNouns[rng.Intn(len(companyNouns))],
		productSuffixes[rng.Intn(len(productSuffixes))],
	}
	return strings.Join(parts, "-")
}

// generateName draws one candidate project name. It is not guaranteed unique;
// the registry dedupes against its map.
func generateName(rng *rand.Rand) string {
	var name string
	if rng.Intn(2) == 0 {
		name = templateName(rng)
	} else {
		name = companyName(rng)
	}
	return sanitizeName(name)
}

// sanitizeName keeps alphanumerics, hyphens and underscores, and caps length.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	return b.String()
}
