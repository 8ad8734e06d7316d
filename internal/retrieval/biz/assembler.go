package biz

import (
	"strings"

	"github.com/lumenkb/lumen/internal/model"
)

// AssemblerConfig configures citation assembly.
type AssemblerConfig struct {
	// ExcerptLimit is the maximum excerpt length in runes. Longer
	// content is cut and suffixed with "...". Zero means
	// DefaultExcerptLimit.
	ExcerptLimit int

	// DedupOverlapping drops a citation whose location overlaps an
	// earlier citation of the same document (identical page or
	// intersecting audio time range), keeping the higher-ranked one.
	DedupOverlapping bool
}

// DefaultExcerptLimit is the default excerpt length in runes.
const DefaultExcerptLimit = 200

// DefaultAssemblerConfig returns the assembler defaults.
func DefaultAssemblerConfig() *AssemblerConfig {
	return &AssemblerConfig{
		ExcerptLimit:     DefaultExcerptLimit,
		DedupOverlapping: false,
	}
}

// Assembler turns ranked candidates into numbered citations. Assembly
// is pure: same candidates in, same citations out.
type Assembler struct {
	config *AssemblerConfig
}

// NewAssembler creates an Assembler.
func NewAssembler(config *AssemblerConfig) *Assembler {
	if config == nil {
		config = DefaultAssemblerConfig()
	}
	if config.ExcerptLimit == 0 {
		config.ExcerptLimit = DefaultExcerptLimit
	}
	return &Assembler{config: config}
}

// Assemble numbers the candidates 1..N in rank order. A fragment id
// appearing twice keeps only its first, higher-ranked occurrence, so
// numbering stays dense.
func (a *Assembler) Assemble(candidates []model.Candidate) []model.Citation {
	citations := make([]model.Citation, 0, len(candidates))
	seenFragments := make(map[string]bool, len(candidates))
	var accepted []model.Candidate

	for _, c := range candidates {
		if seenFragments[c.FragmentID] {
			continue
		}
		seenFragments[c.FragmentID] = true

		if a.config.DedupOverlapping && overlapsAny(&c, accepted) {
			continue
		}
		accepted = append(accepted, c)

		citations = append(citations, model.Citation{
			Number:     len(citations) + 1,
			FragmentID: c.FragmentID,
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Modality:   c.Modality,
			Score:      c.Score,
			Locator:    c.Locator,
			Excerpt:    a.excerpt(c.Content),
		})
	}
	return citations
}

func overlapsAny(c *model.Candidate, accepted []model.Candidate) bool {
	for i := range accepted {
		if c.OverlapsLocation(&accepted[i]) {
			return true
		}
	}
	return false
}

// excerpt truncates content to the configured rune limit.
func (a *Assembler) excerpt(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= a.config.ExcerptLimit {
		return content
	}
	return string(runes[:a.config.ExcerptLimit]) + "..."
}
