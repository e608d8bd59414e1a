// Package markdown renders the CLI's reports and highlights config
// snippets in colours that match the active theme.
package markdown

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/glamour"

	"github.com/wilbur182/themesync/internal/theme"
)

const (
	// MinWidthForMarkdown is the minimum terminal width for markdown rendering.
	// Below this, falls back to plain text wrapping.
	MinWidthForMarkdown = 30

	// MaxCacheEntries is the maximum number of cached renders before eviction.
	MaxCacheEntries = 100

	// PlainStyle renders without colours, for pipes and files.
	PlainStyle = "notty"
)

// Renderer wraps Glamour for markdown rendering with caching.
type Renderer struct {
	mu        sync.RWMutex
	renderer  *glamour.TermRenderer
	lastWidth int
	lastStyle string
	cache     map[uint64]string
	logger    *slog.Logger
}

// NewRenderer creates a new markdown renderer instance.
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		cache:  make(map[uint64]string),
		logger: logger,
	}
}

// StyleFor returns the glamour style for p, or PlainStyle when colour is off.
func StyleFor(p theme.Preference, colour bool) string {
	if !colour {
		return PlainStyle
	}
	return theme.MarkdownTheme(p)
}

// Render renders content with the named glamour style.
func (r *Renderer) Render(content, style string, width int) string {
	if content == "" {
		return ""
	}
	if width < MinWidthForMarkdown {
		return strings.Join(WrapText(content, width), "\n")
	}

	key := r.cacheKey(content, style, width)

	r.mu.RLock()
	if cached, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[key]; ok {
		return cached
	}

	renderer, err := r.getOrCreateRenderer(style, width)
	if err != nil {
		r.logger.Debug("markdown: renderer error", "style", style, "err", err)
		return strings.Join(WrapText(content, width), "\n")
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		r.logger.Debug("markdown: render error", "err", err)
		return strings.Join(WrapText(content, width), "\n")
	}
	rendered = strings.TrimRight(rendered, "\n\r\t ")

	if len(r.cache) >= MaxCacheEntries {
		r.cache = make(map[uint64]string)
	}
	r.cache[key] = rendered
	return rendered
}

func (r *Renderer) cacheKey(content, style string, width int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(style)
	_, _ = h.Write([]byte{0, byte(width >> 8), byte(width)})
	_, _ = h.WriteString(content)
	return h.Sum64()
}

// getOrCreateRenderer rebuilds the glamour renderer when the style or width
// changes. Must be called with the write lock held.
func (r *Renderer) getOrCreateRenderer(style string, width int) (*glamour.TermRenderer, error) {
	if r.renderer != nil && r.lastWidth == width && r.lastStyle == style {
		return r.renderer, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}

	r.renderer = renderer
	r.lastWidth = width
	r.lastStyle = style
	r.cache = make(map[uint64]string)
	return renderer, nil
}

// Highlight colours source in the given lexer using the syntax theme of p.
func Highlight(source, lexer string, p theme.Preference) (string, error) {
	buf := new(bytes.Buffer)
	if err := quick.Highlight(buf, source, lexer, "terminal256", theme.SyntaxTheme(p)); err != nil {
		return "", fmt.Errorf("markdown: highlight: %w", err)
	}
	return buf.String(), nil
}

// WrapText wraps text to fit within maxWidth.
// Used as fallback when terminal is too narrow for markdown rendering.
func WrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}

	text = strings.ReplaceAll(text, "\n", " ")

	var lines []string
	words := strings.Fields(text)
	if len(words) == 0 {
		return lines
	}

	currentLine := words[0]
	for _, word := range words[1:] {
		if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}
