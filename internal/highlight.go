package internal

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/phuslu/log"
)

// LineProcessor transforms one input line. Implementations must be safe for
// concurrent use by pipeline workers.
type LineProcessor interface {
	ProcessLine(line string) (string, error)
}

// LineProcessorFunc adapts a plain function to LineProcessor.
type LineProcessorFunc func(line string) (string, error)

func (f LineProcessorFunc) ProcessLine(line string) (string, error) {
	return f(line)
}

type HighlightConfig struct {
	// 1-indexed start position of matching within a line
	StartPos int
	// A single character followed by a position index (1-indexed): start
	// matching after the n-th appearance of the character
	StartCharPos     string
	LabelColumnWidth int
	SkipArguments    bool
	RuleFilter       []string
}

func (hc HighlightConfig) MustGetStartCharPos() (byte, int) {
	idx, err := strconv.Atoi(hc.StartCharPos[1:])
	if err != nil {
		log.Panic().Msgf("start_char_pos: invalid character '%c': %s", hc.StartCharPos[0], err)
	}
	return hc.StartCharPos[0], idx
}

func (hc HighlightConfig) Validate() error {
	if hc.StartPos < 0 {
		return fmt.Errorf("start_pos must be a non-negative, 1-based integer")
	}
	if hc.LabelColumnWidth < 0 {
		return fmt.Errorf("label_column_width must be non-negative")
	}
	if len(hc.StartCharPos) > 0 && hc.StartPos > 1 {
		return fmt.Errorf("cannot use both start_pos and start_char_pos together")
	}
	if len(hc.StartCharPos) > 0 {
		if len(hc.StartCharPos) < 2 {
			return fmt.Errorf("start_char_pos must be at least a two-character string like {character}{posIdx}")
		}
		if idx, err := strconv.Atoi(hc.StartCharPos[1:]); err != nil {
			return fmt.Errorf("start_char_pos: invalid posIdx '%s': %w", hc.StartCharPos[1:], err)
		} else if idx < 1 {
			return fmt.Errorf("start_char_pos: posIdx must be a positive integer")
		}
	}
	return nil
}

// Highlighter colors the first rule match in each line and prefixes the line
// with a label column naming the rule.
type Highlighter struct {
	Config HighlightConfig
	Rules  []*Rule
	output *termenv.Output
}

var _ LineProcessor = (*Highlighter)(nil)

// NewHighlighter keeps the compiled rules of rules that pass the config's
// rule filter. Colors are rendered for the terminal profile of w.
func NewHighlighter(config HighlightConfig, rules RuleFile, w io.Writer, opts ...termenv.OutputOption) (*Highlighter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	h := &Highlighter{
		Config: config,
		output: termenv.NewOutput(w, opts...),
	}
	for i := range rules.Rules {
		rule := &rules.Rules[i]
		if len(config.RuleFilter) > 0 && !slices.Contains(config.RuleFilter, rule.ID) {
			continue
		}
		if rule.Compiled == nil {
			if err := rule.Compile(); err != nil {
				return nil, err
			}
		}
		h.Rules = append(h.Rules, rule)
	}
	log.Debug().Msgf("Highlighter using %d of %d rules", len(h.Rules), len(rules.Rules))
	return h, nil
}

const labelColumnSeparator = " | "

func (h *Highlighter) buildLabelColumn(rule *Rule) string {
	width := h.Config.LabelColumnWidth - len(labelColumnSeparator)
	if h.Config.LabelColumnWidth == 0 {
		return ""
	}
	// too narrow for a label; keep the requested width
	if width <= 0 {
		return strings.Repeat(" ", h.Config.LabelColumnWidth)
	}
	if rule == nil {
		return strings.Repeat(" ", width) + labelColumnSeparator
	}
	label := runewidth.Truncate(rule.ID, width, "...")
	styled := h.output.String(label).Foreground(h.output.Color("#dddddd")).String()
	res := styled + strings.Repeat(" ", width-runewidth.StringWidth(label)) + labelColumnSeparator
	if rule.Link != "" {
		return termenv.Hyperlink(rule.ResolveLink(), res)
	}
	return res
}

func (h *Highlighter) startPos(line string) int {
	startPos := 0
	if h.Config.StartPos > 1 {
		startPos = h.Config.StartPos - 1
	} else if len(h.Config.StartCharPos) > 0 {
		char, cnt := h.Config.MustGetStartCharPos()
		for cnt > 0 {
			newPos := strings.IndexByte(line[startPos:], char)
			if newPos == -1 {
				return len(line)
			}
			startPos += newPos + 1
			cnt--
		}
	}
	return min(startPos, len(line))
}

func (h *Highlighter) ProcessLine(line string) (string, error) {
	startPos := h.startPos(line)
	prefix, lineToMatch := line[:startPos], line[startPos:]

	for _, rule := range h.Rules {
		loc := rule.Compiled.FindStringSubmatchIndex(lineToMatch)
		if loc == nil || loc[1] == loc[0] {
			continue
		}
		log.Trace().Msgf("Rule %s matched %q at %d-%d", rule.ID, lineToMatch, loc[0], loc[1])
		return h.buildLabelColumn(rule) + prefix + h.highlight(rule, lineToMatch, loc), nil
	}
	return h.buildLabelColumn(nil) + line, nil
}

func (h *Highlighter) highlight(rule *Rule, line string, loc []int) string {
	color := rule.Color
	if color == "" {
		color = "#ffcc00"
	}
	fg := h.output.Color(color)
	write := func(res *strings.Builder, s string, emphasize bool) {
		if s == "" {
			return
		}
		style := h.output.String(s).Foreground(fg)
		if emphasize {
			style = style.Underline().Bold()
		}
		res.WriteString(style.String())
	}

	res := strings.Builder{}
	res.WriteString(line[:loc[0]])
	prevEnd := loc[0]
	if !h.Config.SkipArguments {
		for _, group := range rule.ArgumentGroups() {
			argStart, argEnd := loc[2*group], loc[2*group+1]
			// unmatched optional groups and nested groups are left plain
			if argStart < 0 || argStart < prevEnd {
				continue
			}
			write(&res, line[prevEnd:argStart], false)
			write(&res, line[argStart:argEnd], true)
			prevEnd = argEnd
		}
	}
	write(&res, line[prevEnd:loc[1]], false)
	res.WriteString(line[loc[1]:])
	return res.String()
}
