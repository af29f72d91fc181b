package internal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type ParsedFormatter struct {
	// Number of formatter arguments.
	ArgCnt int
	// RE2 regex wrapped in a top-level named group, one named group per
	// argument (arg<group><n>), non-greedy, no anchors.
	Regex string
}

var printfSpecRe = regexp.MustCompile(`%%|%([#+0\- ]*)(\d*)(?:\.(\d+))?[hlLjzt]*([diuoxXfFeEgGaAcsp])`)

const infNanPattern = `inf|nan`

// ParsePrintfFormat turns a printf-style format string into a regex matching
// its output. Field widths are accepted but not enforced.
func ParsePrintfFormat(format string, topLevelGroupName string) (ParsedFormatter, error) {
	if strings.ContainsAny(topLevelGroupName, "<>()") {
		return ParsedFormatter{}, fmt.Errorf("invalid group name %q", topLevelGroupName)
	}
	matches := printfSpecRe.FindAllStringSubmatchIndex(format, -1)

	argCount := 0
	var b strings.Builder
	b.WriteString("(?P<")
	b.WriteString(topLevelGroupName)
	b.WriteString(">")

	lastEnd := 0
	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		b.WriteString(regexp.QuoteMeta(format[lastEnd:fullStart]))
		lastEnd = fullEnd

		if format[fullStart:fullEnd] == "%%" {
			b.WriteString("%")
			continue
		}

		flags := format[m[2]:m[3]]
		precision := -1
		if m[6] != -1 {
			if p, err := strconv.Atoi(format[m[6]:m[7]]); err == nil {
				precision = p
			}
		}
		verb := format[m[8]:m[9]]
		altForm := strings.Contains(flags, "#")

		argName := fmt.Sprintf("arg%s%d", topLevelGroupName, argCount)
		fmt.Fprintf(&b, "(?P<%s>%s)", argName, argPattern(verb, precision, altForm))
		argCount++
	}
	b.WriteString(regexp.QuoteMeta(format[lastEnd:]))
	b.WriteString(")")

	pf := ParsedFormatter{
		ArgCnt: argCount,
		Regex:  b.String(),
	}
	if _, err := regexp.Compile(pf.Regex); err != nil {
		return ParsedFormatter{}, fmt.Errorf("format %q produced an invalid regex: %w", format, err)
	}
	return pf, nil
}

func argPattern(verb string, precision int, altForm bool) string {
	minDigits := max(precision, 0)
	fraction := precision
	if fraction < 0 {
		fraction = 6
	}
	switch verb {
	case "d", "i":
		return fmt.Sprintf(`[-+]?\d{%d,}`, max(minDigits, 1))
	case "u":
		return fmt.Sprintf(`\d{%d,}`, max(minDigits, 1))
	case "o":
		prefix := ""
		if altForm {
			prefix = "0?"
		}
		return fmt.Sprintf(`%s[0-7]{%d,}`, prefix, max(minDigits, 1))
	case "x", "X":
		prefix := ""
		if altForm {
			prefix = "(?:0[xX])?"
		}
		return fmt.Sprintf(`%s[0-9A-Fa-f]{%d,}`, prefix, max(minDigits, 1))
	case "f", "F":
		switch {
		case fraction == 0 && altForm:
			return `[-+]?(?:` + infNanPattern + `|\d+\.)`
		case fraction == 0:
			return `[-+]?(?:` + infNanPattern + `|\d+)`
		}
		return fmt.Sprintf(`[-+]?(?:%s|\d+\.\d{%d})`, infNanPattern, fraction)
	case "e", "E":
		frac := ""
		if fraction > 0 {
			frac = `\.\d{` + strconv.Itoa(fraction) + `}`
		} else if altForm {
			frac = `\.`
		}
		return fmt.Sprintf(`[-+]?(?:%s|\d%s[eE][-+]?\d+)`, infNanPattern, frac)
	case "g", "G":
		// either form, approximately
		return `[-+]?(?:` + infNanPattern + `|\d+(?:\.\d+)?(?:[eE][-+]?\d+)?)`
	case "a", "A":
		return `[-+]?(?:` + infNanPattern + `|0[xX][0-9A-Fa-f]+(?:\.[0-9A-Fa-f]*)?[pP][-+]?\d+)`
	case "c":
		return `.`
	case "s":
		if precision >= 0 {
			return `.{0,` + strconv.Itoa(precision) + `}?`
		}
		return `.+?`
	case "p":
		return `0x[0-9A-Fa-f]+?`
	}
	return `.+?`
}
