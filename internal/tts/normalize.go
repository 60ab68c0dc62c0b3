package tts

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*([^*\s][^*]*?)\*`)
	mdUnderline  = regexp.MustCompile(`__(.+?)__`)
	mdCode       = regexp.MustCompile("`([^`]+)`")
	mdHeader     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBullet     = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	currencyAmt  = regexp.MustCompile(`([$€£¥₪])\s?(\d[\d,]*(?:\.\d+)?)`)
	negative     = regexp.MustCompile(`(^|[\s(])-(\d)`)
	ordinal      = regexp.MustCompile(`\b(\d+)(st|nd|rd|th)\b`)
	number       = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
	dottedWord   = regexp.MustCompile(`([a-zA-Z])\.([a-zA-Z])`)
	titleMr      = regexp.MustCompile(`(^|\s)[Mm][Rr]\.(\s|$)`)
	titleMrs     = regexp.MustCompile(`(^|\s)[Mm][Rr][Ss]\.(\s|$)`)
	titleMs      = regexp.MustCompile(`(^|\s)[Mm][Ss]\.(\s|$)`)
	abbrUSA      = regexp.MustCompile(`\b(?:USA|usa)\b`)
	abbrUK       = regexp.MustCompile(`\b(?:UK|uk)\b`)
	abbrAI       = regexp.MustCompile(`\b(?:AI|ai)\b`)
	multiSpace   = regexp.MustCompile(`\s+`)
	spacePunct   = regexp.MustCompile(`\s+([.,!?;:])`)
	currencyName = map[string]string{
		"$": "dollars",
		"€": "euros",
		"£": "pounds",
		"¥": "yen",
		"₪": "shekels",
	}
)

var symbols = strings.NewReplacer(
	"$", " dollars ",
	"€", " euros ",
	"£", " pounds ",
	"¥", " yen ",
	"₪", " shekels ",
	"%", " percent ",
	"*", " asterisk ",
	"@", " at ",
	"°", " degrees ",
	"’", "'",
	"&", " and ",
)

// Normalize rewrites text so a speech engine reads it naturally: markdown
// is stripped, numbers become words, symbols and a few abbreviations are
// spelled out, and dotted names such as example.com are read as "example
// dot com".
func Normalize(text string) string {
	text = stripMarkdown(text)

	text = currencyAmt.ReplaceAllStringFunc(text, func(m string) string {
		parts := currencyAmt.FindStringSubmatch(m)
		return " " + parts[2] + " " + currencyName[parts[1]] + " "
	})
	text = negative.ReplaceAllString(text, "${1}minus ${2}")
	text = ordinal.ReplaceAllStringFunc(text, func(m string) string {
		parts := ordinal.FindStringSubmatch(m)
		n, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return m
		}
		return " " + OrdinalWords(n) + " "
	})
	text = number.ReplaceAllStringFunc(text, func(m string) string {
		return " " + NumberWords(m) + " "
	})

	// Each pass consumes the letter after the dot, so repeat for a.b.c.
	for dottedWord.MatchString(text) {
		text = dottedWord.ReplaceAllString(text, "${1} dot ${2}")
	}

	text = symbols.Replace(text)

	text = titleMrs.ReplaceAllString(text, "${1}missus${2}")
	text = titleMr.ReplaceAllString(text, "${1}mister${2}")
	text = titleMs.ReplaceAllString(text, "${1}miss${2}")
	text = abbrUSA.ReplaceAllString(text, "U S A")
	text = abbrUK.ReplaceAllString(text, "U K")
	text = abbrAI.ReplaceAllString(text, "A I")

	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(spacePunct.ReplaceAllString(text, "$1"))
}

func stripMarkdown(text string) string {
	text = mdBold.ReplaceAllString(text, "$1")
	text = mdUnderline.ReplaceAllString(text, "$1")
	text = mdItalic.ReplaceAllString(text, "$1")
	text = mdCode.ReplaceAllString(text, "$1")
	text = mdHeader.ReplaceAllString(text, "")
	text = mdBullet.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	return text
}

var (
	smallNumbers = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tensNames  = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	scaleNames = []string{"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion"}
)

// NumberWords spells a decimal numeral such as "1,234" or "3.14". Digits
// after the point are read one at a time. Input that does not parse is
// read digit by digit.
func NumberWords(numeral string) string {
	numeral = strings.ReplaceAll(numeral, ",", "")
	whole, frac, hasFrac := strings.Cut(numeral, ".")

	var words string
	if n, err := strconv.ParseUint(whole, 10, 64); err == nil {
		words = IntegerWords(n)
	} else {
		words = digitWords(whole)
	}
	if hasFrac && frac != "" {
		words += " point " + digitWords(frac)
	}
	return words
}

func digitWords(digits string) string {
	out := make([]string, 0, len(digits))
	for _, r := range digits {
		if r >= '0' && r <= '9' {
			out = append(out, smallNumbers[r-'0'])
		}
	}
	return strings.Join(out, " ")
}

// IntegerWords spells n in American English, e.g. 1203 is "one thousand
// two hundred three".
func IntegerWords(n uint64) string {
	if n == 0 {
		return smallNumbers[0]
	}

	var groups []string
	for scale := 0; n > 0; scale++ {
		if chunk := n % 1000; chunk > 0 {
			g := hundredsWords(chunk)
			if scaleNames[scale] != "" {
				g += " " + scaleNames[scale]
			}
			groups = append([]string{g}, groups...)
		}
		n /= 1000
	}
	return strings.Join(groups, " ")
}

func hundredsWords(n uint64) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, smallNumbers[n/100]+" hundred")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		parts = append(parts, smallNumbers[n])
	case n%10 == 0:
		parts = append(parts, tensNames[n/10])
	default:
		parts = append(parts, tensNames[n/10]+"-"+smallNumbers[n%10])
	}
	return strings.Join(parts, " ")
}

var irregularOrdinals = map[string]string{
	"one":    "first",
	"two":    "second",
	"three":  "third",
	"five":   "fifth",
	"eight":  "eighth",
	"nine":   "ninth",
	"twelve": "twelfth",
}

// OrdinalWords spells n as an ordinal, e.g. 21 is "twenty-first".
func OrdinalWords(n uint64) string {
	words := IntegerWords(n)

	cut := strings.LastIndexAny(words, " -") + 1
	head, last := words[:cut], words[cut:]
	switch {
	case irregularOrdinals[last] != "":
		last = irregularOrdinals[last]
	case strings.HasSuffix(last, "y"):
		last = strings.TrimSuffix(last, "y") + "ieth"
	default:
		last += "th"
	}
	return head + last
}
