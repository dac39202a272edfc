package tool

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultPricingRule undercuts the competitor median slightly.
const DefaultPricingRule = "{median} * 0.97"

var ErrPricingRule = errors.New("invalid pricing rule")

// PriceStats summarises observed competitor prices.
type PriceStats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
}

func NewPriceStats(prices []float64) PriceStats {
	var valid []float64
	for _, p := range prices {
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return PriceStats{}
	}
	sort.Float64s(valid)

	sum := 0.0
	for _, p := range valid {
		sum += p
	}
	n := len(valid)
	median := valid[n/2]
	if n%2 == 0 {
		median = (valid[n/2-1] + valid[n/2]) / 2
	}
	return PriceStats{
		Count:  n,
		Min:    valid[0],
		Max:    valid[n-1],
		Mean:   sum / float64(n),
		Median: median,
	}
}

func (s PriceStats) vars() map[string]float64 {
	return map[string]float64{
		"count":  float64(s.Count),
		"min":    s.Min,
		"max":    s.Max,
		"mean":   s.Mean,
		"median": s.Median,
	}
}

// PricingRule is a compiled arithmetic expression over PriceStats, e.g.
// "max({min}, {median} * 0.97)". Supported: + - * / ^, parentheses, unary
// minus, {count} {min} {max} {mean} {median}, and min/max/round functions.
type PricingRule struct {
	source string
}

// ParsePricingRule checks the rule once against sample stats.
func ParsePricingRule(source string) (PricingRule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return PricingRule{}, fmt.Errorf("%w: rule is empty", ErrPricingRule)
	}
	r := PricingRule{source: source}
	if _, err := r.eval(PriceStats{Count: 3, Min: 1, Max: 3, Mean: 2, Median: 2}); err != nil {
		return PricingRule{}, err
	}
	return r, nil
}

func (r PricingRule) String() string { return r.source }

// Apply evaluates the rule. ok is false when there are no prices or the
// result is not a positive amount.
func (r PricingRule) Apply(stats PriceStats) (float64, bool) {
	if stats.Count == 0 {
		return 0, false
	}
	v, err := r.eval(stats)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return math.Round(v*100) / 100, true
}

func (r PricingRule) eval(stats PriceStats) (float64, error) {
	p := &ruleParser{input: r.source, vars: stats.vars()}
	v, err := p.parseExpr()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPricingRule, err)
	}
	p.skipSpaces()
	if p.hasNext() {
		return 0, fmt.Errorf("%w: unexpected %q at position %d", ErrPricingRule, p.peek(), p.pos)
	}
	return v, nil
}

type ruleParser struct {
	input string
	pos   int
	vars  map[string]float64
}

func (p *ruleParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.match('+'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.match('-'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *ruleParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.match('*'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.match('/'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, errors.New("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *ruleParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if !p.match('^') {
		return base, nil
	}
	exp, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *ruleParser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.match('-') {
		v, err := p.parseUnary()
		return -v, err
	}
	p.match('+')
	return p.parseOperand()
}

func (p *ruleParser) parseOperand() (float64, error) {
	p.skipSpaces()
	switch {
	case p.match('('):
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if !p.match(')') {
			return 0, fmt.Errorf("missing ) at position %d", p.pos)
		}
		return v, nil
	case p.match('{'):
		return p.parseVariable()
	case p.hasNext() && isIdentStart(p.peek()):
		return p.parseCall()
	default:
		return p.parseNumber()
	}
}

func (p *ruleParser) parseVariable() (float64, error) {
	end := strings.IndexByte(p.input[p.pos:], '}')
	if end < 0 {
		return 0, fmt.Errorf("unterminated variable at position %d", p.pos)
	}
	name := strings.TrimSpace(p.input[p.pos : p.pos+end])
	p.pos += end + 1
	v, ok := p.vars[name]
	if !ok {
		return 0, fmt.Errorf("unknown variable {%s}", name)
	}
	return v, nil
}

func (p *ruleParser) parseCall() (float64, error) {
	start := p.pos
	for p.hasNext() && isIdentStart(p.peek()) {
		p.pos++
	}
	name := p.input[start:p.pos]

	p.skipSpaces()
	if !p.match('(') {
		return 0, fmt.Errorf("expected ( after %s", name)
	}
	var args []float64
	for {
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		p.skipSpaces()
		if p.match(',') {
			continue
		}
		if p.match(')') {
			break
		}
		return 0, fmt.Errorf("expected , or ) at position %d", p.pos)
	}

	switch name {
	case "min", "max":
		out := args[0]
		for _, a := range args[1:] {
			if (name == "min" && a < out) || (name == "max" && a > out) {
				out = a
			}
		}
		return out, nil
	case "round":
		if len(args) != 1 {
			return 0, errors.New("round takes one argument")
		}
		return math.Round(args[0]), nil
	default:
		return 0, fmt.Errorf("unknown function %s", name)
	}
}

func (p *ruleParser) parseNumber() (float64, error) {
	start := p.pos
	for p.hasNext() && (p.peek() == '.' || (p.peek() >= '0' && p.peek() <= '9')) {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	raw := p.input[start:p.pos]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return v, nil
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z'
}

func (p *ruleParser) skipSpaces() {
	for p.hasNext() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *ruleParser) hasNext() bool { return p.pos < len(p.input) }

func (p *ruleParser) peek() byte { return p.input[p.pos] }

func (p *ruleParser) match(ch byte) bool {
	if p.hasNext() && p.peek() == ch {
		p.pos++
		return true
	}
	return false
}
