// Package rules cleans up spoken ingredient lists before they are handed to
// recipe generation.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

//go:embed defaults.rules
var defaultRules string

const defaultLoopLimit = 30

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser parses one line into a compiled rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (compiledRule, error)
}

// Options configures an Engine.
type Options struct {
	// Path is an optional user rules file; a missing file is not an error.
	Path      string
	LoopLimit int
	// Defaults loads the built-in ingredient vocabulary ahead of the user rules.
	Defaults bool
	Parsers  []RuleParser
}

// Engine applies deterministic substitutions and tidies the ingredient list.
type Engine struct {
	rules     []compiledRule
	loopLimit int
}

// NewEngine loads the built-in rules followed by the rules file at path.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	return New(Options{Path: path, LoopLimit: loopLimit, Defaults: true})
}

// NewEngineWithParsers allows parser extension without engine changes. Only
// the rules file is loaded.
func NewEngineWithParsers(path string, loopLimit int, parsers []RuleParser) (*Engine, error) {
	return New(Options{Path: path, LoopLimit: loopLimit, Parsers: parsers})
}

func New(opts Options) (*Engine, error) {
	if opts.LoopLimit <= 0 {
		opts.LoopLimit = defaultLoopLimit
	}
	if len(opts.Parsers) == 0 {
		opts.Parsers = defaultRuleParsers()
	}

	engine := &Engine{loopLimit: opts.LoopLimit}

	if opts.Defaults {
		rules, err := parseRules(defaultRules, opts.Parsers)
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in rules: %w", err)
		}
		engine.rules = append(engine.rules, rules...)
	}

	if strings.TrimSpace(opts.Path) == "" {
		return engine, nil
	}

	contents, err := os.ReadFile(opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", opts.Path, err)
	}

	rules, err := parseRules(string(contents), opts.Parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", opts.Path, err)
	}
	engine.rules = append(engine.rules, rules...)
	return engine, nil
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int { return len(e.rules) }

// Apply runs every rule until the text is stable or the loop limit is hit,
// then tidies list punctuation.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	return tidyList(result), nil
}

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	spaceBefore   = regexp.MustCompile(`\s+([,;])`)
	repeatedComma = regexp.MustCompile(`,(\s*,)+`)
)

// tidyList collapses whitespace, drops empty list items and the sentence
// punctuation speech-to-text tends to append.
func tidyList(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	text = spaceBefore.ReplaceAllString(text, "$1")
	text = repeatedComma.ReplaceAllString(text, ",")
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, ".!?,; ")
	text = strings.TrimLeft(text, ",; ")
	return text
}
