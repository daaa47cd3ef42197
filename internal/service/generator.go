package service

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"tempiemail/backend/internal/domain"
)

// 地址生成模式
const (
	PatternAdjectiveNoun   = "adjective-noun"
	PatternColorAnimal     = "color-animal"
	PatternNumberAdjective = "number-adjective"
	PatternRandom          = "random"
	PatternTimestamp       = "timestamp"
	PatternMixed           = "mixed"
)

// Patterns 可选的生成模式
var Patterns = []string{
	PatternAdjectiveNoun,
	PatternColorAnimal,
	PatternNumberAdjective,
	PatternRandom,
	PatternTimestamp,
	PatternMixed,
}

// mixedMaxLength mixed 模式本地部分的最大长度
const mixedMaxLength = 20

const base36 = "abcdefghijklmnopqrstuvwxyz0123456789"

var (
	adjectives = []string{
		"quick", "fast", "instant", "rapid", "swift", "speedy", "hasty", "brisk",
		"temporary", "disposable", "throwaway", "ephemeral", "random", "unique",
		"special", "custom", "personal", "private", "secure", "safe", "clean",
		"fresh", "new", "modern", "smart", "clever", "bright", "calm",
	}
	nouns = []string{
		"mail", "email", "message", "letter", "note", "box", "inbox", "folder",
		"holder", "receiver", "user", "person", "account", "profile", "identity",
		"service", "system", "platform", "tool", "helper", "time", "moment",
		"period", "session",
	}
	colors = []string{
		"red", "blue", "green", "yellow", "purple", "orange", "pink", "brown",
		"black", "white", "gray", "silver", "gold", "navy", "teal", "lime",
		"coral", "indigo", "violet", "maroon", "olive", "cyan", "magenta",
	}
	animals = []string{
		"cat", "dog", "bird", "fish", "rabbit", "hamster", "mouse", "lion",
		"tiger", "bear", "wolf", "fox", "deer", "elephant", "giraffe", "owl",
		"penguin", "dolphin", "whale", "shark", "octopus", "butterfly", "bee",
	}
	numbers = []string{
		"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
		"first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth",
	}
)

// GeneratorStats 生成器词表统计
type GeneratorStats struct {
	TotalDomains    int `json:"totalDomains"`
	TotalAdjectives int `json:"totalAdjectives"`
	TotalNouns      int `json:"totalNouns"`
	TotalColors     int `json:"totalColors"`
	TotalAnimals    int `json:"totalAnimals"`
	TotalNumbers    int `json:"totalNumbers"`
}

// Generator 生成候选地址，并维护可用域名列表。
type Generator struct {
	mu      sync.RWMutex
	domains []string
	now     func() time.Time
}

// NewGenerator 创建地址生成器
func NewGenerator(domains []string) (*Generator, error) {
	g := &Generator{now: time.Now}
	for _, d := range domains {
		if err := g.AddDomain(d); err != nil {
			return nil, fmt.Errorf("domain %q: %w", d, err)
		}
	}
	if len(g.domains) == 0 {
		return nil, fmt.Errorf("no domains configured: %w", domain.ErrInvalid)
	}
	return g, nil
}

// Generate 按模式生成一个候选地址，未知或空模式使用默认的随机加时间戳格式
func (g *Generator) Generate(pattern string) string {
	return g.localPart(pattern) + "@" + g.pickDomain()
}

func (g *Generator) localPart(pattern string) string {
	switch strings.ToLower(strings.TrimSpace(pattern)) {
	case PatternAdjectiveNoun:
		return pick(adjectives) + "-" + pick(nouns) + suffix()
	case PatternColorAnimal:
		return pick(colors) + "-" + pick(animals) + suffix()
	case PatternNumberAdjective:
		return pick(numbers) + "-" + pick(adjectives) + suffix()
	case PatternRandom:
		return randomString(8 + rand.IntN(5))
	case PatternTimestamp:
		return "temp" + g.timestamp() + randomString(4)
	case PatternMixed:
		parts := []func() string{
			func() string { return pick(adjectives) + pick(nouns) + suffix() },
			func() string { return pick(colors) + pick(animals) + suffix() },
			func() string { return randomString(8 + rand.IntN(5)) },
		}
		mixed := pick(parts)() + pick(parts)()
		if len(mixed) > mixedMaxLength {
			mixed = mixed[:mixedMaxLength]
		}
		return mixed
	default:
		return randomString(11) + g.timestamp()
	}
}

func (g *Generator) timestamp() string {
	return strconv.FormatInt(g.now().UnixMilli(), 36)
}

func (g *Generator) pickDomain() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return pick(g.domains)
}

// Domains 返回可用域名
func (g *Generator) Domains() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.domains)
}

// AddDomain 添加可用域名，重复添加无副作用
func (g *Generator) AddDomain(name string) error {
	normalized, err := domain.ValidateDomain(name)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.domains, normalized) {
		g.domains = append(g.domains, normalized)
	}
	return nil
}

// RemoveDomain 移除可用域名，不允许移除最后一个
func (g *Generator) RemoveDomain(name string) error {
	normalized := strings.ToLower(strings.TrimSpace(name))

	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.Index(g.domains, normalized)
	if idx < 0 {
		return fmt.Errorf("domain %s: %w", normalized, domain.ErrNotFound)
	}
	if len(g.domains) == 1 {
		return fmt.Errorf("cannot remove the last domain: %w", domain.ErrInvalid)
	}
	g.domains = slices.Delete(g.domains, idx, idx+1)
	return nil
}

// Stats 返回词表统计
func (g *Generator) Stats() GeneratorStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GeneratorStats{
		TotalDomains:    len(g.domains),
		TotalAdjectives: len(adjectives),
		TotalNouns:      len(nouns),
		TotalColors:     len(colors),
		TotalAnimals:    len(animals),
		TotalNumbers:    len(numbers),
	}
}

func pick[T any](items []T) T {
	return items[rand.IntN(len(items))]
}

// suffix 1 到 999 的随机数字后缀
func suffix() string {
	return strconv.Itoa(rand.IntN(999) + 1)
}

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return string(b)
}
