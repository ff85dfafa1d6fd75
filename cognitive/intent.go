package cognitive

import (
	"context"
	"maps"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/rare/core"
)

// IntentClassifier derives an intent from an input.
type IntentClassifier interface {
	Classify(ctx context.Context, input core.Input) (core.Intent, error)
}

// IntentClassifierFunc adapts a function to IntentClassifier.
type IntentClassifierFunc func(ctx context.Context, input core.Input) (core.Intent, error)

// Classify implements IntentClassifier.
func (f IntentClassifierFunc) Classify(ctx context.Context, input core.Input) (core.Intent, error) {
	return f(ctx, input)
}

// IntentRule maps a pattern over normalized text to an intent type.
type IntentRule struct {
	Intent     string
	Pattern    *regexp.Regexp
	Confidence float64
}

// DefaultIntentRules returns the built-in rules in evaluation order. Vault
// access is checked first so that security requests are never misrouted.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{core.IntentVaultAccess, regexp.MustCompile(`خزنة|خزنه|\bvault\b|passwords?|كلمة السر|كلمات السر|كلمة المرور`), 0.95},
		{core.IntentBuildApp, regexp.MustCompile(`(ابني|ابن|بناء|انشئ|اصنع|سوي|\bbuild\b|\bcreate\b|\bmake\b).{0,30}(تطبيق|\bapp\b|application|موقع|website)`), 0.9},
		{core.IntentPayment, regexp.MustCompile(`ادفع|دفع|فاتورة|\bpay\b|payment|invoice|\btransfer money\b`), 0.85},
		{core.IntentTranslate, regexp.MustCompile(`ترجم|ترجمة|translat`), 0.85},
		{core.IntentOCR, regexp.MustCompile(`\bocr\b|extract text|scan (this|the)? ?(document|page|receipt)|استخرج النص|امسح المستند`), 0.85},
		{core.IntentFileOperation, regexp.MustCompile(`ملف|ملفات|مجلد|مستند|\bfiles?\b|\bfolders?\b|\bdocuments?\b`), 0.8},
		{core.IntentVoiceCommand, regexp.MustCompile(`صوت|تكلم|اسمعني|\bvoice\b|\bspeak\b|\blisten\b`), 0.8},
		{core.IntentWeather, regexp.MustCompile(`طقس|حرارة|مطر|\bweather\b|temperature|\brain\b|forecast`), 0.85},
		{core.IntentMaps, regexp.MustCompile(`خريطة|خريطه|اتجاهات|\bmaps?\b|navigate|directions|\broute\b`), 0.8},
	}
}

// DefaultIntentCacheSize bounds the classification cache.
const DefaultIntentCacheSize = 512

// IntentOptions configures a PatternIntentClassifier.
type IntentOptions struct {
	// Rules are evaluated in order; the first match wins.
	Rules []IntentRule

	// CacheSize bounds the LRU of normalized text to intent. Zero disables it.
	CacheSize int
}

// PatternIntentClassifier matches normalized text against ordered rules.
// Unmatched text is chat with confidence 0.5. It is safe for concurrent use.
type PatternIntentClassifier struct {
	rules []IntentRule
	cache *lru.Cache[string, core.Intent]
}

// NewPatternIntentClassifier builds a classifier with the default rules and
// cache size unless overridden.
func NewPatternIntentClassifier(optFns ...func(o *IntentOptions)) *PatternIntentClassifier {
	opts := IntentOptions{
		Rules:     DefaultIntentRules(),
		CacheSize: DefaultIntentCacheSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &PatternIntentClassifier{rules: opts.Rules}
	if opts.CacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		c.cache, _ = lru.New[string, core.Intent](opts.CacheSize)
	}
	return c
}

// Classify implements IntentClassifier.
func (c *PatternIntentClassifier) Classify(ctx context.Context, input core.Input) (core.Intent, error) {
	if err := ctx.Err(); err != nil {
		return core.Intent{}, err
	}

	text := Normalize(input.Text)
	if c.cache != nil {
		if intent, ok := c.cache.Get(text); ok {
			return cloneIntent(intent), nil
		}
	}

	intent := c.match(text)
	if c.cache != nil {
		c.cache.Add(text, cloneIntent(intent))
	}
	return intent, nil
}

func (c *PatternIntentClassifier) match(text string) core.Intent {
	for _, r := range c.rules {
		if r.Pattern == nil {
			continue
		}
		if m := r.Pattern.FindString(text); m != "" {
			return core.Intent{
				Type:       r.Intent,
				Confidence: r.Confidence,
				Parameters: map[string]any{"matched": m},
			}
		}
	}
	return core.ChatIntent()
}

func cloneIntent(i core.Intent) core.Intent {
	i.Parameters = maps.Clone(i.Parameters)
	return i
}
