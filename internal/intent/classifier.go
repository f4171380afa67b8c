package intent

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Classifier assigns intents using a Registry. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	registry *Registry
}

// NewClassifier creates a classifier over a compiled registry
func NewClassifier(registry *Registry) *Classifier {
	return &Classifier{registry: registry}
}

type candidate struct {
	intent     Intent
	confidence float64
}

// Classify returns the intent, confidence and metadata for a message.
// Identical input always yields identical output.
func (c *Classifier) Classify(text string, ctx Context) Result {
	if ctx.HasAttachment {
		return Result{
			Intent:     PaymentConfirmation,
			Confidence: AttachmentConfidence,
			Metadata:   Metadata{HasMedia: true},
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	matched := c.matchIntents(normalized)

	result := Result{Intent: GeneralChat, Confidence: NoMatchConfidence}
	if len(matched) > 0 {
		candidates := make([]candidate, 0, len(matched))
		for _, in := range matched {
			candidates = append(candidates, candidate{intent: in, confidence: confidenceFor(in, normalized)})
		}
		// matched is already in enumeration order, so a stable sort keeps
		// the earlier intent on ties.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].confidence > candidates[j].confidence
		})
		result.Intent = candidates[0].intent
		result.Confidence = candidates[0].confidence
	}

	if id, name, ok := c.registry.matchService(normalized); ok {
		result.Metadata.ServiceID = id
		result.Metadata.ServiceName = name
		if result.Intent == GeneralChat {
			result.Intent = ServiceInquiry
			result.Confidence = ServiceNameConfidence
		}
	}

	if result.Intent == Frustration {
		result.Intent = HumanRequest
		result.Confidence = FrustrationConfidence
		result.Metadata.Frustrated = true
	}

	return result
}

// matchIntents returns every intent with at least one matching pattern, in
// enumeration order. Remaining patterns of an intent are skipped after the
// first hit.
func (c *Classifier) matchIntents(normalized string) []Intent {
	var matched []Intent
	var last Intent
	hit := false
	for _, m := range c.registry.matchers {
		if m.intent != last {
			last = m.intent
			hit = false
		}
		if hit {
			continue
		}
		if m.pattern.MatchString(normalized) {
			matched = append(matched, m.intent)
			hit = true
		}
	}
	return matched
}

func confidenceFor(in Intent, normalized string) float64 {
	length := utf8.RuneCountInString(normalized)
	switch in {
	case Greeting:
		if length < shortGreetingMaxLen {
			return ShortGreetingConfidence
		}
		return BaseConfidence
	case HumanRequest:
		return HumanRequestConfidence
	case Frustration:
		return FrustrationConfidence
	case PaymentConfirmation:
		return PaymentConfirmConfidence
	case ServiceInquiry:
		if length > longServiceMinLen {
			return LongServiceConfidence
		}
		return BaseConfidence
	default:
		return BaseConfidence
	}
}
