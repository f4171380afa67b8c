package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
)

// staticPatterns are the hand-written expressions per intent. They are
// matched against trimmed, lowercased text.
var staticPatterns = map[Intent][]string{
	Greeting: {
		`^(hi+|hello+|hey+|helo|hiya|aoa|salam|salaam|assalam|asalam)\b`,
		`\b(assalam[uo]? ?o? ?alaikum|as-?salamu alaikum|good (morning|afternoon|evening))\b`,
	},
	ServiceInquiry: {
		`\b(services?|offerings?|portfolio)\b`,
		`\bwhat (do|can) you (do|offer|make|provide)\b`,
		`\bdo you (make|build|design|provide|offer|do)\b`,
		`\b(kya kaam|kya karte|kya services)\b`,
	},
	PricingInquiry: {
		`\b(price|prices|pricing|cost|costs|rate|rates|charges?|fees?|quotation|quote)\b`,
		`\b(how much|kitna|kitne|kitni|qeemat|keemat)\b`,
	},
	OrderRequest: {
		`\b(order|buy|purchase|hire you|get started)\b`,
		`\bi want to (order|buy|get|start)\b`,
		`\b(lena hai|karwana hai|banwana hai|chahiye)\b`,
	},
	PaymentInquiry: {
		`\bhow (can|do|should) i pay\b`,
		`\b(payment (methods?|options?|details)|account (number|details)|bank details|iban)\b`,
		`\b(jazz ?cash|easy ?paisa|bank transfer)\b`,
	},
	PaymentConfirmation: {
		`\b(paid|transferred|i have paid|i've paid)\b`,
		`\bpayment (done|sent|completed|kar di|ho gayi|bhej di)\b`,
		`\bsent (the )?(money|payment|amount)\b`,
		`\b(screenshot|receipt)\b`,
	},
	HumanRequest: {
		`\b(speak|talk|chat) (to|with) (a |an |the |your )?(human|person|someone|team|owner)\b`,
	},
	Frustration: {
		`\b(frustrated|fed up|annoyed|tang aa gaya)\b`,
	},
	Confirmation: {
		`^(yes|yeah|yep|yup|ya|haan|han|ji|jee|ji haan|ok|okay|okk|sure|confirm|confirmed|done|theek hai|thik hai|zaroor|bilkul|go ahead|proceed)(\s+(please|pls|ji|sure|go ahead))?[\s!.]*$`,
		`^(👍|✅)+$`,
	},
	Rejection: {
		`^(no|nope|nah|nahi|nahin|not now|no thanks|no thank you|cancel|rehne do|later)\b`,
	},
	FAQ: {
		`\b(delivery|refund|revisions?|timeline|office|address|location|timing|working hours|guarantee)\b`,
		`\b(how long|kitne din|kab tak)\b`,
	},
	OutOfScope: {
		`\b(weather|cricket|politics?|election|recipe|movie|song|lottery|loan|visa|naukri)\b`,
	},
	GeneralChat: {
		`\b(thanks|thank you|shukriya|jazakallah|how are you|kaise ho|kya haal)\b`,
	},
}

type matcher struct {
	intent  Intent
	pattern *regexp.Regexp
}

type serviceMatcher struct {
	id      string
	name    string
	pattern *regexp.Regexp
}

// Registry is the compiled matcher table. It is built once from the
// catalog and is read-only afterwards.
type Registry struct {
	matchers []matcher
	services []serviceMatcher
}

// NewRegistry compiles the static patterns together with the catalog's
// handoff and frustration wordlists and its service names.
func NewRegistry(cat *catalog.Catalog) (*Registry, error) {
	dynamic := map[Intent][]string{
		HumanRequest: cat.HumanHandoffTriggers,
		Frustration:  cat.FrustrationIndicators,
	}

	r := &Registry{}
	for _, in := range Order {
		for _, expr := range staticPatterns[in] {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("intent %s: %w", in, err)
			}
			r.matchers = append(r.matchers, matcher{intent: in, pattern: re})
		}
		for _, phrase := range dynamic[in] {
			re, ok := wholeWord(phrase)
			if !ok {
				continue
			}
			r.matchers = append(r.matchers, matcher{intent: in, pattern: re})
		}
	}

	for _, svc := range cat.Services {
		for _, name := range svc.Names() {
			re, ok := wholeWord(name)
			if !ok {
				continue
			}
			r.services = append(r.services, serviceMatcher{id: svc.ID, name: svc.Name, pattern: re})
		}
	}

	return r, nil
}

// MustRegistry is NewRegistry for catalogs known to be valid
func MustRegistry(cat *catalog.Catalog) *Registry {
	r, err := NewRegistry(cat)
	if err != nil {
		panic(err)
	}
	return r
}

func wholeWord(phrase string) (*regexp.Regexp, bool) {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil, false
	}
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`), true
}

// matchService returns the first catalog service named in text
func (r *Registry) matchService(text string) (id, name string, ok bool) {
	for _, s := range r.services {
		if s.pattern.MatchString(text) {
			return s.id, s.name, true
		}
	}
	return "", "", false
}
