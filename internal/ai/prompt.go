package ai

import (
	"fmt"
	"strings"

	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

// SystemPrompt describes the business to the model from the catalog
func SystemPrompt(cat *catalog.Catalog) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are the WhatsApp assistant for %s.\n", cat.Business.Name)
	sb.WriteString("Reply in the customer's language (English or Roman Urdu), in at most three short sentences.\n")
	sb.WriteString("Only quote prices and timelines listed below. If you do not know, offer to connect the customer with the team.\n")
	if cat.Business.Hours != "" {
		fmt.Fprintf(&sb, "Team hours: %s.\n", cat.Business.Hours)
	}

	sb.WriteString("\nServices:\n")
	for _, s := range cat.Services {
		fmt.Fprintf(&sb, "- %s: %s %d, %d days. %s\n", s.Name, cat.Business.Currency, s.Price, s.DeliveryDays, s.Description)
	}

	if len(cat.FAQs) > 0 {
		sb.WriteString("\nFrequently asked:\n")
		for _, f := range cat.FAQs {
			fmt.Fprintf(&sb, "- %s\n", f.Answer)
		}
	}

	return strings.TrimSpace(sb.String())
}

// HistoryMessages maps stored chat history to prompt turns. Customer
// messages become user turns; bot and human replies become assistant turns.
// System notes are dropped.
func HistoryMessages(history []*models.Message) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Body) == "" {
			continue
		}
		switch m.Sender {
		case models.SenderCustomer:
			out = append(out, Message{Role: RoleUser, Content: m.Body})
		case models.SenderBot, models.SenderHuman:
			out = append(out, Message{Role: RoleAssistant, Content: m.Body})
		}
	}
	return out
}
