package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// AdminCommand is a parsed operator command
type AdminCommand struct {
	Name string
	Args []string
	Raw  string
}

var (
	// ErrNotACommand is returned when text does not start with "/". Callers
	// route such text as a normal message.
	ErrNotACommand = errors.New("not an admin command")
	// ErrUnknownCommand is returned for a slash command nobody handles
	ErrUnknownCommand = errors.New("unknown command")
)

type commandSpec struct {
	minArgs int
	usage   string
	help    string
}

var adminCommands = map[string]commandSpec{
	"approve":   {1, "/approve <paymentId>", "approve a pending payment"},
	"reject":    {2, "/reject <paymentId> <reason>", "reject a pending payment"},
	"resume_ai": {1, "/resume_ai <phone>", "hand a chat back to the bot"},
	"assign":    {2, "/assign <handoffId> <agent>", "assign a handoff to an agent"},
	"resolve":   {1, "/resolve <handoffId> [notes]", "close a handoff"},
	"reply":     {2, "/reply <phone> <text>", "message a customer as the team"},
	"payments":  {0, "/payments", "list pending payments"},
	"handoffs":  {0, "/handoffs", "list open handoffs"},
	"stats":     {0, "/stats", "show conversation statistics"},
	"help":      {0, "/help", "show this list"},
}

var helpOrder = []string{"approve", "reject", "payments", "handoffs", "assign", "resolve", "reply", "resume_ai", "stats", "help"}

// ParseAdminCommand parses "/name args..." text
func ParseAdminCommand(text string) (*AdminCommand, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, ErrNotACommand
	}

	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command: %w", ErrValidation)
	}

	name := strings.ToLower(parts[0])
	spec, ok := adminCommands[name]
	if !ok {
		return nil, fmt.Errorf("%w /%s", ErrUnknownCommand, name)
	}
	args := parts[1:]
	if len(args) < spec.minArgs {
		return nil, fmt.Errorf("usage: %s: %w", spec.usage, ErrValidation)
	}

	return &AdminCommand{Name: name, Args: args, Raw: text}, nil
}

// AdminService executes operator commands
type AdminService struct {
	store    storage.Store
	payments *PaymentWorkflow
	handoffs *HandoffWorkflow
	now      func() time.Time
}

// NewAdminService creates an admin command handler
func NewAdminService(store storage.Store, payments *PaymentWorkflow, handoffs *HandoffWorkflow) *AdminService {
	return &AdminService{store: store, payments: payments, handoffs: handoffs, now: time.Now}
}

// HandleAdminCommand runs cmd on behalf of the operator chat and returns
// the reply for the operator. Workflows that already notify the operator
// return an empty reply.
func (a *AdminService) HandleAdminCommand(ctx context.Context, cmd *AdminCommand, chatID string) (string, error) {
	actor := NormalizePhone(chatID)
	logger.Info("Admin command", zap.String("command", cmd.Name), zap.String("by", actor))

	switch cmd.Name {
	case "approve":
		id, err := parseID(cmd.Args[0])
		if err != nil {
			return "", err
		}
		_, err = a.payments.Approve(ctx, id, actor)
		return "", err

	case "reject":
		id, err := parseID(cmd.Args[0])
		if err != nil {
			return "", err
		}
		_, err = a.payments.Reject(ctx, id, strings.Join(cmd.Args[1:], " "), actor)
		return "", err

	case "resume_ai":
		_, err := a.handoffs.Resume(ctx, ChatIDForPhone(cmd.Args[0]))
		return "", err

	case "assign":
		id, err := parseID(cmd.Args[0])
		if err != nil {
			return "", err
		}
		_, err = a.handoffs.Assign(ctx, id, strings.Join(cmd.Args[1:], " "))
		return "", err

	case "resolve":
		id, err := parseID(cmd.Args[0])
		if err != nil {
			return "", err
		}
		_, err = a.handoffs.Resolve(ctx, id, strings.Join(cmd.Args[1:], " "))
		return "", err

	case "reply":
		if err := a.handoffs.ForwardToCustomer(ctx, cmd.Args[0], strings.Join(cmd.Args[1:], " ")); err != nil {
			return "", err
		}
		return "📤 Sent to " + NormalizePhone(cmd.Args[0]), nil

	case "payments":
		return a.listPayments(ctx)

	case "handoffs":
		return a.listHandoffs(ctx)

	case "stats":
		return a.stats(ctx)

	case "help":
		return adminHelp(), nil

	default:
		return "", fmt.Errorf("%w /%s", ErrUnknownCommand, cmd.Name)
	}
}

// AdminErrorReply formats a command failure for the operator
func AdminErrorReply(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "❓ " + err.Error() + ". Send /help for the command list."
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState), errors.Is(err, ErrValidation):
		return "❌ " + err.Error()
	default:
		return "❌ Command failed: " + err.Error()
	}
}

func (a *AdminService) listPayments(ctx context.Context) (string, error) {
	payments, err := a.payments.ListPending(ctx)
	if err != nil {
		return "", err
	}
	if len(payments) == 0 {
		return "No pending payments.", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Pending payments (%d):\n", len(payments))
	for _, p := range payments {
		fmt.Fprintf(&sb, "\n#%d %s", p.ID, p.Phone)
		if p.ServiceID != "" {
			fmt.Fprintf(&sb, " · %s", p.ServiceID)
		}
		if p.Amount != nil {
			fmt.Fprintf(&sb, " · %s %.0f", p.Currency, *p.Amount)
		}
		fmt.Fprintf(&sb, " · %s", p.CreatedAt.Format("02 Jan 15:04"))
	}
	return sb.String(), nil
}

func (a *AdminService) listHandoffs(ctx context.Context) (string, error) {
	handoffs, err := a.handoffs.ListOpen(ctx)
	if err != nil {
		return "", err
	}
	if len(handoffs) == 0 {
		return "No open handoffs.", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🙋 Open handoffs (%d):\n", len(handoffs))
	for _, h := range handoffs {
		name := h.CustomerName
		if name == "" {
			name = h.Phone
		}
		fmt.Fprintf(&sb, "\n#%d %s (%s) · %s · %s", h.ID, name, h.Phone, h.Priority, h.Status)
		if h.AssignedTo != "" {
			fmt.Fprintf(&sb, " · %s", h.AssignedTo)
		}
	}
	return sb.String(), nil
}

func (a *AdminService) stats(ctx context.Context) (string, error) {
	s, err := a.store.GetStats(ctx, a.now())
	if err != nil {
		return "", err
	}
	return formatStats(s), nil
}

func formatStats(s *models.Stats) string {
	return fmt.Sprintf("📊 Stats\n\nConversations: %d (%d new today)\nActive: %d · With team: %d\nMessages: %d (%d today)\nPayments pending: %d · approved: %d\nOpen handoffs: %d",
		s.Conversations, s.NewConversations24,
		s.ActiveChats, s.HandoffChats,
		s.Messages, s.MessagesLast24h,
		s.PendingPayments, s.ApprovedPayments,
		s.OpenHandoffs)
}

func adminHelp() string {
	var sb strings.Builder
	sb.WriteString("🛠 Admin commands:\n")
	for _, name := range helpOrder {
		spec := adminCommands[name]
		fmt.Fprintf(&sb, "\n%s - %s", spec.usage, spec.help)
	}
	return sb.String()
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q: %w", s, ErrValidation)
	}
	return uint(id), nil
}
