package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/storage"
)

// Subscriptions is the subscriber store used by bot commands.
type Subscriptions interface {
	UpsertUser(telegramID int64, username string) (models.User, error)
	AddTrackedSymbol(telegramID int64, instrument string) error
	RemoveTrackedSymbol(telegramID int64, instrument string) error
	TrackedSymbols(telegramID int64) ([]string, error)
	Status(telegramID int64) (models.UserStatus, error)
}

// Analyzer runs an on-demand analysis that leaves the baseline untouched.
type Analyzer interface {
	Peek(ctx context.Context, instrument string) models.RiskAssessment
}

// Commands turns bot commands into MarkdownV2 replies.
type Commands struct {
	subs     Subscriptions
	analyzer Analyzer
}

func NewCommands(subs Subscriptions, analyzer Analyzer) *Commands {
	return &Commands{subs: subs, analyzer: analyzer}
}

const helpText = "📖 *Commands*\n\n" +
	"/track SYMBOL \\- start tracking an instrument, e\\.g\\. `/track BTC`\n" +
	"/untrack SYMBOL \\- stop tracking an instrument\n" +
	"/list \\- show tracked instruments\n" +
	"/status \\- show your plan and free slots\n" +
	"/status SYMBOL \\- analyze an instrument now\n" +
	"/help \\- show this message\n\n" +
	"Plans: free tracks 1 instrument, basic 5, pro unlimited\\."

// Reply handles one command from a user and returns the reply text.
func (c *Commands) Reply(ctx context.Context, userID int64, username, command, args string) string {
	args = strings.TrimSpace(args)
	switch command {
	case "start":
		return c.start(userID, username)
	case "help":
		return helpText
	case "ping":
		return "Pong"
	case "track":
		return c.track(userID, username, args)
	case "untrack":
		return c.untrack(userID, args)
	case "list":
		return c.list(userID)
	case "status":
		if args != "" {
			return c.analyze(ctx, args)
		}
		return c.status(userID)
	default:
		return "❓ Unknown command\\. Send /help for the list of commands\\."
	}
}

func (c *Commands) start(userID int64, username string) string {
	u, err := c.subs.UpsertUser(userID, username)
	if err != nil {
		return internalError("start", err)
	}
	name := username
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("👋 Hi %s\\!\n\nYou are on the *%s* plan\\. I watch order books, candles and trades "+
		"for signs of market makers pulling liquidity and send you an alert when risk rises\\.\n\n%s",
		escapeMarkdownV2(name), escapeMarkdownV2(string(u.Tier)), helpText)
}

func (c *Commands) track(userID int64, username, args string) string {
	if args == "" {
		return "❌ Please give a symbol\\.\n\nExample: `/track BTC/USDT`"
	}
	inst := models.NormalizeInstrument(args)
	if err := models.ValidateInstrument(inst); err != nil {
		return "❌ " + escapeMarkdownV2(err.Error())
	}
	if _, err := c.subs.UpsertUser(userID, username); err != nil {
		return internalError("track", err)
	}

	err := c.subs.AddTrackedSymbol(userID, inst)
	switch {
	case err == nil:
		return fmt.Sprintf("✅ Now tracking *%s*\\. You will get alerts when risk rises\\.", escapeMarkdownV2(inst))
	case errors.Is(err, storage.ErrAlreadyTracked):
		return fmt.Sprintf("ℹ️ You already track *%s*\\.", escapeMarkdownV2(inst))
	case errors.Is(err, storage.ErrTrackLimit):
		return fmt.Sprintf("❌ Cannot add *%s*: your plan limit is reached\\. Send /status for details\\.", escapeMarkdownV2(inst))
	default:
		return internalError("track", err)
	}
}

func (c *Commands) untrack(userID int64, args string) string {
	if args == "" {
		return "❌ Please give a symbol\\.\n\nExample: `/untrack BTC/USDT`"
	}
	inst := models.NormalizeInstrument(args)
	err := c.subs.RemoveTrackedSymbol(userID, inst)
	switch {
	case err == nil:
		return fmt.Sprintf("✅ Removed *%s* from your list\\.", escapeMarkdownV2(inst))
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Sprintf("❌ You are not tracking *%s*\\.", escapeMarkdownV2(inst))
	default:
		return internalError("untrack", err)
	}
}

func (c *Commands) list(userID int64) string {
	symbols, err := c.subs.TrackedSymbols(userID)
	if err != nil {
		return internalError("list", err)
	}
	if len(symbols) == 0 {
		return "📋 You are not tracking anything yet\\. Try `/track BTC`\\."
	}
	var b strings.Builder
	b.WriteString("📋 *Tracked instruments*\n\n")
	for i, s := range symbols {
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdownV2(s))
	}
	return b.String()
}

func (c *Commands) status(userID int64) string {
	st, err := c.subs.Status(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "❌ You are not registered yet\\. Send /start to begin\\!"
	}
	if err != nil {
		return internalError("status", err)
	}

	limit, slots := "unlimited", "unlimited"
	if st.Limit != models.Unlimited {
		limit = fmt.Sprintf("%d", st.Limit)
		slots = fmt.Sprintf("%d", st.SlotsAvailable())
	}
	msg := fmt.Sprintf("👤 *Account*\n\nPlan: *%s*\nTracked: %d / %s\nSlots available: %s",
		escapeMarkdownV2(string(st.User.Tier)), st.Tracked, limit, slots)
	if !st.User.ExpiresAt.IsZero() {
		msg += "\nExpires: " + escapeMarkdownV2(st.User.ExpiresAt.Format("2006-01-02 15:04"))
	}
	return msg
}

func (c *Commands) analyze(ctx context.Context, args string) string {
	if c.analyzer == nil {
		return "❌ Analysis is not available\\."
	}
	inst := models.NormalizeInstrument(args)
	if err := models.ValidateInstrument(inst); err != nil {
		return "❌ " + escapeMarkdownV2(err.Error())
	}
	return FormatAlert(c.analyzer.Peek(ctx, inst))
}

func internalError(command string, err error) string {
	logger.Error("Command /%s failed: %v", command, err)
	return "❌ Something went wrong, please try again later\\."
}
