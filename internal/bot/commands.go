package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"anime-notifier/internal/anilist"
	"anime-notifier/internal/models"
	"anime-notifier/internal/notify"
	"anime-notifier/internal/service"
	"anime-notifier/internal/timeutil"
)

const (
	commandTimeout = 30 * time.Second
	checkTimeout   = 10 * time.Minute
)

// ShowSearcher finds shows by title.
type ShowSearcher interface {
	SearchShows(ctx context.Context, query string) ([]anilist.SearchResult, error)
}

// Request is the part of an incoming command the handlers need.
type Request struct {
	UserID string
	// ChatID is where the command was sent; equal to UserID in a private chat.
	ChatID string
	Args   []string
}

func (r Request) private() bool {
	return r.ChatID == "" || r.ChatID == r.UserID
}

// target is the delivery target implied by where the command was sent.
func (r Request) target() string {
	if r.private() {
		return ""
	}
	return r.ChatID
}

// Commands implements the bot's chat commands on top of the watchlist and
// the reconciler.
type Commands struct {
	watchlist *service.Watchlist
	runner    service.PassRunner
	searcher  ShowSearcher
	notifier  service.Notifier
	adminID   string
	now       timeutil.Clock
	logger    *zap.Logger
}

// NewCommands creates a new Commands. adminChatID 0 disables /check.
func NewCommands(watchlist *service.Watchlist, runner service.PassRunner, searcher ShowSearcher, notifier service.Notifier, adminChatID int64, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}
	var adminID string
	if adminChatID != 0 {
		adminID = strconv.FormatInt(adminChatID, 10)
	}
	return &Commands{
		watchlist: watchlist,
		runner:    runner,
		searcher:  searcher,
		notifier:  notifier,
		adminID:   adminID,
		now:       timeutil.Now,
		logger:    logger,
	}
}

// Register binds every command to b.
func (c *Commands) Register(b *tele.Bot) {
	routes := map[string]func(context.Context, Request) string{
		"/start":      c.Help,
		"/help":       c.Help,
		"/add":        c.Add,
		"/remove":     c.Remove,
		"/list":       c.List,
		"/next":       c.Next,
		"/setchannel": c.SetChannel,
		"/testnotify": c.TestNotify,
	}
	for endpoint, fn := range routes {
		b.Handle(endpoint, c.wrap(endpoint, commandTimeout, fn))
	}
	b.Handle("/check", c.wrap("/check", checkTimeout, c.Check))
}

func (c *Commands) wrap(endpoint string, timeout time.Duration, fn func(context.Context, Request) string) tele.HandlerFunc {
	return func(tc tele.Context) error {
		if tc.Sender() == nil {
			return nil
		}
		req := Request{
			UserID: strconv.FormatInt(tc.Sender().ID, 10),
			Args:   tc.Args(),
		}
		if tc.Chat() != nil {
			req.ChatID = strconv.FormatInt(tc.Chat().ID, 10)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		c.logger.Debug("bot command",
			zap.String("command", endpoint),
			zap.String("user_id", req.UserID),
			zap.String("chat_id", req.ChatID),
		)
		return tc.Send(fn(ctx, req), tele.ModeHTML, tele.NoPreview)
	}
}

// Help lists the available commands.
func (c *Commands) Help(context.Context, Request) string {
	return strings.Join([]string{
		"🤖 <b>Anime Notifier Bot - Commands</b>",
		"",
		"/add &lt;anime id or name&gt; - Add an anime to your watchlist (notifications go to this chat)",
		"/list - View your watchlist",
		"/remove &lt;anime id or name&gt; - Remove an anime from your watchlist",
		"/next &lt;anime id or name&gt; - Check when the next episode airs",
		"/setchannel - Send all your notifications to this chat",
		"/check - Check for new episodes now (admin)",
		"/testnotify - Send a test notification to this chat",
		"/help - Show this help message",
		"",
		"You will receive automatic notifications when new episodes are released!",
	}, "\n")
}

// Add puts a show on the sender's watchlist.
func (c *Commands) Add(ctx context.Context, req Request) string {
	if len(req.Args) == 0 {
		return "❌ Please provide an anime id or name. Example: <code>/add Frieren</code>"
	}
	showID, err := c.resolveShow(ctx, req.Args)
	if err != nil {
		return c.failure("add", err)
	}

	entry, err := c.watchlist.Add(ctx, req.UserID, showID, req.target())
	if errors.Is(err, models.ErrConflict) {
		return "ℹ️ This anime is already in your watchlist!"
	}
	if err != nil {
		return c.failure("add", err)
	}

	where := "by direct message"
	if entry.HasTarget() {
		where = "in this chat"
	}
	return fmt.Sprintf("✅ Added <b>%s</b> to your watchlist. Notifications will be sent %s.",
		html.EscapeString(entry.ShowTitle), where)
}

// Remove takes a show off the sender's watchlist.
func (c *Commands) Remove(ctx context.Context, req Request) string {
	if len(req.Args) == 0 {
		return "❌ Please provide an anime id or name. Example: <code>/remove Frieren</code>"
	}
	showID, err := c.resolveShow(ctx, req.Args)
	if err != nil {
		return c.failure("remove", err)
	}

	if err := c.watchlist.Remove(ctx, req.UserID, showID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "❌ This anime is not in your watchlist."
		}
		return c.failure("remove", err)
	}
	return fmt.Sprintf("✅ Removed anime %d from your watchlist.", showID)
}

// List shows the sender's watchlist.
func (c *Commands) List(ctx context.Context, req Request) string {
	views, err := c.watchlist.List(ctx, req.UserID)
	if err != nil {
		return c.failure("list", err)
	}
	if len(views) == 0 {
		return "📝 Your watchlist is empty. Add anime with <code>/add &lt;anime name&gt;</code>"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📺 <b>Your Watchlist</b> (%d)\n", len(views))
	for i, v := range views {
		title := v.Entry.ShowTitle
		if title == "" {
			title = fmt.Sprintf("Anime %d", v.Entry.ShowID)
		}
		fmt.Fprintf(&sb, "\n%d. <b>%s</b>\n   ID: %d | Last notified: %d",
			i+1, html.EscapeString(title), v.Entry.ShowID, v.Entry.LastNotifiedEpisode)
		if v.Schedule.HasNextEpisode() {
			fmt.Fprintf(&sb, " | Next: Ep %d %s",
				*v.Schedule.NextEpisodeNumber, notify.FormatUntil(v.Schedule.NextAiringTime().Sub(c.now())))
		}
	}
	return sb.String()
}

// Next shows when a show's next episode airs.
func (c *Commands) Next(ctx context.Context, req Request) string {
	if len(req.Args) == 0 {
		return "❌ Please provide an anime id or name. Example: <code>/next Frieren</code>"
	}
	showID, err := c.resolveShow(ctx, req.Args)
	if err != nil {
		return c.failure("next", err)
	}
	snap, err := c.watchlist.Schedule(ctx, showID)
	if err != nil {
		return c.failure("next", err)
	}
	return notify.FormatSchedule(snap, c.now())
}

// SetChannel routes all of the sender's notifications to the current chat,
// or back to direct messages when sent privately.
func (c *Commands) SetChannel(ctx context.Context, req Request) string {
	if _, err := c.watchlist.SetChannel(ctx, req.UserID, req.target()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "❌ You don't have any anime in your watchlist yet. Add some with <code>/add &lt;anime name&gt;</code> first!"
		}
		return c.failure("setchannel", err)
	}
	if req.private() {
		return "✅ Notifications will be sent to you directly."
	}
	return "✅ Notification channel set to this chat! All your anime notifications will appear here."
}

// Check runs a reconciliation pass. Only the admin chat may use it.
func (c *Commands) Check(ctx context.Context, req Request) string {
	if c.adminID == "" || (req.UserID != c.adminID && req.ChatID != c.adminID) {
		return "⛔ Only the administrator can run a manual check."
	}
	result, err := c.runner.RunPass(ctx)
	if err != nil {
		return c.failure("check", err)
	}
	return fmt.Sprintf("✅ Check complete! Shows checked: %d, notifications sent: %d, failed: %d.",
		result.ShowsChecked, result.NotificationsSent, result.NotificationsFailed)
}

// TestNotify sends a sample notification to the current chat.
func (c *Commands) TestNotify(ctx context.Context, req Request) string {
	total := 28
	result := c.notifier.Deliver(ctx, notify.Notification{
		UserID: req.UserID,
		Snapshot: &models.ScheduleSnapshot{
			ShowID:        154587,
			Title:         "Frieren: Beyond Journey's End",
			TotalEpisodes: &total,
			SiteURL:       "https://anilist.co/anime/154587",
		},
		Episode:       12,
		PrimaryTarget: req.target(),
	})
	if !result.Succeeded {
		return "❌ Failed to send test notification."
	}
	return "✅ Test notification sent!"
}

// resolveShow accepts a numeric id or a title, taking the best search match.
func (c *Commands) resolveShow(ctx context.Context, args []string) (int, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if id, err := strconv.Atoi(query); err == nil {
		if id <= 0 {
			return 0, fmt.Errorf("invalid anime id %d: %w", id, models.ErrNotFound)
		}
		return id, nil
	}

	results, err := c.searcher.SearchShows(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("no anime matches %q: %w", query, models.ErrNotFound)
	}
	return results[0].ID, nil
}

func (c *Commands) failure(command string, err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "❌ Anime not found. Please try a different name."
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return "⚠️ AniList is unavailable right now. Please try again later."
	}
	c.logger.Error("bot command failed", zap.String("command", command), zap.Error(err))
	return "❌ An error occurred while processing your command."
}
