package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"anime-notifier/internal/models"
)

// FormatStatus turns an upstream status such as NOT_YET_RELEASED into
// "Not Yet Released".
func FormatStatus(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	// Casers carry state and are not shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(status, "_", " "))
}

// FormatEpisodeAlert renders the HTML message announcing a released episode.
func FormatEpisodeAlert(snap *models.ScheduleSnapshot, episode int) string {
	title := "Unknown show"
	var siteURL string
	var total *int
	if snap != nil {
		if snap.Title != "" {
			title = snap.Title
		}
		siteURL = snap.SiteURL
		total = snap.TotalEpisodes
	}

	var sb strings.Builder
	sb.WriteString("🎉 <b>New Episode Released!</b>\n\n")
	fmt.Fprintf(&sb, "<b>%s</b> - Episode %d", html.EscapeString(title), episode)
	if total != nil {
		fmt.Fprintf(&sb, " of %d", *total)
	}
	sb.WriteString(" is now available!")
	if siteURL != "" {
		fmt.Fprintf(&sb, "\n\n🔗 <a href=\"%s\">View on AniList</a>", html.EscapeString(siteURL))
	}
	return sb.String()
}

// FormatSchedule renders the next-episode summary for a show.
func FormatSchedule(snap *models.ScheduleSnapshot, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📺 <b>%s</b>\n", html.EscapeString(snap.Title))
	fmt.Fprintf(&sb, "Status: %s\n", FormatStatus(snap.Status))

	if !snap.HasNextEpisode() {
		sb.WriteString("ℹ️ No upcoming episodes scheduled. This anime may have finished airing.")
		return sb.String()
	}

	airs := snap.NextAiringTime()
	fmt.Fprintf(&sb, "Next: Episode %d\n", *snap.NextEpisodeNumber)
	fmt.Fprintf(&sb, "📅 %s\n", airs.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&sb, "⏰ %s", FormatUntil(airs.Sub(now)))
	return sb.String()
}

// FormatUntil renders a duration as "2 days, 3 hours, 5 minutes".
func FormatUntil(d time.Duration) string {
	if d < time.Minute {
		if d < 0 {
			return "Already aired"
		}
		return "Less than a minute"
	}

	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	for _, p := range []struct {
		n    int
		unit string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}} {
		if p.n == 0 {
			continue
		}
		if p.n == 1 {
			parts = append(parts, "1 "+p.unit)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}
	return "In " + strings.Join(parts, ", ")
}
