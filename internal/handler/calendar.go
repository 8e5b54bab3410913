package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"

	"anime-notifier/internal/notify"
	"anime-notifier/internal/service"
	"anime-notifier/internal/timeutil"
)

const episodeLength = 24 * time.Minute

// Calendar exports a user's upcoming episodes as iCalendar.
func (h *HTTPHandler) Calendar(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	upcoming, err := h.watchlist.Upcoming(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="anime.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(BuildCalendar(upcoming, timeutil.Now())))
}

// BuildCalendar renders one event per upcoming episode.
func BuildCalendar(upcoming []service.WatchView, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//anime-notifier//upcoming episodes//EN")
	cal.SetXWRCalName("Upcoming anime episodes")

	for _, view := range upcoming {
		snap := view.Schedule
		if !snap.HasNextEpisode() {
			continue
		}
		episode := *snap.NextEpisodeNumber
		airs := snap.NextAiringTime().UTC()

		event := cal.AddEvent(fmt.Sprintf("anime-%d-ep-%d@anime-notifier", snap.ShowID, episode))
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(airs)
		event.SetEndAt(airs.Add(episodeLength))
		event.SetSummary(fmt.Sprintf("%s - Episode %d", snap.Title, episode))
		event.SetDescription("Status: " + notify.FormatStatus(snap.Status))
		if snap.SiteURL != "" {
			event.SetURL(snap.SiteURL)
		}
	}
	return cal.Serialize()
}
