package notify

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"anime-notifier/internal/models"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatEpisodeAlert_Golden(t *testing.T) {
	total := 28
	snap := &models.ScheduleSnapshot{
		ShowID:        154587,
		Title:         "Frieren: Beyond Journey's End",
		TotalEpisodes: &total,
		SiteURL:       "https://anilist.co/anime/154587",
	}

	newGoldie(t).Assert(t, "episode_alert", []byte(FormatEpisodeAlert(snap, 12)))
}

func TestFormatSchedule_Golden(t *testing.T) {
	next := 5
	airingAt := int64(1700000000)
	snap := &models.ScheduleSnapshot{
		ShowID:              154587,
		Title:               "Sousou no Frieren",
		Status:              "RELEASING",
		NextEpisodeNumber:   &next,
		NextEpisodeAiringAt: &airingAt,
	}
	now := time.Unix(airingAt, 0).Add(-(2*24*time.Hour + 3*time.Hour + 5*time.Minute))

	newGoldie(t).Assert(t, "schedule", []byte(FormatSchedule(snap, now)))
}

func TestFormatEpisodeAlert_MissingFields(t *testing.T) {
	msg := FormatEpisodeAlert(&models.ScheduleSnapshot{Title: "Solo"}, 3)
	assert.Contains(t, msg, "<b>Solo</b> - Episode 3 is now available!")
	assert.NotContains(t, msg, " of ")
	assert.NotContains(t, msg, "AniList")

	assert.Contains(t, FormatEpisodeAlert(nil, 1), "Unknown show")
}

func TestFormatEpisodeAlert_EscapesTitle(t *testing.T) {
	msg := FormatEpisodeAlert(&models.ScheduleSnapshot{Title: "<script>"}, 1)
	assert.Contains(t, msg, "&lt;script&gt;")
	assert.NotContains(t, msg, "<script>")
}

func TestFormatSchedule_NoUpcoming(t *testing.T) {
	msg := FormatSchedule(&models.ScheduleSnapshot{Title: "Done", Status: "FINISHED"}, time.Now())
	assert.Contains(t, msg, "Status: Finished")
	assert.Contains(t, msg, "No upcoming episodes")
}

func TestFormatStatus(t *testing.T) {
	tests := map[string]string{
		"RELEASING":        "Releasing",
		"NOT_YET_RELEASED": "Not Yet Released",
		"FINISHED":         "Finished",
		"":                 "Unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatStatus(in), in)
	}
}

func TestFormatUntil(t *testing.T) {
	assert.Equal(t, "Already aired", FormatUntil(-time.Hour))
	assert.Equal(t, "Less than a minute", FormatUntil(30*time.Second))
	assert.Equal(t, "In 1 minute", FormatUntil(time.Minute))
	assert.Equal(t, "In 1 day, 2 minutes", FormatUntil(24*time.Hour+2*time.Minute))
	assert.Equal(t, "In 3 hours", FormatUntil(3*time.Hour))
}
