package models

import "time"

// WatchEntry binds one user to one show along with their notification progress.
type WatchEntry struct {
	ID                  int64      `json:"id"`
	UserID              string     `json:"user_id"`
	ShowID              int        `json:"show_id"`
	ShowTitle           string     `json:"show_title"`
	LastNotifiedEpisode int        `json:"last_notified_episode"`
	DeliveryTarget      string     `json:"delivery_target,omitempty"` // empty means direct-to-user
	LastCheckedAt       *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// HasTarget reports whether notifications go to a channel-like target first.
func (w WatchEntry) HasTarget() bool {
	return w.DeliveryTarget != ""
}

// ScheduleSnapshot is the airing schedule of a show as seen at FetchedAt.
// Both the upstream client and the cache produce this type.
type ScheduleSnapshot struct {
	ShowID              int       `json:"show_id"`
	Title               string    `json:"title"`
	TotalEpisodes       *int      `json:"total_episodes,omitempty"`
	Status              string    `json:"status"` // RELEASING, FINISHED, NOT_YET_RELEASED, CANCELLED, HIATUS
	NextEpisodeNumber   *int      `json:"next_episode_number,omitempty"`
	NextEpisodeAiringAt *int64    `json:"next_episode_airing_at,omitempty"` // epoch seconds
	CoverImage          string    `json:"cover_image,omitempty"`
	SiteURL             string    `json:"site_url,omitempty"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// HasNextEpisode reports whether the show has a scheduled upcoming episode.
func (s *ScheduleSnapshot) HasNextEpisode() bool {
	return s != nil && s.NextEpisodeNumber != nil && s.NextEpisodeAiringAt != nil
}

// NextAiringTime returns the next episode air time, or the zero time when absent.
func (s *ScheduleSnapshot) NextAiringTime() time.Time {
	if !s.HasNextEpisode() {
		return time.Time{}
	}
	return time.Unix(*s.NextEpisodeAiringAt, 0)
}

// Delivery targets reported in DeliveryResult.TargetUsed.
const (
	TargetPrimary = "primary"
	TargetDirect  = "direct"
)

// DeliveryResult describes where a notification ended up.
type DeliveryResult struct {
	TargetUsed string `json:"target_used"`
	Succeeded  bool   `json:"succeeded"`
}
