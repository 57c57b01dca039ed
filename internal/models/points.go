package models

// PointAction is a scored activity in the ComuniPoints table.
type PointAction string

const (
	ActionForumMessage     PointAction = "forum_message"
	ActionAnnouncement     PointAction = "announcement"
	ActionIncidentReport   PointAction = "incident_report"
	ActionIncidentResolved PointAction = "incident_resolved"
	ActionUpvoteReceived   PointAction = "upvote_received"
)

// Reward is what an action adds to the user profile.
type Reward struct {
	Points int `json:"points"`
	Karma  int `json:"karma"`
}

var pointTable = map[PointAction]Reward{
	ActionForumMessage:     {Points: 1},
	ActionAnnouncement:     {Points: 10},
	ActionIncidentReport:   {Points: 15},
	ActionIncidentResolved: {Points: 25},
	ActionUpvoteReceived:   {Karma: 1},
}

func RewardFor(action PointAction) (Reward, bool) {
	r, ok := pointTable[action]
	return r, ok
}
