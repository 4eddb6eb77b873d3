package watch

// Event topics published by the watch module.
const (
	TopicZoneRecorded   = "watch.zone.recorded"
	TopicAlertTriggered = "watch.alert.triggered"
	TopicAlertGlobal    = "watch.alert.global"
	TopicPassCompleted  = "watch.pass.completed"
)

// ZoneRecordedEvent is the payload for TopicZoneRecorded, emitted after
// each durable observation append.
type ZoneRecordedEvent struct {
	Day        string  `json:"day"`
	Zone       string  `json:"zone"`
	Index      float64 `json:"index"`
	AnomalyPct float64 `json:"anomaly_pct"`
	ZScore     float64 `json:"z_score"`
	Tier       string  `json:"tier"`
	Decision   string  `json:"decision"`
}

// AlertTriggeredEvent is the payload for TopicAlertTriggered.
type AlertTriggeredEvent struct {
	ID         string  `json:"id"`
	Zone       string  `json:"zone"`
	Day        string  `json:"day"`
	Kind       string  `json:"kind"`
	AnomalyPct float64 `json:"anomaly_pct"`
	ZScore     float64 `json:"z_score"`
}

// GlobalAlertEvent is the payload for TopicAlertGlobal.
type GlobalAlertEvent struct {
	ID       string  `json:"id"`
	Day      string  `json:"day"`
	Score    float64 `json:"score"`
	Coverage float64 `json:"coverage"`
	Label    string  `json:"label"`
}

// PassCompletedEvent is the payload for TopicPassCompleted, one per pass.
type PassCompletedEvent struct {
	Day            string  `json:"day"`
	Zones          int     `json:"zones"`
	Recorded       int     `json:"recorded"`
	Skipped        int     `json:"skipped"`
	Duplicates     int     `json:"duplicates"`
	Alerts         int     `json:"alerts"`
	Suppressed     int     `json:"suppressed"`
	AggregateScore float64 `json:"aggregate_score"`
	GlobalAlert    bool    `json:"global_alert"`
	DurationMillis int64   `json:"duration_ms"`
	Forced         bool    `json:"forced"`
}
