package model

// Envelope is the payload published to Kafka for a dispatch job. The cursor
// deliberately does not travel with it: progress lives on the dispatch_jobs
// row so a redelivery resumes from the last checkpoint.
type Envelope struct {
	JobID      string `json:"job_id"`
	CampaignID int64  `json:"campaign_id"`
}
