package kafka

// TopicJournalEvents is the sole fan-out topic: every journal event goes
// through one topic rather than a per-operation-type taxonomy.
const TopicJournalEvents = "ledger.journal-events"

// GetAllTopics returns the topics this producer publishes to. Nothing in
// this repository creates topics; it has no caller here.
func GetAllTopics() []string {
	return []string{TopicJournalEvents}
}
