package kafka

import "fmt"

// TopicPrefix is the prefix shared by every topic the sync bridge publishes to.
const TopicPrefix = "syncbridge"

// Topic returns a fully qualified topic name: syncbridge.<domain>.<action>.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
