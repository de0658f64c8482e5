// Package events publishes pipeline lifecycle events: a run starting, each
// stage finishing and the run finishing. Events go to a Kafka topic keyed
// by run ID, so all events of one run land on the same partition in order.
// When Kafka is disabled they are written to the log instead.
package events
