// Package natsbridge republishes engine lifecycle events on NATS so that
// processes outside agentkit can observe task progress.
package natsbridge
