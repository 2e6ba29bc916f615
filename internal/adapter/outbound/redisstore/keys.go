// Package redisstore implements the apikey.Store port against a Redis
// (or Redis-protocol-compatible) backing service. It owns every key-name
// string; no other package constructs one.
package redisstore

import "fmt"

func projectKey(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

func keyDocKey(projectID, keyID string) string {
	return fmt.Sprintf("apikey:%s:%s", projectID, keyID)
}

func indexKey(projectID string) string {
	return fmt.Sprintf("apiprojectkeys:%s", projectID)
}

func usageKey(projectID, keyID string) string {
	return fmt.Sprintf("apimeta:%s:%s", projectID, keyID)
}

func rateKey(projectID, keyID string, minute int64) string {
	return fmt.Sprintf("ratelimit:key:%s:%s:%d", projectID, keyID, minute)
}

const auditStreamKey = "audit:keylookup"
