package ratelimit

import (
	"fmt"
	"strings"
)

// ResolveScan picks the bucket for a QR scan: per client address when one
// is known, otherwise per subscription.
func ResolveScan(limit int, subscriptionID uint64, client string) Decision {
	if limit <= 0 || subscriptionID == 0 {
		return Decision{}
	}
	client = strings.TrimSpace(client)
	if client != "" {
		return Decision{Limit: limit, Scope: ScopeClient, SubscriptionID: subscriptionID, Client: client}
	}
	return Decision{Limit: limit, Scope: ScopeSubscription, SubscriptionID: subscriptionID}
}

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(decision Decision) string {
	if decision.Limit <= 0 || decision.SubscriptionID == 0 {
		return ""
	}
	switch decision.Scope {
	case ScopeClient:
		if decision.Client == "" {
			return ""
		}
		return fmt.Sprintf("scan:s:%d:c:%s", decision.SubscriptionID, decision.Client)
	case ScopeSubscription:
		return fmt.Sprintf("scan:s:%d", decision.SubscriptionID)
	default:
		return ""
	}
}
