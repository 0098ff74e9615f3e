package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/config"
	"go.uber.org/zap"
)

const keyInviteOrg = "mailseat:invite:org:%s"

// InviteLimiter throttles invite issuance per organization. A limiter without
// a bucket allows everything.
type InviteLimiter struct {
	bucket *TokenBucket
	policy *config.MembershipPolicyHolder
	log    *zap.Logger
}

func NewInviteLimiter(bucket *TokenBucket, policy *config.MembershipPolicyHolder, log *zap.Logger) *InviteLimiter {
	return &InviteLimiter{
		bucket: bucket,
		policy: policy,
		log:    log.Named("ratelimit.invite"),
	}
}

// Allow reports whether another invite may be issued for the organization.
// Redis failures fail open and are logged.
func (l *InviteLimiter) Allow(ctx context.Context, orgID snowflake.ID) bool {
	if l == nil || l.bucket == nil {
		return true
	}

	policy := l.policy.Get()
	if policy.InviteRatePerMin <= 0 || policy.InviteRateBurst <= 0 {
		return true
	}

	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyInviteOrg, orgID.String()), policy.InviteRatePerMin/60, policy.InviteRateBurst)
	if err != nil {
		l.log.Warn("invite rate limit check failed", zap.String("org_id", orgID.String()), zap.Error(err))
		return true
	}
	if !res.Allowed {
		l.log.Info("invite rate limited",
			zap.String("org_id", orgID.String()),
			zap.Duration("retry_after", res.RetryAfter),
		)
	}
	return res.Allowed
}
