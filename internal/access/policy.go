package access

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"kinobot/internal/storage"
)

type PremiumChecker interface {
	IsPremium(ctx context.Context, userID int64) (bool, error)
}

type ChannelLister interface {
	Channels(ctx context.Context) ([]storage.GatingChannel, error)
}

type MembershipChecker interface {
	ChatMemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// Policy decides whether a user may receive content or must be gated first.
// Channels and membership are read on every call.
type Policy struct {
	premium  PremiumChecker
	channels ChannelLister
	members  MembershipChecker
	log      hclog.Logger
}

func NewPolicy(premium PremiumChecker, channels ChannelLister, members MembershipChecker, log hclog.Logger) *Policy {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Policy{premium: premium, channels: channels, members: members, log: log}
}

// IsSubscribed reports true for admins, premium users, and users who belong to
// every gating channel. Any lookup error counts as not subscribed.
func (p *Policy) IsSubscribed(ctx context.Context, userID int64, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	premium, err := p.premium.IsPremium(ctx, userID)
	if err != nil {
		p.log.Error("premium check failed", "user_id", userID, "error", err)
	}
	if premium {
		return true
	}
	channels, err := p.channels.Channels(ctx)
	if err != nil {
		p.log.Error("load gating channels failed", "error", err)
		return false
	}
	for _, ch := range channels {
		status, err := p.members.ChatMemberStatus(ctx, ch.Identifier, userID)
		if err != nil {
			p.log.Error("membership check failed", "channel", ch.Identifier, "user_id", userID, "error", err)
			return false
		}
		if !IsMemberStatus(status) {
			return false
		}
	}
	return true
}

// IsMemberStatus reports whether a chat member status counts as joined.
func IsMemberStatus(status string) bool {
	switch status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}
