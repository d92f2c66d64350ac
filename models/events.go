package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventSub subscription types handled by the notification socket.
const (
	SubStreamOnline  = "stream.online"
	SubStreamOffline = "stream.offline"
	SubFollow        = "channel.follow"
	SubSubscribe     = "channel.subscribe"
	SubGiftSub       = "channel.subscription.gift"
	SubResub         = "channel.subscription.message"
	SubCheer         = "channel.cheer"
	SubRaid          = "channel.raid"
	SubBan           = "channel.ban"
	SubRewardRedeem  = "channel.channel_points_custom_reward_redemption.add"
	SubModAdd        = "channel.moderator.add"
	SubModRemove     = "channel.moderator.remove"
)

// Event is a platform notification parsed from an EventSub frame. It is
// immutable and consumed once by the dispatcher under the name
// "on_" + EventName().
type Event interface {
	EventName() string
}

// ChatterResolver resolves a platform account to the channel's Chatter
// instance, creating and caching one on first observation. The bot client
// implements this against the active Streamer.
type ChatterResolver interface {
	ResolveChatter(id int64, login, displayName string) *Chatter
}

type StreamOnlineEvent struct {
	Chatter *Chatter
	Type    string
}

func (*StreamOnlineEvent) EventName() string { return "stream_online" }

type StreamOfflineEvent struct{}

func (*StreamOfflineEvent) EventName() string { return "stream_offline" }

type FollowEvent struct {
	Chatter *Chatter
}

func (*FollowEvent) EventName() string { return "follow_event" }

type BanEvent struct {
	Chatter   *Chatter
	Moderator *Chatter
	Reason    string

	// Timeout is the ban duration in seconds, 0 for a permanent ban.
	Timeout int
}

func (*BanEvent) EventName() string { return "ban_event" }

type RaidEvent struct {
	Chatter *Chatter // the raiding broadcaster
	Viewers int
}

func (*RaidEvent) EventName() string { return "raid_event" }

type SubscribeEvent struct {
	Chatter *Chatter
	Tier    string
	IsGift  bool
}

func (*SubscribeEvent) EventName() string { return "subscribe_event" }

type GiftSubEvent struct {
	Chatter     *Chatter // nil when anonymous
	Tier        string
	Total       int
	IsAnonymous bool

	// CumulativeTotal is 0 for anonymous gifters.
	CumulativeTotal int
}

func (*GiftSubEvent) EventName() string { return "gift_sub_event" }

type ResubEvent struct {
	Chatter           *Chatter
	Tier              string
	Message           string
	ConsecutiveMonths int
	StreakMonths      int
	DurationMonths    int
}

func (*ResubEvent) EventName() string { return "resub_event" }

type CheersEvent struct {
	Chatter     *Chatter // nil when anonymous
	Message     string
	Bits        int
	IsAnonymous bool
}

func (*CheersEvent) EventName() string { return "cheers_event" }

// Reward describes a channel-point redemption.
type Reward struct {
	RedemptionID string
	RewardID     string
	Title        string
	Prompt       string
	Cost         int
	UserInput    string
}

type RewardEvent struct {
	Chatter *Chatter
	Reward  Reward
}

func (*RewardEvent) EventName() string { return "reward_event" }

// eventPayload is the superset of fields across the handled EventSub payload
// shapes. Message is raw because channel.cheer carries a plain string while
// channel.subscription.message carries an object.
type eventPayload struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	UserLogin            string          `json:"user_login"`
	UserName             string          `json:"user_name"`
	BroadcasterUserID    string          `json:"broadcaster_user_id"`
	BroadcasterUserLogin string          `json:"broadcaster_user_login"`
	BroadcasterUserName  string          `json:"broadcaster_user_name"`
	ModeratorUserID      string          `json:"moderator_user_id"`
	ModeratorUserLogin   string          `json:"moderator_user_login"`
	ModeratorUserName    string          `json:"moderator_user_name"`
	FromBroadcasterID    string          `json:"from_broadcaster_user_id"`
	FromBroadcasterLogin string          `json:"from_broadcaster_user_login"`
	FromBroadcasterName  string          `json:"from_broadcaster_user_name"`
	Type                 string          `json:"type"`
	Reason               string          `json:"reason"`
	BannedAt             time.Time       `json:"banned_at"`
	EndsAt               *time.Time      `json:"ends_at"`
	IsPermanent          bool            `json:"is_permanent"`
	IsAnonymous          bool            `json:"is_anonymous"`
	IsGift               bool            `json:"is_gift"`
	Tier                 string          `json:"tier"`
	Total                int             `json:"total"`
	CumulativeTotal      int             `json:"cumulative_total"`
	CumulativeMonths     int             `json:"cumulative_months"`
	StreakMonths         int             `json:"streak_months"`
	DurationMonths       int             `json:"duration_months"`
	Viewers              int             `json:"viewers"`
	Bits                 int             `json:"bits"`
	Message              json.RawMessage `json:"message"`
	UserInput            string          `json:"user_input"`
	Reward               struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Prompt string `json:"prompt"`
		Cost   int    `json:"cost"`
	} `json:"reward"`
}

func (p *eventPayload) chatter(r ChatterResolver) (*Chatter, error) {
	id, err := strconv.ParseInt(p.UserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad user_id %q: %w", p.UserID, err)
	}
	return r.ResolveChatter(id, p.UserLogin, p.UserName), nil
}

// ParseEvent builds the typed event for a subscription type from its raw
// payload. Unrecognized subscription types yield (nil, nil); the caller
// ignores them. Moderator add/remove are not events and are handled by the
// notification socket directly.
func ParseEvent(subType string, payload []byte, r ChatterResolver) (Event, error) {
	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", subType, err)
	}

	switch subType {
	case SubStreamOnline:
		id, err := strconv.ParseInt(p.BroadcasterUserID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad broadcaster_user_id %q: %w", p.BroadcasterUserID, err)
		}
		return &StreamOnlineEvent{
			Chatter: r.ResolveChatter(id, p.BroadcasterUserLogin, p.BroadcasterUserName),
			Type:    p.Type,
		}, nil

	case SubStreamOffline:
		return &StreamOfflineEvent{}, nil

	case SubFollow:
		c, err := p.chatter(r)
		if err != nil {
			return nil, err
		}
		return &FollowEvent{Chatter: c}, nil

	case SubBan:
		c, err := p.chatter(r)
		if err != nil {
			return nil, err
		}
		modID, err := strconv.ParseInt(p.ModeratorUserID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad moderator_user_id %q: %w", p.ModeratorUserID, err)
		}
		timeout := 0
		if !p.IsPermanent && p.EndsAt != nil {
			timeout = int(p.EndsAt.Sub(p.BannedAt).Seconds())
		}
		return &BanEvent{
			Chatter:   c,
			Moderator: r.ResolveChatter(modID, p.ModeratorUserLogin, p.ModeratorUserName),
			Reason:    p.Reason,
			Timeout:   timeout,
		}, nil

	case SubRaid:
		id, err := strconv.ParseInt(p.FromBroadcasterID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad from_broadcaster_user_id %q: %w", p.FromBroadcasterID, err)
		}
		return &RaidEvent{
			Chatter: r.ResolveChatter(id, p.FromBroadcasterLogin, p.FromBroadcasterName),
			Viewers: p.Viewers,
		}, nil

	case SubSubscribe:
		c, err := p.chatter(r)
		if err != nil {
			return nil, err
		}
		return &SubscribeEvent{Chatter: c, Tier: p.Tier, IsGift: p.IsGift}, nil

	case SubGiftSub:
		ev := &GiftSubEvent{Tier: p.Tier, Total: p.Total, IsAnonymous: p.IsAnonymous}
		if !p.IsAnonymous {
			c, err := p.chatter(r)
			if err != nil {
				return nil, err
			}
			ev.Chatter = c
			ev.CumulativeTotal = p.CumulativeTotal
		}
		return ev, nil

	case SubResub:
		c, err := p.chatter(r)
		if err != nil {
			return nil, err
		}
		var msg struct {
			Text string `json:"text"`
		}
		if len(p.Message) > 0 {
			if err := json.Unmarshal(p.Message, &msg); err != nil {
				return nil, fmt.Errorf("decode resub message: %w", err)
			}
		}
		return &ResubEvent{
			Chatter:           c,
			Tier:              p.Tier,
			Message:           msg.Text,
			ConsecutiveMonths: p.CumulativeMonths,
			StreakMonths:      p.StreakMonths,
			DurationMonths:    p.DurationMonths,
		}, nil

	case SubCheer:
		ev := &CheersEvent{Bits: p.Bits, IsAnonymous: p.IsAnonymous}
		if len(p.Message) > 0 {
			// cheer messages are plain strings
			_ = json.Unmarshal(p.Message, &ev.Message)
		}
		if !p.IsAnonymous {
			c, err := p.chatter(r)
			if err != nil {
				return nil, err
			}
			ev.Chatter = c
		}
		return ev, nil

	case SubRewardRedeem:
		c, err := p.chatter(r)
		if err != nil {
			return nil, err
		}
		return &RewardEvent{
			Chatter: c,
			Reward: Reward{
				RedemptionID: p.ID,
				RewardID:     p.Reward.ID,
				Title:        p.Reward.Title,
				Prompt:       p.Reward.Prompt,
				Cost:         p.Reward.Cost,
				UserInput:    p.UserInput,
			},
		}, nil
	}

	return nil, nil
}
