// Package notification builds platform-agnostic notification payloads and
// extracts them into the wire shape each push platform expects.
package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

// Builder constructs immutable notification payloads, one operation per
// event kind.
type Builder struct {
	clock func() time.Time
}

// NewBuilder creates a Builder stamping payloads with the wall clock.
func NewBuilder() *Builder {
	return &Builder{clock: time.Now}
}

// RecordVlogRequest notifies a user that they are due to record a vlog on
// the given livestream within the connect window.
func (b *Builder) RecordVlogRequest(userID uuid.UUID, livestreamID string, requestTimeout time.Duration) domain.NotificationPayload {
	return domain.NotificationPayload{
		Kind:         domain.KindRecordVlogRequest,
		TargetUserID: userID,
		Data: domain.NotificationData{
			LivestreamID:   livestreamID,
			RequestTimeout: requestTimeout,
		},
		Timestamp: b.clock().UTC(),
	}
}

// FollowedProfileLive notifies a follower that someone they follow went live.
func (b *Builder) FollowedProfileLive(targetUserID, liveUserID uuid.UUID, livestreamID string) domain.NotificationPayload {
	return domain.NotificationPayload{
		Kind:         domain.KindFollowedProfileLive,
		TargetUserID: targetUserID,
		Data: domain.NotificationData{
			LivestreamID: livestreamID,
			RequesterID:  liveUserID,
		},
		Timestamp: b.clock().UTC(),
	}
}

// VlogPosted notifies a follower that a new vlog was posted.
func (b *Builder) VlogPosted(targetUserID, vlogID, ownerID uuid.UUID) domain.NotificationPayload {
	return domain.NotificationPayload{
		Kind:         domain.KindVlogPosted,
		TargetUserID: targetUserID,
		Data: domain.NotificationData{
			VlogID:      vlogID,
			RequesterID: ownerID,
		},
		Timestamp: b.clock().UTC(),
	}
}

// VlogLiked notifies a vlog owner that their vlog received a like.
func (b *Builder) VlogLiked(targetUserID, vlogID, likerID uuid.UUID) domain.NotificationPayload {
	return domain.NotificationPayload{
		Kind:         domain.KindVlogLiked,
		TargetUserID: targetUserID,
		Data: domain.NotificationData{
			VlogID:      vlogID,
			RequesterID: likerID,
		},
		Timestamp: b.clock().UTC(),
	}
}

// VlogNewReaction notifies a vlog owner that a reaction was posted.
func (b *Builder) VlogNewReaction(targetUserID, vlogID, reactionID, reacterID uuid.UUID) domain.NotificationPayload {
	return domain.NotificationPayload{
		Kind:         domain.KindVlogNewReaction,
		TargetUserID: targetUserID,
		Data: domain.NotificationData{
			VlogID:      vlogID,
			ReactionID:  reactionID,
			RequesterID: reacterID,
		},
		Timestamp: b.clock().UTC(),
	}
}
