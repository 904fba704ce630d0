package presence

import (
	"context"
	"fmt"

	"push-gateway/internal/models"

	"github.com/redis/go-redis/v9"
)

// VoiceOracle answers the live call state of a channel. A nil state with a
// nil error means no call is active.
type VoiceOracle interface {
	GetChannelVoiceState(ctx context.Context, channel *models.Channel) (*models.VoiceState, error)
}

// RedisVoice reads call participants from per-channel redis sets maintained
// by the voice nodes.
type RedisVoice struct {
	client *redis.Client
}

var _ VoiceOracle = (*RedisVoice)(nil)

func NewRedisVoice(client *redis.Client) *RedisVoice {
	return &RedisVoice{client: client}
}

func (v *RedisVoice) GetChannelVoiceState(ctx context.Context, channel *models.Channel) (*models.VoiceState, error) {
	if !channel.HasVoice() {
		return nil, nil
	}

	ids, err := v.client.SMembers(ctx, voiceKey(channel.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("voice state of %s: %w", channel.ID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	state := &models.VoiceState{
		ChannelID:    channel.ID,
		Participants: make([]models.VoiceParticipant, 0, len(ids)),
	}
	for _, id := range ids {
		state.Participants = append(state.Participants, models.VoiceParticipant{ID: id})
	}
	return state, nil
}

func voiceKey(channelID string) string {
	return fmt.Sprintf("voice:%s:participants", channelID)
}
