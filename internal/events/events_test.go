package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Kind: KindBossDefeated}))
	assert.NoError(t, p.Close())
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Kind:      KindBossDefeated,
		HP:        0,
		MaxHP:     1000,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Attacker:  "0xabc",
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"boss_defeated","hp":0,"maxHp":1000,"timestamp":"2026-01-02T03:04:05Z","attacker":"0xabc"}`, string(data))
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "questchain.raid.events"})
	require.NoError(t, err)
	assert.True(t, p.writer.Async)
	assert.Equal(t, defaultMaxAttempts, p.writer.MaxAttempts)
}

func TestKafkaPublisherCompletionCounts(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)

	p.complete(make([]kafka.Message, 2), nil)
	p.complete(make([]kafka.Message, 1), errors.New("broker down"))

	published, failed := p.Stats()
	assert.Equal(t, uint64(2), published)
	assert.Equal(t, uint64(1), failed)
}
