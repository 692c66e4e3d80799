package amqp

import (
	"encoding/json"
	"time"
)

// MatchEndedMessage announces that a match was closed and its totals frozen.
// The worker loads the full match from the database.
type MatchEndedMessage struct {
	MatchID           string    `json:"match_id"`
	Name              string    `json:"name"`
	FinalBalanceCents int64     `json:"final_balance_cents"`
	EndedAt           time.Time `json:"ended_at"`
	Timestamp         time.Time `json:"timestamp"`
}

func NewMatchEndedMessage(matchID, name string, finalBalanceCents int64, endedAt time.Time) *MatchEndedMessage {
	return &MatchEndedMessage{
		MatchID:           matchID,
		Name:              name,
		FinalBalanceCents: finalBalanceCents,
		EndedAt:           endedAt,
		Timestamp:         time.Now(),
	}
}

func (m *MatchEndedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MatchEndedMessageFromJSON(data []byte) (*MatchEndedMessage, error) {
	var msg MatchEndedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
