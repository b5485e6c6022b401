package diarystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelane/carelane/pkg/diary"
)

// chatMirror is the schema of the per-channel chat history files kept
// alongside the diary for UI consumption.
type chatMirror struct {
	Conversation []chatMessage `json:"conversation"`
}

type chatMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

// SaveChatMirrors writes the pre-consultation and monitoring chat history
// files from the diary's conversation log. Best-effort: called from a
// background task after events that touch the conversation.
func (s *Store) SaveChatMirrors(ctx context.Context, d *diary.PatientDiary) error {
	for _, channel := range []diary.ChatChannel{diary.ChatPreConsultation, diary.ChatMonitoring} {
		if err := s.saveChatMirror(ctx, d, channel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) saveChatMirror(ctx context.Context, d *diary.PatientDiary, channel diary.ChatChannel) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	mirror := chatMirror{Conversation: []chatMessage{}}
	for _, entry := range d.ConversationByChatChannel(channel) {
		sender := "carelane"
		if entry.Direction == diary.DirectionInbound {
			sender = "patient"
		}
		mirror.Conversation = append(mirror.Conversation, chatMessage{
			Sender:    sender,
			Message:   entry.Message,
			Channel:   entry.Channel,
			Timestamp: entry.Timestamp,
		})
	}

	data, err := json.Marshal(mirror)
	if err != nil {
		return fmt.Errorf("encoding chat mirror for %s: %w", d.Header.PatientID, err)
	}
	if _, err := s.backend.Put(ctx, ChatMirrorKey(d.Header.PatientID, channel), data); err != nil {
		return fmt.Errorf("saving chat mirror for %s: %w", d.Header.PatientID, err)
	}
	return nil
}
