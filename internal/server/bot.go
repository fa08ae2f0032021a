package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
)

const (
	CommandSummary    = "summary"
	CommandSetChannel = "setchannel"

	seenTTL = 5 * time.Minute
)

// BotServer routes gateway traffic to the capture and digest usecases
type BotServer struct {
	gateway   Gateway
	captureUC *usecase.CaptureUsecase
	digestUC  *usecase.DigestUsecase
	log       zerolog.Logger

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> timestamp
}

// NewBotServer creates a new bot server and registers its handlers on the gateway
func NewBotServer(gateway Gateway, captureUC *usecase.CaptureUsecase, digestUC *usecase.DigestUsecase, logger zerolog.Logger) *BotServer {
	s := &BotServer{
		gateway:   gateway,
		captureUC: captureUC,
		digestUC:  digestUC,
		log:       logger.With().Str("component", "server").Str("platform", gateway.Name()).Logger(),
		seenMsgs:  make(map[string]time.Time),
	}
	gateway.OnMessage(s.HandleMessage)
	gateway.OnCommand(s.HandleCommand)
	return s
}

// Run blocks on the gateway connection until ctx is done
func (s *BotServer) Run(ctx context.Context) error {
	s.log.Info().Msg("connecting")
	return s.gateway.Run(ctx)
}

// HandleMessage captures product mentions from an incoming message
func (s *BotServer) HandleMessage(msg *domain.IncomingMessage) {
	// Platforms may redeliver events on reconnect
	if !s.markIfUnseen(msg.ID) {
		s.log.Debug().Str("message_id", msg.ID).Msg("duplicate message ignored")
		return
	}

	item, err := s.captureUC.Capture(context.Background(), msg)
	if err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to capture message")
		return
	}
	if item != nil {
		s.log.Debug().Str("message_id", msg.ID).Strs("apps", item.Apps).Msg("feedback queued")
	}
}

// HandleCommand runs an operator command and builds its reply
func (s *BotServer) HandleCommand(cmd *domain.Command) *Reply {
	ctx := context.Background()
	s.log.Info().Str("command", cmd.Name).Str("user", cmd.UserName).Str("channel", cmd.ChannelID).Msg("command received")

	switch cmd.Name {
	case CommandSummary:
		digest, _, err := s.digestUC.Run(ctx, domain.TriggerManual, "")
		if err != nil {
			return &Reply{Title: "Feedback Summary", Text: "Error: " + err.Error()}
		}
		return &Reply{
			Title:     digest.Title,
			Text:      digest.Text,
			Footer:    fmt.Sprintf("Analyzed %d messages", digest.MessageCount),
			Timestamp: digest.GeneratedAt,
		}

	case CommandSetChannel:
		target := cmd.TargetID
		if target == "" {
			target = cmd.ChannelID
		}
		if err := s.digestUC.SetDestination(ctx, target); err != nil {
			return &Reply{Title: "Summary Channel", Text: "Error: " + err.Error()}
		}
		return &Reply{
			Title: "Summary Channel",
			Text:  "Summary channel set to " + s.gateway.ChannelMention(target),
		}
	}

	return &Reply{Title: "Unknown Command", Text: "Unknown command: " + cmd.Name}
}

// markIfUnseen records a message as processed and reports whether it was new.
// Expired entries are evicted on the way.
func (s *BotServer) markIfUnseen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := time.Now()
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}

	if _, exists := s.seenMsgs[msgID]; exists {
		return false
	}
	s.seenMsgs[msgID] = now
	return true
}
