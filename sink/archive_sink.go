// Package sink contains event consumers attached to the engine bus for side
// effects such as persistence.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"partyline/domain/event"
	"partyline/repositories"
)

// ArchiveSink persists inbound friend messages to the archive.
type ArchiveSink struct {
	repository repositories.IArchiveRepository
	log        *slog.Logger
}

func NewArchiveSink(repository repositories.IArchiveRepository, log *slog.Logger) ArchiveSink {
	return ArchiveSink{repository: repository, log: log}
}

func (s ArchiveSink) Consume(_ context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.FriendMessageReceived:
		return s.repository.StoreMessage(evt.Message)
	default:
		s.log.Debug(fmt.Sprintf("Not implemented event : %v", evt))
		return nil
	}
}
