//go:generate go run go.uber.org/mock/mockgen -source=archive.go -destination=../mocks/mock_archive.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"partyline/domain"
)

type IArchiveRepository interface {
	StoreMessage(message domain.FriendMessage) error
	GetMessages(accountID string, cursor *string) ([]domain.FriendMessage, *string, error)
}

// ArchiveRepository persists friend messages in BadgerDB, newest-first
// reads with cursor pagination.
type ArchiveRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewArchiveRepository(db *badger.DB, log *slog.Logger, limitMessages *int) ArchiveRepository {
	return ArchiveRepository{db: db, log: log, limitMessages: limitMessages}
}

// storedMessage is the on-disk JSON shape of an archived message.
type storedMessage struct {
	ID        uuid.UUID `json:"id"`
	AccountID string    `json:"account_id"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// StoreMessage persists a message under "msg:{accountId}:{timestamp_padded}:{uuid}".
// The 19-digit zero-padded nanosecond timestamp keeps keys chronologically
// sorted lexicographically; the UUID disambiguates same-nanosecond arrivals.
func (r ArchiveRepository) StoreMessage(message domain.FriendMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.AccountID,
		message.Time.UnixNano(),
		message.ID,
	)
	value, err := json.Marshal(storedMessage{
		ID:        message.ID,
		AccountID: message.AccountID,
		Body:      message.Body,
		At:        message.Time,
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// GetMessages retrieves a friend's messages newest-first via a reverse
// prefix scan. Passing the returned cursor back resumes after the last
// message of the previous page. Collection stops at limitMessages when set.
func (r ArchiveRepository) GetMessages(accountID string, cursor *string) ([]domain.FriendMessage, *string, error) {
	var messages []domain.FriendMessage
	var lastKey string

	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", accountID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *r.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])

			err := item.Value(func(value []byte) error {
				var stored storedMessage
				if err := json.Unmarshal(value, &stored); err != nil {
					return err
				}
				messages = append(messages, domain.FriendMessage{
					ID:        stored.ID,
					AccountID: stored.AccountID,
					Body:      stored.Body,
					Time:      stored.At,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(messages) == 0 {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}
