package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"partyline/domain"
)

func Test_Archive_Multiple_Messages_Newest_First(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	repository := NewArchiveRepository(db, slog.Default(), nil)
	at := time.Now().UTC()
	messages := []domain.FriendMessage{
		domain.NewFriendMessage("bob", "first", at),
		domain.NewFriendMessage("bob", "second", at.Add(1*time.Minute)),
		domain.NewFriendMessage("bob", "third", at.Add(2*time.Minute)),
	}
	for _, message := range messages {
		req.NoError(repository.StoreMessage(message))
	}

	fetched, cursor, err := repository.GetMessages("bob", nil)
	req.NoError(err)
	req.NotNil(cursor)
	req.Len(fetched, len(messages))

	// Newest first
	req.Equal("third", fetched[0].Body)
	req.Equal("second", fetched[1].Body)
	req.Equal("first", fetched[2].Body)
}

func Test_Archive_Scopes_By_Account(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	repository := NewArchiveRepository(db, slog.Default(), nil)
	at := time.Now().UTC()
	req.NoError(repository.StoreMessage(domain.NewFriendMessage("bob", "for bob", at)))
	req.NoError(repository.StoreMessage(domain.NewFriendMessage("charlie", "for charlie", at)))

	fetched, _, err := repository.GetMessages("bob", nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("for bob", fetched[0].Body)
}

func Test_Archive_Pagination_With_Cursor(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	limit := 2
	repository := NewArchiveRepository(db, slog.Default(), &limit)
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		message := domain.NewFriendMessage("bob", fmt.Sprintf("message %d", i), at.Add(time.Duration(i)*time.Minute))
		req.NoError(repository.StoreMessage(message))
	}

	// First page: the two most recent messages
	page1, cursor1, err := repository.GetMessages("bob", nil)
	req.NoError(err)
	req.Len(page1, limit)
	req.Equal("message 4", page1[0].Body)
	req.Equal("message 3", page1[1].Body)
	req.NotNil(cursor1)

	// Second page resumes after the previous one
	page2, cursor2, err := repository.GetMessages("bob", cursor1)
	req.NoError(err)
	req.Len(page2, limit)
	req.Equal("message 2", page2[0].Body)
	req.Equal("message 1", page2[1].Body)

	// Last page holds the remainder
	page3, _, err := repository.GetMessages("bob", cursor2)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal("message 0", page3[0].Body)
}

func Test_Archive_Empty_Account_Yields_No_Cursor(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	repository := NewArchiveRepository(db, slog.Default(), nil)

	fetched, cursor, err := repository.GetMessages("nobody", nil)
	req.NoError(err)
	req.Empty(fetched)
	req.Nil(cursor)
}
