// Command history renders the archived friend-message history as a table.
// It opens the archive read-only, so it can run while the client holds the
// database lock.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

type config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
}

type archivedMessage struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

func main() {
	_ = godotenv.Load()
	var cfg config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	account := flag.String("account", "", "Only show messages exchanged with this account")
	flag.Parse()

	// Note: BypassLockGuard allows opening if another process (the client) holds the lock
	opts := badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Account", "Message ID", "Body"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	prefix := "msg:"
	if *account != "" {
		prefix = fmt.Sprintf("msg:%s:", *account)
	}

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var m archivedMessage
				if err := json.Unmarshal(v, &m); err != nil {
					// Au lieu de stopper tout le script, on log l'erreur et on continue
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				// On affiche les 8 premiers caractères de l'ID pour la lisibilité
				displayID := m.ID
				if len(displayID) > 8 {
					displayID = displayID[:8]
				}

				table.Append([]string{
					m.At.Local().Format("02 Jan 15:04:05"),
					m.AccountID,
					displayID,
					m.Body,
				})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	header := fmt.Sprintf(" Message archive: %d message(s) ", count)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	table.Render()
}
