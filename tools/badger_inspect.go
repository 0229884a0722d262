package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"

	"room-relay/domain"
)

// Offline inspector for a relay database. Opens the store read-only so
// it can run next to a live relay process.
func main() {
	dbPath := flag.String("db", "/tmp/room-relay", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg: or sub:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Sender", "Kind", "Timestamp", "Content"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				var msg domain.Message
				if err := cbor.Unmarshal(v, &msg); err != nil {
					// Subscriptions and foreign values are shown raw instead of
					// stopping the whole scan
					table.Append([]string{rawKey, "", "", "RAW", "", fmt.Sprintf("%d bytes", len(v))})
					return nil
				}

				kind := "TEXT"
				content := msg.Text
				if msg.IsFile() {
					kind = "FILE"
					content = fmt.Sprintf("%s (%s, %d bytes)", msg.Filename, msg.Mimetype, len(msg.FileData))
				}
				if len(content) > 60 {
					content = content[:57] + "..."
				}

				table.Append([]string{
					rawKey,
					string(msg.Room),
					msg.Sender,
					kind,
					msg.At.Format("2006-01-02 15:04:05"),
					strings.ReplaceAll(content, "\n", " "),
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
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	return badger.Open(opts)
}
