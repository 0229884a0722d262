package internal

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"room-relay/domain"
	"room-relay/observability"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Room      string
	Sender    string
	Kind      string
	Timestamp string
	Size      string
}

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]uint64
}

// StartDebugServer serves a read-only HTML view of the stored messages
// and the relay counters. Development aid only, never exposed by
// default.
func StartDebugServer(db *badger.DB, metrics *observability.RelayMetrics, port int) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{Prefix: prefix, Stats: metrics.Snapshot()}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				_ = it.Item().Value(func(val []byte) error {
					data.Items = append(data.Items, toRow(val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

func toRow(val []byte) InspectRow {
	row := InspectRow{
		Room:      "--------",
		Sender:    "--------",
		Kind:      "raw",
		Timestamp: "--:--:--",
		Size:      strconv.Itoa(len(val)) + " bytes",
	}
	var msg domain.Message
	if err := cbor.Unmarshal(val, &msg); err != nil {
		return row
	}
	row.Room = string(msg.Room)
	row.Sender = msg.Sender
	row.Kind = "text"
	if msg.IsFile() {
		row.Kind = "file (" + msg.Mimetype + ")"
	}
	row.Timestamp = msg.At.Format("15:04:05")
	return row
}
