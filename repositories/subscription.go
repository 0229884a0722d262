package repositories

import (
	"fmt"
	"log/slog"
	"net/url"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const subscriptionPrefix = "sub:"

// SubscriptionRepository persists web-push subscriptions in BadgerDB,
// keyed by endpoint so re-subscribing the same browser overwrites the
// previous record instead of duplicating it.
type SubscriptionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSubscriptionRepository(db *badger.DB, log *slog.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, log: log}
}

func (r *SubscriptionRepository) Save(sub webpush.Subscription) error {
	bytes, err := cbor.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(subscriptionKey(sub.Endpoint), bytes)
	})
	if err != nil {
		return fmt.Errorf("storing subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) All() ([]webpush.Subscription, error) {
	var subs []webpush.Subscription
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(subscriptionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var sub webpush.Subscription
				if err := cbor.Unmarshal(value, &sub); err != nil {
					return err
				}
				subs = append(subs, sub)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, nil
}

// Delete removes a subscription whose endpoint rejected a push.
// Deleting an unknown endpoint is a no-op.
func (r *SubscriptionRepository) Delete(endpoint string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(subscriptionKey(endpoint))
	})
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

func subscriptionKey(endpoint string) []byte {
	return []byte(subscriptionPrefix + url.QueryEscape(endpoint))
}
