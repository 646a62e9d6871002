package announce

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	record "github.com/libp2p/go-libp2p-record"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// Namespace is the DHT record namespace used for chat announcements
const Namespace = "gc"

// Slots is the number of DHT records kept per chat. A member writes to the
// slot picked by its key; the newest announcement wins a shared slot.
const Slots = 8

var ErrInvalidRecordKey = errors.New("invalid announcement record key")

// RecordKey returns the DHT key of a chat's slot: /gc/<chat key hex>/<slot>
func RecordKey(chatKey crypto.ExtPublicKey, slot int) string {
	return fmt.Sprintf("/%s/%s/%d", Namespace, chatKey, slot)
}

// SlotOf picks the slot a member announces into
func SlotOf(pk crypto.ExtPublicKey) int {
	return int(crypto.Hash(pk[:])[0]) % Slots
}

// parseRecordKey splits a record key into chat key and slot
func parseRecordKey(key string) (crypto.ExtPublicKey, int, error) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) != 3 || parts[0] != Namespace {
		return crypto.ExtPublicKey{}, 0, ErrInvalidRecordKey
	}
	chatKey, err := crypto.ParseExtPublicKey(parts[1])
	if err != nil {
		return crypto.ExtPublicKey{}, 0, ErrInvalidRecordKey
	}
	slot, err := strconv.Atoi(parts[2])
	if err != nil || slot < 0 || slot >= Slots {
		return crypto.ExtPublicKey{}, 0, ErrInvalidRecordKey
	}
	return chatKey, slot, nil
}

// Validator checks announcement records stored in the DHT
type Validator struct {
	Clock clock.Clock
}

var _ record.Validator = Validator{}

func (v Validator) now() time.Time {
	if v.Clock == nil {
		return time.Now()
	}
	return v.Clock.Now()
}

// Validate accepts a record only if it is a fresh, correctly signed
// announcement for the chat and slot named by its key
func (v Validator) Validate(key string, value []byte) error {
	chatKey, slot, err := parseRecordKey(key)
	if err != nil {
		return err
	}

	a, err := Decode(value)
	if err != nil {
		return fmt.Errorf("failed to decode announcement: %w", err)
	}
	if a.ChatKey != chatKey {
		return fmt.Errorf("%w: chat key mismatch", ErrInvalidRecordKey)
	}
	if SlotOf(a.PublicKey) != slot {
		return fmt.Errorf("%w: slot mismatch", ErrInvalidRecordKey)
	}
	return a.Verify(v.now())
}

// Select prefers the newest valid announcement
func (v Validator) Select(key string, values [][]byte) (int, error) {
	best, bestTS := -1, int64(0)
	for i, value := range values {
		if v.Validate(key, value) != nil {
			continue
		}
		a, _ := Decode(value)
		if best < 0 || a.Timestamp > bestTS {
			best, bestTS = i, a.Timestamp
		}
	}
	if best < 0 {
		return 0, errors.New("no valid announcement")
	}
	return best, nil
}
