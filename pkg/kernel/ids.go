package kernel

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// UserID identifies the owner of a memory namespace
type UserID string

func (id UserID) String() string { return string(id) }

// IsEmpty reports whether the id is blank after trimming
func (id UserID) IsEmpty() bool { return strings.TrimSpace(string(id)) == "" }

// ThreadID identifies a conversation ledger
type ThreadID string

func (id ThreadID) String() string { return string(id) }

func (id ThreadID) IsEmpty() bool { return strings.TrimSpace(string(id)) == "" }

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewThreadID returns a lexically sortable thread id
func NewThreadID() ThreadID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ThreadID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// RecordKey identifies one record inside a namespace
type RecordKey string

func (k RecordKey) String() string { return string(k) }

// NewRecordKey returns a fresh uuid v4 record key
func NewRecordKey() RecordKey {
	return RecordKey(uuid.NewString())
}
