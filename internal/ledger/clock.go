package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time to the ledger
type Clock interface {
	Now() time.Time
}

// IDGenerator allocates deposit ids
type IDGenerator interface {
	NewID() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }
