package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/resultoor/pkg/result"
	"github.com/sirupsen/logrus"
)

// Writer persists runs into a Store. Writing is the only mutation it
// performs, and it never overwrites an existing file.
type Writer struct {
	log   logrus.FieldLogger
	store Store
}

// NewWriter creates a Writer over store.
func NewWriter(log logrus.FieldLogger, store Store) *Writer {
	return &Writer{
		log:   log.WithField("component", "history-writer"),
		store: store,
	}
}

// Save stores run under the name derived from its timestamp. If that name is
// taken, the next free sequence suffix is used and the returned
// WriteCollision describes the disambiguation.
func (w *Writer) Save(ctx context.Context, run *result.Run) (string, *result.WriteCollision, error) {
	data, err := Encode(run)
	if err != nil {
		return "", nil, err
	}

	preferred := FileName(run.Timestamp, 0)

	for seq := 0; seq <= MaxSequence; seq++ {
		name := FileName(run.Timestamp, seq)

		err := w.store.Create(ctx, name, data)
		if errors.Is(err, ErrExists) {
			continue
		}

		if err != nil {
			return "", nil, fmt.Errorf("writing run file %s to %s: %w", name, w.store.Location(), err)
		}

		log := w.log.WithFields(logrus.Fields{
			"run_id": run.ID,
			"file":   name,
		})

		if seq == 0 {
			log.Info("Persisted run")

			return name, nil, nil
		}

		collision := &result.WriteCollision{RunID: run.ID, Preferred: preferred, Actual: name}
		log.WithField("preferred", preferred).Warn("Run file name collision, stored under disambiguated name")

		return name, collision, nil
	}

	return "", nil, fmt.Errorf(
		"writing run file %s to %s: all %d sequence suffixes taken",
		preferred, w.store.Location(), MaxSequence,
	)
}
